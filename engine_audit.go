package goGuard

import (
	"context"
	"time"
)

const (
	auditEventAccessDecision      = "access_decision"
	auditEventLinkRateLimited     = "link_rate_limited"
	auditEventSessionLogout       = "session_logout"
	auditEventSubscriptionExpired = "subscription_expired"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	path string,
	subject string,
	reason string,
	mutate func(*AuditEvent),
) {
	if e == nil || e.audit == nil {
		return
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		RequestID: RequestIDFromContext(ctx),
		Subject:   subject,
		Path:      path,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Reason:    reason,
	}
	if mutate != nil {
		mutate(&event)
	}

	e.audit.Emit(ctx, event)
}
