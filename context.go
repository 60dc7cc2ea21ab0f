package goGuard

import "context"

type clientIPContextKey struct{}
type requestIDContextKey struct{}
type sessionKeyContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. The Engine uses it to
// rate limit signed-link attempts and to tag audit events.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithRequestID attaches a request id that is copied into audit events.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey{}, id)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

// RequestIDFromContext returns the id set by WithRequestID, or "".
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	id, _ := ctx.Value(requestIDContextKey{}).(string)
	return id
}

// WithSessionKey attaches the visitor's session key (see SessionKey) to ctx.
// Navigators and ExpireSession use it to share one logout latch per session.
func WithSessionKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, sessionKeyContextKey{}, key)
}

func sessionKeyFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	key, _ := ctx.Value(sessionKeyContextKey{}).(string)
	return key
}
