package internaldefs

import (
	goGuard "github.com/MrEthical07/goGuard"
)

// CounterDef names one guard counter for exporters.
type CounterDef struct {
	ID   goGuard.MetricID
	Name string
	Help string
}

// HistogramDef names one guard histogram for exporters.
type HistogramDef struct {
	ID   goGuard.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in render order.
var CounterDefs = []CounterDef{
	{ID: goGuard.MetricDecisionAllow, Name: "goguard_decision_allow_total", Help: "Navigations allowed."},
	{ID: goGuard.MetricDecisionRedirect, Name: "goguard_decision_redirect_total", Help: "Navigations redirected."},
	{ID: goGuard.MetricDecisionPending, Name: "goguard_decision_pending_total", Help: "Decisions held while an input was loading."},
	{ID: goGuard.MetricLinkGranted, Name: "goguard_link_granted_total", Help: "Signed links that verified."},
	{ID: goGuard.MetricLinkRejected, Name: "goguard_link_rejected_total", Help: "Signed links rejected or revoked."},
	{ID: goGuard.MetricLinkRateLimited, Name: "goguard_link_rate_limited_total", Help: "Signed-link attempts refused by the per-IP limiter."},
	{ID: goGuard.MetricSessionAuthenticated, Name: "goguard_session_authenticated_total", Help: "Session checks that confirmed a session."},
	{ID: goGuard.MetricSessionUnauthenticated, Name: "goguard_session_unauthenticated_total", Help: "Session checks answered as not logged in."},
	{ID: goGuard.MetricSessionCheckFailure, Name: "goguard_session_check_failure_total", Help: "Session checks that failed or returned a malformed principal."},
	{ID: goGuard.MetricSubscriptionExpired, Name: "goguard_subscription_expired_total", Help: "Sessions whose subscription lapsed."},
	{ID: goGuard.MetricSubscriptionFetchFailure, Name: "goguard_subscription_fetch_failure_total", Help: "Failed subscription fetches."},
	{ID: goGuard.MetricLogout, Name: "goguard_logout_total", Help: "Logout calls issued by the guard."},
	{ID: goGuard.MetricLogoutFailure, Name: "goguard_logout_failure_total", Help: "Logout calls that returned an error."},
	{ID: goGuard.MetricStaleResultDropped, Name: "goguard_stale_result_dropped_total", Help: "Check results dropped because a newer navigation superseded them."},
	{ID: goGuard.MetricRedirectCancelled, Name: "goguard_redirect_cancelled_total", Help: "Scheduled redirects cancelled by a newer navigation."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goGuard.MetricEvaluateLatency, Name: "goguard_evaluate_latency_seconds", Help: "Engine.Evaluate latency histogram."},
}

// AuditDroppedName is the counter for audit events lost to backpressure.
const AuditDroppedName = "goguard_audit_dropped_total"

// AuditDroppedByTypeName is the per event type drop counter, labelled event_type.
const AuditDroppedByTypeName = "goguard_audit_dropped_events_total"

// HistogramBounds are the upper bounds of the latency buckets, in seconds.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundsSeconds mirrors HistogramBounds for exporters that need
// numeric boundaries. The +Inf bucket is implicit.
var HistogramBoundsSeconds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// NormalizeBuckets copies raw into a fixed eight-bucket array, zero-filling
// missing buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
