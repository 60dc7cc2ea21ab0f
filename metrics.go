package goGuard

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one guard counter or histogram.
type MetricID uint16

const (
	// MetricDecisionAllow counts Allow decisions.
	MetricDecisionAllow MetricID = iota
	// MetricDecisionRedirect counts RedirectTo decisions.
	MetricDecisionRedirect
	// MetricDecisionPending counts Pending decisions.
	MetricDecisionPending
	// MetricLinkGranted counts signed links that verified.
	MetricLinkGranted
	// MetricLinkRejected counts signed links that failed verification or were revoked.
	MetricLinkRejected
	// MetricLinkRateLimited counts link attempts refused by the per-IP limiter.
	MetricLinkRateLimited
	// MetricSessionAuthenticated counts checks that confirmed a session.
	MetricSessionAuthenticated
	// MetricSessionUnauthenticated counts explicit "not logged in" answers.
	MetricSessionUnauthenticated
	// MetricSessionCheckFailure counts failed or malformed session checks.
	MetricSessionCheckFailure
	// MetricSubscriptionExpired counts sessions whose subscription lapsed.
	MetricSubscriptionExpired
	// MetricSubscriptionFetchFailure counts failed subscription fetches.
	MetricSubscriptionFetchFailure
	// MetricLogout counts logout calls issued by the guard.
	MetricLogout
	// MetricLogoutFailure counts logout calls that returned an error.
	MetricLogoutFailure
	// MetricStaleResultDropped counts superseded check results.
	MetricStaleResultDropped
	// MetricRedirectCancelled counts scheduled redirects cancelled by a newer navigation.
	MetricRedirectCancelled
	// MetricEvaluateLatency is the Engine.Evaluate latency histogram.
	MetricEvaluateLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds lock-free guard counters.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of Metrics.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics returns Metrics configured by cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether the latency histogram is recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to counter id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d in the histogram of id. Only MetricEvaluateLatency has one.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricEvaluateLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value returns the current value of counter id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter and the latency histogram.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if id == MetricEvaluateLatency {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricEvaluateLatency].buckets[i])
		}
		s.Histograms[MetricEvaluateLatency] = buckets
	}

	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
