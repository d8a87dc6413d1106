package authclient

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one in-process counter.
type MetricID uint16

const (
	// MetricRequestSuccess counts 2xx responses.
	MetricRequestSuccess MetricID = iota
	// MetricRequestFailure counts requests surfaced to the caller as errors.
	MetricRequestFailure
	// MetricRequestRetried counts replay attempts (401 refresh, 429, 5xx backoff).
	MetricRequestRetried
	// MetricRateLimitHit counts calls blocked by the client-side limiter.
	MetricRateLimitHit
	// MetricTokenRefreshSuccess counts successful token refreshes.
	MetricTokenRefreshSuccess
	// MetricTokenRefreshFailure counts failed token refreshes.
	MetricTokenRefreshFailure
	// MetricLoginSuccess counts completed logins.
	MetricLoginSuccess
	// MetricLoginFailure counts rejected logins.
	MetricLoginFailure
	// MetricLockoutTriggered counts client-side lockout activations.
	MetricLockoutTriggered
	// MetricCSRFRotated counts CSRF token rotations from response headers.
	MetricCSRFRotated
	// MetricSessionCleared counts store clears from any cause.
	MetricSessionCleared
	// MetricSessionTimeout counts inactivity-timeout clears.
	MetricSessionTimeout
	// MetricRequestLatency is the request latency histogram.
	MetricRequestLatency
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

// Metrics holds lock-free counters and an optional request-latency histogram.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all counters and histograms.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics creates a [Metrics] per cfg. A disabled instance is inert and
// safe to use.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are collected.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// Inc adds one to the counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records a latency sample into the histogram bucket for d.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enableLatency || id != MetricRequestLatency {
		return
	}
	atomic.AddUint64(&m.histograms[id].buckets[latencyBucket(d)], 1)
}

// Value returns the current count for id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter and histogram.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, metricIDCount),
		Histograms: make(map[MetricID][]uint64),
	}
	if m == nil || !m.enabled {
		return snap
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		snap.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}
	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := range buckets {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricRequestLatency].buckets[i])
		}
		snap.Histograms[MetricRequestLatency] = buckets
	}
	return snap
}

// latencyBucket maps a duration onto 8 buckets: <25ms, <50ms, <100ms, <250ms,
// <500ms, <1s, <2.5s, and everything above.
func latencyBucket(d time.Duration) int {
	bounds := [histBucketCount - 1]time.Duration{
		25 * time.Millisecond,
		50 * time.Millisecond,
		100 * time.Millisecond,
		250 * time.Millisecond,
		500 * time.Millisecond,
		time.Second,
		2500 * time.Millisecond,
	}
	for i, bound := range bounds {
		if d < bound {
			return i
		}
	}
	return histBucketCount - 1
}

// metricName maps IDs to stable exporter names.
func metricName(id MetricID) string {
	switch id {
	case MetricRequestSuccess:
		return "authclient_request_success_total"
	case MetricRequestFailure:
		return "authclient_request_failure_total"
	case MetricRequestRetried:
		return "authclient_request_retried_total"
	case MetricRateLimitHit:
		return "authclient_rate_limit_hit_total"
	case MetricTokenRefreshSuccess:
		return "authclient_token_refresh_success_total"
	case MetricTokenRefreshFailure:
		return "authclient_token_refresh_failure_total"
	case MetricLoginSuccess:
		return "authclient_login_success_total"
	case MetricLoginFailure:
		return "authclient_login_failure_total"
	case MetricLockoutTriggered:
		return "authclient_lockout_triggered_total"
	case MetricCSRFRotated:
		return "authclient_csrf_rotated_total"
	case MetricSessionCleared:
		return "authclient_session_cleared_total"
	case MetricSessionTimeout:
		return "authclient_session_timeout_total"
	case MetricRequestLatency:
		return "authclient_request_latency"
	default:
		return "authclient_unknown"
	}
}

// CounterIDs lists every counter metric in export order.
func CounterIDs() []MetricID {
	ids := make([]MetricID, 0, metricIDCount-1)
	for id := MetricID(0); id < metricIDCount; id++ {
		if id == MetricRequestLatency {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// MetricName returns the stable exporter name for id.
func MetricName(id MetricID) string { return metricName(id) }
