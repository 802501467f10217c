package goRecover

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one in-process counter or histogram.
type MetricID uint16

const (
	// MetricSignupSuccess counts signups that issued a code.
	MetricSignupSuccess MetricID = iota
	// MetricSignupFailure counts failed signups.
	MetricSignupFailure
	// MetricResendCodeSuccess counts reissued confirmation codes.
	MetricResendCodeSuccess
	// MetricResendCodeFailure counts failed code resends.
	MetricResendCodeFailure
	// MetricVerifyEmailSuccess counts confirmed email addresses.
	MetricVerifyEmailSuccess
	// MetricVerifyEmailFailure counts failed email confirmations.
	MetricVerifyEmailFailure
	// MetricInitiateResetSuccess counts reset codes issued.
	MetricInitiateResetSuccess
	// MetricInitiateResetFailure counts failed reset initiations.
	MetricInitiateResetFailure
	// MetricVerifyResetCodeSuccess counts capability tokens issued.
	MetricVerifyResetCodeSuccess
	// MetricVerifyResetCodeFailure counts failed reset-code verifications.
	MetricVerifyResetCodeFailure
	// MetricCompleteResetSuccess counts completed password resets.
	MetricCompleteResetSuccess
	// MetricCompleteResetFailure counts failed password resets.
	MetricCompleteResetFailure
	// MetricLoginSuccess counts successful logins.
	MetricLoginSuccess
	// MetricLoginFailure counts failed logins.
	MetricLoginFailure
	// MetricLogoutSuccess counts logouts.
	MetricLogoutSuccess
	// MetricLogoutFailure counts failed logouts.
	MetricLogoutFailure
	// MetricThrottleRejected counts attempts rejected by the code-verification throttle.
	MetricThrottleRejected
	// MetricCodeIssued counts verification codes stored.
	MetricCodeIssued
	// MetricCodeConsumed counts verification codes consumed.
	MetricCodeConsumed
	// MetricCodeSwept counts expired verification codes removed by sweeps.
	MetricCodeSwept
	// MetricCodeMismatch counts codes presented with an email they were not issued for.
	MetricCodeMismatch
	// MetricDecodeFailure counts capability tokens that failed to decode.
	MetricDecodeFailure
	// MetricStorageError counts store or throttle backend faults.
	MetricStorageError
	// MetricUpstreamError counts identity provider faults outside the taxonomy.
	MetricUpstreamError
	// MetricFlowLatency is the latency histogram shared by every flow.
	MetricFlowLatency
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

// Metrics holds lock-free counters, one per MetricID, and the flow latency
// histogram. Counters are padded to a cache line to avoid false sharing.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of every counter and histogram.
// Histogram buckets are non-cumulative.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics describes the newmetrics operation and its observable behavior.
//
// A disabled Metrics accepts every call and records nothing.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

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

// Add adds n to counter id.
func (m *Metrics) Add(id MetricID, n uint64) {
	if m == nil || !m.enabled || id >= metricIDCount || n == 0 {
		return
	}
	atomic.AddUint64(&m.counters[id].value, n)
}

// Observe records d in the histogram of id. Only MetricFlowLatency has one.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricFlowLatency {
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

// Snapshot describes the snapshot operation and its observable behavior.
//
// A disabled Metrics returns empty maps.
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
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricFlowLatency].buckets[i])
		}
		s.Histograms[MetricFlowLatency] = buckets
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
