package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CascadeMetrics counts outbound cascading-delete calls.
type CascadeMetrics struct {
	Calls    *prometheus.CounterVec
	Duration prometheus.Histogram
}

func NewCascadeMetrics(reg prometheus.Registerer) *CascadeMetrics {
	m := &CascadeMetrics{
		Calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cascade_calls_total",
			Help:      "Total number of cascading-delete calls, by result.",
		}, []string{"result"}),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cascade_call_duration_seconds",
			Help:      "Duration of cascading-delete calls in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(m.Calls, m.Duration)
	return m
}

// Observe records one call. result is one of "deleted", "not_deleted",
// "error" or "timeout". A nil receiver records nothing.
func (m *CascadeMetrics) Observe(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.Calls.WithLabelValues(result).Inc()
	m.Duration.Observe(d.Seconds())
}
