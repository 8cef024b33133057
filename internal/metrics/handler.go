package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcomes of a handled request, matching the reply envelope.
const (
	OutcomeSuccess      = "success"
	OutcomeNotFound     = "not_found"
	OutcomeInvalidInput = "invalid_input"
	OutcomeInternal     = "internal"
)

// HandlerMetrics counts queue handler invocations.
type HandlerMetrics struct {
	Requests *prometheus.CounterVec
	Duration *prometheus.HistogramVec
}

func NewHandlerMetrics(reg prometheus.Registerer) *HandlerMetrics {
	m := &HandlerMetrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of handled queue requests, by queue and outcome.",
		}, []string{"queue", "outcome"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Duration of queue request handling in seconds.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"queue"}),
	}

	reg.MustRegister(m.Requests, m.Duration)
	return m
}

// Observe records one invocation. A nil receiver records nothing.
func (m *HandlerMetrics) Observe(queue, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(queue, outcome).Inc()
	m.Duration.WithLabelValues(queue).Observe(d.Seconds())
}
