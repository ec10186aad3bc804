package authapi

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Result label values.
const (
	resultSuccess = "success"
	resultFailure = "failure"
	resultError   = "error"
)

// Metrics counts auth operations by outcome and times them.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics registers the auth collectors with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "worksite",
			Subsystem: "auth",
			Name:      "requests_total",
			Help:      "Auth operations by operation and result.",
		}, []string{"op", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "worksite",
			Subsystem: "auth",
			Name:      "request_duration_seconds",
			Help:      "Auth operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
	}
	for _, c := range []prometheus.Collector{m.requests, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observe(op, result string, start time.Time) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(op, result).Inc()
	m.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
