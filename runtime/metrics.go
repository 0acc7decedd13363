package runtime

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the statement collectors.
type Metrics struct {
	statements *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg when it is non-nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		statements: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sqlforge_statements_total",
				Help: "Statements executed, by dialect, kind and outcome.",
			},
			[]string{"dialect", "kind", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sqlforge_statement_duration_seconds",
				Help:    "Statement latency, by dialect and kind.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"dialect", "kind"},
		),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{m.statements, m.duration} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

// observe is a no-op on a nil receiver.
func (m *Metrics) observe(dialect, kind string, err error, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.statements.WithLabelValues(dialect, kind, outcome).Inc()
	m.duration.WithLabelValues(dialect, kind).Observe(d.Seconds())
}
