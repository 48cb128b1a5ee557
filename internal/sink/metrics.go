package sink

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts sink activity.
type Metrics struct {
	recordsWritten *prometheus.CounterVec
	writeFailures  *prometheus.CounterVec
	ticksRejected  prometheus.Counter
}

// NewMetrics creates the recorder counters and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		recordsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "recorder",
			Name:      "records_written_total",
			Help:      "Records inserted, by store.",
		}, []string{"store"}),
		writeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "recorder",
			Name:      "write_failures_total",
			Help:      "Failed record inserts, by store.",
		}, []string{"store"}),
		ticksRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "recorder",
			Name:      "ticks_rejected_total",
			Help:      "Tick events rejected as malformed.",
		}),
	}
	reg.MustRegister(m.recordsWritten, m.writeFailures, m.ticksRejected)
	return m
}

func (m *Metrics) written(store string) {
	if m == nil {
		return
	}
	m.recordsWritten.WithLabelValues(store).Inc()
}

func (m *Metrics) writeFailed(store string) {
	if m == nil {
		return
	}
	m.writeFailures.WithLabelValues(store).Inc()
}

func (m *Metrics) rejected() {
	if m == nil {
		return
	}
	m.ticksRejected.Inc()
}
