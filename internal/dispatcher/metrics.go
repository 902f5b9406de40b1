package dispatcher

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "flare"

// Metrics are the dispatcher's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	outcomes *prometheus.CounterVec
	attempts *prometheus.CounterVec
	inFlight prometheus.Gauge
	queued   prometheus.Gauge
	gateWait prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg when reg is not nil
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "dispatcher",
			Name:      "outcomes_total",
			Help:      "Counter of terminal outcomes by terminal state.",
		}, []string{"terminal"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "dispatcher",
			Name:      "attempts_total",
			Help:      "Counter of provider attempts by result class.",
		}, []string{"result"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "dispatcher",
			Name:      "in_flight",
			Help:      "Requests currently admitted and not yet terminal.",
		}),
		queued: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "dispatcher",
			Name:      "queued",
			Help:      "Requests submitted and not yet admitted.",
		}),
		gateWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "dispatcher",
			Name:      "gate_wait_seconds",
			Help:      "Time requests spent waiting at the admission gate.",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 30, 60, 300},
		}),
	}

	if reg != nil {
		reg.MustRegister(m.outcomes, m.attempts, m.inFlight, m.queued, m.gateWait)
	}
	return m
}

func (m *Metrics) observeAttempt(result string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(result).Inc()
}

func (m *Metrics) observeOutcome(terminal string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(terminal).Inc()
}

func (m *Metrics) observeAdmitted(wait time.Duration) {
	if m == nil {
		return
	}
	m.gateWait.Observe(wait.Seconds())
	m.queued.Dec()
	m.inFlight.Inc()
}

func (m *Metrics) observeDone() {
	if m == nil {
		return
	}
	m.inFlight.Dec()
}

func (m *Metrics) observeQueued() {
	if m == nil {
		return
	}
	m.queued.Inc()
}

func (m *Metrics) observeDropped() {
	if m == nil {
		return
	}
	m.queued.Dec()
}
