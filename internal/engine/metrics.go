package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Run outcomes, used as the runs_total label.
const (
	OutcomeCompleted = "completed"
	OutcomeStopped   = "stopped"
	OutcomeFailed    = "failed"

	// OutcomeInterrupted marks a run cut short by process shutdown.
	OutcomeInterrupted = "interrupted"
)

// Metrics holds the executor's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	steps        *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
	runs         *prometheus.CounterVec
	running      prometheus.Gauge
}

// MustNewMetrics registers the collectors with reg, reusing collectors that
// are already registered under the same names. Other registration errors panic.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	steps := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "webpilot",
			Subsystem: "executor",
			Name:      "steps_total",
			Help:      "Steps dispatched, by step type and status.",
		},
		[]string{"type", "status"},
	)
	stepDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "webpilot",
			Subsystem: "executor",
			Name:      "step_duration_seconds",
			Help:      "Time spent executing a step, settle pads included.",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"type"},
	)
	runs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "webpilot",
			Subsystem: "executor",
			Name:      "runs_total",
			Help:      "Finished runs, by outcome.",
		},
		[]string{"outcome"},
	)
	running := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "webpilot",
			Subsystem: "executor",
			Name:      "running",
			Help:      "1 while a program is executing.",
		},
	)

	for _, collector := range []prometheus.Collector{steps, stepDuration, runs, running} {
		if err := reg.Register(collector); err != nil {
			already, ok := err.(prometheus.AlreadyRegisteredError)
			if !ok {
				panic(err)
			}
			switch collector {
			case steps:
				steps = already.ExistingCollector.(*prometheus.CounterVec)
			case runs:
				runs = already.ExistingCollector.(*prometheus.CounterVec)
			case stepDuration:
				stepDuration = already.ExistingCollector.(*prometheus.HistogramVec)
			case running:
				running = already.ExistingCollector.(prometheus.Gauge)
			}
		}
	}

	return &Metrics{steps: steps, stepDuration: stepDuration, runs: runs, running: running}
}

// ObserveStep records one dispatched step.
func (m *Metrics) ObserveStep(stepType, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.steps.WithLabelValues(stepType, status).Inc()
	m.stepDuration.WithLabelValues(stepType).Observe(d.Seconds())
}

// RunStarted sets the running gauge.
func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.running.Set(1)
}

// RunFinished clears the running gauge and counts the outcome.
func (m *Metrics) RunFinished(outcome string) {
	if m == nil {
		return
	}
	m.running.Set(0)
	m.runs.WithLabelValues(outcome).Inc()
}
