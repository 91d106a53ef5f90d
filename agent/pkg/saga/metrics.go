package saga

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics observes saga runs. Create it with NewMetrics and pass it to the saga using WithMetrics.
type Metrics struct {
	runs         *prometheus.CounterVec
	steps        *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
	runDuration  prometheus.Histogram
}

// NewMetrics registers the saga metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "deploykit",
			Subsystem: "saga",
			Name:      "runs_total",
			Help:      "Deployment runs by result",
		}, []string{"result"}),
		steps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "deploykit",
			Subsystem: "saga",
			Name:      "steps_total",
			Help:      "Deployment steps by name, final status and error kind",
		}, []string{"step", "status", "error_kind"}),
		stepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "deploykit",
			Subsystem: "saga",
			Name:      "step_duration_seconds",
			Help:      "Time spent executing a deployment step",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"step"}),
		runDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "deploykit",
			Subsystem: "saga",
			Name:      "run_duration_seconds",
			Help:      "Time spent executing a complete deployment",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}),
	}
}

func (m *Metrics) observeStep(step Step) {
	if m == nil {
		return
	}
	kind := ""
	if step.Outcome != nil {
		kind = step.Outcome.ErrorKind.String()
	}
	m.steps.WithLabelValues(string(step.Name), step.Status.String(), kind).Inc()
	if step.Status != Skipped {
		m.stepDuration.WithLabelValues(string(step.Name)).Observe(step.Duration.Seconds())
	}
}

func (m *Metrics) observeRun(result Result) {
	if m == nil {
		return
	}
	label := "failed"
	if result.OverallSuccess {
		label = "success"
	}
	m.runs.WithLabelValues(label).Inc()
	m.runDuration.Observe(result.Duration.Seconds())
}
