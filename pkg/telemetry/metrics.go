package telemetry

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/pkorhonen/stitch/pkg/flow"
)

const (
	resultSuccess = "success"
	resultError   = "error"
)

// Metrics is the Prometheus instrument set for the runtime. Instruments
// register on the Registerer passed to NewMetrics; nothing touches the
// default global registry, so tests and embedders control exposition
// completely.
type Metrics struct {
	primitiveExecutions *prometheus.CounterVec
	primitiveDuration   *prometheus.HistogramVec
	runs                *prometheus.CounterVec
	runDuration         *prometheus.HistogramVec
}

// NewMetrics creates and registers the instrument set on reg. It panics if
// the instruments are already registered there, same as any double
// registration in a process.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		primitiveExecutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stitch_primitive_executions_total",
				Help: "Primitive invocations by type and result.",
			},
			[]string{"primitive_type", "result"},
		),
		primitiveDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stitch_primitive_duration_seconds",
				Help:    "Primitive invocation latency by type.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"primitive_type"},
		),
		runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stitch_runs_total",
				Help: "Pipeline runs by pipeline and result.",
			},
			[]string{"pipeline", "result"},
		),
		runDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stitch_run_duration_seconds",
				Help:    "End-to-end pipeline run latency.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"pipeline"},
		),
	}
}

// Observer returns a flow.Observer feeding these instruments. Attach it to
// the runtime (or an Instrumenter) alongside any other observers.
func (m *Metrics) Observer() flow.Observer {
	return &metricsObserver{metrics: m}
}

type metricsObserver struct {
	flow.NoopObserver
	metrics *Metrics
}

func (o *metricsObserver) OnRunCompleted(ctx context.Context, run *flow.Run, d time.Duration) {
	o.metrics.runs.WithLabelValues(run.Pipeline, resultSuccess).Inc()
	o.metrics.runDuration.WithLabelValues(run.Pipeline).Observe(d.Seconds())
}

func (o *metricsObserver) OnRunFailed(ctx context.Context, run *flow.Run, err error, d time.Duration) {
	o.metrics.runs.WithLabelValues(run.Pipeline, resultError).Inc()
	o.metrics.runDuration.WithLabelValues(run.Pipeline).Observe(d.Seconds())
}

func (o *metricsObserver) OnPrimitiveCompleted(ctx context.Context, name, primitiveType string, err error, d time.Duration) {
	result := resultSuccess
	if err != nil {
		result = resultError
	}
	o.metrics.primitiveExecutions.WithLabelValues(primitiveType, result).Inc()
	o.metrics.primitiveDuration.WithLabelValues(primitiveType).Observe(d.Seconds())
}
