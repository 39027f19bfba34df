package service

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/metric"
)

// metrics bundles the instrumentation TaskService and WorkerHandler emit:
// unlabelled prometheus counters for lifecycle transitions and an otel
// histogram for attempt duration, mirroring
// the dual counter/histogram split used elsewhere in the pack.
type metrics struct {
	tasksCreated   prometheus.Counter
	tasksRetried   prometheus.Counter
	tasksCancelled prometheus.Counter
	enqueueErrors  prometheus.Counter

	attemptDuration metric.Float64Histogram
}

// newMetrics registers the prometheus series against reg and builds the
// otel histogram against meter. Either may be nil, in which case the
// corresponding instruments are no-ops.
func newMetrics(reg prometheus.Registerer, meter metric.Meter) *metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	m := &metrics{
		tasksCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "orchestrator_tasks_created_total",
			Help: "Total tasks created via TaskService.CreateTask.",
		}),
		tasksRetried: factory.NewCounter(prometheus.CounterOpts{
			Name: "orchestrator_tasks_retried_total",
			Help: "Total tasks retried via TaskService.RetryTask.",
		}),
		tasksCancelled: factory.NewCounter(prometheus.CounterOpts{
			Name: "orchestrator_tasks_cancelled_total",
			Help: "Total tasks cancelled via TaskService.CancelTask.",
		}),
		enqueueErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "orchestrator_enqueue_errors_total",
			Help: "Total Dispatcher.Submit failures surfaced as EnqueueError.",
		}),
	}

	if meter != nil {
		hist, err := meter.Float64Histogram("orchestrator_attempt_duration_ms")
		if err == nil {
			m.attemptDuration = hist
		}
	}
	return m
}

func (m *metrics) recordAttemptDuration(ctx context.Context, millis int64) {
	if m == nil || m.attemptDuration == nil {
		return
	}
	m.attemptDuration.Record(ctx, float64(millis))
}
