package prometheus

import (
	"errors"
	"fmt"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/coopsched/go-coop-scheduler/core"
)

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	DurationBuckets []float64
}

// MetricsExporter adapts core.Metrics to Prometheus collectors.
type MetricsExporter struct {
	taskDurationSeconds *prom.HistogramVec
	taskPanicTotal      *prom.CounterVec
	postRejectedTotal   *prom.CounterVec
	wakeupScheduled     *prom.CounterVec
	wakeupCoalesced     *prom.CounterVec
	throttledPumpTotal  prom.Counter
	throttledPumpQueues prom.Counter
}

var _ core.Metrics = (*MetricsExporter)(nil)

// NewMetricsExporter creates and registers Prometheus collectors for core.Metrics.
func NewMetricsExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = "coopsched"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	buckets := opts.DurationBuckets
	if len(buckets) == 0 {
		buckets = prom.DefBuckets
	}

	durationVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "task_duration_seconds",
		Help:      "Task execution duration in seconds.",
		Buckets:   buckets,
	}, []string{"queue", "priority"})
	panicVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_panic_total",
		Help:      "Total number of task panics.",
	}, []string{"queue"})
	rejectedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "post_rejected_total",
		Help:      "Total number of rejected task posts.",
	}, []string{"queue", "reason"})
	wakeupScheduledVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "wakeup_scheduled_total",
		Help:      "Total number of delayed wake-ups armed, per time domain.",
	}, []string{"domain"})
	wakeupCoalescedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "wakeup_coalesced_total",
		Help:      "Total number of wake-up requests absorbed by a pending earlier wake-up.",
	}, []string{"domain"})
	pumpTotal := prom.NewCounter(prom.CounterOpts{
		Namespace: namespace,
		Name:      "throttled_pump_total",
		Help:      "Total number of throttled pump cycles.",
	})
	pumpQueues := prom.NewCounter(prom.CounterOpts{
		Namespace: namespace,
		Name:      "throttled_pump_queues_total",
		Help:      "Total number of throttled queues drained across all pump cycles.",
	})

	var err error
	if durationVec, err = registerCollector(reg, durationVec); err != nil {
		return nil, err
	}
	if panicVec, err = registerCollector(reg, panicVec); err != nil {
		return nil, err
	}
	if rejectedVec, err = registerCollector(reg, rejectedVec); err != nil {
		return nil, err
	}
	if wakeupScheduledVec, err = registerCollector(reg, wakeupScheduledVec); err != nil {
		return nil, err
	}
	if wakeupCoalescedVec, err = registerCollector(reg, wakeupCoalescedVec); err != nil {
		return nil, err
	}
	if pumpTotal, err = registerCollector(reg, pumpTotal); err != nil {
		return nil, err
	}
	if pumpQueues, err = registerCollector(reg, pumpQueues); err != nil {
		return nil, err
	}

	return &MetricsExporter{
		taskDurationSeconds: durationVec,
		taskPanicTotal:      panicVec,
		postRejectedTotal:   rejectedVec,
		wakeupScheduled:     wakeupScheduledVec,
		wakeupCoalesced:     wakeupCoalescedVec,
		throttledPumpTotal:  pumpTotal,
		throttledPumpQueues: pumpQueues,
	}, nil
}

// RecordTaskRun records a completed task execution.
func (m *MetricsExporter) RecordTaskRun(queueName string, priority core.Priority, duration time.Duration) {
	if m == nil {
		return
	}
	m.taskDurationSeconds.WithLabelValues(normalizeLabel(queueName, "unknown"), priorityLabel(priority)).Observe(duration.Seconds())
}

// RecordTaskPanic records task panic events.
func (m *MetricsExporter) RecordTaskPanic(queueName string, panicInfo any) {
	if m == nil {
		return
	}
	m.taskPanicTotal.WithLabelValues(normalizeLabel(queueName, "unknown")).Inc()
}

// RecordPostRejected records task post rejection events.
func (m *MetricsExporter) RecordPostRejected(queueName string, reason string) {
	if m == nil {
		return
	}
	m.postRejectedTotal.WithLabelValues(normalizeLabel(queueName, "unknown"), normalizeLabel(reason, "unknown")).Inc()
}

// RecordWakeupScheduled records that a time domain armed a new wake-up.
func (m *MetricsExporter) RecordWakeupScheduled(domainName string) {
	if m == nil {
		return
	}
	m.wakeupScheduled.WithLabelValues(normalizeLabel(domainName, "unknown")).Inc()
}

// RecordWakeupCoalesced records a wake-up request absorbed by a pending one.
func (m *MetricsExporter) RecordWakeupCoalesced(domainName string) {
	if m == nil {
		return
	}
	m.wakeupCoalesced.WithLabelValues(normalizeLabel(domainName, "unknown")).Inc()
}

// RecordThrottledPump records one pump cycle and how many queues it drained.
func (m *MetricsExporter) RecordThrottledPump(queuesPumped int) {
	if m == nil {
		return
	}
	m.throttledPumpTotal.Inc()
	m.throttledPumpQueues.Add(float64(queuesPumped))
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func priorityLabel(priority core.Priority) string {
	switch priority {
	case core.PriorityControl:
		return "control"
	case core.PriorityHigh:
		return "high"
	case core.PriorityNormal:
		return "normal"
	case core.PriorityBestEffort:
		return "best_effort"
	default:
		return "unknown"
	}
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
