package prometheus

import (
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"

	"github.com/coopsched/go-coop-scheduler/core"
)

func TestMetricsExporter_RecordMethods(t *testing.T) {
	reg := prom.NewRegistry()
	exporter, err := NewMetricsExporter("coopsched", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("NewMetricsExporter failed: %v", err)
	}

	exporter.RecordTaskRun("queue-a", core.PriorityNormal, 250*time.Millisecond)
	exporter.RecordTaskPanic("queue-a", "panic")
	exporter.RecordPostRejected("queue-a", "closed")
	exporter.RecordWakeupScheduled("real")
	exporter.RecordWakeupScheduled("real")
	exporter.RecordWakeupCoalesced("real")
	exporter.RecordThrottledPump(3)

	panicTotal := testutil.ToFloat64(exporter.taskPanicTotal.WithLabelValues("queue-a"))
	if panicTotal != 1 {
		t.Fatalf("panic total = %v, want 1", panicTotal)
	}

	rejected := testutil.ToFloat64(exporter.postRejectedTotal.WithLabelValues("queue-a", "closed"))
	if rejected != 1 {
		t.Fatalf("rejected total = %v, want 1", rejected)
	}

	scheduled := testutil.ToFloat64(exporter.wakeupScheduled.WithLabelValues("real"))
	if scheduled != 2 {
		t.Fatalf("wakeup scheduled total = %v, want 2", scheduled)
	}

	coalesced := testutil.ToFloat64(exporter.wakeupCoalesced.WithLabelValues("real"))
	if coalesced != 1 {
		t.Fatalf("wakeup coalesced total = %v, want 1", coalesced)
	}

	pumps := testutil.ToFloat64(exporter.throttledPumpTotal)
	if pumps != 1 {
		t.Fatalf("pump total = %v, want 1", pumps)
	}
	pumpedQueues := testutil.ToFloat64(exporter.throttledPumpQueues)
	if pumpedQueues != 3 {
		t.Fatalf("pumped queues total = %v, want 3", pumpedQueues)
	}

	histCount, err := histogramSampleCount(exporter.taskDurationSeconds.WithLabelValues("queue-a", "normal"))
	if err != nil {
		t.Fatalf("histogramSampleCount failed: %v", err)
	}
	if histCount != 1 {
		t.Fatalf("duration sample count = %d, want 1", histCount)
	}
}

func TestMetricsExporter_AlreadyRegisteredReuse(t *testing.T) {
	reg := prom.NewRegistry()
	first, err := NewMetricsExporter("coopsched", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("first NewMetricsExporter failed: %v", err)
	}
	second, err := NewMetricsExporter("coopsched", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("second NewMetricsExporter failed: %v", err)
	}

	first.RecordTaskPanic("queue-a", nil)
	second.RecordTaskPanic("queue-a", nil)

	got := testutil.ToFloat64(first.taskPanicTotal.WithLabelValues("queue-a"))
	if got != 2 {
		t.Fatalf("shared panic counter = %v, want 2", got)
	}
}

func histogramSampleCount(observer prom.Observer) (uint64, error) {
	collector, ok := observer.(prom.Collector)
	if !ok {
		return 0, nil
	}

	metricCh := make(chan prom.Metric, 1)
	collector.Collect(metricCh)
	close(metricCh)
	for metric := range metricCh {
		msg := &dto.Metric{}
		if err := metric.Write(msg); err != nil {
			return 0, err
		}
		if msg.Histogram != nil {
			return msg.Histogram.GetSampleCount(), nil
		}
	}
	return 0, nil
}
