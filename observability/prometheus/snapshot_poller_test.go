package prometheus

import (
	"context"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/coopsched/go-coop-scheduler/core"
)

type statsProviderStub struct {
	manager core.ManagerStats
	queues  []core.QueueStats
}

func (s statsProviderStub) ManagerStats() core.ManagerStats       { return s.manager }
func (s statsProviderStub) QueueStatsSnapshot() []core.QueueStats { return s.queues }

func TestSnapshotPoller_CollectsManagerAndQueueStats(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	poller.AddProvider("sched-a", statsProviderStub{
		manager: core.ManagerStats{
			Name:           "sched-a",
			Queues:         2,
			TasksProcessed: 42,
			TasksRejected:  3,
			Running:        true,
		},
		queues: []core.QueueStats{
			{Name: "loading", TimeDomain: "real", Incoming: 4, Delayed: 1, Ready: 2},
			{Name: "timers", TimeDomain: "throttled", Incoming: 0, Delayed: 5, Ready: 0, Closed: true},
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	poller.Start(ctx)
	defer poller.Stop()

	assertEventually(t, 2*time.Second, func() bool {
		processed := testutil.ToFloat64(poller.managerProcessed.WithLabelValues("sched-a"))
		incoming := testutil.ToFloat64(poller.queueIncomingSize.WithLabelValues("sched-a", "loading", "real"))
		return processed == 42 && incoming == 4
	})

	if got := testutil.ToFloat64(poller.managerRunning.WithLabelValues("sched-a")); got != 1 {
		t.Fatalf("manager running gauge = %v, want 1", got)
	}
	if got := testutil.ToFloat64(poller.queueDelayedSize.WithLabelValues("sched-a", "timers", "throttled")); got != 5 {
		t.Fatalf("queue delayed gauge = %v, want 5", got)
	}
	if got := testutil.ToFloat64(poller.queueClosed.WithLabelValues("sched-a", "timers", "throttled")); got != 1 {
		t.Fatalf("queue closed gauge = %v, want 1", got)
	}
}

func TestSnapshotPoller_StartStop_Idempotent(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	poller.Start(ctx)
	poller.Start(ctx)
	poller.Stop()
	poller.Stop()
}

func assertEventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}
