package core

import (
	"context"
	"sync"
	"testing"
	"time"
)

// TestTaskQueueManager_PriorityDrainOrder verifies priority precedence end to end
// Given: Task A on a best-effort queue, then B and C on a high-priority queue
// When: The manager drains
// Then: The drain order is B, C, A
func TestTaskQueueManager_PriorityDrainOrder(t *testing.T) {
	// Arrange
	m, _ := newManualManager(testEpoch)
	defer m.Stop()
	low := m.NewTaskQueue("low")
	low.SetQueuePriority(PriorityBestEffort)
	high := m.NewTaskQueue("high")
	high.SetQueuePriority(PriorityHigh)

	var order []string
	record := func(name string) Task {
		return func(ctx context.Context) { order = append(order, name) }
	}

	// Act - A is enqueued first but at lower priority
	_ = low.PostTask(record("A"))
	_ = high.PostTask(record("B"))
	_ = high.PostTask(record("C"))
	m.RunUntilIdle()

	// Assert
	want := []string{"B", "C", "A"}
	if len(order) != len(want) {
		t.Fatalf("ran %d tasks, want %d", len(order), len(want))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("drain step %d: got %q, want %q", i, order[i], want[i])
		}
	}
}

// TestTaskQueueManager_FIFOAcrossQueues verifies global FIFO within one priority
// Given: Two queues at the same priority with interleaved posts
// When: The manager drains
// Then: Tasks run in global post order
func TestTaskQueueManager_FIFOAcrossQueues(t *testing.T) {
	m, _ := newManualManager(testEpoch)
	defer m.Stop()
	a := m.NewTaskQueue("a")
	b := m.NewTaskQueue("b")

	var order []int
	record := func(n int) Task {
		return func(ctx context.Context) { order = append(order, n) }
	}
	_ = a.PostTask(record(1))
	_ = b.PostTask(record(2))
	_ = a.PostTask(record(3))
	_ = b.PostTask(record(4))
	m.RunUntilIdle()

	for i, want := range []int{1, 2, 3, 4} {
		if order[i] != want {
			t.Errorf("drain step %d: got %d, want %d", i, order[i], want)
		}
	}
}

// TestTaskQueueManager_MaybeScheduleDelayedWork_Coalesces verifies the
// only-reschedule-if-sooner rule
// Given: A pending wake-up at T1
// When: A later wake-up is requested, then an earlier one
// Then: The later request is dropped and the earlier one replaces T1
func TestTaskQueueManager_MaybeScheduleDelayedWork_Coalesces(t *testing.T) {
	m, clock := newManualManager(testEpoch)
	defer m.Stop()
	t1 := testEpoch.Add(2 * time.Second)

	m.MaybeScheduleDelayedWork(NewLazyNow(clock), 2*time.Second)
	if got := m.PendingWakeupTime(); !got.Equal(t1) {
		t.Fatalf("pending wake-up = %v, want %v", got, t1)
	}

	// Later request: coalesced away.
	m.MaybeScheduleDelayedWork(NewLazyNow(clock), 5*time.Second)
	if got := m.PendingWakeupTime(); !got.Equal(t1) {
		t.Errorf("later request changed pending wake-up to %v", got)
	}

	// Sooner request: wins.
	m.MaybeScheduleDelayedWork(NewLazyNow(clock), 1*time.Second)
	if got := m.PendingWakeupTime(); !got.Equal(testEpoch.Add(1*time.Second)) {
		t.Errorf("sooner request did not reschedule, pending = %v", got)
	}

	stats := m.ManagerStats()
	if stats.WakeupsScheduled != 2 || stats.WakeupsCoalesced != 1 {
		t.Errorf("scheduled/coalesced = %d/%d, want 2/1", stats.WakeupsScheduled, stats.WakeupsCoalesced)
	}
}

// TestTaskQueueManager_TaskPanicRecovered verifies panic isolation
// Given: A task that panics followed by a healthy task
// When: The manager drains
// Then: The panic reaches the handler and the healthy task still runs
func TestTaskQueueManager_TaskPanicRecovered(t *testing.T) {
	handler := &recordingPanicHandler{}
	clock := NewManualTickClock(testEpoch)
	m := NewTaskQueueManager(&ManagerConfig{TickClock: clock, PanicHandler: handler})
	defer m.Stop()
	q := m.NewTaskQueue("q")

	ran := false
	_ = q.PostTask(func(ctx context.Context) { panic("boom") })
	_ = q.PostTask(func(ctx context.Context) { ran = true })
	m.RunUntilIdle()

	if handler.count() != 1 {
		t.Errorf("panic handler called %d times, want 1", handler.count())
	}
	if !ran {
		t.Error("healthy task should run after a panicking one")
	}
}

// TestTaskQueueManager_StopRejectsPosts verifies shutdown semantics
func TestTaskQueueManager_StopRejectsPosts(t *testing.T) {
	m, _ := newManualManager(testEpoch)
	q := m.NewTaskQueue("q")

	m.Stop()

	if err := q.PostTask(func(ctx context.Context) {}); err == nil {
		t.Error("posting after Stop should fail")
	}
	if stats := m.ManagerStats(); stats.TasksRejected != 1 {
		t.Errorf("rejected count = %d, want 1", stats.TasksRejected)
	}
}

// TestTaskQueueManager_BackgroundLoop verifies the Start-driven run loop
// Given: A started manager on the real clock
// When: Immediate and delayed tasks are posted from the test goroutine
// Then: Both run without manual pumping
func TestTaskQueueManager_BackgroundLoop(t *testing.T) {
	m := NewTaskQueueManager(nil)
	defer m.Stop()
	q := m.NewTaskQueue("q")
	m.Start()

	immediate := make(chan struct{})
	delayed := make(chan struct{})
	_ = q.PostTask(func(ctx context.Context) { close(immediate) })
	_ = q.PostDelayedTask(func(ctx context.Context) { close(delayed) }, 10*time.Millisecond)

	select {
	case <-immediate:
	case <-time.After(2 * time.Second):
		t.Fatal("immediate task did not run on the background loop")
	}
	select {
	case <-delayed:
	case <-time.After(2 * time.Second):
		t.Fatal("delayed task did not run on the background loop")
	}
}

// TestTaskQueueManager_TasksPostingTasks verifies same-pass continuation
// Given: A task that posts a follow-up to its own queue
// When: RunUntilIdle drives one pass
// Then: The follow-up runs in the same pass
func TestTaskQueueManager_TasksPostingTasks(t *testing.T) {
	m, _ := newManualManager(testEpoch)
	defer m.Stop()
	q := m.NewTaskQueue("q")

	ran := 0
	_ = q.PostTask(func(ctx context.Context) {
		ran++
		_ = q.PostTask(func(ctx context.Context) { ran++ })
	})
	m.RunUntilIdle()

	if ran != 2 {
		t.Errorf("tasks run = %d, want 2", ran)
	}
}

// =============================================================================
// Test helpers
// =============================================================================

type recordingPanicHandler struct {
	mu     sync.Mutex
	panics []any
}

func (h *recordingPanicHandler) HandlePanic(ctx context.Context, queueName string, panicInfo any, stackTrace []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.panics = append(h.panics, panicInfo)
}

func (h *recordingPanicHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.panics)
}
