package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// TestTaskQueue_PostTask_CrossGoroutine verifies the thread-safe post boundary
// Given: Many goroutines posting to the same queue
// When: The manager drains on its own goroutine afterwards
// Then: Every task runs exactly once
func TestTaskQueue_PostTask_CrossGoroutine(t *testing.T) {
	// Arrange
	m, _ := newManualManager(testEpoch)
	defer m.Stop()
	q := m.NewTaskQueue("q")

	const producers = 8
	const perProducer = 50
	var mu sync.Mutex
	ran := 0

	// Act - posts race from several goroutines
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				_ = q.PostTask(func(ctx context.Context) {
					mu.Lock()
					ran++
					mu.Unlock()
				})
			}
		}()
	}
	wg.Wait()
	m.RunUntilIdle()

	// Assert
	if ran != producers*perProducer {
		t.Errorf("tasks run = %d, want %d", ran, producers*perProducer)
	}
}

// TestTaskQueue_PumpPolicyManual_RequiresPump verifies MANUAL draining
// Given: A MANUAL queue with a pending task
// When: The manager does work without an explicit pump
// Then: Nothing runs until PumpQueue is called
func TestTaskQueue_PumpPolicyManual_RequiresPump(t *testing.T) {
	m, _ := newManualManager(testEpoch)
	defer m.Stop()
	q := m.NewTaskQueue("q")
	q.SetPumpPolicy(PumpPolicyManual)

	ran := false
	_ = q.PostTask(func(ctx context.Context) { ran = true })

	if m.RunUntilIdle(); ran {
		t.Fatal("MANUAL queue drained without a pump")
	}

	q.PumpQueue()
	m.RunUntilIdle()
	if !ran {
		t.Error("task should run after PumpQueue")
	}
}

// TestTaskQueue_SetPumpPolicyAuto_PumpsPendingWork verifies the AUTO switch
// Given: A MANUAL queue with stranded pending work
// When: The policy switches back to AUTO
// Then: The pending work drains without an explicit pump
func TestTaskQueue_SetPumpPolicyAuto_PumpsPendingWork(t *testing.T) {
	m, _ := newManualManager(testEpoch)
	defer m.Stop()
	q := m.NewTaskQueue("q")
	q.SetPumpPolicy(PumpPolicyManual)
	ran := false
	_ = q.PostTask(func(ctx context.Context) { ran = true })
	m.RunUntilIdle()

	q.SetPumpPolicy(PumpPolicyAuto)
	m.RunUntilIdle()

	if !ran {
		t.Error("switching to AUTO should drain stranded work")
	}
}

// TestTaskQueue_SetTimeDomain_MigratesDelayedWork verifies domain migration
// Given: A queue with a pending delayed task on the real domain
// When: The queue moves to a throttled domain
// Then: The wake-up leaves the old domain and appears in the new one
func TestTaskQueue_SetTimeDomain_MigratesDelayedWork(t *testing.T) {
	m, _ := newManualManager(testEpoch)
	defer m.Stop()
	h := NewThrottlingHelper(m)
	q := m.NewTaskQueue("q")
	_ = q.PostDelayedTask(func(ctx context.Context) {}, 2*time.Second)

	q.SetTimeDomain(h.TimeDomain())

	if _, ok := m.RealTimeDomain().NextScheduledRunTime(); ok {
		t.Error("real domain should no longer hold the queue's wake-up")
	}
	next, ok := h.TimeDomain().NextScheduledRunTime()
	if !ok {
		t.Fatal("throttled domain should hold the migrated wake-up")
	}
	if want := testEpoch.Add(2 * time.Second); !next.Equal(want) {
		t.Errorf("migrated run time = %v, want %v", next, want)
	}
}

// TestTaskQueue_PostAfterUnregister_Rejected verifies teardown semantics
func TestTaskQueue_PostAfterUnregister_Rejected(t *testing.T) {
	m, _ := newManualManager(testEpoch)
	defer m.Stop()
	q := m.NewTaskQueue("q")
	_ = q.PostTask(func(ctx context.Context) {})

	m.UnregisterTaskQueue(q)

	if err := q.PostTask(func(ctx context.Context) {}); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("PostTask after unregister = %v, want ErrQueueClosed", err)
	}
	if n := m.RunUntilIdle(); n != 0 {
		t.Errorf("unregistered queue still ran %d tasks", n)
	}
}

// TestTaskQueue_DelayedTask_BecomesReadyOnTime verifies delayed readiness
// Given: A delayed task 500ms out
// When: The clock advances past the run time
// Then: The task runs, and not before
func TestTaskQueue_DelayedTask_BecomesReadyOnTime(t *testing.T) {
	m, clock := newManualManager(testEpoch)
	defer m.Stop()
	q := m.NewTaskQueue("q")
	ran := false
	_ = q.PostDelayedTask(func(ctx context.Context) { ran = true }, 500*time.Millisecond)

	if m.RunUntilIdle(); ran {
		t.Fatal("delayed task ran before its run time")
	}

	clock.Advance(499 * time.Millisecond)
	if m.RunUntilIdle(); ran {
		t.Fatal("delayed task ran 1ms early")
	}

	clock.Advance(1 * time.Millisecond)
	m.RunUntilIdle()
	if !ran {
		t.Error("delayed task should run once the clock reaches its run time")
	}
}

// TestTaskQueue_Stats verifies the snapshot view
func TestTaskQueue_Stats(t *testing.T) {
	m, _ := newManualManager(testEpoch)
	defer m.Stop()
	q := m.NewTaskQueue("stats")
	_ = q.PostTask(func(ctx context.Context) {})
	_ = q.PostDelayedTask(func(ctx context.Context) {}, time.Minute)

	stats := q.Stats()

	if stats.Name != "stats" || stats.Incoming != 1 || stats.Delayed != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if stats.TimeDomain != "real" {
		t.Errorf("stats domain = %q, want real", stats.TimeDomain)
	}
}
