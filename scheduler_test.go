package coopsched

import (
	"context"
	"testing"
	"time"
)

// TestSchedulerFacade_PostAndRun verifies the facade wires a working manager
// Given: A started scheduler with one queue
// When: A task is posted
// Then: The task executes on the scheduling goroutine
func TestSchedulerFacade_PostAndRun(t *testing.T) {
	// Arrange
	sched := New(nil)
	queue := sched.NewTaskQueue("facade")
	sched.Start()
	defer sched.Stop()

	// Act
	done := make(chan struct{}, 1)
	err := queue.PostTask(func(ctx context.Context) {
		select {
		case done <- struct{}{}:
		default:
		}
	})

	// Assert
	if err != nil {
		t.Fatalf("PostTask() returned %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("facade task did not execute")
	}
}

// TestSchedulerFacade_ThrottleRoundTrip verifies Throttle/Unthrottle marshal
// onto the scheduling goroutine and tasks still run
// Given: A started scheduler with a throttled queue
// When: The queue is unthrottled again
// Then: A pending task runs and the round trip reports no error
func TestSchedulerFacade_ThrottleRoundTrip(t *testing.T) {
	// Arrange
	sched := New(nil)
	queue := sched.NewTaskQueue("background")
	sched.Start()
	defer sched.Stop()

	done := make(chan struct{}, 1)
	_ = queue.PostTask(func(ctx context.Context) {
		select {
		case done <- struct{}{}:
		default:
		}
	})

	// Act
	if err := sched.Throttle(queue); err != nil {
		t.Fatalf("Throttle() returned %v", err)
	}
	if err := sched.Unthrottle(queue); err != nil {
		t.Fatalf("Unthrottle() returned %v", err)
	}

	// Assert
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task did not run after throttle round trip")
	}
}

// TestSchedulerFacade_ThrottleControlQueue_Rejected verifies the facade
// refuses to throttle the control queue without touching the loop
func TestSchedulerFacade_ThrottleControlQueue_Rejected(t *testing.T) {
	sched := New(nil)
	defer sched.Stop()

	if err := sched.Throttle(sched.Manager().ControlTaskQueue()); err != ErrCannotThrottleControlQueue {
		t.Fatalf("Throttle(control) = %v, want ErrCannotThrottleControlQueue", err)
	}
}

// TestSchedulerFacade_StopRejectsPosts verifies posts after Stop fail fast
func TestSchedulerFacade_StopRejectsPosts(t *testing.T) {
	sched := New(nil)
	queue := sched.NewTaskQueue("closing")
	sched.Start()
	sched.Stop()

	if err := queue.PostTask(func(ctx context.Context) {}); err != ErrQueueClosed {
		t.Fatalf("PostTask() after Stop = %v, want ErrQueueClosed", err)
	}
	if stats := sched.Stats(); stats.Running {
		t.Fatal("Stats().Running = true after Stop")
	}
}
