// Package coopsched provides a Chromium-inspired cooperative task scheduler for Go.
//
// This library implements a single-threaded scheduling model where work is
// posted to prioritized TaskQueues and one scheduling goroutine dequeues and
// runs every task to completion. The core design is inspired by Chromium's
// renderer scheduler: WorkQueueSets for O(1) priority selection, TimeDomains
// for pluggable clocks, and a ThrottlingHelper that aligns background work to
// 1-second boundaries.
//
// # Quick Start
//
// Create a scheduler, set up queues, and start the scheduling loop:
//
//	sched := coopsched.New(nil)
//	queue := sched.NewTaskQueue("loading")
//	sched.Start()
//	defer sched.Stop()
//
//	queue.PostTask(func(ctx context.Context) {
//		// Runs on the scheduling goroutine.
//	})
//
// # Key Concepts
//
// TaskQueue: The posting surface. Posts are safe from any goroutine; tasks on
// the same queue run in FIFO order. Each queue has a priority, a pump policy
// and a time domain.
//
// EnqueueOrder: A global monotonic sequence stamped on every task when it
// becomes runnable. Equal-priority queues drain in strict arrival order across
// queues, never round-robin.
//
// TimeDomain: The clock that decides when delayed tasks become ready. The
// built-in RealTimeDomain follows wall-clock time; a ThrottledTimeDomain only
// advances when its ThrottlingHelper pumps it.
//
// Throttling: Queues moved behind the ThrottlingHelper have their wake-ups
// quantized to 1-second boundaries and batched into a single pump, the way
// browsers treat timers in background tabs.
//
// # Single-Threaded Model
//
// Every task runs on the scheduling goroutine, so resources owned by that
// goroutine need no locks. The trade-off is cooperative: a task that blocks
// stalls every queue.
//
// # Example
//
//	import (
//		"context"
//		"time"
//
//		"github.com/coopsched/go-coop-scheduler"
//	)
//
//	func main() {
//		sched := coopsched.New(&coopsched.Config{Name: "renderer"})
//		timers := sched.NewTaskQueue("timers")
//		sched.Start()
//		defer sched.Stop()
//
//		timers.PostDelayedTask(func(ctx context.Context) {
//			println("one second later")
//		}, time.Second)
//
//		// Push the timers queue into background throttling.
//		sched.Throttle(timers)
//
//		time.Sleep(3 * time.Second)
//	}
package coopsched
