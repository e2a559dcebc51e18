package core

import (
	"container/heap"
	"sync"
	"time"
)

// TimeDomain maps "now" and delayed run times for the TaskQueues assigned to
// it and owns the set of wake-ups those queues have scheduled. There are two
// policies: RealTimeDomain (wall-clock passthrough) and ThrottledTimeDomain
// (run times quantized by the ThrottlingHelper).
//
// A TimeDomain is registered with exactly one TaskQueueManager at a time.
type TimeDomain interface {
	// Name identifies the domain in logs and metrics.
	Name() string

	// Now returns the domain's current time. For the real domain this is
	// the tick clock; for the throttled domain it is a clock that only
	// advances when the helper pumps.
	Now() time.Time

	// ComputeDelayedRunTime maps (now, delay) to the desired run time.
	ComputeDelayedRunTime(now time.Time, delay time.Duration) time.Time

	// ScheduleDelayedWork records that queue has a task wanting to run at
	// runTime and, if that is the new earliest wake-up, requests one.
	ScheduleDelayedWork(queue *TaskQueue, runTime time.Time, lazyNow *LazyNow)

	// NextScheduledRunTime returns the earliest pending wake-up across all
	// queues in this domain, or false when idle. Idle is a normal state,
	// not an error.
	NextScheduledRunTime() (time.Time, bool)

	// MaybeAdvanceTime returns true when the earliest wake-up is due now
	// (the caller should dispatch), otherwise it arranges a future wake-up
	// if the domain needs one and returns false.
	MaybeAdvanceTime() bool

	// ClearExpiredWakeups drops wake-up bookkeeping at or before the
	// domain's current time so NextScheduledRunTime stays accurate. The
	// shared lazyNow keeps the cleanup consistent with the readiness scan
	// of the same scheduling pass.
	ClearExpiredWakeups(lazyNow *LazyNow)

	onRegistered(m *TaskQueueManager)
	onQueueHasImmediateWork(queue *TaskQueue)
	unregisterQueue(queue *TaskQueue)

	// nowWith returns the domain's time for one scheduling pass, reading
	// the shared lazyNow for wall-clock domains so every readiness check
	// in the pass sees the same sample.
	nowWith(lazyNow *LazyNow) time.Time
}

// =============================================================================
// Shared wake-up bookkeeping
// =============================================================================

// timeDomainBase holds the min-heap of scheduled wake-ups shared by both
// domain implementations. The heap has its own small lock because delayed
// posts may arrive from any goroutine; the scheduling decisions built on top
// of it still run only on the manager goroutine.
type timeDomainBase struct {
	mu      sync.Mutex
	wakeups wakeupHeap
	seq     uint64
}

// scheduleWakeup records a wake-up and reports whether it became the new
// earliest one.
func (b *timeDomainBase) scheduleWakeup(queue *TaskQueue, runTime time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	entry := &wakeupEntry{runTime: runTime, seq: b.seq, queue: queue}
	heap.Push(&b.wakeups, entry)
	return entry.index == 0
}

func (b *timeDomainBase) nextScheduledRunTime() (time.Time, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.wakeups) == 0 {
		return time.Time{}, false
	}
	return b.wakeups[0].runTime, true
}

// clearExpiredWakeups drops all wake-ups at or before now.
func (b *timeDomainBase) clearExpiredWakeups(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for len(b.wakeups) > 0 && !b.wakeups[0].runTime.After(now) {
		heap.Pop(&b.wakeups)
	}
}

// removeQueue drops every wake-up contributed by queue. Used when the queue
// migrates to another domain or is torn down.
func (b *timeDomainBase) removeQueue(queue *TaskQueue) {
	b.mu.Lock()
	defer b.mu.Unlock()
	kept := b.wakeups[:0]
	for _, entry := range b.wakeups {
		if entry.queue != queue {
			kept = append(kept, entry)
		}
	}
	b.wakeups = kept
	heap.Init(&b.wakeups)
}

func (b *timeDomainBase) numWakeups() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.wakeups)
}

// =============================================================================
// Wake-up heap
// =============================================================================

type wakeupEntry struct {
	runTime time.Time
	seq     uint64
	queue   *TaskQueue
	index   int
}

// wakeupHeap implements heap.Interface ordered by run time, ties broken by
// scheduling order.
type wakeupHeap []*wakeupEntry

func (h wakeupHeap) Len() int { return len(h) }

func (h wakeupHeap) Less(i, j int) bool {
	if h[i].runTime.Equal(h[j].runTime) {
		return h[i].seq < h[j].seq
	}
	return h[i].runTime.Before(h[j].runTime)
}

func (h wakeupHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *wakeupHeap) Push(x any) {
	entry := x.(*wakeupEntry)
	entry.index = len(*h)
	*h = append(*h, entry)
}

func (h *wakeupHeap) Pop() any {
	old := *h
	n := len(old)
	entry := old[n-1]
	old[n-1] = nil // avoid memory leak
	entry.index = -1
	*h = old[:n-1]
	return entry
}
