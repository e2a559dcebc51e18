package core

import (
	"container/heap"
	"errors"
	"sync"
	"time"
)

// ErrQueueClosed is returned when posting to a queue that has been
// unregistered or whose manager has shut down.
var ErrQueueClosed = errors.New("core: task queue is closed")

// PumpPolicy controls when a queue's pending tasks become eligible to run.
type PumpPolicy int

const (
	// PumpPolicyAuto drains the queue automatically when work is ready.
	PumpPolicyAuto PumpPolicy = iota

	// PumpPolicyManual drains only when PumpQueue is called explicitly.
	// Used by the throttling layer.
	PumpPolicyManual
)

func (p PumpPolicy) String() string {
	if p == PumpPolicyManual {
		return "manual"
	}
	return "auto"
}

// TaskQueue is a logical queue of tasks bound to exactly one TimeDomain at a
// time. Posting is safe from any goroutine; everything else (pump policy,
// priority, domain assignment, draining) happens on the manager goroutine.
//
// Tasks flow through three stages:
//
//	PostTask        -> incoming (locked)   -> work queue (thread-confined)
//	PostDelayedTask -> delayed heap (locked) -> incoming when ready -> work queue
//
// The move from incoming to work queue happens automatically for AUTO queues
// and only via PumpQueue for MANUAL ones.
type TaskQueue struct {
	manager *TaskQueueManager
	name    string

	mu         sync.Mutex
	incoming   []TaskItem
	delayed    delayedTaskHeap
	delaySeq   uint64
	timeDomain TimeDomain
	closed     bool

	// Manager-goroutine state.
	workQueue  *WorkQueue
	pumpPolicy PumpPolicy
	priority   Priority
}

// Name returns the queue's label.
func (q *TaskQueue) Name() string {
	return q.name
}

// Priority returns the queue's current priority.
func (q *TaskQueue) Priority() Priority {
	return q.priority
}

// PumpPolicy returns the queue's current pump policy.
func (q *TaskQueue) PumpPolicy() PumpPolicy {
	return q.pumpPolicy
}

// TimeDomain returns the domain the queue is currently bound to.
func (q *TaskQueue) TimeDomain() TimeDomain {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.timeDomain
}

// =============================================================================
// Posting (any goroutine)
// =============================================================================

// PostTask posts a task for immediate execution.
func (q *TaskQueue) PostTask(task Task) error {
	return q.PostNamedTask("", task)
}

// PostNamedTask posts an immediate task carrying a label for logs/metrics.
func (q *TaskQueue) PostNamedTask(name string, task Task) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.manager.onPostRejected(q.name, "closed")
		return ErrQueueClosed
	}
	// The order is generated inside the lock so the incoming queue stays
	// sorted by EnqueueOrder under concurrent posts.
	order := q.manager.orderGenerator.GenerateNext()
	q.incoming = append(q.incoming, TaskItem{Task: task, Name: name, EnqueueOrder: order})
	domain := q.timeDomain
	q.mu.Unlock()

	domain.onQueueHasImmediateWork(q)
	return nil
}

// PostDelayedTask posts a task that should run no earlier than delay from
// now, as computed by the queue's TimeDomain.
func (q *TaskQueue) PostDelayedTask(task Task, delay time.Duration) error {
	return q.PostNamedDelayedTask("", task, delay)
}

// PostNamedDelayedTask is PostDelayedTask with a label.
func (q *TaskQueue) PostNamedDelayedTask(name string, task Task, delay time.Duration) error {
	if delay <= 0 {
		return q.PostNamedTask(name, task)
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.manager.onPostRejected(q.name, "closed")
		return ErrQueueClosed
	}
	domain := q.timeDomain
	runTime := domain.ComputeDelayedRunTime(domain.Now(), delay)
	q.delaySeq++
	heap.Push(&q.delayed, &delayedTask{
		item: TaskItem{Task: task, Name: name, DelayedRunTime: runTime},
		seq:  q.delaySeq,
	})
	q.mu.Unlock()

	domain.ScheduleDelayedWork(q, runTime, NewLazyNow(q.manager.clock))
	return nil
}

// =============================================================================
// Queries
// =============================================================================

// HasPendingImmediateWork reports whether the queue has ready tasks that have
// not run yet (either loaded into the work queue or waiting in incoming).
func (q *TaskQueue) HasPendingImmediateWork() bool {
	if !q.workQueue.IsEmpty() {
		return true
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.incoming) > 0
}

// IsEmpty reports whether the queue holds no tasks at all, delayed included.
func (q *TaskQueue) IsEmpty() bool {
	if !q.workQueue.IsEmpty() {
		return false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.incoming) == 0 && len(q.delayed) == 0
}

// Stats returns a point-in-time snapshot of the queue's depth.
func (q *TaskQueue) Stats() QueueStats {
	q.mu.Lock()
	incoming := len(q.incoming)
	delayed := len(q.delayed)
	closed := q.closed
	domain := q.timeDomain
	q.mu.Unlock()
	return QueueStats{
		Name:       q.name,
		TimeDomain: domain.Name(),
		Incoming:   incoming,
		Delayed:    delayed,
		Ready:      q.workQueue.approxLen(),
		Closed:     closed,
	}
}

// =============================================================================
// Manager-goroutine operations
// =============================================================================

// SetQueuePriority reassigns the queue to another priority set.
func (q *TaskQueue) SetQueuePriority(priority Priority) {
	if int(priority) < 0 || int(priority) >= q.manager.selector.NumSets() {
		panic("core: priority out of range for this manager")
	}
	if priority == q.priority {
		return
	}
	q.priority = priority
	q.manager.selector.AssignQueueToSet(q.workQueue, int(priority))
}

// SetPumpPolicy switches between AUTO and MANUAL draining. Switching to AUTO
// pumps immediately so no work is stranded by the transition.
func (q *TaskQueue) SetPumpPolicy(policy PumpPolicy) {
	becameAuto := policy == PumpPolicyAuto && q.pumpPolicy != PumpPolicyAuto
	q.pumpPolicy = policy
	if becameAuto {
		q.PumpQueue()
		q.manager.ScheduleImmediateWork()
	}
}

// SetTimeDomain rebinds the queue to another domain, migrating its pending
// delayed run times so no wake-up is lost in the transition.
func (q *TaskQueue) SetTimeDomain(domain TimeDomain) {
	q.mu.Lock()
	old := q.timeDomain
	if old == domain {
		q.mu.Unlock()
		return
	}
	q.timeDomain = domain
	runTimes := make([]time.Time, 0, len(q.delayed))
	for _, dt := range q.delayed {
		runTimes = append(runTimes, dt.item.DelayedRunTime)
	}
	q.mu.Unlock()

	old.unregisterQueue(q)
	lazyNow := NewLazyNow(q.manager.clock)
	for _, runTime := range runTimes {
		domain.ScheduleDelayedWork(q, runTime, lazyNow)
	}
}

// PumpQueue force-drains the queue's pending stages into the work queue
// regardless of pump policy. Delayed tasks become ready per the current
// domain's clock.
func (q *TaskQueue) PumpQueue() {
	q.moveReadyDelayedTasksToIncoming(NewLazyNow(q.manager.clock))
	q.reloadWorkQueue()
}

// updateWorkQueue is called once per scheduling pass: ready delayed tasks
// move into incoming, and AUTO queues reload their work queue. lazyNow is
// the pass's shared time sample.
func (q *TaskQueue) updateWorkQueue(lazyNow *LazyNow) {
	q.moveReadyDelayedTasksToIncoming(lazyNow)
	if q.pumpPolicy == PumpPolicyAuto {
		q.reloadWorkQueue()
	}
}

// moveReadyDelayedTasksToIncoming pops delayed tasks whose run time has been
// reached (per the queue's domain) and enqueues them, assigning their
// EnqueueOrder now that they are ready.
func (q *TaskQueue) moveReadyDelayedTasksToIncoming(lazyNow *LazyNow) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.delayed) == 0 {
		return
	}
	now := q.timeDomain.nowWith(lazyNow)
	for len(q.delayed) > 0 && !q.delayed[0].item.DelayedRunTime.After(now) {
		dt := heap.Pop(&q.delayed).(*delayedTask)
		dt.item.EnqueueOrder = q.manager.orderGenerator.GenerateNext()
		q.incoming = append(q.incoming, dt.item)
	}
}

// reloadWorkQueue moves everything from incoming into the work queue and
// keeps WorkQueueSets in sync.
func (q *TaskQueue) reloadWorkQueue() {
	q.mu.Lock()
	batch := q.incoming
	q.incoming = nil
	q.mu.Unlock()
	if len(batch) == 0 {
		return
	}
	wasEmpty := q.workQueue.IsEmpty()
	for _, item := range batch {
		q.workQueue.Push(item)
	}
	if wasEmpty {
		q.manager.selector.OnPushQueue(q.workQueue)
	}
}

// close marks the queue dead and drops pending work. Called by the manager
// during UnregisterTaskQueue after set/domain bookkeeping is cleaned up.
func (q *TaskQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.incoming = nil
	q.delayed = nil
}

// =============================================================================
// Delayed task heap (ordered by run time, FIFO within equal times)
// =============================================================================

type delayedTask struct {
	item  TaskItem
	seq   uint64
	index int
}

type delayedTaskHeap []*delayedTask

func (h delayedTaskHeap) Len() int { return len(h) }

func (h delayedTaskHeap) Less(i, j int) bool {
	if h[i].item.DelayedRunTime.Equal(h[j].item.DelayedRunTime) {
		return h[i].seq < h[j].seq
	}
	return h[i].item.DelayedRunTime.Before(h[j].item.DelayedRunTime)
}

func (h delayedTaskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *delayedTaskHeap) Push(x any) {
	dt := x.(*delayedTask)
	dt.index = len(*h)
	*h = append(*h, dt)
}

func (h *delayedTaskHeap) Pop() any {
	old := *h
	n := len(old)
	dt := old[n-1]
	old[n-1] = nil // avoid memory leak
	dt.index = -1
	*h = old[:n-1]
	return dt
}
