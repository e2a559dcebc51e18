package core

import "sync/atomic"

const (
	workQueueDefaultCap = 16
	compactMinCap       = 64 // Don't compact if capacity is less than this
	compactShrinkFactor = 4  // Trigger compaction when len < cap/4
)

// WorkQueue holds the ready tasks of one TaskQueue, oldest first. Every task
// in a WorkQueue has a valid EnqueueOrder.
//
// WorkQueue is thread-confined: it must only be touched from the goroutine
// that owns the TaskQueueManager. Cross-thread posts land in the owning
// TaskQueue's incoming queue and are moved here on that goroutine.
type WorkQueue struct {
	owner *TaskQueue
	name  string
	tasks []TaskItem

	// Bookkeeping for WorkQueueSets.
	setIndex  int
	heapIndex int // index in the set's heap, -1 when not present

	// size mirrors len(tasks) so stats snapshots can read it from other
	// goroutines without synchronizing on the queue itself.
	size atomic.Int64
}

// NewWorkQueue creates an empty work queue. The owner may be nil in tests
// that exercise WorkQueueSets directly.
func NewWorkQueue(owner *TaskQueue, name string) *WorkQueue {
	return &WorkQueue{
		owner:     owner,
		name:      name,
		tasks:     make([]TaskItem, 0, workQueueDefaultCap),
		heapIndex: -1,
	}
}

// Name returns the queue's label.
func (w *WorkQueue) Name() string {
	return w.name
}

// Owner returns the TaskQueue this work queue belongs to.
func (w *WorkQueue) Owner() *TaskQueue {
	return w.owner
}

// FrontTaskEnqueueOrder returns the EnqueueOrder of the oldest pending task,
// or false if the queue is empty.
func (w *WorkQueue) FrontTaskEnqueueOrder() (EnqueueOrder, bool) {
	if len(w.tasks) == 0 {
		return EnqueueOrderNone, false
	}
	return w.tasks[0].EnqueueOrder, true
}

// Push appends a task. The item must already carry a valid EnqueueOrder.
func (w *WorkQueue) Push(item TaskItem) {
	if item.EnqueueOrder == EnqueueOrderNone {
		panic("core: WorkQueue.Push requires an assigned EnqueueOrder")
	}
	w.tasks = append(w.tasks, item)
	w.size.Store(int64(len(w.tasks)))
}

// PopFront removes and returns the oldest task.
func (w *WorkQueue) PopFront() (TaskItem, bool) {
	if len(w.tasks) == 0 {
		return TaskItem{}, false
	}
	item := w.tasks[0]
	// Zero out the element in the underlying array to prevent memory leak
	w.tasks[0] = TaskItem{}
	w.tasks = w.tasks[1:]
	w.maybeCompact()
	w.size.Store(int64(len(w.tasks)))
	return item, true
}

// Len returns the number of pending tasks.
func (w *WorkQueue) Len() int {
	return len(w.tasks)
}

// IsEmpty reports whether the queue has no pending tasks.
func (w *WorkQueue) IsEmpty() bool {
	return len(w.tasks) == 0
}

// approxLen is the cross-goroutine view of Len used by stats snapshots.
func (w *WorkQueue) approxLen() int {
	return int(w.size.Load())
}

// WorkQueueSetIndex returns the priority set this queue is assigned to.
func (w *WorkQueue) WorkQueueSetIndex() int {
	return w.setIndex
}

// SetWorkQueueSetIndex records the priority set. Called by WorkQueueSets.
func (w *WorkQueue) SetWorkQueueSetIndex(setIndex int) {
	w.setIndex = setIndex
}

func (w *WorkQueue) maybeCompact() {
	n := len(w.tasks)
	c := cap(w.tasks)

	if c < compactMinCap {
		return
	}
	if n == 0 {
		w.tasks = make([]TaskItem, 0, workQueueDefaultCap)
		return
	}
	if n*compactShrinkFactor >= c {
		return
	}

	newCap := max(max(c/2, workQueueDefaultCap), n)
	newSlice := make([]TaskItem, n, newCap)
	copy(newSlice, w.tasks)
	w.tasks = newSlice
}
