package core

import (
	"container/heap"
	"fmt"
)

// WorkQueueSets groups WorkQueues into priority sets and answers "which queue
// in set X holds the globally oldest pending task" in O(1).
//
// Each set is a min-heap keyed by the front task's EnqueueOrder at the time
// the queue was (re)inserted. A queue is present in a set's heap if and only
// if it has a known front task; OnPushQueue/OnPopQueue keep that in sync with
// the queue's actual contents.
//
// WorkQueueSets is single-threaded by design: it has no internal locking and
// must only be mutated from the goroutine that owns the TaskQueueManager.
// Contract violations panic; they indicate desynchronization between a
// WorkQueue and this bookkeeping, which is not recoverable.
type WorkQueueSets struct {
	sets []workQueueHeap
}

// NewWorkQueueSets creates numSets empty priority sets.
func NewWorkQueueSets(numSets int) *WorkQueueSets {
	if numSets <= 0 {
		panic("core: WorkQueueSets needs at least one set")
	}
	return &WorkQueueSets{sets: make([]workQueueHeap, numSets)}
}

// NumSets returns the number of priority sets.
func (s *WorkQueueSets) NumSets() int {
	return len(s.sets)
}

// AssignQueueToSet moves a queue between priority sets. If the queue has a
// known front task its heap entry migrates to the new set under the same
// EnqueueOrder key; otherwise only the recorded set index changes.
func (s *WorkQueueSets) AssignQueueToSet(queue *WorkQueue, setIndex int) {
	s.checkSetIndex(setIndex)
	oldSet := queue.WorkQueueSetIndex()
	s.checkSetIndex(oldSet)
	queue.SetWorkQueueSetIndex(setIndex)

	order, ok := queue.FrontTaskEnqueueOrder()
	if !ok {
		return
	}
	if queue.heapIndex >= 0 {
		heap.Remove(&s.sets[oldSet], queue.heapIndex)
	}
	heap.Push(&s.sets[setIndex], workQueueSetEntry{order: order, queue: queue})
}

// OnPushQueue inserts a queue into its current set. Must be called after a
// push that gave a previously-empty queue a front task. Calling it on a queue
// with no determinable front task is a contract violation.
func (s *WorkQueueSets) OnPushQueue(queue *WorkQueue) {
	order, ok := queue.FrontTaskEnqueueOrder()
	if !ok {
		panic("core: OnPushQueue called on a queue with no front task")
	}
	if queue.heapIndex >= 0 {
		panic("core: OnPushQueue called on a queue already present in a set")
	}
	setIndex := queue.WorkQueueSetIndex()
	s.checkSetIndex(setIndex)
	heap.Push(&s.sets[setIndex], workQueueSetEntry{order: order, queue: queue})
}

// OnPopQueue must be called after the front task is popped from queue. The
// popped queue must have been the minimum entry of its set; anything else
// means the selector and the queue disagree about ordering, which is fatal.
// If the queue still has a front task it is reinserted under the new key.
func (s *WorkQueueSets) OnPopQueue(queue *WorkQueue) {
	setIndex := queue.WorkQueueSetIndex()
	s.checkSetIndex(setIndex)
	set := &s.sets[setIndex]
	if set.Len() == 0 {
		panic(fmt.Sprintf("core: OnPopQueue on empty set %d", setIndex))
	}
	if (*set)[0].queue != queue {
		panic(fmt.Sprintf("core: OnPopQueue: queue %q was not the oldest in set %d", queue.Name(), setIndex))
	}
	heap.Pop(set)
	order, ok := queue.FrontTaskEnqueueOrder()
	if !ok {
		return
	}
	heap.Push(set, workQueueSetEntry{order: order, queue: queue})
}

// GetOldestQueueInSet returns the queue holding the smallest EnqueueOrder in
// the set, or nil if the set is empty.
func (s *WorkQueueSets) GetOldestQueueInSet(setIndex int) *WorkQueue {
	s.checkSetIndex(setIndex)
	if s.sets[setIndex].Len() == 0 {
		return nil
	}
	return s.sets[setIndex][0].queue
}

// RemoveQueue removes any entry for this queue from its current set. No-op
// if the queue has no front task recorded. Used on queue teardown.
func (s *WorkQueueSets) RemoveQueue(queue *WorkQueue) {
	if queue.heapIndex < 0 {
		return
	}
	setIndex := queue.WorkQueueSetIndex()
	s.checkSetIndex(setIndex)
	heap.Remove(&s.sets[setIndex], queue.heapIndex)
}

// IsSetEmpty reports whether no queue in the set has pending work.
func (s *WorkQueueSets) IsSetEmpty(setIndex int) bool {
	s.checkSetIndex(setIndex)
	return s.sets[setIndex].Len() == 0
}

func (s *WorkQueueSets) checkSetIndex(setIndex int) {
	if setIndex < 0 || setIndex >= len(s.sets) {
		panic(fmt.Sprintf("core: set index %d out of range, have %d sets", setIndex, len(s.sets)))
	}
}

// =============================================================================
// Per-set min-heap keyed by EnqueueOrder
// =============================================================================

type workQueueSetEntry struct {
	order EnqueueOrder
	queue *WorkQueue
}

// workQueueHeap implements heap.Interface. The queue's heapIndex field tracks
// its position so removal by queue is O(log n).
type workQueueHeap []workQueueSetEntry

func (h workQueueHeap) Len() int { return len(h) }

func (h workQueueHeap) Less(i, j int) bool { return h[i].order < h[j].order }

func (h workQueueHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].queue.heapIndex = i
	h[j].queue.heapIndex = j
}

func (h *workQueueHeap) Push(x any) {
	entry := x.(workQueueSetEntry)
	entry.queue.heapIndex = len(*h)
	*h = append(*h, entry)
}

func (h *workQueueHeap) Pop() any {
	old := *h
	n := len(old)
	entry := old[n-1]
	old[n-1] = workQueueSetEntry{} // avoid holding the queue reference
	entry.queue.heapIndex = -1
	*h = old[:n-1]
	return entry
}
