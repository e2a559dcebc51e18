package core

import (
	"context"
	"time"
)

// Task is the unit of work (Closure)
type Task func(ctx context.Context)

// TaskItem is a task together with the scheduling metadata attached to it
// when it was posted.
type TaskItem struct {
	Task Task

	// Name is an optional label used for logging and metrics.
	Name string

	// EnqueueOrder is assigned when the task enters the ready pipeline.
	// Delayed tasks carry EnqueueOrderNone until they become ready.
	EnqueueOrder EnqueueOrder

	// DelayedRunTime is the earliest time the task may run. Zero for
	// immediate tasks.
	DelayedRunTime time.Time
}

// IsDelayed reports whether this item was posted with a delay.
func (t TaskItem) IsDelayed() bool {
	return !t.DelayedRunTime.IsZero()
}

// =============================================================================
// Priority: index of the WorkQueueSets set a queue belongs to
// =============================================================================

// Priority selects which priority set a TaskQueue's work queue lives in.
// Lower values are drained first.
type Priority int

const (
	// PriorityControl is reserved for the scheduler's own control queue
	// (pump callbacks, cross-thread forwarding). Always drained first.
	PriorityControl Priority = iota

	// PriorityHigh runs before normal work.
	PriorityHigh

	// PriorityNormal is the default priority.
	PriorityNormal

	// PriorityBestEffort runs only when nothing else is ready.
	PriorityBestEffort

	// NumPriorities is the default number of priority sets.
	NumPriorities
)

func (p Priority) String() string {
	switch p {
	case PriorityControl:
		return "control"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityBestEffort:
		return "best_effort"
	default:
		return "unknown"
	}
}
