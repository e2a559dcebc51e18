package coopsched

import (
	"context"

	"github.com/coopsched/go-coop-scheduler/core"
)

// Scheduler bundles a TaskQueueManager with a ThrottlingHelper behind one
// handle. It is the recommended entry point; embedders needing finer control
// can use the core package directly.
type Scheduler struct {
	manager *core.TaskQueueManager
	helper  *core.ThrottlingHelper
}

// New creates a scheduler. Pass nil for an all-defaults config.
func New(config *Config) *Scheduler {
	manager := core.NewTaskQueueManager(config)
	return &Scheduler{
		manager: manager,
		helper:  core.NewThrottlingHelper(manager),
	}
}

// NewTaskQueue creates a queue at PriorityNormal with AUTO pumping. Call
// before Start or from a task running on the scheduling goroutine.
func (s *Scheduler) NewTaskQueue(name string) *TaskQueue {
	return s.manager.NewTaskQueue(name)
}

// Start spawns the scheduling goroutine.
func (s *Scheduler) Start() {
	s.manager.Start()
}

// Stop shuts the scheduler down; pending work is dropped and further posts
// are rejected.
func (s *Scheduler) Stop() {
	s.manager.Stop()
}

// Throttle moves the queue into background throttling: its wake-ups are
// quantized to 1-second boundaries and batched with every other throttled
// queue. Safe from any goroutine; the transition is marshalled onto the
// scheduling goroutine.
func (s *Scheduler) Throttle(q *TaskQueue) error {
	if q == s.manager.ControlTaskQueue() {
		return ErrCannotThrottleControlQueue
	}
	return s.manager.ControlTaskQueue().PostNamedTask("throttle", func(ctx context.Context) {
		_ = s.helper.Throttle(q)
	})
}

// Unthrottle restores the queue to foreground scheduling. Safe from any
// goroutine.
func (s *Scheduler) Unthrottle(q *TaskQueue) error {
	return s.manager.ControlTaskQueue().PostNamedTask("unthrottle", func(ctx context.Context) {
		s.helper.Unthrottle(q)
	})
}

// Manager returns the underlying TaskQueueManager for manual dispatch,
// stats, or custom time domains.
func (s *Scheduler) Manager() *core.TaskQueueManager {
	return s.manager
}

// Throttler returns the underlying ThrottlingHelper.
func (s *Scheduler) Throttler() *core.ThrottlingHelper {
	return s.helper
}

// Stats returns a point-in-time snapshot of manager state.
func (s *Scheduler) Stats() ManagerStats {
	return s.manager.ManagerStats()
}
