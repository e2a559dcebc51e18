package core

import "time"

// QueueStats represents runtime observability state for a task queue.
type QueueStats struct {
	Name       string
	TimeDomain string
	Incoming   int
	Delayed    int
	Ready      int
	Closed     bool
}

// ManagerStats represents runtime observability state for a manager.
type ManagerStats struct {
	Name              string
	Queues            int
	TasksProcessed    uint64
	TasksRejected     uint64
	WakeupsScheduled  uint64
	WakeupsCoalesced  uint64
	PendingWakeupTime time.Time // zero when no wake-up is armed
	Running           bool
}

// StatsProvider exposes point-in-time scheduler state for pollers such as
// the prometheus snapshot exporter.
type StatsProvider interface {
	ManagerStats() ManagerStats
	QueueStatsSnapshot() []QueueStats
}
