package coopsched

import "github.com/coopsched/go-coop-scheduler/core"

// Re-export commonly used types from core package for convenience.
// This allows users to import only the coopsched package for most use cases.

// Task is the unit of work (Closure)
type Task = core.Task

// TaskQueue is the posting surface for tasks
type TaskQueue = core.TaskQueue

// Priority defines the priority levels for task queues
type Priority = core.Priority

// PumpPolicy controls when posted tasks become eligible to run
type PumpPolicy = core.PumpPolicy

// TimeDomain decides when delayed tasks become ready
type TimeDomain = core.TimeDomain

// TickClock supplies the scheduler's notion of time
type TickClock = core.TickClock

// ManualTickClock is a test clock advanced explicitly by the caller
type ManualTickClock = core.ManualTickClock

// Config holds scheduler configuration options
type Config = core.ManagerConfig

// Logger receives scheduler diagnostics
type Logger = core.Logger

// Metrics records scheduler activity
type Metrics = core.Metrics

// PanicHandler is called when a task panics
type PanicHandler = core.PanicHandler

// ManagerStats is a point-in-time snapshot of manager state
type ManagerStats = core.ManagerStats

// QueueStats is a point-in-time snapshot of one queue's state
type QueueStats = core.QueueStats

// Priority constants
const (
	PriorityControl    Priority = core.PriorityControl
	PriorityHigh       Priority = core.PriorityHigh
	PriorityNormal     Priority = core.PriorityNormal
	PriorityBestEffort Priority = core.PriorityBestEffort
)

// Pump policy constants
const (
	PumpPolicyAuto   PumpPolicy = core.PumpPolicyAuto
	PumpPolicyManual PumpPolicy = core.PumpPolicyManual
)

// Sentinel errors re-exported from core
var (
	ErrQueueClosed                = core.ErrQueueClosed
	ErrCannotThrottleControlQueue = core.ErrCannotThrottleControlQueue
)
