package core

import (
	"context"
	"fmt"
	"time"
)

// =============================================================================
// PanicHandler: Interface for handling task panics
// =============================================================================

// PanicHandler is called when a task panics during execution. The scheduler
// recovers so one bad task cannot take down the dispatch loop.
//
// Implementations should be thread-safe; the handler runs on the manager
// goroutine but may outlive individual managers.
type PanicHandler interface {
	// HandlePanic is called when a task panics.
	//
	// Parameters:
	// - ctx: The context the panicked task ran with
	// - queueName: The name of the TaskQueue the task came from
	// - panicInfo: The panic value recovered from the task
	// - stackTrace: The stack trace at the time of panic
	HandlePanic(ctx context.Context, queueName string, panicInfo any, stackTrace []byte)
}

// DefaultPanicHandler provides a basic panic handler that logs to stdout.
type DefaultPanicHandler struct{}

// HandlePanic prints panic information to stdout.
func (h *DefaultPanicHandler) HandlePanic(ctx context.Context, queueName string, panicInfo any, stackTrace []byte) {
	fmt.Printf("[Queue %s] Panic: %v\nStack trace:\n%s", queueName, panicInfo, stackTrace)
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting scheduler metrics.
// Implementations can send metrics to monitoring systems (Prometheus, StatsD, etc.).
//
// Methods should be non-blocking and fast; several are called on the dispatch
// hot path.
type Metrics interface {
	// RecordTaskRun records a completed task execution.
	RecordTaskRun(queueName string, priority Priority, duration time.Duration)

	// RecordTaskPanic records that a task panicked during execution.
	RecordTaskPanic(queueName string, panicInfo any)

	// RecordPostRejected records a post that was refused (e.g. closed queue).
	RecordPostRejected(queueName string, reason string)

	// RecordWakeupScheduled records that a domain armed a new wake-up.
	RecordWakeupScheduled(domainName string)

	// RecordWakeupCoalesced records a wake-up request absorbed by an
	// already-pending earlier wake-up.
	RecordWakeupCoalesced(domainName string)

	// RecordThrottledPump records a pump cycle and how many throttled
	// queues it drained.
	RecordThrottledPump(queuesPumped int)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

func (m *NilMetrics) RecordTaskRun(queueName string, priority Priority, duration time.Duration) {}
func (m *NilMetrics) RecordTaskPanic(queueName string, panicInfo any)                           {}
func (m *NilMetrics) RecordPostRejected(queueName string, reason string)                        {}
func (m *NilMetrics) RecordWakeupScheduled(domainName string)                                   {}
func (m *NilMetrics) RecordWakeupCoalesced(domainName string)                                   {}
func (m *NilMetrics) RecordThrottledPump(queuesPumped int)                                      {}

// =============================================================================
// ManagerConfig: Configuration for TaskQueueManager
// =============================================================================

// ManagerConfig holds configuration options for TaskQueueManager.
// All fields are optional; zero values get sensible defaults.
type ManagerConfig struct {
	// Name labels the manager in logs. Defaults to "scheduler".
	Name string

	// NumPrioritySets is the number of priority sets. Defaults to
	// NumPriorities. Set 0 is drained first.
	NumPrioritySets int

	// TickClock supplies monotonic time. Defaults to RealTickClock.
	TickClock TickClock

	// Logger receives scheduler diagnostics. Defaults to NoOpLogger.
	Logger Logger

	// Metrics records scheduler activity. Defaults to NilMetrics.
	Metrics Metrics

	// PanicHandler is called when a task panics. Defaults to DefaultPanicHandler.
	PanicHandler PanicHandler
}

// DefaultManagerConfig returns a config with default handlers.
func DefaultManagerConfig() *ManagerConfig {
	return &ManagerConfig{
		Name:            "scheduler",
		NumPrioritySets: int(NumPriorities),
		TickClock:       RealTickClock{},
		Logger:          NewNoOpLogger(),
		Metrics:         &NilMetrics{},
		PanicHandler:    &DefaultPanicHandler{},
	}
}

func (c *ManagerConfig) withDefaults() *ManagerConfig {
	out := DefaultManagerConfig()
	if c == nil {
		return out
	}
	if c.Name != "" {
		out.Name = c.Name
	}
	if c.NumPrioritySets > 0 {
		out.NumPrioritySets = c.NumPrioritySets
	}
	if c.TickClock != nil {
		out.TickClock = c.TickClock
	}
	if c.Logger != nil {
		out.Logger = c.Logger
	}
	if c.Metrics != nil {
		out.Metrics = c.Metrics
	}
	if c.PanicHandler != nil {
		out.PanicHandler = c.PanicHandler
	}
	return out
}
