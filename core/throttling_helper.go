package core

import (
	"context"
	"errors"
	"time"
)

// ErrCannotThrottleControlQueue is returned when Throttle is asked to
// throttle the manager's control queue. The control queue carries the pump
// callbacks that make throttled queues progress, so throttling it would
// deadlock every wake-up.
var ErrCannotThrottleControlQueue = errors.New("core: the control queue cannot be throttled")

// ThrottlingHelper moves TaskQueues between the real time domain and its
// ThrottledTimeDomain, and periodically pumps all throttled queues in one
// coalesced wake-up aligned to 1-second boundaries.
//
// Throttle, Unthrottle and PumpThrottledTasks must run on the scheduling
// goroutine. The observer notifications arriving from producer goroutines are
// forwarded there through the control queue before any scheduling decision is
// made.
type ThrottlingHelper struct {
	manager      *TaskQueueManager
	controlQueue *TaskQueue
	clock        TickClock
	timeDomain   *ThrottledTimeDomain
	logger       Logger
	metrics      Metrics

	throttledQueues map[*TaskQueue]struct{}

	// pendingPumpRunTime is the single outstanding pump wake-up; zero when
	// none is scheduled. pumpGeneration invalidates superseded pump
	// callbacks so a stale one firing is a no-op.
	pendingPumpRunTime time.Time
	pumpGeneration     uint64
}

var _ TimeDomainObserver = (*ThrottlingHelper)(nil)

// NewThrottlingHelper creates a helper, its ThrottledTimeDomain, and
// registers the domain with the manager.
func NewThrottlingHelper(manager *TaskQueueManager) *ThrottlingHelper {
	h := &ThrottlingHelper{
		manager:         manager,
		controlQueue:    manager.ControlTaskQueue(),
		clock:           manager.TickClock(),
		logger:          manager.logger,
		metrics:         manager.metrics,
		throttledQueues: make(map[*TaskQueue]struct{}),
	}
	h.timeDomain = NewThrottledTimeDomain(h, h.clock)
	manager.RegisterTimeDomain(h.timeDomain)
	return h
}

// Dispose unregisters the helper's time domain. Throttled queues should be
// unthrottled first.
func (h *ThrottlingHelper) Dispose() {
	h.manager.UnregisterTimeDomain(h.timeDomain)
}

// TimeDomain returns the helper's throttled domain.
func (h *ThrottlingHelper) TimeDomain() *ThrottledTimeDomain {
	return h.timeDomain
}

// IsThrottled reports whether the queue is currently throttled.
func (h *ThrottlingHelper) IsThrottled(q *TaskQueue) bool {
	_, ok := h.throttledQueues[q]
	return ok
}

// PendingPumpRunTime returns the scheduled time of the outstanding pump, or
// a zero time when no pump is pending.
func (h *ThrottlingHelper) PendingPumpRunTime() time.Time {
	return h.pendingPumpRunTime
}

// Throttle moves the queue onto the throttled domain with MANUAL pumping.
// Work already pending on the queue immediately feeds the pump schedule so
// nothing is silently stranded by the transition.
func (h *ThrottlingHelper) Throttle(q *TaskQueue) error {
	if q == h.controlQueue {
		return ErrCannotThrottleControlQueue
	}
	h.throttledQueues[q] = struct{}{}
	q.SetTimeDomain(h.timeDomain)
	q.SetPumpPolicy(PumpPolicyManual)
	h.logger.Debug("queue throttled", F("queue", q.Name()))

	if !q.IsEmpty() {
		if q.HasPendingImmediateWork() {
			h.handleImmediateWork()
		} else {
			h.handleDelayedWork()
		}
	}
	return nil
}

// Unthrottle restores the queue to the real time domain with AUTO pumping.
// Subsequent run times are no longer quantized.
func (h *ThrottlingHelper) Unthrottle(q *TaskQueue) {
	delete(h.throttledQueues, q)
	q.SetTimeDomain(h.manager.RealTimeDomain())
	q.SetPumpPolicy(PumpPolicyAuto)
	h.logger.Debug("queue unthrottled", F("queue", q.Name()))
}

// =============================================================================
// TimeDomainObserver (cross-thread entry points)
// =============================================================================

// OnTimeDomainHasImmediateWork may be invoked from any goroutine. The
// scheduling decision itself must run on the scheduling goroutine, so the
// call forwards itself there through the control queue.
func (h *ThrottlingHelper) OnTimeDomainHasImmediateWork() {
	_ = h.controlQueue.PostNamedTask("forward_immediate_work", func(ctx context.Context) {
		h.handleImmediateWork()
	})
}

// OnTimeDomainHasDelayedWork may be invoked from any goroutine; forwarded
// like OnTimeDomainHasImmediateWork.
func (h *ThrottlingHelper) OnTimeDomainHasDelayedWork() {
	_ = h.controlQueue.PostNamedTask("forward_delayed_work", func(ctx context.Context) {
		h.handleDelayedWork()
	})
}

func (h *ThrottlingHelper) handleImmediateWork() {
	now := h.clock.NowTicks()
	h.maybeSchedulePumpThrottledTasks(now, now)
}

func (h *ThrottlingHelper) handleDelayedWork() {
	next, ok := h.timeDomain.NextScheduledRunTime()
	if !ok {
		// The wake-up may have been consumed between the notification
		// and this running; nothing to schedule.
		return
	}
	h.maybeSchedulePumpThrottledTasks(h.clock.NowTicks(), next)
}

// =============================================================================
// Pump scheduling
// =============================================================================

// ThrottledRunTime rounds unthrottledRunTime up to the next 1-second
// boundary. A run time already exactly on a boundary still advances a full
// second; forward-only rounding guarantees the pump never fires exactly at
// the requested time for every throttled queue, which would defeat
// coalescing.
func ThrottledRunTime(unthrottledRunTime time.Time) time.Time {
	const oneSecond = time.Second
	remainder := time.Duration(unthrottledRunTime.Nanosecond())
	return unthrottledRunTime.Add(oneSecond - remainder)
}

// maybeSchedulePumpThrottledTasks (re)schedules the pump callback only when
// no pump is pending or the new throttled run time is strictly sooner than
// the pending one. At most one pump wake-up exists for the whole domain no
// matter how many queues request work.
func (h *ThrottlingHelper) maybeSchedulePumpThrottledTasks(now, unthrottledRunTime time.Time) {
	throttledRunTime := ThrottledRunTime(unthrottledRunTime)
	if !h.pendingPumpRunTime.IsZero() && !throttledRunTime.Before(h.pendingPumpRunTime) {
		h.metrics.RecordWakeupCoalesced(h.timeDomain.Name())
		return
	}
	h.pendingPumpRunTime = throttledRunTime
	h.metrics.RecordWakeupScheduled(h.timeDomain.Name())

	// Supersede any previously posted pump; a stale callback firing is a
	// no-op because its generation no longer matches.
	h.pumpGeneration++
	generation := h.pumpGeneration
	_ = h.controlQueue.PostNamedDelayedTask("pump_throttled_tasks", func(ctx context.Context) {
		if h.pumpGeneration != generation {
			return
		}
		h.PumpThrottledTasks()
	}, throttledRunTime.Sub(now))
}

// PumpThrottledTasks drains every non-empty throttled queue in one batch,
// regardless of per-queue run times, then schedules the next coalesced pump
// if delayed work remains.
func (h *ThrottlingHelper) PumpThrottledTasks() {
	h.pendingPumpRunTime = time.Time{}

	now := h.clock.NowTicks()
	h.timeDomain.AdvanceTo(now)
	pumped := 0
	for q := range h.throttledQueues {
		if q.IsEmpty() {
			continue
		}
		q.PumpQueue()
		pumped++
	}
	// Make sure NextScheduledRunTime gives an up-to-date result.
	h.timeDomain.ClearExpiredWakeups(NewLazyNow(h.clock))
	h.metrics.RecordThrottledPump(pumped)

	// NOTE a non-delayed task posted in the future reaches us through
	// OnTimeDomainHasImmediateWork instead.
	if next, ok := h.timeDomain.NextScheduledRunTime(); ok {
		h.maybeSchedulePumpThrottledTasks(now, next)
	}
}
