package core

import "time"

// RealTimeDomain is the wall-clock passthrough TimeDomain. Delayed run times
// are now+delay with no quantization, and wake-ups are armed directly on the
// TaskQueueManager.
type RealTimeDomain struct {
	timeDomainBase
	clock   TickClock
	manager *TaskQueueManager
}

// NewRealTimeDomain creates a real-time domain reading clock.
func NewRealTimeDomain(clock TickClock) *RealTimeDomain {
	return &RealTimeDomain{clock: clock}
}

func (d *RealTimeDomain) Name() string {
	return "real"
}

func (d *RealTimeDomain) Now() time.Time {
	return d.clock.NowTicks()
}

// ComputeDelayedRunTime returns now+delay.
func (d *RealTimeDomain) ComputeDelayedRunTime(now time.Time, delay time.Duration) time.Time {
	return now.Add(delay)
}

// ScheduleDelayedWork records the wake-up and, if it is the new earliest,
// requests a manager wake-up for it.
func (d *RealTimeDomain) ScheduleDelayedWork(queue *TaskQueue, runTime time.Time, lazyNow *LazyNow) {
	if d.scheduleWakeup(queue, runTime) {
		d.RequestWakeup(lazyNow, runTime.Sub(lazyNow.Now()))
	}
}

// RequestWakeup forwards to the manager's coalescing wake-up primitive.
// Callers only invoke this when the requested time is sooner than any
// previously scheduled wake-up, so no deduplication happens here.
func (d *RealTimeDomain) RequestWakeup(lazyNow *LazyNow, delay time.Duration) {
	d.manager.MaybeScheduleDelayedWork(lazyNow, delay)
}

// MaybeAdvanceTime returns true when the earliest scheduled run time is due,
// meaning the caller should dispatch now. Otherwise it arms a wake-up for
// that run time and returns false.
func (d *RealTimeDomain) MaybeAdvanceTime() bool {
	nextRunTime, ok := d.nextScheduledRunTime()
	if !ok {
		return false
	}
	lazyNow := NewLazyNow(d.clock)
	if !nextRunTime.After(lazyNow.Now()) {
		return true
	}
	// The next task is sometime in the future; make sure a wake-up is
	// scheduled to run it.
	d.RequestWakeup(lazyNow, nextRunTime.Sub(lazyNow.Now()))
	return false
}

func (d *RealTimeDomain) NextScheduledRunTime() (time.Time, bool) {
	return d.nextScheduledRunTime()
}

func (d *RealTimeDomain) ClearExpiredWakeups(lazyNow *LazyNow) {
	d.clearExpiredWakeups(lazyNow.Now())
}

func (d *RealTimeDomain) onRegistered(m *TaskQueueManager) {
	d.manager = m
}

func (d *RealTimeDomain) nowWith(lazyNow *LazyNow) time.Time {
	return lazyNow.Now()
}

func (d *RealTimeDomain) onQueueHasImmediateWork(queue *TaskQueue) {
	d.manager.ScheduleImmediateWork()
}

func (d *RealTimeDomain) unregisterQueue(queue *TaskQueue) {
	d.removeQueue(queue)
}
