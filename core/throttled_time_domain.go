package core

import (
	"sync"
	"time"
)

// TimeDomainObserver receives work notifications from a ThrottledTimeDomain.
// The ThrottlingHelper implements it to drive coalesced pump scheduling.
type TimeDomainObserver interface {
	// OnTimeDomainHasImmediateWork is safe to call from any goroutine.
	OnTimeDomainHasImmediateWork()

	// OnTimeDomainHasDelayedWork is safe to call from any goroutine.
	OnTimeDomainHasDelayedWork()
}

// ThrottledTimeDomain is the TimeDomain used for throttled queues. Its clock
// only advances when the ThrottlingHelper pumps, and instead of arming
// manager timers it reports work to its observer, which coalesces all wake-up
// requests from all throttled queues into a single pending pump.
type ThrottledTimeDomain struct {
	timeDomainBase
	observer TimeDomainObserver
	clock    TickClock

	mu  sync.Mutex
	now time.Time
}

// NewThrottledTimeDomain creates a throttled domain whose clock starts at the
// tick clock's current time.
func NewThrottledTimeDomain(observer TimeDomainObserver, clock TickClock) *ThrottledTimeDomain {
	return &ThrottledTimeDomain{observer: observer, clock: clock, now: clock.NowTicks()}
}

func (d *ThrottledTimeDomain) Name() string {
	return "throttled"
}

// Now returns the domain's internal clock, which trails real time until the
// next pump calls AdvanceTo.
func (d *ThrottledTimeDomain) Now() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.now
}

// AdvanceTo moves the domain's clock forward to t. Called by the pump cycle
// before draining throttled queues so their ready checks see current time.
func (d *ThrottledTimeDomain) AdvanceTo(t time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t.After(d.now) {
		d.now = t
	}
}

// ComputeDelayedRunTime returns real-now+delay, reading the tick clock
// directly instead of the domain's trailing clock: the internal clock may be
// arbitrarily far behind real time between pumps, and anchoring the run time
// to it would let the delay expire before the task was even posted.
// Quantization to the pump grid is the ThrottlingHelper's job; keeping the
// unquantized time here lets the helper round the earliest wake-up exactly
// once.
func (d *ThrottledTimeDomain) ComputeDelayedRunTime(_ time.Time, delay time.Duration) time.Time {
	return d.clock.NowTicks().Add(delay)
}

// ScheduleDelayedWork records the wake-up and tells the observer the domain
// has delayed work when it is the new earliest.
func (d *ThrottledTimeDomain) ScheduleDelayedWork(queue *TaskQueue, runTime time.Time, lazyNow *LazyNow) {
	if d.scheduleWakeup(queue, runTime) {
		d.observer.OnTimeDomainHasDelayedWork()
	}
}

// MaybeAdvanceTime answers against the domain's own clock and never arms
// manager timers; pump scheduling is the observer's responsibility.
func (d *ThrottledTimeDomain) MaybeAdvanceTime() bool {
	nextRunTime, ok := d.nextScheduledRunTime()
	if !ok {
		return false
	}
	return !nextRunTime.After(d.Now())
}

func (d *ThrottledTimeDomain) NextScheduledRunTime() (time.Time, bool) {
	return d.nextScheduledRunTime()
}

// ClearExpiredWakeups clears against the domain's own clock; the shared
// sample only matters for wall-clock domains.
func (d *ThrottledTimeDomain) ClearExpiredWakeups(_ *LazyNow) {
	d.clearExpiredWakeups(d.Now())
}

func (d *ThrottledTimeDomain) onRegistered(m *TaskQueueManager) {}

func (d *ThrottledTimeDomain) nowWith(_ *LazyNow) time.Time {
	return d.Now()
}

func (d *ThrottledTimeDomain) onQueueHasImmediateWork(queue *TaskQueue) {
	d.observer.OnTimeDomainHasImmediateWork()
}

func (d *ThrottledTimeDomain) unregisterQueue(queue *TaskQueue) {
	d.removeQueue(queue)
}
