package core

import (
	"sync"
	"time"
)

// TickClock abstracts the monotonic clock so tests can control time.
type TickClock interface {
	NowTicks() time.Time
}

// RealTickClock reads the system clock.
type RealTickClock struct{}

func (RealTickClock) NowTicks() time.Time {
	return time.Now()
}

// ManualTickClock is a TickClock that only moves when told to. It is safe for
// concurrent use.
type ManualTickClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualTickClock creates a clock frozen at start.
func NewManualTickClock(start time.Time) *ManualTickClock {
	return &ManualTickClock{now: start}
}

func (c *ManualTickClock) NowTicks() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *ManualTickClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// SetNow jumps the clock to t. t must not be earlier than the current time.
func (c *ManualTickClock) SetNow(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.Before(c.now) {
		panic("core: ManualTickClock may not move backwards")
	}
	c.now = t
}

// LazyNow caches a single clock read so one scheduling decision observes one
// consistent "now" without paying for repeated clock queries.
//
// LazyNow is single-use and not safe for concurrent use; create one per
// scheduling pass.
type LazyNow struct {
	clock TickClock
	now   time.Time
	valid bool
}

// NewLazyNow creates a LazyNow that reads clock at most once.
func NewLazyNow(clock TickClock) *LazyNow {
	return &LazyNow{clock: clock}
}

// Now returns the cached time, reading the clock on first call.
func (l *LazyNow) Now() time.Time {
	if !l.valid {
		l.now = l.clock.NowTicks()
		l.valid = true
	}
	return l.now
}
