package generic

import (
	"sync"
	"time"
)

// =============================================================================
// CLOCK - External monotonic time input
// =============================================================================

// Clock supplies the current timestamp. The engine never reads wall time
// directly so tests can drive it deterministically.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock, truncated to whole seconds.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC().Truncate(time.Second) }

// ManualClock is a settable clock for tests and scenarios.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewManualClock(at time.Time) *ManualClock {
	return &ManualClock{now: at.UTC().Truncate(time.Second)}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward. Negative durations are ignored; time
// never goes backwards.
func (c *ManualClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d > 0 {
		c.now = c.now.Add(d)
	}
	return c.now
}

// Set moves the clock to at if at is not before the current time.
func (c *ManualClock) Set(at time.Time) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	at = at.UTC().Truncate(time.Second)
	if at.After(c.now) {
		c.now = at
	}
	return c.now
}

// =============================================================================
// TIME UTILITIES
// =============================================================================

const SecondsPerDay int64 = 24 * 60 * 60

// DaysDuration is n days as a time.Duration.
func DaysDuration(n int) time.Duration { return time.Duration(n) * 24 * time.Hour }

// ElapsedUnits returns floor((at - start) / secondsPerUnit), or 0 before start.
func ElapsedUnits(start, at time.Time, secondsPerUnit int64) int64 {
	if at.Before(start) || secondsPerUnit <= 0 {
		return 0
	}
	return (at.Unix() - start.Unix()) / secondsPerUnit
}
