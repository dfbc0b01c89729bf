// Package fakeclock is a single-goroutine clock for tests: Sleep advances time immediately
package fakeclock

import (
	"sync"
	"time"
)

// Clock implements timing.Clock without ever blocking
type Clock struct {
	mtx   sync.Mutex
	now   time.Time
	slept time.Duration

	// OnSleep is called after time has been advanced, which lets tests inject events part way through a wait
	OnSleep func(now time.Time)
}

// New returns a clock starting at an arbitrary fixed instant
func New() *Clock {
	return &Clock{now: time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *Clock) Now() time.Time {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.now
}

func (c *Clock) Sleep(d time.Duration) {
	c.mtx.Lock()
	c.now = c.now.Add(d)
	c.slept += d
	now := c.now
	onSleep := c.OnSleep
	c.mtx.Unlock()

	if onSleep != nil {
		onSleep(now)
	}
}

// Add moves time forward without counting it as sleep
func (c *Clock) Add(d time.Duration) {
	c.mtx.Lock()
	c.now = c.now.Add(d)
	c.mtx.Unlock()
}

// Slept returns the total time spent in Sleep
func (c *Clock) Slept() time.Duration {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.slept
}
