// Package timing holds the time primitives shared by the firmware: a minimal clock abstraction,
// deadline polling and a periodic deadline tracker. Every wait in the firmware is a poll against
// a monotonic clock so nothing here is preemptive.
package timing

import (
	"time"

	"github.com/benbjohnson/clock"
)

// Clock is the subset of clock.Clock the firmware relies on
type Clock interface {
	Now() time.Time
	Sleep(time.Duration)
}

var _ Clock = clock.New()

// Default returns the wall clock
func Default() Clock {
	return clock.New()
}

// Poll calls cond every interval until it returns true or timeout elapses. It returns the last result of cond
func Poll(c Clock, timeout, interval time.Duration, cond func() bool) bool {
	deadline := c.Now().Add(timeout)
	for {
		if cond() {
			return true
		}
		if !c.Now().Before(deadline) {
			return false
		}
		c.Sleep(interval)
	}
}

// Periodic tracks a fixed cadence. The next deadline is advanced by the period rather than re-based on
// when the caller noticed it, so a slow cycle does not push every later cycle back
type Periodic struct {
	period time.Duration
	next   time.Time
}

// NewPeriodic starts a cadence whose first deadline is one period after now
func NewPeriodic(now time.Time, period time.Duration) *Periodic {
	return &Periodic{period: period, next: now.Add(period)}
}

// Next returns the upcoming deadline
func (p *Periodic) Next() time.Time {
	return p.next
}

// Due reports whether the deadline has passed. When it has, the deadline moves forward one period.
// If more than a full period was missed the cadence restarts from now instead of firing back to back
func (p *Periodic) Due(now time.Time) bool {
	if now.Before(p.next) {
		return false
	}
	p.next = p.next.Add(p.period)
	if !now.Before(p.next) {
		p.next = now.Add(p.period)
	}
	return true
}
