package sensor

import (
	"time"

	"go.uber.org/atomic"

	"github.com/calvinmclean/pilldispenser/firmware/timing"
)

// Impact detects a pill landing in the output chute
type Impact interface {
	// Reset discards anything seen so far
	Reset()
	// Detect blocks for at most window and reports whether at least one impact happened since the last Reset
	Detect(window time.Duration) bool
}

// Latch is a single-slot event flag. Trigger is safe to call from an interrupt handler; a second trigger before
// Take is merged into the first
type Latch struct {
	flag *atomic.Bool
}

func NewLatch() *Latch {
	return &Latch{flag: atomic.NewBool(false)}
}

// Trigger records an event
func (l *Latch) Trigger() {
	l.flag.Store(true)
}

// Take returns whether an event was recorded and clears it
func (l *Latch) Take() bool {
	return l.flag.Swap(false)
}

// LatchDetector polls a Latch filled by an edge interrupt on the piezo input
type LatchDetector struct {
	latch        *Latch
	clock        timing.Clock
	pollInterval time.Duration
}

var _ Impact = &LatchDetector{}

func NewLatchDetector(latch *Latch, c timing.Clock, pollInterval time.Duration) *LatchDetector {
	if pollInterval <= 0 {
		pollInterval = 10 * time.Millisecond
	}
	return &LatchDetector{latch: latch, clock: c, pollInterval: pollInterval}
}

func (d *LatchDetector) Reset() {
	d.latch.Take()
}

func (d *LatchDetector) Detect(window time.Duration) bool {
	return timing.Poll(d.clock, window, d.pollInterval, d.latch.Take)
}
