package sensor

import (
	"time"

	"go.uber.org/atomic"

	"github.com/calvinmclean/pilldispenser/firmware/timing"
)

// Level reads the logical state of a push button: true while pressed
type Level interface {
	Pressed() bool
}

// LevelFunc adapts a plain function to Level
type LevelFunc func() bool

func (f LevelFunc) Pressed() bool { return f() }

// Button turns a bouncy level into press edges. A press only counts once it has been seen on two reads
// debounce apart, and it fires once per press rather than while held
type Button struct {
	level    Level
	clock    timing.Clock
	debounce time.Duration

	wasPressed bool
	virtual    *atomic.Bool
}

func NewButton(level Level, c timing.Clock, debounce time.Duration) *Button {
	return &Button{
		level:    level,
		clock:    c,
		debounce: debounce,
		virtual:  atomic.NewBool(false),
	}
}

// Press queues a press that did not come from the physical button, e.g. from the serial console
func (b *Button) Press() {
	b.virtual.Store(true)
}

// Edge reports whether a new press happened since the last call
func (b *Button) Edge() bool {
	if b.virtual.Swap(false) {
		return true
	}
	if b.level == nil {
		return false
	}

	pressed := b.level.Pressed()
	if pressed && b.debounce > 0 {
		b.clock.Sleep(b.debounce)
		pressed = b.level.Pressed()
	}

	edge := pressed && !b.wasPressed
	b.wasPressed = pressed
	return edge
}
