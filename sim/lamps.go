package sim

import (
	"sync"
	"time"

	"github.com/calvinmclean/pilldispenser/firmware/dispenser"
	"github.com/calvinmclean/pilldispenser/firmware/timing"
)

const waitBlinkPeriod = 500 * time.Millisecond

// LampState is what the three indicator LEDs show
type LampState struct {
	Waiting bool
	Ready   bool
	Error   bool
	// Errors counts error signals so a short blink is not missed by a slow reader
	Errors int
	// Progress is the last reported number of confirmed cycles
	Progress int
}

// Lamps records indicator calls for the front panel
type Lamps struct {
	mtx   sync.Mutex
	clock timing.Clock
	state LampState

	lastBlink time.Time
	onChange  func(LampState)
}

var _ dispenser.Indicator = &Lamps{}

func NewLamps(clock timing.Clock) *Lamps {
	return &Lamps{clock: clock}
}

// OnChange registers a function called with the new state after every change
func (l *Lamps) OnChange(fn func(LampState)) {
	l.mtx.Lock()
	l.onChange = fn
	l.mtx.Unlock()
}

func (l *Lamps) State() LampState {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return l.state
}

func (l *Lamps) update(fn func(*LampState)) {
	l.mtx.Lock()
	before := l.state
	fn(&l.state)
	after := l.state
	onChange := l.onChange
	l.mtx.Unlock()

	if after != before && onChange != nil {
		onChange(after)
	}
}

func (l *Lamps) Waiting() {
	now := l.clock.Now()
	l.update(func(s *LampState) {
		if now.Sub(l.lastBlink) < waitBlinkPeriod {
			return
		}
		l.lastBlink = now
		s.Waiting = !s.Waiting
		s.Ready = false
		s.Error = false
	})
}

func (l *Lamps) Ready() {
	l.update(func(s *LampState) {
		s.Waiting = false
		s.Ready = true
		s.Error = false
	})
}

func (l *Lamps) Progress(done, _ int) {
	l.update(func(s *LampState) {
		s.Progress = done
		s.Error = false
	})
}

func (l *Lamps) Error() {
	l.update(func(s *LampState) {
		s.Error = true
		s.Errors++
	})
}

func (l *Lamps) Off() {
	l.update(func(s *LampState) {
		s.Waiting = false
		s.Ready = false
		s.Error = false
	})
}
