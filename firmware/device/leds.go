//go:build tinygo

package device

import (
	"machine"
	"time"

	"github.com/calvinmclean/pilldispenser/firmware/dispenser"
	"github.com/calvinmclean/pilldispenser/firmware/timing"
)

const (
	ledWaiting = iota
	ledReady
	ledError
)

const (
	waitBlinkPeriod = 500 * time.Millisecond
	errorBlinks     = 5
	errorBlinkTime  = 150 * time.Millisecond
	progressFlash   = 150 * time.Millisecond
)

// LEDs is the three-lamp indicator
type LEDs struct {
	pins  [3]machine.Pin
	clock timing.Clock

	blinkOn   bool
	lastBlink time.Time
}

var _ dispenser.Indicator = &LEDs{}

func newLEDs(cfg LEDConfig, clock timing.Clock) *LEDs {
	for _, p := range cfg.Pins {
		p.Configure(machine.PinConfig{Mode: machine.PinOutput})
		p.Low()
	}
	return &LEDs{pins: cfg.Pins, clock: clock}
}

func (l *LEDs) set(waiting, ready, err bool) {
	l.pins[ledWaiting].Set(waiting)
	l.pins[ledReady].Set(ready)
	l.pins[ledError].Set(err)
}

// Waiting toggles the first LED every half second
func (l *LEDs) Waiting() {
	now := l.clock.Now()
	if now.Sub(l.lastBlink) < waitBlinkPeriod {
		return
	}
	l.blinkOn = !l.blinkOn
	l.lastBlink = now
	l.set(l.blinkOn, false, false)
}

func (l *LEDs) Ready() {
	l.set(false, true, false)
}

// Progress flashes the ready LED once for a confirmed pill
func (l *LEDs) Progress(done, total int) {
	l.pins[ledReady].High()
	l.clock.Sleep(progressFlash)
	l.pins[ledReady].Low()
}

func (l *LEDs) Error() {
	for range errorBlinks {
		l.pins[ledError].High()
		l.clock.Sleep(errorBlinkTime)
		l.pins[ledError].Low()
		l.clock.Sleep(errorBlinkTime)
	}
}

func (l *LEDs) Off() {
	l.set(false, false, false)
}
