package sim

import (
	"errors"
	"math"
	"sync"

	"github.com/calvinmclean/pilldispenser/firmware/stepper"
)

// WheelConfig describes the simulated mechanics
type WheelConfig struct {
	// RevolutionSteps is the true number of half-steps per revolution
	RevolutionSteps int `mapstructure:"revolution_steps"`
	// HoleWidth is how many steps the calibration opening stays in front of the sensor
	HoleWidth int `mapstructure:"hole_width"`
	// StartPosition is where the wheel sits at power on. Position 0 is the leading edge of the opening
	StartPosition int `mapstructure:"start_position"`
	// EdgeNoise is the distance in steps from an opening edge where the sensor output flickers
	EdgeNoise int `mapstructure:"edge_noise"`
	// FlipEvery inverts every n-th sample taken near an edge
	FlipEvery int `mapstructure:"flip_every"`

	Compartments int `mapstructure:"compartments"`
}

func (c *WheelConfig) setDefaults() {
	if c.RevolutionSteps == 0 {
		c.RevolutionSteps = 4096
	}
	if c.HoleWidth == 0 {
		c.HoleWidth = 40
	}
	if c.FlipEvery == 0 {
		c.FlipEvery = 3
	}
	if c.Compartments == 0 {
		c.Compartments = 8
	}
}

func (c WheelConfig) validate() error {
	if c.HoleWidth <= 2*c.EdgeNoise {
		return errors.New("hole must be wider than the noise around both of its edges")
	}
	if c.HoleWidth >= c.RevolutionSteps/c.Compartments {
		return errors.New("hole must be narrower than a compartment")
	}
	if c.FlipEvery < 3 {
		return errors.New("flip_every must be at least 3 so a majority of samples stays correct")
	}
	return nil
}

// Wheel is the compartment wheel, its motor coils and the optical sensor. It is moved by watching the coil
// pattern a half-stepping stepper.Stepper writes, so the driver code runs unchanged against it
type Wheel struct {
	mtx sync.Mutex
	cfg WheelConfig

	coils    [4]bool
	phase    int
	position int
	steps    int
	samples  uint64

	onStop func(compartment int)
}

func NewWheel(cfg WheelConfig) (*Wheel, error) {
	cfg.setDefaults()
	err := cfg.validate()
	if err != nil {
		return nil, err
	}
	return &Wheel{
		cfg:      cfg,
		position: mod(cfg.StartPosition, cfg.RevolutionSteps),
	}, nil
}

// OnStop is called, without the wheel's lock held, each time the coils are released while a compartment is lined
// up with the chute
func (w *Wheel) OnStop(fn func(compartment int)) {
	w.mtx.Lock()
	w.onStop = fn
	w.mtx.Unlock()
}

// Pins returns the four coil inputs
func (w *Wheel) Pins() [4]stepper.Pin {
	var pins [4]stepper.Pin
	for i := range pins {
		pins[i] = coilPin{w, i}
	}
	return pins
}

type coilPin struct {
	w *Wheel
	i int
}

func (p coilPin) Set(v bool) {
	p.w.setCoil(p.i, v)
}

// setCoil updates one coil. The stepper writes all four in order, so the pattern is evaluated on the last one
func (w *Wheel) setCoil(i int, v bool) {
	w.mtx.Lock()
	w.coils[i] = v
	if i != 3 {
		w.mtx.Unlock()
		return
	}

	if w.coils == [4]bool{} {
		compartment, aligned := w.alignedCompartment()
		onStop := w.onStop
		w.mtx.Unlock()
		if aligned && onStop != nil {
			onStop(compartment)
		}
		return
	}

	w.applyPattern()
	w.mtx.Unlock()
}

func (w *Wheel) applyPattern() {
	const n = 8
	for idx := range n {
		if stepper.Coils(stepper.StepModeHalf, idx) != w.coils {
			continue
		}
		switch mod(idx-w.phase, n) {
		case 1:
			w.move(1)
		case n - 1:
			w.move(-1)
		}
		w.phase = idx
		return
	}
}

func (w *Wheel) move(d int) {
	w.position = mod(w.position+d, w.cfg.RevolutionSteps)
	w.steps++
}

// alignedCompartment finds the compartment closest to the chute. Compartment 0 is the one lined up with the sensor
// right after calibration, which leaves the wheel on the trailing edge of the opening
func (w *Wheel) alignedCompartment() (int, bool) {
	slot := float64(w.cfg.RevolutionSteps) / float64(w.cfg.Compartments)
	offset := float64(mod(w.position-w.cfg.HoleWidth, w.cfg.RevolutionSteps))
	k := int(math.Round(offset/slot)) % w.cfg.Compartments
	diff := math.Abs(offset - math.Round(offset/slot)*slot)
	return k, diff <= slot/4
}

// Open reads the optical sensor
func (w *Wheel) Open() bool {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	w.samples++
	open := w.position < w.cfg.HoleWidth
	if w.nearEdge() && w.samples%uint64(w.cfg.FlipEvery) == 0 {
		return !open
	}
	return open
}

func (w *Wheel) nearEdge() bool {
	if w.cfg.EdgeNoise == 0 {
		return false
	}
	for _, edge := range []int{0, w.cfg.HoleWidth} {
		d := mod(w.position-edge, w.cfg.RevolutionSteps)
		if d <= w.cfg.EdgeNoise || w.cfg.RevolutionSteps-d <= w.cfg.EdgeNoise {
			return true
		}
	}
	return false
}

// Position returns the wheel position in steps from the leading edge of the opening
func (w *Wheel) Position() int {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	return w.position
}

// Steps returns how many steps the wheel has moved in total
func (w *Wheel) Steps() int {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	return w.steps
}

func mod(a, n int) int {
	return ((a % n) + n) % n
}
