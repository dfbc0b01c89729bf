package stepper

import (
	"errors"
	"time"

	"github.com/calvinmclean/pilldispenser/firmware/timing"
)

const defaultStepDelay = 2000 * time.Microsecond

type StepMode int

const (
	StepModeFull StepMode = iota
	StepModeHalf
)

// Pin is a single coil output. machine.Pin satisfies it on the device
type Pin interface {
	Set(bool)
}

// Config holds the coil pins and the step mode and timing
type Config struct {
	Pins      [4]Pin
	StepMode  StepMode
	StepDelay time.Duration

	// Clock is used for the inter-step delay. Defaults to the wall clock
	Clock timing.Clock
}

// Stepper drives a 4-coil unipolar stepper (28BYJ-48 and friends) through a fixed phase table.
// It has no feedback: position is only known by counting steps
type Stepper struct {
	pins        [4]Pin
	stepMode    StepMode
	currentStep int
	stepDelay   time.Duration
	clock       timing.Clock
}

func New(cfg Config) (*Stepper, error) {
	if cfg.StepMode != StepModeFull && cfg.StepMode != StepModeHalf {
		return nil, errors.New("invalid StepMode")
	}
	for _, p := range cfg.Pins {
		if p == nil {
			return nil, errors.New("all four coil pins are required")
		}
	}

	if cfg.StepDelay == 0 {
		cfg.StepDelay = defaultStepDelay
	}
	if cfg.Clock == nil {
		cfg.Clock = timing.Default()
	}

	s := &Stepper{
		pins:        cfg.Pins,
		stepMode:    cfg.StepMode,
		stepDelay:   cfg.StepDelay,
		clock:       cfg.Clock,
		currentStep: 0,
	}
	s.Off()
	return s, nil
}

// Phase tables. Bit i drives coil i
var (
	halfStepSequence = [8]uint8{0b0001, 0b0011, 0b0010, 0b0110, 0b0100, 0b1100, 0b1000, 0b1001}
	fullStepSequence = [4]uint8{0b0001, 0b0010, 0b0100, 0b1000}
)

// Coils returns the energization pattern for phase index i of the given mode. i wraps around the table
func Coils(mode StepMode, i int) [4]bool {
	n := sequenceLen(mode)
	i = ((i % n) + n) % n

	bits := fullStepSequence[i%4]
	if mode == StepModeHalf {
		bits = halfStepSequence[i]
	}

	var coils [4]bool
	for c := range coils {
		coils[c] = bits&(1<<c) != 0
	}
	return coils
}

func sequenceLen(mode StepMode) int {
	if mode == StepModeHalf {
		return 8
	}
	return 4
}

func (s *Stepper) applyStep() {
	for i, on := range Coils(s.stepMode, s.currentStep) {
		s.pins[i].Set(on)
	}
}

// StepForward advances one phase and waits the step delay. The wheel only ever turns forward
func (s *Stepper) StepForward() {
	s.currentStep = (s.currentStep + 1) % sequenceLen(s.stepMode)
	s.applyStep()
	s.clock.Sleep(s.stepDelay)
}

// Off releases all coils. The phase index is kept so the next step continues the sequence
func (s *Stepper) Off() {
	for _, p := range s.pins {
		p.Set(false)
	}
}
