// Package calibration measures how many motor half-steps one wheel revolution takes, using the optical slot
// sensor as ground truth. The nominal revolution length only bounds the scans; it never stands in for a measurement.
//
// A revolution is measured from the trailing edge of the calibration opening to the next trailing edge, so the
// result does not depend on how wide the opening is or how late the sensor reports its leading edge.
package calibration

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/calvinmclean/pilldispenser/firmware/sensor"
	"github.com/calvinmclean/pilldispenser/firmware/timing"
)

var (
	ErrTimeout         = errors.New("calibration scan timed out")
	ErrZeroMeasurement = errors.New("revolution measured as zero steps")
	ErrNoSlotSteps     = errors.New("measured revolution is shorter than one step per compartment")
)

// Phase identifies the part of a revolution scan
type Phase int

const (
	PhaseSeekOpen Phase = iota + 1
	PhaseLeaveHole
	PhaseCount
)

func (p Phase) String() string {
	switch p {
	case PhaseSeekOpen:
		return "seek-open"
	case PhaseLeaveHole:
		return "leave-hole"
	case PhaseCount:
		return "count"
	default:
		return "unknown"
	}
}

// TimeoutError is returned when a scan phase runs out of steps before seeing the edge it was looking for
type TimeoutError struct {
	Phase Phase
	Steps int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: no edge within %d steps", e.Phase, e.Steps)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// Motor advances the wheel by one half-step, including the inter-step delay
type Motor interface {
	StepForward()
}

// Config has the values calibration depends on
type Config struct {
	NominalRevolutionSteps int
	Compartments           int
	Stable                 sensor.StableConfig
}

// Result holds both measured revolutions and the derived slot length
type Result struct {
	Revolutions  [2]int
	StepsPerSlot int
}

// Engine runs calibration scans
type Engine struct {
	motor   Motor
	optical sensor.Optical
	clock   timing.Clock
	cfg     Config
	logger  *zap.Logger
}

func New(motor Motor, optical sensor.Optical, c timing.Clock, cfg Config, logger *zap.Logger) (*Engine, error) {
	if cfg.NominalRevolutionSteps <= 0 {
		return nil, errors.New("nominal revolution steps must be > 0")
	}
	if cfg.Compartments <= 0 {
		return nil, errors.New("compartments must be > 0")
	}
	if cfg.Stable.Samples == 0 {
		cfg.Stable = sensor.DefaultStable
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{motor: motor, optical: optical, clock: c, cfg: cfg, logger: logger}, nil
}

// StepsPerSlot derives the slot length from two revolution measurements, truncating
func StepsPerSlot(rev1, rev2, compartments int) int {
	return ((rev1 + rev2) / 2) / compartments
}

// Calibrate measures two revolutions and derives the steps per slot. Nothing is stored here; a failed run has no
// side effects beyond moving the wheel
func (e *Engine) Calibrate() (Result, error) {
	var res Result
	for i := range res.Revolutions {
		steps, err := e.MeasureRevolution()
		if err != nil {
			return Result{}, fmt.Errorf("revolution %d: %w", i+1, err)
		}
		if steps == 0 {
			return Result{}, fmt.Errorf("revolution %d: %w", i+1, ErrZeroMeasurement)
		}
		res.Revolutions[i] = steps
	}

	res.StepsPerSlot = StepsPerSlot(res.Revolutions[0], res.Revolutions[1], e.cfg.Compartments)
	if res.StepsPerSlot <= 0 {
		return Result{}, ErrNoSlotSteps
	}

	e.logger.Info("calibration measured",
		zap.Int("rev1", res.Revolutions[0]),
		zap.Int("rev2", res.Revolutions[1]),
		zap.Int("steps_per_slot", res.StepsPerSlot),
	)
	return res, nil
}

// MeasureRevolution scans for the opening, steps out of it, then counts the steps until the wheel has gone all
// the way round to the same edge again
func (e *Engine) MeasureRevolution() (int, error) {
	nominal := e.cfg.NominalRevolutionSteps

	steps, err := e.stepUntil(true, 2*nominal)
	if err != nil {
		return 0, e.timeout(PhaseSeekOpen, steps)
	}
	e.logger.Debug("found opening", zap.Int("steps", steps))

	steps, err = e.stepUntil(false, nominal/2)
	if err != nil {
		return 0, e.timeout(PhaseLeaveHole, steps)
	}
	e.logger.Debug("left opening", zap.Int("steps", steps))

	limit := 2 * nominal
	toOpen, err := e.stepUntil(true, limit)
	if err != nil {
		return 0, e.timeout(PhaseCount, toOpen)
	}
	toClosed, err := e.stepUntil(false, limit-toOpen)
	if err != nil {
		return 0, e.timeout(PhaseCount, toOpen+toClosed)
	}

	revolution := toOpen + toClosed
	e.logger.Debug("revolution counted", zap.Int("steps", revolution))
	return revolution, nil
}

var errLimit = errors.New("step limit reached")

// stepUntil steps at least once and stops on the first stable reading equal to open
func (e *Engine) stepUntil(open bool, limit int) (int, error) {
	for steps := 1; steps <= limit; steps++ {
		e.motor.StepForward()
		v, stable := sensor.StableRead(e.optical, e.clock, e.cfg.Stable)
		if stable && v == open {
			return steps, nil
		}
	}
	return max(limit, 0), errLimit
}

func (e *Engine) timeout(p Phase, steps int) error {
	e.logger.Warn("calibration scan timed out", zap.Stringer("phase", p), zap.Int("steps", steps))
	return &TimeoutError{Phase: p, Steps: steps}
}
