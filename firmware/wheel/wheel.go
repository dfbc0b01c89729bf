// Package wheel moves the compartment wheel while keeping the persisted record honest about it: the record says a
// rotation is in progress for exactly as long as the motor may be moving.
package wheel

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/calvinmclean/pilldispenser/firmware/record"
)

var (
	ErrNotCalibrated = errors.New("steps per slot is not set")
	ErrInvalidSteps  = errors.New("steps must not be negative")
)

// Motor is the part of the stepper driver the coordinator uses. StepForward includes the inter-step delay
type Motor interface {
	StepForward()
	Off()
}

type Config struct {
	Compartments int
}

// Coordinator runs every motion inside a motor_in_progress bracket
type Coordinator struct {
	motor        Motor
	keeper       *record.Keeper
	compartments int
	logger       *zap.Logger
}

func New(motor Motor, keeper *record.Keeper, cfg Config, logger *zap.Logger) (*Coordinator, error) {
	if cfg.Compartments <= 0 {
		return nil, errors.New("compartments must be > 0")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		motor:        motor,
		keeper:       keeper,
		compartments: cfg.Compartments,
		logger:       logger,
	}, nil
}

// Bracket persists motor_in_progress before running move and clears it afterwards, whether or not move succeeded.
// If the flag cannot be persisted, move is not run
func (c *Coordinator) Bracket(move func() error) error {
	return c.bracket(move, nil)
}

func (c *Coordinator) bracket(move func() error, commit func(*record.Record)) error {
	err := c.keeper.Update(func(r *record.Record) {
		r.MotorInProgress = true
	})
	if err != nil {
		// nothing has moved, so the flag must not survive in memory either
		undoErr := c.keeper.Update(func(r *record.Record) {
			r.MotorInProgress = false
		})
		return multierr.Append(fmt.Errorf("error marking rotation start: %w", err), undoErr)
	}

	moveErr := move()
	c.motor.Off()

	closeErr := c.keeper.Update(func(r *record.Record) {
		if moveErr == nil && commit != nil {
			commit(r)
		}
		r.MotorInProgress = false
	})
	if closeErr != nil {
		closeErr = fmt.Errorf("error marking rotation end: %w", closeErr)
	}
	return multierr.Append(moveErr, closeErr)
}

// Rotate steps the wheel forward without changing the slot
func (c *Coordinator) Rotate(steps int) error {
	if steps < 0 {
		return ErrInvalidSteps
	}
	return c.Bracket(func() error {
		c.step(steps)
		return nil
	})
}

// AdvanceOneSlot moves the wheel by one compartment. The new slot is saved in the same write that clears
// motor_in_progress, together with whatever commit changes
func (c *Coordinator) AdvanceOneSlot(commit func(*record.Record)) error {
	steps := int(c.keeper.Record().StepsPerSlot)
	if steps <= 0 {
		return ErrNotCalibrated
	}

	from := c.keeper.Record().CurrentSlot
	err := c.bracket(
		func() error {
			c.step(steps)
			return nil
		},
		func(r *record.Record) {
			r.CurrentSlot = uint8((int(r.CurrentSlot) + 1) % c.compartments)
			if commit != nil {
				commit(r)
			}
		},
	)

	c.logger.Debug("advanced one slot",
		zap.Uint8("from", from),
		zap.Uint8("to", c.keeper.Record().CurrentSlot),
		zap.Int("steps", steps),
		zap.Error(err),
	)
	return err
}

func (c *Coordinator) step(steps int) {
	for range steps {
		c.motor.StepForward()
	}
}
