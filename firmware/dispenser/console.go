package dispenser

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/calvinmclean/pilldispenser"
)

// The methods in this file are used by the maintenance console. They run from the idle functions, which means
// on the control goroutine, between polls

// PressCalibrate queues a calibration button press
func (d *Dispenser) PressCalibrate() {
	d.hw.CalButton.Press()
}

// PressStart queues a start button press
func (d *Dispenser) PressStart() {
	d.hw.StartButton.Press()
}

// Debug describes the state and the record
func (d *Dispenser) Debug() string {
	rec := d.keeper.Record()
	next := "-"
	if d.ticker != nil {
		next = d.ticker.Next().Sub(d.clock.Now()).Round(time.Millisecond).String()
	}
	return fmt.Sprintf(
		"state=%s slot=%d done=%d/%d left=%d calibrated=%t steps_per_slot=%d motor_in_progress=%t joined=%t boots=%d ok=%d miss=%d next=%s",
		d.state, rec.CurrentSlot, rec.DispensesDone, d.cfg.DispenseSlots, rec.PillsRemaining, rec.Calibrated,
		rec.StepsPerSlot, rec.MotorInProgress, rec.JoinedNetwork, rec.BootCount, rec.PillsDispensed, rec.PillsMissed, next,
	)
}

// SetLevel gives the dispenser control of the log level so Verbose can change it
func (d *Dispenser) SetLevel(level zap.AtomicLevel) {
	d.level = &level
}

// Verbose toggles debug logging
func (d *Dispenser) Verbose() bool {
	d.verbose = !d.verbose
	if d.level != nil {
		if d.verbose {
			d.level.SetLevel(zapcore.DebugLevel)
		} else {
			d.level.SetLevel(zapcore.InfoLevel)
		}
	}
	return d.verbose
}

// ResetRecord forgets calibration and fill progress, keeping lifetime counters, and goes back to waiting for
// calibration
func (d *Dispenser) ResetRecord() error {
	if d.state == pilldispenser.StateCalibrating {
		return fmt.Errorf("cannot reset while %s", d.state)
	}
	err := d.keeper.Reset()
	d.ticker = nil
	d.setState(pilldispenser.StateWaitCalButton)
	d.publish()
	return err
}

// ReportStatus sends a status event with the current counters
func (d *Dispenser) ReportStatus() error {
	return d.reporter.Report(pilldispenser.EventStatus, d.keeper.Record())
}
