// Package dispenser is the top-level control loop: it waits for calibration, runs it, waits for the start
// button and then dispenses one compartment per interval until the wheel is empty.
//
// Everything runs on one goroutine. Waits are polls against the clock, and on every poll the registered idle
// functions run so the console and indicators stay responsive during long intervals.
package dispenser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/calvinmclean/pilldispenser"
	"github.com/calvinmclean/pilldispenser/firmware/calibration"
	"github.com/calvinmclean/pilldispenser/firmware/record"
	"github.com/calvinmclean/pilldispenser/firmware/report"
	"github.com/calvinmclean/pilldispenser/firmware/sensor"
	"github.com/calvinmclean/pilldispenser/firmware/timing"
)

const (
	DefaultInterval     = 30 * time.Second
	DefaultDetectWindow = time.Second
	defaultPollInterval = 10 * time.Millisecond
)

// Calibrator measures the wheel. *calibration.Engine implements it
type Calibrator interface {
	Calibrate() (calibration.Result, error)
}

// Wheel moves the wheel inside a motor_in_progress bracket. *wheel.Coordinator implements it
type Wheel interface {
	Bracket(move func() error) error
	AdvanceOneSlot(commit func(*record.Record)) error
}

// Button is a press source. *sensor.Button implements it
type Button interface {
	Edge() bool
	Press()
}

// Uplink is the radio used for status reports. *lora.Modem implements it
type Uplink interface {
	Init() error
	Join(appKey string) error
	SetJoined(bool)
}

// Config has the dispensing parameters
type Config struct {
	DispenseSlots int
	Compartments  int
	// Interval is the time between the start of two dispense cycles
	Interval time.Duration
	// DetectWindow is how long to listen for a pill after the wheel stops
	DetectWindow time.Duration
	// PollInterval is the sleep between polls of buttons and deadlines
	PollInterval time.Duration
	// AppKey is used for the network join when the record says the unit has not joined yet
	AppKey string
}

func (c *Config) setDefaults() {
	if c.DispenseSlots == 0 {
		c.DispenseSlots = pilldispenser.DispenseSlots
	}
	if c.Compartments == 0 {
		c.Compartments = pilldispenser.TotalCompartments
	}
	if c.Interval == 0 {
		c.Interval = DefaultInterval
	}
	if c.DetectWindow == 0 {
		c.DetectWindow = DefaultDetectWindow
	}
	if c.PollInterval == 0 {
		c.PollInterval = defaultPollInterval
	}
}

func (c Config) validate() error {
	if c.DispenseSlots >= c.Compartments {
		return fmt.Errorf("dispense slots (%d) must leave room for the calibration slot (%d compartments)", c.DispenseSlots, c.Compartments)
	}
	if c.DispenseSlots <= 0 {
		return errors.New("dispense slots must be > 0")
	}
	return nil
}

// Hardware groups the collaborators the dispenser drives. Uplink and Indicator may be nil
type Hardware struct {
	Calibrator  Calibrator
	Wheel       Wheel
	Impact      sensor.Impact
	CalButton   Button
	StartButton Button
	Indicator   Indicator
	Uplink      Uplink
}

// Dispenser runs the state machine
type Dispenser struct {
	cfg      Config
	hw       Hardware
	keeper   *record.Keeper
	reporter report.Reporter
	clock    timing.Clock
	logger   *zap.Logger

	state   pilldispenser.State
	ticker  *timing.Periodic
	idle    []func()
	verbose bool
	level   *zap.AtomicLevel

	mtx  sync.Mutex
	snap snapshot
}

type snapshot struct {
	state pilldispenser.State
	rec   record.Record
}

func New(cfg Config, keeper *record.Keeper, hw Hardware, reporter report.Reporter, c timing.Clock, logger *zap.Logger) (*Dispenser, error) {
	cfg.setDefaults()
	err := cfg.validate()
	if err != nil {
		return nil, err
	}
	if hw.Calibrator == nil || hw.Wheel == nil || hw.Impact == nil || hw.CalButton == nil || hw.StartButton == nil {
		return nil, errors.New("calibrator, wheel, impact sensor and both buttons are required")
	}
	if hw.Indicator == nil {
		hw.Indicator = NopIndicator{}
	}
	if reporter == nil {
		reporter = report.Discard
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Dispenser{
		cfg:      cfg,
		hw:       hw,
		keeper:   keeper,
		reporter: reporter,
		clock:    c,
		logger:   logger,
		state:    pilldispenser.StateUnknown,
	}, nil
}

// AddIdle registers fn to run on every poll while the dispenser waits
func (d *Dispenser) AddIdle(fn func()) {
	d.idle = append(d.idle, fn)
}

// State returns the current state. It must only be called from the control goroutine; use Snapshot elsewhere
func (d *Dispenser) State() pilldispenser.State {
	return d.state
}

// Snapshot returns the state and record as of the last completed step. Safe from any goroutine
func (d *Dispenser) Snapshot() (pilldispenser.State, record.Record) {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	return d.snap.state, d.snap.rec
}

func (d *Dispenser) publish() {
	d.mtx.Lock()
	d.snap = snapshot{state: d.state, rec: d.keeper.Record()}
	d.mtx.Unlock()
}

// Boot recovers from an interrupted rotation, counts the boot, sets up the uplink and picks the starting state
func (d *Dispenser) Boot() {
	rec := d.keeper.Record()
	interrupted := rec.MotorInProgress
	if interrupted {
		// The rotation is not repeated and its pill is never counted: the slot stays at the last value that was
		// saved with the flag clear
		d.logger.Warn("rotation was interrupted by power loss, resuming from last saved slot",
			zap.Uint8("slot", rec.CurrentSlot),
			zap.Uint8("done", rec.DispensesDone),
		)
	}

	err := d.keeper.Update(func(r *record.Record) {
		r.MotorInProgress = false
		r.BootCount++
	})
	if err != nil {
		d.logger.Warn("continuing without a saved boot record", zap.Error(err))
	}

	rec = d.keeper.Record()
	switch {
	case rec.Calibrated && rec.StepsPerSlot > 0 && !rec.Complete(d.cfg.DispenseSlots):
		d.setState(pilldispenser.StateDispensing)
		d.ticker = timing.NewPeriodic(d.clock.Now(), d.cfg.Interval)
	case rec.Calibrated && rec.StepsPerSlot > 0:
		d.setState(pilldispenser.StateReadyToStart)
	default:
		d.setState(pilldispenser.StateWaitCalButton)
	}

	d.logger.Info("booted",
		zap.Uint32("boots", rec.BootCount),
		zap.Uint32("steps_per_slot", rec.StepsPerSlot),
		zap.Stringer("state", d.state),
	)

	d.setupUplink()
	d.report(pilldispenser.EventBoot)
	if interrupted {
		d.report(pilldispenser.EventRecovered)
	}
	d.publish()
}

func (d *Dispenser) setupUplink() {
	if d.hw.Uplink == nil {
		return
	}

	err := d.hw.Uplink.Init()
	if err != nil {
		d.logger.Warn("uplink unavailable, running offline", zap.Error(err))
		return
	}

	if d.keeper.Record().JoinedNetwork {
		d.hw.Uplink.SetJoined(true)
		return
	}

	err = d.hw.Uplink.Join(d.cfg.AppKey)
	if err != nil {
		d.logger.Warn("network join failed, running offline", zap.Error(err))
		return
	}
	_ = d.keeper.Update(func(r *record.Record) {
		r.JoinedNetwork = true
	})
}

// Run boots the dispenser and steps the state machine until ctx is done
func (d *Dispenser) Run(ctx context.Context) error {
	d.Boot()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		d.Step(ctx)
	}
}

// Step performs one unit of work for the current state. Waiting states poll their input once
func (d *Dispenser) Step(ctx context.Context) {
	defer d.publish()

	switch d.state {
	case pilldispenser.StateWaitCalButton:
		d.hw.Indicator.Waiting()
		if d.hw.CalButton.Edge() {
			d.setState(pilldispenser.StateCalibrating)
			return
		}
		d.pause()

	case pilldispenser.StateCalibrating:
		d.calibrate()

	case pilldispenser.StateReadyToStart:
		d.hw.Indicator.Ready()
		if d.hw.StartButton.Edge() {
			d.start()
			return
		}
		d.pause()

	case pilldispenser.StateDispensing:
		d.dispense(ctx)

	case pilldispenser.StateEmpty:
		d.empty()

	default:
		d.setState(d.state.Next())
	}
}

func (d *Dispenser) calibrate() {
	d.logger.Info("calibrating")

	var res calibration.Result
	err := d.hw.Wheel.Bracket(func() error {
		var err error
		res, err = d.hw.Calibrator.Calibrate()
		return err
	})
	if err != nil {
		d.logger.Warn("calibration failed", zap.Error(err))
		d.hw.Indicator.Error()
		d.report(pilldispenser.EventCalibrationError)
		d.setState(pilldispenser.StateWaitCalButton)
		return
	}

	err = d.keeper.Update(func(r *record.Record) {
		r.StepsPerSlot = uint32(res.StepsPerSlot)
		r.CurrentSlot = pilldispenser.CalibrationSlot
		r.DispensesDone = 0
		r.PillsRemaining = uint8(d.cfg.DispenseSlots)
		r.Calibrated = true
	})
	if err != nil {
		d.logger.Warn("calibration is held in memory until the next successful save", zap.Error(err))
	}

	d.report(pilldispenser.EventCalibrated)
	d.setState(pilldispenser.StateReadyToStart)
}

func (d *Dispenser) start() {
	d.ticker = timing.NewPeriodic(d.clock.Now(), d.cfg.Interval)
	d.report(pilldispenser.EventStarted)
	d.setState(pilldispenser.StateDispensing)
}

// dispense runs a single cycle: wait for the interval, move one slot, listen for the pill
func (d *Dispenser) dispense(ctx context.Context) {
	rec := d.keeper.Record()
	if rec.Complete(d.cfg.DispenseSlots) {
		d.setState(pilldispenser.StateEmpty)
		return
	}
	if !rec.Calibrated || rec.StepsPerSlot == 0 {
		d.logger.Warn("dispensing without calibration, waiting for calibration")
		d.hw.Indicator.Error()
		d.setState(pilldispenser.StateWaitCalButton)
		return
	}
	if d.ticker == nil {
		d.ticker = timing.NewPeriodic(d.clock.Now(), d.cfg.Interval)
	}

	if !d.waitForTick(ctx) {
		return
	}

	d.hw.Impact.Reset()
	err := d.hw.Wheel.AdvanceOneSlot(func(r *record.Record) {
		r.DispensesDone++
	})
	after := d.keeper.Record()
	if after.DispensesDone == rec.DispensesDone {
		// the wheel never moved, the same slot is tried at the next tick
		d.logger.Error("dispense cycle aborted", zap.Error(err))
		d.hw.Indicator.Error()
		return
	}
	if err != nil {
		d.logger.Error("error saving end of rotation", zap.Error(err))
	}

	hit := d.hw.Impact.Detect(d.cfg.DetectWindow)
	_ = d.keeper.Update(func(r *record.Record) {
		if hit {
			r.PillsDispensed++
			if r.PillsRemaining > 0 {
				r.PillsRemaining--
			}
			return
		}
		r.PillsMissed++
	})

	after = d.keeper.Record()
	d.logger.Info("dispense cycle finished",
		zap.Bool("pill_detected", hit),
		zap.Uint8("slot", after.CurrentSlot),
		zap.Uint8("done", after.DispensesDone),
		zap.Uint8("left", after.PillsRemaining),
	)

	if hit {
		d.hw.Indicator.Progress(int(after.DispensesDone), d.cfg.DispenseSlots)
		d.report(pilldispenser.EventPillOK)
	} else {
		d.hw.Indicator.Error()
		d.report(pilldispenser.EventPillMiss)
	}

	if after.Complete(d.cfg.DispenseSlots) {
		d.setState(pilldispenser.StateEmpty)
	}
}

// waitForTick polls until the next cycle is due. It returns false if the wait was cut short by ctx or by
// something in the idle functions changing the state
func (d *Dispenser) waitForTick(ctx context.Context) bool {
	for {
		if d.ticker.Due(d.clock.Now()) {
			return true
		}
		if ctx.Err() != nil || d.state != pilldispenser.StateDispensing {
			return false
		}
		d.pause()
	}
}

func (d *Dispenser) empty() {
	_ = d.keeper.Update(func(r *record.Record) {
		r.Calibrated = false
	})
	d.ticker = nil
	d.hw.Indicator.Off()
	d.report(pilldispenser.EventEmpty)
	d.setState(pilldispenser.StateWaitCalButton)
}

// pause runs the idle functions and sleeps for one poll interval
func (d *Dispenser) pause() {
	for _, fn := range d.idle {
		fn()
	}
	d.clock.Sleep(d.cfg.PollInterval)
}

func (d *Dispenser) setState(s pilldispenser.State) {
	if s == d.state {
		return
	}
	d.logger.Info("state changed", zap.Stringer("from", d.state), zap.Stringer("to", s))
	d.state = s
}

func (d *Dispenser) report(event pilldispenser.Event) {
	err := d.reporter.Report(event, d.keeper.Record())
	if err != nil && d.verbose {
		d.logger.Debug("status report not delivered", zap.String("event", string(event)), zap.Error(err))
	}
}
