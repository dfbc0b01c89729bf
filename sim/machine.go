// Package sim runs the dispenser firmware on a host against a simulated wheel, optical sensor and pill chute.
// Everything above the pins is the real firmware code.
package sim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/calvinmclean/pilldispenser"
	"github.com/calvinmclean/pilldispenser/firmware/calibration"
	"github.com/calvinmclean/pilldispenser/firmware/commands"
	"github.com/calvinmclean/pilldispenser/firmware/dispenser"
	"github.com/calvinmclean/pilldispenser/firmware/record"
	"github.com/calvinmclean/pilldispenser/firmware/report"
	"github.com/calvinmclean/pilldispenser/firmware/sensor"
	"github.com/calvinmclean/pilldispenser/firmware/stepper"
	"github.com/calvinmclean/pilldispenser/firmware/timing"
	"github.com/calvinmclean/pilldispenser/firmware/wheel"
)

// Config has everything the simulator can tune. Zero values fall back to defaults that keep a calibration
// under ten seconds of wall time
type Config struct {
	Wheel WheelConfig `mapstructure:"wheel"`
	Chute ChuteConfig `mapstructure:"chute"`

	StepDelay     time.Duration `mapstructure:"step_delay"`
	SampleSpacing time.Duration `mapstructure:"sample_spacing"`
	Interval      time.Duration `mapstructure:"interval"`
	DetectWindow  time.Duration `mapstructure:"detect_window"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`

	// Image is the EEPROM image file. Empty keeps the record in memory only
	Image  string `mapstructure:"image"`
	AppKey string `mapstructure:"app_key"`
}

func (c *Config) setDefaults() {
	if c.StepDelay == 0 {
		c.StepDelay = 100 * time.Microsecond
	}
	if c.SampleSpacing == 0 {
		c.SampleSpacing = 50 * time.Microsecond
	}
	if c.Interval == 0 {
		c.Interval = 5 * time.Second
	}
	if c.DetectWindow == 0 {
		c.DetectWindow = dispenser.DefaultDetectWindow
	}
}

// Validate checks the config after applying defaults
func (c Config) Validate() error {
	c.setDefaults()
	c.Wheel.setDefaults()

	err := c.Wheel.validate()
	if err != nil {
		return fmt.Errorf("invalid wheel: %w", err)
	}
	if c.Chute.MissRate < 0 || c.Chute.MissRate > 1 {
		return fmt.Errorf("miss_rate %v must be between 0 and 1", c.Chute.MissRate)
	}
	if c.DetectWindow >= c.Interval {
		return fmt.Errorf("detect_window %s must be shorter than interval %s", c.DetectWindow, c.Interval)
	}
	return nil
}

// Radio is an uplink the simulator can report through, e.g. a *lora.Modem on a USB serial adapter
type Radio interface {
	dispenser.Uplink
	report.Sender
}

// Options connects the simulator to its surroundings. Everything is optional
type Options struct {
	Clock  timing.Clock
	Logger *zap.Logger
	Level  *zap.AtomicLevel

	// Reporter receives status events in addition to the log
	Reporter report.Reporter
	Radio    Radio

	Console    commands.Input
	ConsoleOut io.Writer
}

// Machine is a complete simulated dispenser
type Machine struct {
	Wheel     *Wheel
	Chute     *Chute
	Lamps     *Lamps
	Keeper    *record.Keeper
	Dispenser *dispenser.Dispenser

	image *Image
}

func New(cfg Config, opts Options) (*Machine, error) {
	cfg.setDefaults()
	if opts.Clock == nil {
		opts.Clock = timing.Default()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	logger := opts.Logger

	w, err := NewWheel(cfg.Wheel)
	if err != nil {
		return nil, fmt.Errorf("invalid wheel: %w", err)
	}

	motor, err := stepper.New(stepper.Config{
		Pins:      w.Pins(),
		StepMode:  stepper.StepModeHalf,
		StepDelay: cfg.StepDelay,
		Clock:     opts.Clock,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating stepper: %w", err)
	}

	latch := sensor.NewLatch()
	chute := NewChute(cfg.Chute, latch)
	w.OnStop(chute.Drop)

	m := &Machine{Wheel: w, Chute: chute, Lamps: NewLamps(opts.Clock)}

	var storage record.Storage = record.NewMemory(eepromSize)
	if cfg.Image != "" {
		m.image, err = OpenImage(cfg.Image)
		if err != nil {
			return nil, err
		}
		storage = m.image
	}

	store := record.NewStore(storage, record.DefaultOffset, pilldispenser.DispenseSlots, logger.Named("record"))
	rec, _ := store.Load()
	m.Keeper = record.NewKeeper(store, rec, logger.Named("record"))

	coordinator, err := wheel.New(motor, m.Keeper, wheel.Config{Compartments: pilldispenser.TotalCompartments}, logger.Named("wheel"))
	if err != nil {
		return nil, m.closeWith(err)
	}

	engine, err := calibration.New(motor, w, opts.Clock, calibration.Config{
		NominalRevolutionSteps: pilldispenser.NominalRevolutionSteps,
		Compartments:           pilldispenser.TotalCompartments,
		Stable:                 sensor.StableConfig{Samples: sensor.DefaultStable.Samples, Spacing: cfg.SampleSpacing},
	}, logger.Named("calibration"))
	if err != nil {
		return nil, m.closeWith(err)
	}

	reporter := report.Multi{report.NewLog(logger.Named("status")), opts.Reporter}
	hw := dispenser.Hardware{
		Calibrator:  engine,
		Wheel:       coordinator,
		Impact:      sensor.NewLatchDetector(latch, opts.Clock, 10*time.Millisecond),
		CalButton:   sensor.NewButton(nil, opts.Clock, 0),
		StartButton: sensor.NewButton(nil, opts.Clock, 0),
		Indicator:   m.Lamps,
	}
	if opts.Radio != nil {
		hw.Uplink = opts.Radio
		reporter = append(reporter, report.NewUplink(opts.Radio, logger.Named("uplink")))
	}

	m.Dispenser, err = dispenser.New(dispenser.Config{
		Interval:     cfg.Interval,
		DetectWindow: cfg.DetectWindow,
		PollInterval: cfg.PollInterval,
		AppKey:       cfg.AppKey,
	}, m.Keeper, hw, reporter, opts.Clock, logger.Named("dispenser"))
	if err != nil {
		return nil, m.closeWith(err)
	}

	if opts.Level != nil {
		m.Dispenser.SetLevel(*opts.Level)
	}
	if opts.Console != nil {
		out := opts.ConsoleOut
		if out == nil {
			out = io.Discard
		}
		m.Dispenser.AddIdle(commands.NewConsole(m.Dispenser, opts.Console, out).Poll)
	}

	return m, nil
}

// Run runs the firmware until ctx is done
func (m *Machine) Run(ctx context.Context) error {
	err := m.Dispenser.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close releases the EEPROM image
func (m *Machine) Close() error {
	if m.image == nil {
		return nil
	}
	return m.image.Close()
}

func (m *Machine) closeWith(err error) error {
	return multierr.Append(err, m.Close())
}
