//go:build tinygo

package main

import (
	"context"
	"machine"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/calvinmclean/pilldispenser"
	"github.com/calvinmclean/pilldispenser/firmware/calibration"
	"github.com/calvinmclean/pilldispenser/firmware/commands"
	"github.com/calvinmclean/pilldispenser/firmware/device"
	"github.com/calvinmclean/pilldispenser/firmware/dispenser"
	"github.com/calvinmclean/pilldispenser/firmware/lora"
	"github.com/calvinmclean/pilldispenser/firmware/record"
	"github.com/calvinmclean/pilldispenser/firmware/report"
	"github.com/calvinmclean/pilldispenser/firmware/sensor"
	"github.com/calvinmclean/pilldispenser/firmware/stepper"
	"github.com/calvinmclean/pilldispenser/firmware/timing"
	"github.com/calvinmclean/pilldispenser/firmware/wheel"
)

// appKey is the LoRaWAN application key used for the OTAA join
const appKey = "2B7E151628AED2A6ABF7158809CF4F3C"

func main() {
	// give a serial terminal time to attach before the boot logs
	time.Sleep(2 * time.Second)

	clock := timing.Default()
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	logger := newLogger(level)

	stepperCfg := device.StepperConfig{
		Pins:      [4]machine.Pin{machine.GP2, machine.GP3, machine.GP6, machine.GP13},
		StepMode:  stepper.StepModeHalf,
		StepDelay: 2000 * time.Microsecond,
	}
	sensorCfg := device.SensorConfig{
		Optical:         machine.GP28,
		OpticalOpenHigh: true,
		Piezo:           machine.GP27,
		CalButton:       machine.GP9,
		StartButton:     machine.GP8,
		ButtonDebounce:  5 * time.Millisecond,
	}
	ledCfg := device.LEDConfig{
		Pins: [3]machine.Pin{machine.GP20, machine.GP21, machine.GP22},
	}
	eepromCfg := device.EEPROMConfig{
		Bus:     machine.I2C0,
		SDA:     machine.GP16,
		SCL:     machine.GP17,
		Address: 0x50,
	}
	loraCfg := device.LoRaConfig{
		UART:     machine.UART1,
		TX:       machine.GP4,
		RX:       machine.GP5,
		BaudRate: 9600,
	}

	d, err := device.New(clock, stepperCfg, sensorCfg, ledCfg, eepromCfg, loraCfg)
	if err != nil {
		halt(logger, "error setting up device", err)
	}

	store := record.NewStore(d.EEPROM, record.DefaultOffset, pilldispenser.DispenseSlots, logger)
	rec, _ := store.Load()
	keeper := record.NewKeeper(store, rec, logger)

	coordinator, err := wheel.New(d.Stepper, keeper, wheel.Config{Compartments: pilldispenser.TotalCompartments}, logger)
	if err != nil {
		halt(logger, "error creating wheel coordinator", err)
	}

	calibrationCfg := calibration.Config{
		NominalRevolutionSteps: pilldispenser.NominalRevolutionSteps,
		Compartments:           pilldispenser.TotalCompartments,
		Stable:                 sensor.DefaultStable,
	}
	engine, err := calibration.New(d.Stepper, d.Optical, clock, calibrationCfg, logger)
	if err != nil {
		halt(logger, "error creating calibration engine", err)
	}

	modem := lora.New(d.LoRa, clock, lora.Config{}, logger)
	reporter := report.Multi{report.NewWriter(machine.Serial), report.NewUplink(modem, logger)}

	dispenserCfg := dispenser.Config{
		Interval:     dispenser.DefaultInterval,
		DetectWindow: dispenser.DefaultDetectWindow,
		AppKey:       appKey,
	}
	disp, err := dispenser.New(dispenserCfg, keeper, dispenser.Hardware{
		Calibrator:  engine,
		Wheel:       coordinator,
		Impact:      sensor.NewLatchDetector(d.ImpactLatch, clock, 10*time.Millisecond),
		CalButton:   d.CalButton,
		StartButton: d.StartButton,
		Indicator:   d.LEDs,
		Uplink:      modem,
	}, reporter, clock, logger)
	if err != nil {
		halt(logger, "error creating dispenser", err)
	}
	disp.SetLevel(level)

	console := commands.NewConsole(disp, machine.Serial, machine.Serial)
	disp.AddIdle(console.Poll)

	_ = disp.Run(context.Background())
}

// newLogger writes human readable logs to the USB serial console
func newLogger(level zap.AtomicLevel) *zap.Logger {
	encoderCfg := zap.NewDevelopmentEncoderConfig()
	encoderCfg.TimeKey = ""
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), zapcore.AddSync(machine.Serial), level)
	return zap.New(core)
}

// halt keeps reporting a setup error since there is nothing else the board can do
func halt(logger *zap.Logger, msg string, err error) {
	for {
		logger.Error(msg, zap.Error(err))
		time.Sleep(5 * time.Second)
	}
}
