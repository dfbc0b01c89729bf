//go:build tinygo

// Package device binds the dispenser to the RP2040 board: coil pins, sensors, buttons, LEDs, the I2C EEPROM and
// the LoRa modem UART
package device

import (
	"errors"
	"machine"

	"tinygo.org/x/drivers/at24cx"

	"github.com/calvinmclean/pilldispenser/firmware/record"
	"github.com/calvinmclean/pilldispenser/firmware/sensor"
	"github.com/calvinmclean/pilldispenser/firmware/stepper"
	"github.com/calvinmclean/pilldispenser/firmware/timing"
)

// Device owns the board peripherals
type Device struct {
	Stepper     *stepper.Stepper
	Optical     sensor.Optical
	ImpactLatch *sensor.Latch
	CalButton   *sensor.Button
	StartButton *sensor.Button
	LEDs        *LEDs
	EEPROM      record.Storage
	LoRa        *machine.UART
}

// New configures every peripheral
func New(clock timing.Clock, stepperCfg StepperConfig, sensorCfg SensorConfig, ledCfg LEDConfig, eepromCfg EEPROMConfig, loraCfg LoRaConfig) (*Device, error) {
	var coils [4]stepper.Pin
	for i, p := range stepperCfg.Pins {
		p.Configure(machine.PinConfig{Mode: machine.PinOutput})
		coils[i] = p
	}
	st, err := stepper.New(stepper.Config{
		Pins:      coils,
		StepMode:  stepperCfg.StepMode,
		StepDelay: stepperCfg.StepDelay,
		Clock:     clock,
	})
	if err != nil {
		return nil, errors.New("error creating stepper: " + err.Error())
	}

	sensorCfg.Optical.Configure(machine.PinConfig{Mode: machine.PinInput})
	optical := sensor.OpticalFunc(func() bool {
		return sensorCfg.Optical.Get() == sensorCfg.OpticalOpenHigh
	})

	latch := sensor.NewLatch()
	sensorCfg.Piezo.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	err = sensorCfg.Piezo.SetInterrupt(machine.PinFalling, func(machine.Pin) {
		latch.Trigger()
	})
	if err != nil {
		return nil, errors.New("error setting piezo interrupt: " + err.Error())
	}

	calButton := newButton(sensorCfg.CalButton, clock, sensorCfg)
	startButton := newButton(sensorCfg.StartButton, clock, sensorCfg)

	leds := newLEDs(ledCfg, clock)

	err = eepromCfg.Bus.Configure(machine.I2CConfig{
		SDA:       eepromCfg.SDA,
		SCL:       eepromCfg.SCL,
		Frequency: 400 * machine.KHz,
	})
	if err != nil {
		return nil, errors.New("error configuring I2C: " + err.Error())
	}
	eeprom := at24cx.New(eepromCfg.Bus)
	if eepromCfg.Address != 0 {
		eeprom.Address = eepromCfg.Address
	}
	eeprom.Configure(at24cx.Config{})

	err = loraCfg.UART.Configure(machine.UARTConfig{
		BaudRate: loraCfg.BaudRate,
		TX:       loraCfg.TX,
		RX:       loraCfg.RX,
	})
	if err != nil {
		return nil, errors.New("error configuring LoRa UART: " + err.Error())
	}

	return &Device{
		Stepper:     st,
		Optical:     optical,
		ImpactLatch: latch,
		CalButton:   calButton,
		StartButton: startButton,
		LEDs:        leds,
		EEPROM:      &eeprom,
		LoRa:        loraCfg.UART,
	}, nil
}

// newButton sets up an active low button with the internal pull-up
func newButton(pin machine.Pin, clock timing.Clock, cfg SensorConfig) *sensor.Button {
	pin.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	return sensor.NewButton(sensor.LevelFunc(func() bool {
		return !pin.Get()
	}), clock, cfg.ButtonDebounce)
}
