//go:build tinygo

package device

import (
	"machine"
	"time"

	"github.com/calvinmclean/pilldispenser/firmware/stepper"
)

// StepperConfig ...
type StepperConfig struct {
	Pins      [4]machine.Pin
	StepMode  stepper.StepMode
	StepDelay time.Duration
}

// SensorConfig has the inputs read by the dispenser
type SensorConfig struct {
	Optical machine.Pin
	// OpticalOpenHigh is true when the sensor output goes high while an opening is in front of it
	OpticalOpenHigh bool

	// Piezo is watched with a falling edge interrupt
	Piezo machine.Pin

	CalButton   machine.Pin
	StartButton machine.Pin
	// ButtonDebounce is the gap between the two reads that confirm a press
	ButtonDebounce time.Duration
}

// LEDConfig has the three indicator LEDs: waiting, ready and error
type LEDConfig struct {
	Pins [3]machine.Pin
}

// EEPROMConfig has the I2C bus for the record storage
type EEPROMConfig struct {
	Bus     *machine.I2C
	SDA     machine.Pin
	SCL     machine.Pin
	Address uint16
}

// LoRaConfig has the UART wired to the LoRaWAN modem
type LoRaConfig struct {
	UART     *machine.UART
	TX       machine.Pin
	RX       machine.Pin
	BaudRate uint32
}
