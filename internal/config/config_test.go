package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinmclean/pilldispenser/controller"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 4096, cfg.Sim.Wheel.RevolutionSteps)
	assert.Equal(t, 40, cfg.Sim.Wheel.HoleWidth)
	assert.Equal(t, 5*time.Second, cfg.Sim.Interval)
	assert.Equal(t, 100*time.Microsecond, cfg.Sim.StepDelay)
	assert.Equal(t, controller.DefaultBaudRate, cfg.Serial.BaudRate)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 9600, cfg.LoRaBaudRate)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	err := os.WriteFile(path, []byte(`
sim:
  interval: 2s
  image: eeprom.bin
  wheel:
    revolution_steps: 4100
  chute:
    miss_compartments: [2, 5]
log:
  level: debug
`), 0o644)
	require.NoError(t, err)

	t.Setenv("PILLDISPENSER_SERIAL_STATUS_LOG_ADDR", "http://localhost:8080")
	t.Setenv("PILLDISPENSER_SIM_CHUTE_MISS_RATE", "0.25")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 2*time.Second, cfg.Sim.Interval)
	assert.Equal(t, "eeprom.bin", cfg.Sim.Image)
	assert.Equal(t, 4100, cfg.Sim.Wheel.RevolutionSteps)
	assert.Equal(t, 40, cfg.Sim.Wheel.HoleWidth)
	assert.Equal(t, []int{2, 5}, cfg.Sim.Chute.MissCompartments)
	assert.InDelta(t, 0.25, cfg.Sim.Chute.MissRate, 0.0001)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "http://localhost:8080", cfg.Serial.StatusLogAddr)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Sim.Wheel.HoleWidth = 4
	assert.ErrorContains(t, cfg.Validate(), "invalid sim config")

	cfg, err = Load("")
	require.NoError(t, err)
	cfg.LoRaPort = "/dev/ttyUSB0"
	cfg.LoRaBaudRate = 0
	assert.ErrorContains(t, cfg.Validate(), "lora_baud_rate")
}
