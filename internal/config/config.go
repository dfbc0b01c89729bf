// Package config loads the host configuration from an optional file, PILLDISPENSER_ environment variables
// and defaults
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/calvinmclean/pilldispenser/controller"
	"github.com/calvinmclean/pilldispenser/internal/logging"
	"github.com/calvinmclean/pilldispenser/sim"
)

type Config struct {
	Sim    sim.Config        `mapstructure:"sim"`
	Serial controller.Config `mapstructure:"serial"`
	Log    logging.Config    `mapstructure:"log"`

	// LoRaPort connects the simulator to a real LoRaWAN modem on a USB serial adapter
	LoRaPort     string `mapstructure:"lora_port"`
	LoRaBaudRate int    `mapstructure:"lora_baud_rate"`
}

// Load reads path, when set, and applies the environment on top
func Load(path string) (Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("pill-dispenser")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(controller.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	err := v.ReadInConfig()
	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("error reading config: %w", err)
		}
	}

	var cfg Config
	err = v.Unmarshal(&cfg)
	if err != nil {
		return Config{}, fmt.Errorf("error decoding config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("sim.wheel.revolution_steps", 4096)
	v.SetDefault("sim.wheel.hole_width", 40)
	v.SetDefault("sim.wheel.start_position", 1500)
	v.SetDefault("sim.wheel.edge_noise", 3)
	v.SetDefault("sim.wheel.flip_every", 3)
	v.SetDefault("sim.wheel.compartments", 8)
	v.SetDefault("sim.chute.miss_rate", 0.0)
	v.SetDefault("sim.chute.miss_compartments", []int{})
	v.SetDefault("sim.chute.seed", 1)
	v.SetDefault("sim.step_delay", 100*time.Microsecond)
	v.SetDefault("sim.sample_spacing", 50*time.Microsecond)
	v.SetDefault("sim.interval", 5*time.Second)
	v.SetDefault("sim.detect_window", time.Second)
	v.SetDefault("sim.poll_interval", 10*time.Millisecond)
	v.SetDefault("sim.image", "")
	v.SetDefault("sim.app_key", "")

	controller.SetDefaults(v, "serial.")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file.filename", "")
	v.SetDefault("log.file.max_size", 10)
	v.SetDefault("log.file.max_age", 30)
	v.SetDefault("log.file.max_backups", 3)
	v.SetDefault("log.file.compress", false)

	v.SetDefault("lora_port", "")
	v.SetDefault("lora_baud_rate", 9600)
}

func (c Config) Validate() error {
	err := c.Sim.Validate()
	if err != nil {
		return fmt.Errorf("invalid sim config: %w", err)
	}
	if c.LoRaPort != "" && c.LoRaBaudRate <= 0 {
		return errors.New("lora_baud_rate must be positive")
	}
	return nil
}
