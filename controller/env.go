package controller

import "github.com/spf13/viper"

// EnvPrefix is shared by every PILLDISPENSER_ variable
const EnvPrefix = "PILLDISPENSER"

// SetDefaults registers the Config keys under prefix, e.g. "serial." when nested in a larger config
func SetDefaults(v *viper.Viper, prefix string) {
	v.SetDefault(prefix+"serial_port", "")
	v.SetDefault(prefix+"baud_rate", DefaultBaudRate)
	v.SetDefault(prefix+"status_log_addr", "")
}
