package sensor

import (
	"time"

	"github.com/calvinmclean/pilldispenser/firmware/timing"
)

// Optical reports whether a compartment opening is lined up with the slot sensor. Implementations handle
// polarity; the raw value is noisy while the edge of an opening passes the sensor
type Optical interface {
	Open() bool
}

// OpticalFunc adapts a plain function, e.g. a pin read, to Optical
type OpticalFunc func() bool

func (f OpticalFunc) Open() bool { return f() }

// StableConfig controls majority-vote reads
type StableConfig struct {
	Samples int
	Spacing time.Duration
}

// DefaultStable takes 8 samples 1ms apart
var DefaultStable = StableConfig{Samples: 8, Spacing: time.Millisecond}

// StableRead samples the sensor cfg.Samples times and returns the majority value. stable is false on a tie,
// which happens while the sensor sits right on an edge
func StableRead(o Optical, c timing.Clock, cfg StableConfig) (open bool, stable bool) {
	samples := cfg.Samples
	if samples <= 0 {
		samples = 1
	}

	opens := 0
	for i := range samples {
		if o.Open() {
			opens++
		}
		if i < samples-1 && cfg.Spacing > 0 {
			c.Sleep(cfg.Spacing)
		}
	}

	closed := samples - opens
	switch {
	case opens > closed:
		return true, true
	case closed > opens:
		return false, true
	default:
		return false, false
	}
}
