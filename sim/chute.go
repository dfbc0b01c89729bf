package sim

import (
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/calvinmclean/pilldispenser/firmware/sensor"
)

// ChuteConfig decides which pills make it to the piezo plate
type ChuteConfig struct {
	// MissRate is the chance that a pill gets stuck
	MissRate float64 `mapstructure:"miss_rate"`
	// MissCompartments always get stuck
	MissCompartments []int `mapstructure:"miss_compartments"`
	Seed             uint64 `mapstructure:"seed"`
}

// Chute drops the pill from the compartment over it onto the piezo sensor
type Chute struct {
	mtx    sync.Mutex
	cfg    ChuteConfig
	latch  *sensor.Latch
	rng    *rand.Rand
	drops  int
	misses int
}

func NewChute(cfg ChuteConfig, latch *sensor.Latch) *Chute {
	return &Chute{
		cfg:   cfg,
		latch: latch,
		rng:   rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x5eed)),
	}
}

// Drop is called when the wheel stops with compartment over the chute. The calibration compartment is empty
func (c *Chute) Drop(compartment int) {
	if compartment == 0 {
		return
	}

	c.mtx.Lock()
	stuck := slices.Contains(c.cfg.MissCompartments, compartment) || c.rng.Float64() < c.cfg.MissRate
	if stuck {
		c.misses++
	} else {
		c.drops++
	}
	c.mtx.Unlock()

	if !stuck {
		c.latch.Trigger()
	}
}

// Counts returns how many pills fell and how many got stuck
func (c *Chute) Counts() (drops, misses int) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.drops, c.misses
}
