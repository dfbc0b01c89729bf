package ui

import (
	"github.com/calvinmclean/pilldispenser"
	"github.com/calvinmclean/pilldispenser/sim"
)

// lampsForEvent approximates the lamps of a remote dispenser, which only sends its events
func lampsForEvent(event pilldispenser.Event) sim.LampState {
	switch event {
	case pilldispenser.EventBoot, pilldispenser.EventEmpty:
		return sim.LampState{Waiting: true}
	case pilldispenser.EventCalibrationError, pilldispenser.EventPillMiss:
		return sim.LampState{Error: true}
	default:
		return sim.LampState{Ready: true}
	}
}
