package dispenser

// Indicator shows the dispenser's state to a person standing next to it
type Indicator interface {
	// Waiting is called on every poll while waiting for calibration, so implementations blink by elapsed time
	Waiting()
	Ready()
	// Progress shows how many of total cycles are done after a confirmed pill
	Progress(done, total int)
	// Error signals a failed calibration or a missed pill. It may block for the length of its pattern
	Error()
	Off()
}

// NopIndicator is used when there is nothing to light up
type NopIndicator struct{}

func (NopIndicator) Waiting()          {}
func (NopIndicator) Ready()            {}
func (NopIndicator) Progress(int, int) {}
func (NopIndicator) Error()            {}
func (NopIndicator) Off()              {}
