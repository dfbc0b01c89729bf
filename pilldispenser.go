package pilldispenser

const TerminationChar = 0x04 // ascii EOT (End of Transmission)

const (
	// TotalCompartments is the number of compartments on the wheel, including the calibration slot
	TotalCompartments = 8
	// DispenseSlots is the number of compartments that hold pills. The remaining one is the calibration slot
	DispenseSlots = 7
	// CalibrationSlot is the compartment whose opening lines up with the optical sensor after calibration
	CalibrationSlot = 0
	// NominalRevolutionSteps is the datasheet half-step count for one wheel revolution. It is only used
	// to bound calibration scans, never as the measured value
	NominalRevolutionSteps = 4096
)

// State is the mode of the dispensing state machine
type State int

const (
	StateUnknown State = iota
	StateWaitCalButton
	StateCalibrating
	StateReadyToStart
	StateDispensing
	StateEmpty
)

func (s State) String() string {
	switch s {
	case StateWaitCalButton:
		return "WaitCalButton"
	case StateCalibrating:
		return "Calibrating"
	case StateReadyToStart:
		return "ReadyToStart"
	case StateDispensing:
		return "Dispensing"
	case StateEmpty:
		return "Empty"
	default:
		fallthrough
	case StateUnknown:
		return "Unknown"
	}
}

// Next returns the state that follows s on the success path. Empty loops back to waiting for calibration
func (s State) Next() State {
	switch s {
	case StateEmpty, StateUnknown:
		return StateWaitCalButton
	default:
		return s + 1
	}
}

// Event names the status reports sent over the uplink
type Event string

const (
	EventBoot             Event = "boot"
	EventRecovered        Event = "recovered"
	EventCalibrated       Event = "calibrated"
	EventCalibrationError Event = "cal_fail"
	EventStarted          Event = "started"
	EventPillOK           Event = "pill_ok"
	EventPillMiss         Event = "pill_miss"
	EventEmpty            Event = "empty"
	EventStatus           Event = "status"
)
