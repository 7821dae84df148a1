package acquisition

// State is a node of the acquisition state machine.
type State int

const (
	Idle State = iota
	Acquiring
	Converting
	Emitting
	Sleeping
	Recovering
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Acquiring:
		return "acquiring"
	case Converting:
		return "converting"
	case Emitting:
		return "emitting"
	case Sleeping:
		return "sleeping"
	case Recovering:
		return "recovering"
	default:
		return "unknown"
	}
}
