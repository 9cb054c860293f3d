package listener

// State is the listener's position in its lifecycle.
type State int

const (
	StateStarting State = iota
	StatePolling
	StateRecovering
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StatePolling:
		return "polling"
	case StateRecovering:
		return "recovering"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
