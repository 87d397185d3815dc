package session

// State is the lifecycle state of the live detection session.
type State int

const (
	// Idle is the initial and terminal state: no stream is held.
	Idle State = iota
	// Starting means camera access has been requested.
	Starting
	// Active means the stream is held and the loop is ticking.
	Active
	// Stopping means the loop is being torn down and the stream released.
	Stopping
)

var stateNames = [...]string{
	Idle:     "idle",
	Starting: "starting",
	Active:   "active",
	Stopping: "stopping",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
