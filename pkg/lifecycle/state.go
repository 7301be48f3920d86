// Package lifecycle runs the gateway as a managed service: a small state
// machine with start and stop hooks whose state backs the health endpoint.
//
// A healthy service moves through
//
//	Unknown → Starting → Running → Stopping → Stopped
//
// Any non-terminal state may move to Failed. Stopped and Failed may move
// back to Starting for a restart.
//
// State is guarded by a mutex; every method on [Service] is safe for
// concurrent use.
package lifecycle

// State is a lifecycle state. The zero value is not valid; services start
// in StateUnknown.
type State string

const (
	// StateUnknown is the state of a service that has never been started.
	StateUnknown State = "unknown"

	// StateStarting is held while the OnStart hook runs.
	StateStarting State = "starting"

	// StateRunning is the only state in which Health reports healthy.
	StateRunning State = "running"

	// StateStopping is held while the OnStop hook drains the listener.
	StateStopping State = "stopping"

	StateStopped State = "stopped"
	StateFailed  State = "failed"
)

func (s State) String() string {
	return string(s)
}

// Valid reports whether s is a recognized state.
func (s State) Valid() bool {
	switch s {
	case StateUnknown, StateStarting, StateRunning, StateStopping, StateStopped, StateFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether s is Stopped or Failed.
func (s State) IsTerminal() bool {
	return s == StateStopped || s == StateFailed
}

//	Unknown  → Starting, Failed
//	Starting → Running, Stopping, Failed
//	Running  → Stopping, Failed
//	Stopping → Stopped, Failed
//	Stopped  → Starting
//	Failed   → Starting
var validTransitions = map[State][]State{
	StateUnknown:  {StateStarting, StateFailed},
	StateStarting: {StateRunning, StateStopping, StateFailed},
	StateRunning:  {StateStopping, StateFailed},
	StateStopping: {StateStopped, StateFailed},
	StateStopped:  {StateStarting},
	StateFailed:   {StateStarting},
}

// ValidTransition reports whether from may move to to. Self transitions
// are never valid.
func ValidTransition(from, to State) bool {
	if from == to {
		return false
	}
	for _, t := range validTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}
