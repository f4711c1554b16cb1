package engine

import "errors"

// ErrInvalidTransition is returned when an item is asked for a transition its
// current state does not allow.
var ErrInvalidTransition = errors.New("invalid state transition")

// State is the lifecycle state of an item.
type State int

const (
	StateOpen       State = iota // Created, no task yet
	StatePending                 // Task created and queued for the pool
	StateInProgress              // A worker is running the task
	StateCompleted               // Task finished its work
	StateCancelled               // Stopped before finishing
	StateFailed                  // Task returned an error or panicked
)

var stateNames = [...]string{
	StateOpen:       "Open",
	StatePending:    "Pending",
	StateInProgress: "In Progress",
	StateCompleted:  "Completed",
	StateCancelled:  "Cancelled",
	StateFailed:     "Failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "Unknown"
	}
	return stateNames[s]
}

// Terminal reports whether the state ends a run.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}
