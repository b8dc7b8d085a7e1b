package session

import "errors"

// State is the lifecycle state of a session's displayed result.
type State string

const (
	// StateRestoring is the initial state, before the last result is restored.
	StateRestoring State = "RESTORING"
	// StateIdle means the session is waiting for a new request.
	StateIdle State = "IDLE"
	// StateLoading means a request is in flight.
	StateLoading State = "LOADING"
	// StateSuccess means a result is displayed.
	StateSuccess State = "SUCCESS"
	// StateError means the last attempt failed.
	StateError State = "ERROR"
)

// ErrInvalidTransition is returned when an action is not allowed in the
// current state.
var ErrInvalidTransition = errors.New("session: invalid state transition")

// validTransitions defines which state transitions are allowed.
var validTransitions = map[State][]State{
	StateRestoring: {StateSuccess, StateIdle},
	StateIdle:      {StateLoading, StateIdle, StateSuccess},
	StateLoading:   {StateSuccess, StateError, StateIdle},
	StateSuccess:   {StateLoading, StateIdle, StateSuccess},
	StateError:     {StateLoading, StateIdle, StateSuccess},
}

// canTransition checks if a transition from one state to another is valid.
func canTransition(from, to State) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}
