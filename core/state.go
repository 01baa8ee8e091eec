package core

import "fmt"

// State is the client-side authentication state.
type State int

const (
	StateDisconnected State = iota
	StateConnected
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateAuthenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Event drives a state transition.
type Event int

const (
	EventConnected Event = iota
	EventVerified
	EventSignedOut
	EventInvalidated
	EventAgentDisconnected
)

func (e Event) String() string {
	switch e {
	case EventConnected:
		return "connected"
	case EventVerified:
		return "verified"
	case EventSignedOut:
		return "signed_out"
	case EventInvalidated:
		return "invalidated"
	case EventAgentDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

// Transition returns the state reached from s on e. A failed attempt is not
// an event: it leaves the state where it was.
//
//	Disconnected  --connected-->     Connected
//	Connected     --connected-->     Connected
//	Connected     --verified-->      Authenticated
//	Authenticated --signed_out-->    Connected
//	Authenticated --invalidated-->   Connected
//	any           --disconnected-->  Disconnected
func Transition(s State, e Event) (State, error) {
	switch e {
	case EventAgentDisconnected:
		return StateDisconnected, nil
	case EventConnected:
		if s == StateDisconnected || s == StateConnected {
			return StateConnected, nil
		}
	case EventVerified:
		if s == StateConnected {
			return StateAuthenticated, nil
		}
	case EventSignedOut, EventInvalidated:
		if s == StateAuthenticated {
			return StateConnected, nil
		}
	}
	return s, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, s, e)
}
