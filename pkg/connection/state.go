package connection

import "fmt"

// State is the lifecycle position of a Manager.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateRegistering
	StateRegistered
	StateJoined
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateRegistering:
		return "registering"
	case StateRegistered:
		return "registered"
	case StateJoined:
		return "joined"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Connected reports whether a transport is established.
func (s State) Connected() bool {
	return s >= StateRegistering && s <= StateJoined
}
