package channel

import "encoding/json"

// ConnectionState represents the lifecycle state of the event channel.
type ConnectionState int

const (
	// StateDisconnected means no connection exists and none is being made.
	StateDisconnected ConnectionState = iota

	// StateConnecting means the transport is being opened.
	StateConnecting

	// StateConnected means the channel is live: heartbeats run and inbound
	// frames are dispatched.
	StateConnected

	// StateReconnecting means the transport was lost and a redial is pending.
	StateReconnecting

	// StateClosed means the channel was closed explicitly or gave up after
	// exhausting its reconnect budget. Only a new Connect call leaves it.
	StateClosed
)

// String returns the string representation of a ConnectionState.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// MarshalJSON renders the state by name rather than ordinal.
func (s ConnectionState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// StateEvent records one state transition.
type StateEvent struct {
	From ConnectionState
	To   ConnectionState
	Err  error // cause, set when the transition was failure-driven
}

// StateHandler observes transitions. Handlers run synchronously inside the
// transition and must not call back into the channel.
type StateHandler func(StateEvent)
