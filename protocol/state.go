package protocol

// State is the protocol phase a connection is in. Each state defines its own
// mapping from packet ids to packets.
type State int

const (
	// StateHandshake is the initial state of every connection.
	StateHandshake State = iota
	// StateStatus answers server list queries with a status document and a pong.
	StateStatus
	// StateLogin is reserved. A handshake can request it but no packets are
	// defined for it.
	StateLogin
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateHandshake:
		return "Handshake"
	case StateStatus:
		return "Status"
	case StateLogin:
		return "Login"
	default:
		return "Unknown"
	}
}

// nextState maps the next_state field of a handshake to a State.
func nextState(value uint64) (State, error) {
	switch value {
	case 1:
		return StateStatus, nil
	case 2:
		return StateLogin, nil
	default:
		return StateHandshake, &UnknownNextStateError{Value: value}
	}
}

// nextStateValue is the inverse of nextState, used when encoding a handshake.
func nextStateValue(s State) uint64 {
	if s == StateLogin {
		return 2
	}

	return 1
}
