package session

// Role fixes which side of the negotiation this instance plays. It is set
// once per session attempt and only cleared by Reset.
type Role int

const (
	RoleUnset Role = iota
	RoleOfferer
	RoleAnswerer
)

func (r Role) String() string {
	switch r {
	case RoleOfferer:
		return "offerer"
	case RoleAnswerer:
		return "answerer"
	default:
		return "unset"
	}
}

// State is the signaling machine state for the current attempt.
//
// Transitions are monotonic within an attempt except for StateLost, which is
// terminal until an explicit Reset returns the machine to StateIdle.
type State int

const (
	StateIdle State = iota
	// StateDescriptionPending: the offerer has published its offer and is
	// waiting for the pasted answer.
	StateDescriptionPending
	// StateAwaitingRemoteDescription: the answerer has published its answer
	// and is waiting for the substrate to connect.
	StateAwaitingRemoteDescription
	StateNegotiating
	StateConnected
	StateLost
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDescriptionPending:
		return "description_pending"
	case StateAwaitingRemoteDescription:
		return "awaiting_remote_description"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateLost:
		return "lost"
	default:
		return "unknown"
	}
}

// Connectivity is the substrate-reported connection health, mapped from the
// underlying peer-connection state.
type Connectivity int

const (
	ConnectivityConnecting Connectivity = iota
	ConnectivityConnected
	ConnectivityDisconnected
	ConnectivityFailed
	ConnectivityClosed
)

func (c Connectivity) String() string {
	switch c {
	case ConnectivityConnecting:
		return "connecting"
	case ConnectivityConnected:
		return "connected"
	case ConnectivityDisconnected:
		return "disconnected"
	case ConnectivityFailed:
		return "failed"
	case ConnectivityClosed:
		return "closed"
	default:
		return "unknown"
	}
}
