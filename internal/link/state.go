package link

// State is the connection state of the upstream link.
type State int

const (
	StateDisabled     State = iota // no proxy address configured
	StateDisconnected              // dialing or waiting to redial
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisabled:
		return "disabled"
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}
