package live

// State is the connection lifecycle state of a [Session].
//
// The only transitions are IDLE → CONNECTING → OPEN → CLOSED, plus a direct
// move to CLOSED from any state. CLOSED is terminal: a new connection needs
// a new Session.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed
)

// String returns the upper-case state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}
