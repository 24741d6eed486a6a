package live

import "errors"

// Error classes surfaced through [Callbacks.OnError] and returned by
// [Session] methods. Concrete errors wrap one of these together with the
// underlying cause, so both match with [errors.Is].
var (
	// ErrConnection is a transport-level failure: dial, write, or a read
	// error other than a clean close.
	ErrConnection = errors.New("live: connection error")

	// ErrDecode marks a malformed inbound payload or audio part. The payload
	// is skipped and the session continues.
	ErrDecode = errors.New("live: decode error")

	// ErrCapture reports that the microphone could not be opened or
	// started. The session continues without outbound audio.
	ErrCapture = errors.New("live: capture unavailable")

	// ErrPlayback reports that the output device could not be opened. The
	// session continues and inbound audio is discarded.
	ErrPlayback = errors.New("live: playback unavailable")

	// ErrProtocol marks a message the remote side should not have sent,
	// including server-reported errors.
	ErrProtocol = errors.New("live: protocol violation")

	// ErrClosed is returned for writes attempted once the session has left
	// the OPEN state.
	ErrClosed = errors.New("live: session closed")

	// ErrInvalidState is returned by Connect on a session that is not idle.
	ErrInvalidState = errors.New("live: invalid state")
)

// errorKind maps err onto a short label for metrics.
func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrConnection):
		return "connection"
	case errors.Is(err, ErrDecode):
		return "decode"
	case errors.Is(err, ErrCapture):
		return "capture"
	case errors.Is(err, ErrPlayback):
		return "playback"
	case errors.Is(err, ErrProtocol):
		return "protocol"
	default:
		return "other"
	}
}
