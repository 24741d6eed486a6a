// Package audio holds the audio primitives of the pwmlive session engine:
// PCM transcoding, capture framing, gapless playback scheduling and volume
// metering, together with the narrow device ports they run against.
//
// The ports are:
//
//   - [CaptureDevice]: delivers microphone sample blocks on its own callback
//     goroutine.
//   - [Clock]: the local audio clock that playback is scheduled against.
//   - [Sink]: accepts segments to be played at an absolute clock time.
//   - [Backend]: opens a fresh capture device and output per session.
//
// Concrete devices live in sub-packages (audio/portaudio) and test doubles in
// audio/mock. This package lives under pkg/ because hosts are expected to
// supply their own device adapters.
package audio

import "time"

// Clock reports the current position of the local audio clock. The value is
// monotonic for the lifetime of the output that owns it.
type Clock interface {
	Now() time.Duration
}

// Sink plays segments at absolute positions on its [Clock].
//
// Play must not block for the duration of the audio: it queues the segment
// and returns. Segments handed to Play never overlap when produced by a
// [Scheduler].
type Sink interface {
	Play(at time.Duration, seg Segment) error
}

// Output is an opened playback graph: the clock, the sink and the hardware
// handle that backs them. Close releases the hardware; Play after Close
// returns an error.
type Output interface {
	Clock
	Sink
	Close() error
}

// Tapper is implemented by outputs that can expose the signal they are
// currently rendering for metering.
type Tapper interface {
	Tap() Tap
}

// CaptureDevice streams microphone samples. Start registers onBlock, which is
// invoked on the device's callback goroutine with mono float samples in
// [-1, 1]. The block is only valid for the duration of the call; callees
// must copy what they keep. onBlock must never block.
type CaptureDevice interface {
	Start(onBlock func(block []float32)) error
	Stop() error
}

// Backend opens per-session audio resources. Each call returns resources
// exclusively owned by the caller.
type Backend interface {
	// OpenOutput opens the playback graph at the given sample rate.
	OpenOutput(sampleRate int) (Output, error)

	// OpenCapture opens the default microphone at the given sample rate.
	OpenCapture(sampleRate int) (CaptureDevice, error)
}
