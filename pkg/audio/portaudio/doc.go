// Package portaudio provides an [audio.Backend] backed by PortAudio: a
// callback-driven microphone capture device and a scheduled output whose
// clock advances with the samples it renders.
//
// PortAudio requires cgo and the system library, so the real implementation
// is only compiled with the "portaudio" build tag. Without it, [Backend]
// reports [ErrUnavailable] from every open call and sessions continue
// without local audio.
package portaudio

import (
	"errors"

	"github.com/pwmlive/pwmlive/pkg/audio"
)

// DefaultFramesPerBuffer is the PortAudio callback size used when
// [Backend.FramesPerBuffer] is zero.
const DefaultFramesPerBuffer = 512

// ErrUnavailable is returned when the binary was built without PortAudio.
var ErrUnavailable = errors.New("portaudio: not available; rebuild with -tags portaudio")

var _ audio.Backend = (*Backend)(nil)

// Backend opens PortAudio streams on the default input and output devices.
type Backend struct {
	// FramesPerBuffer is the callback block size. Smaller values lower
	// latency at the cost of more callbacks.
	FramesPerBuffer int
}

func (b *Backend) framesPerBuffer() int {
	if b.FramesPerBuffer > 0 {
		return b.FramesPerBuffer
	}
	return DefaultFramesPerBuffer
}
