//go:build !portaudio

package portaudio

import "github.com/pwmlive/pwmlive/pkg/audio"

// OpenOutput always fails without the portaudio build tag.
func (b *Backend) OpenOutput(int) (audio.Output, error) {
	return nil, ErrUnavailable
}

// OpenCapture always fails without the portaudio build tag.
func (b *Backend) OpenCapture(int) (audio.CaptureDevice, error) {
	return nil, ErrUnavailable
}
