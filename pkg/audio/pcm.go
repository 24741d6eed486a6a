package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrOddLength is returned when 16-bit PCM data has an odd byte count.
var ErrOddLength = errors.New("audio: odd byte count in 16-bit PCM data")

// FloatToInt16 converts a normalised float sample to a signed 16-bit sample.
// The input is clamped to [-1, 1]; negative values scale by 32768 and
// positive values by 32767 so both ends of the int16 range are reachable.
// The conversion truncates toward zero.
func FloatToInt16(s float32) int16 {
	switch {
	case math.IsNaN(float64(s)):
		return 0
	case s > 1:
		s = 1
	case s < -1:
		s = -1
	}
	if s < 0 {
		return int16(s * 32768)
	}
	return int16(s * 32767)
}

// Int16ToFloat converts a signed 16-bit sample to a float in [-1, 1).
func Int16ToFloat(s int16) float32 {
	return float32(s) / 32768
}

// FloatsToInt16 converts a block of float samples into a newly allocated
// int16 slice.
func FloatsToInt16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		out[i] = FloatToInt16(s)
	}
	return out
}

// Int16ToFloats converts a block of int16 samples into a newly allocated
// float slice.
func Int16ToFloats(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = Int16ToFloat(s)
	}
	return out
}

// EncodePCM16 serialises samples as little-endian 16-bit PCM.
func EncodePCM16(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// DecodePCM16 parses little-endian 16-bit PCM. It returns [ErrOddLength]
// when b cannot hold a whole number of samples.
func DecodePCM16(b []byte) ([]int16, error) {
	if len(b)%2 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrOddLength, len(b))
	}
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return out, nil
}

// EncodeBase64 returns the standard padded base64 encoding of b, the
// text-safe form used inside JSON envelopes.
func EncodeBase64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// DecodeBase64 reverses [EncodeBase64].
func DecodeBase64(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("audio: decode base64: %w", err)
	}
	return b, nil
}

// EncodeFrame converts an int16 frame to its base64 wire form.
func EncodeFrame(frame []int16) string {
	return EncodeBase64(EncodePCM16(frame))
}

// DecodeSegment parses a base64 PCM16 payload into a playable [Segment].
func DecodeSegment(data string, sampleRate int) (Segment, error) {
	raw, err := DecodeBase64(data)
	if err != nil {
		return Segment{}, err
	}
	pcm, err := DecodePCM16(raw)
	if err != nil {
		return Segment{}, err
	}
	return Segment{Samples: Int16ToFloats(pcm), SampleRate: sampleRate}, nil
}
