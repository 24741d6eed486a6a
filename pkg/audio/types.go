package audio

import "time"

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// Segment is a block of decoded mono PCM samples ready for playback.
// Segments are the unit handed to the [Scheduler]; they carry no timestamp
// of their own because the remote side streams audio without one.
type Segment struct {
	// Samples holds normalised float samples in [-1, 1].
	Samples []float32

	// SampleRate in Hz (e.g., 24000 for Gemini Live output).
	SampleRate int
}

// Duration returns the playback length of the segment. A segment with a
// non-positive sample rate has zero duration.
func (s Segment) Duration() time.Duration {
	return SamplesToDuration(len(s.Samples), s.SampleRate)
}

// SamplesToDuration converts a sample count at rate Hz into a duration.
// The result is truncated to whole nanoseconds.
func SamplesToDuration(n, rate int) time.Duration {
	if rate <= 0 || n <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(rate))
}

// Reading is one volume sample for UI feedback. Both levels are in [0, 1].
type Reading struct {
	Input  float64
	Output float64
}
