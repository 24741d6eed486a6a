package audio

import (
	"context"
	"math"
	"sync"
	"time"
)

// Default volume metering parameters.
const (
	DefaultMeterInterval = 50 * time.Millisecond
	DefaultMeterGain     = 2.0
)

// Meter periodically samples an input and an output [Tap] and reports their
// RMS level, scaled by a fixed gain and clamped to [0, 1].
//
// The meter pulls from the taps on its own ticker and never touches the push
// path of the audio pipeline, so a stalled pipeline only shows up as a flat
// reading. A missing tap reads as 0.
type Meter struct {
	interval  time.Duration
	gain      float64
	onReading func(Reading)

	mu     sync.Mutex
	input  Tap
	output Tap
	buf    []float32
}

// NewMeter creates a Meter. Non-positive interval or gain select the
// defaults. onReading may be nil, in which case [Meter.Run] only keeps the
// taps warm for [Meter.Read].
func NewMeter(interval time.Duration, gain float64, onReading func(Reading)) *Meter {
	if interval <= 0 {
		interval = DefaultMeterInterval
	}
	if gain <= 0 {
		gain = DefaultMeterGain
	}
	return &Meter{
		interval:  interval,
		gain:      gain,
		onReading: onReading,
		buf:       make([]float32, DefaultAnalyserWindow),
	}
}

// Attach sets the taps to sample. Either may be nil.
func (m *Meter) Attach(input, output Tap) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.input = input
	m.output = output
}

// Detach drops both taps; subsequent readings are zero.
func (m *Meter) Detach() {
	m.Attach(nil, nil)
}

// Read computes one reading from the currently attached taps.
func (m *Meter) Read() Reading {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Reading{
		Input:  m.level(m.input),
		Output: m.level(m.output),
	}
}

// Run reports a reading every interval until ctx is cancelled.
func (m *Meter) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r := m.Read()
			if m.onReading != nil {
				m.onReading(r)
			}
		}
	}
}

// level must be called with m.mu held.
func (m *Meter) level(tap Tap) float64 {
	if tap == nil {
		return 0
	}
	n := tap.TimeDomain(m.buf)
	return math.Min(1, RMS(m.buf[:n])*m.gain)
}

// RMS returns the root-mean-square amplitude of samples, or 0 for an empty
// slice.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		x := float64(s)
		sum += x * x
	}
	return math.Sqrt(sum / float64(len(samples)))
}
