//go:build portaudio

package portaudio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/pwmlive/pwmlive/pkg/audio"
)

var errClosed = errors.New("portaudio: output closed")

// OpenOutput opens a mono output stream at sampleRate and starts rendering
// silence until segments are scheduled.
func (b *Backend) OpenOutput(sampleRate int) (audio.Output, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w", err)
	}

	o := &Output{
		rate: sampleRate,
		tap:  audio.NewAnalyser(audio.DefaultAnalyserWindow),
	}
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(sampleRate), b.framesPerBuffer(), o.render)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("portaudio: open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("portaudio: start output stream: %w", err)
	}
	o.stream = stream

	slog.Info("audio output started", "sampleRate", sampleRate, "framesPerBuffer", b.framesPerBuffer())
	return o, nil
}

// OpenCapture opens a mono input stream at sampleRate. Samples flow once
// Start is called.
func (b *Backend) OpenCapture(sampleRate int) (audio.CaptureDevice, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w", err)
	}

	c := &Capture{}
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), b.framesPerBuffer(), c.process)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("portaudio: open input stream: %w", err)
	}
	c.stream = stream
	return c, nil
}

// ── Output ────────────────────────────────────────────────────────────────────

type queued struct {
	start   int64
	samples []float32
}

// Output renders scheduled segments. Its clock is the number of samples
// rendered so far, so scheduling is exact to the sample.
type Output struct {
	rate   int
	stream *portaudio.Stream
	tap    *audio.Analyser

	rendered atomic.Int64

	mu     sync.Mutex
	queue  []queued
	closed bool
}

// Now returns the playback position of the output.
func (o *Output) Now() time.Duration {
	return time.Duration(float64(o.rendered.Load()) / float64(o.rate) * float64(time.Second))
}

// Play queues seg to start at the given clock position. A start already in
// the past is moved to the current render position.
func (o *Output) Play(at time.Duration, seg audio.Segment) error {
	samples := audio.Resample(seg.Samples, seg.SampleRate, o.rate)
	start := int64(at.Seconds()*float64(o.rate) + 0.5)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return errClosed
	}
	start = max(start, o.rendered.Load())
	o.queue = append(o.queue, queued{start: start, samples: samples})
	return nil
}

// Tap exposes the rendered signal for metering.
func (o *Output) Tap() audio.Tap { return o.tap }

// Close stops the stream and releases the device. Idempotent.
func (o *Output) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	o.queue = nil
	o.mu.Unlock()

	err := errors.Join(o.stream.Stop(), o.stream.Close())
	return errors.Join(err, portaudio.Terminate())
}

// render is the PortAudio output callback.
func (o *Output) render(out []float32) {
	clear(out)
	pos := o.rendered.Load()
	end := pos + int64(len(out))

	o.mu.Lock()
	keep := o.queue[:0]
	for _, q := range o.queue {
		qEnd := q.start + int64(len(q.samples))
		from, to := max(q.start, pos), min(qEnd, end)
		for i := from; i < to; i++ {
			out[i-pos] += q.samples[i-q.start]
		}
		if qEnd > end {
			keep = append(keep, q)
		}
	}
	o.queue = keep
	o.mu.Unlock()

	o.tap.Write(out)
	o.rendered.Add(int64(len(out)))
}

// ── Capture ───────────────────────────────────────────────────────────────────

// Capture delivers microphone blocks from the PortAudio input callback.
type Capture struct {
	stream  *portaudio.Stream
	onBlock atomic.Pointer[func([]float32)]

	stopOnce sync.Once
	stopErr  error
}

// Start begins streaming to onBlock.
func (c *Capture) Start(onBlock func([]float32)) error {
	c.onBlock.Store(&onBlock)
	if err := c.stream.Start(); err != nil {
		c.onBlock.Store(nil)
		return fmt.Errorf("portaudio: start input stream: %w", err)
	}
	slog.Info("microphone started")
	return nil
}

// Stop halts capture and releases the device. Idempotent.
func (c *Capture) Stop() error {
	c.stopOnce.Do(func() {
		c.onBlock.Store(nil)
		err := errors.Join(c.stream.Stop(), c.stream.Close())
		c.stopErr = errors.Join(err, portaudio.Terminate())
	})
	return c.stopErr
}

func (c *Capture) process(in []float32) {
	if cb := c.onBlock.Load(); cb != nil {
		(*cb)(in)
	}
}
