// Package mock provides in-memory implementations of the [audio.Backend],
// [audio.Output], [audio.CaptureDevice] and [audio.Tap] interfaces for use in
// unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported fields
// that the test can set to control return values.
//
// Typical usage:
//
//	out := &mock.Output{}
//	capture := &mock.Capture{}
//	backend := &mock.Backend{Output: out, Capture: capture}
//	// ... run the session, then drive the microphone:
//	capture.Emit(make([]float32, 2048))
package mock

import (
	"errors"
	"sync"
	"time"

	"github.com/pwmlive/pwmlive/pkg/audio"
)

// Compile-time interface assertions.
var (
	_ audio.Backend       = (*Backend)(nil)
	_ audio.Output        = (*Output)(nil)
	_ audio.Tapper        = (*Output)(nil)
	_ audio.CaptureDevice = (*Capture)(nil)
	_ audio.Tap           = (*Tap)(nil)
	_ audio.Clock         = (*Clock)(nil)
)

// ErrClosed is returned by [Output.Play] after Close.
var ErrClosed = errors.New("mock: output closed")

// ─── Clock ────────────────────────────────────────────────────────────────────

// Clock is a manually advanced [audio.Clock].
type Clock struct {
	mu  sync.Mutex
	now time.Duration
}

// Now returns the current clock position.
func (c *Clock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to d.
func (c *Clock) Set(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = d
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += d
}

// ─── Output ───────────────────────────────────────────────────────────────────

// PlayCall records one invocation of [Output.Play].
type PlayCall struct {
	At      time.Duration
	Segment audio.Segment
}

// Output is a mock [audio.Output]. Its clock is the embedded [Clock].
type Output struct {
	Clock

	mu sync.Mutex

	// PlayErr, if non-nil, is returned by Play and the call is still recorded.
	PlayErr error

	// CloseErr is returned by Close.
	CloseErr error

	// TapResult is returned by Tap. Nil means no output tap.
	TapResult audio.Tap

	// PlayCalls records every Play invocation in order.
	PlayCalls []PlayCall

	// CloseCount records how many times Close was called.
	CloseCount int

	played chan struct{}
	closed bool
}

// Play records the call and returns PlayErr (or [ErrClosed] after Close).
func (o *Output) Play(at time.Duration, seg audio.Segment) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	o.PlayCalls = append(o.PlayCalls, PlayCall{At: at, Segment: seg})
	if o.played != nil {
		select {
		case o.played <- struct{}{}:
		default:
		}
	}
	return o.PlayErr
}

// Close marks the output closed and returns CloseErr.
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.CloseCount++
	o.closed = true
	return o.CloseErr
}

// Tap returns TapResult.
func (o *Output) Tap() audio.Tap {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.TapResult
}

// Calls returns a snapshot of the recorded Play calls.
func (o *Output) Calls() []PlayCall {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]PlayCall, len(o.PlayCalls))
	copy(out, o.PlayCalls)
	return out
}

// Closed reports whether Close has been called.
func (o *Output) Closed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

// WaitForPlays blocks until at least n Play calls were recorded or timeout
// elapses, and returns the calls seen.
func (o *Output) WaitForPlays(n int, timeout time.Duration) []PlayCall {
	deadline := time.After(timeout)
	for {
		o.mu.Lock()
		if len(o.PlayCalls) >= n {
			o.mu.Unlock()
			return o.Calls()
		}
		if o.played == nil {
			o.played = make(chan struct{}, 1)
		}
		ch := o.played
		o.mu.Unlock()

		select {
		case <-ch:
		case <-deadline:
			return o.Calls()
		}
	}
}

// ─── Capture ──────────────────────────────────────────────────────────────────

// Capture is a mock [audio.CaptureDevice]. Tests push microphone blocks with
// [Capture.Emit].
type Capture struct {
	mu sync.Mutex

	// StartErr, if non-nil, is returned by Start and the callback is not kept.
	StartErr error

	// StopErr is returned by Stop.
	StopErr error

	// StartCount and StopCount record lifecycle calls.
	StartCount int
	StopCount  int

	onBlock func([]float32)
}

// Start records the call and keeps onBlock unless StartErr is set.
func (c *Capture) Start(onBlock func([]float32)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.StartCount++
	if c.StartErr != nil {
		return c.StartErr
	}
	c.onBlock = onBlock
	return nil
}

// Stop records the call and drops the callback.
func (c *Capture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.StopCount++
	c.onBlock = nil
	return c.StopErr
}

// Emit delivers block to the registered callback, as a capture device would
// from its audio thread. It reports whether a callback was registered.
func (c *Capture) Emit(block []float32) bool {
	c.mu.Lock()
	cb := c.onBlock
	c.mu.Unlock()
	if cb == nil {
		return false
	}
	cb(block)
	return true
}

// Running reports whether the device has a live callback.
func (c *Capture) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.onBlock != nil
}

// ─── Backend ──────────────────────────────────────────────────────────────────

// Backend is a mock [audio.Backend] returning preconfigured devices.
type Backend struct {
	mu sync.Mutex

	// Output is returned by OpenOutput. A fresh Output is created when nil.
	Output *Output

	// Capture is returned by OpenCapture. A fresh Capture is created when nil.
	Capture *Capture

	// OutputErr and CaptureErr, if non-nil, are returned by the open calls.
	OutputErr  error
	CaptureErr error

	// OutputRates and CaptureRates record the requested sample rates.
	OutputRates  []int
	CaptureRates []int
}

// OpenOutput records the call and returns Output or OutputErr.
func (b *Backend) OpenOutput(sampleRate int) (audio.Output, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.OutputRates = append(b.OutputRates, sampleRate)
	if b.OutputErr != nil {
		return nil, b.OutputErr
	}
	if b.Output == nil {
		b.Output = &Output{}
	}
	return b.Output, nil
}

// OpenCapture records the call and returns Capture or CaptureErr.
func (b *Backend) OpenCapture(sampleRate int) (audio.CaptureDevice, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.CaptureRates = append(b.CaptureRates, sampleRate)
	if b.CaptureErr != nil {
		return nil, b.CaptureErr
	}
	if b.Capture == nil {
		b.Capture = &Capture{}
	}
	return b.Capture, nil
}

// ─── Tap ──────────────────────────────────────────────────────────────────────

// Tap is a fixed-content [audio.Tap].
type Tap struct {
	mu sync.Mutex

	// Samples is the time-domain window returned by TimeDomain.
	Samples []float32
}

// TimeDomain copies the tail of Samples into dst.
func (t *Tap) TimeDomain(dst []float32) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	src := t.Samples
	if len(src) > len(dst) {
		src = src[len(src)-len(dst):]
	}
	return copy(dst, src)
}
