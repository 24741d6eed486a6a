// Package live implements a client session for the Gemini Live
// BidiGenerateContent protocol.
//
// A [Session] owns one persistent connection and the local audio devices
// around it. Once OPEN it streams microphone audio as fixed-size PCM16 frames,
// schedules the audio the model sends back for gapless playback, answers the
// model's tool calls through a host callback, and reports input/output
// volume on a fixed cadence.
//
// Concurrency: the capture device delivers blocks on its own goroutine; frames
// travel to the send loop over a bounded channel and are dropped rather than
// blocking the device. A single receive loop owns inbound decoding and the
// playback scheduler. Each tool-call batch resolves on its own goroutine.
// Every write to the connection goes through one mutex that also guards the
// OPEN state, so nothing is sent before the setup message or after close.
package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pwmlive/pwmlive/internal/observe"
	"github.com/pwmlive/pwmlive/pkg/audio"
)

// Session defaults.
const (
	DefaultModel      = "models/gemini-2.5-flash-native-audio-preview-12-2025"
	DefaultVoice      = "Charon"
	DefaultSampleRate = 24000

	// DefaultFrameQueue is the number of outbound frames buffered between
	// the capture device and the send loop.
	DefaultFrameQueue = 32
)

// Config describes one session. Zero values select the defaults.
type Config struct {
	APIKey     string
	BaseURL    string
	APIVersion string

	Model              string
	Voice              string
	Instructions       string
	ResponseModalities []string
	Tools              []FunctionDeclaration

	InputSampleRate  int
	OutputSampleRate int
	FrameSize        int
	FrameQueue       int

	VolumeInterval time.Duration
	VolumeGain     float64
}

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if len(c.ResponseModalities) == 0 {
		c.ResponseModalities = []string{"AUDIO"}
	}
	if c.InputSampleRate <= 0 {
		c.InputSampleRate = DefaultSampleRate
	}
	if c.OutputSampleRate <= 0 {
		c.OutputSampleRate = DefaultSampleRate
	}
	if c.FrameSize <= 0 {
		c.FrameSize = audio.DefaultFrameSize
	}
	if c.FrameQueue <= 0 {
		c.FrameQueue = DefaultFrameQueue
	}
	return c
}

// ToolHandler executes one tool call. A nil result is answered with
// [DefaultAck]. ctx is cancelled when the session closes.
type ToolHandler func(ctx context.Context, name string, args map[string]any) (any, error)

// Callbacks are the host notifications. Every field is optional. They are
// invoked from session goroutines and must not block for long; OnToolCall is
// the exception and may take as long as the tool needs.
type Callbacks struct {
	OnToolCall   ToolHandler
	OnVolume     func(input, output float64)
	OnConnect    func()
	OnDisconnect func()
	OnError      func(error)
}

// Option configures a [Session].
type Option func(*Session)

// WithMetrics records session metrics on m instead of
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.log = l }
}

// Session is one live connection. Create with [New], start with
// [Session.Connect] and end with [Session.Disconnect]. A Session cannot be
// reused after it closes.
type Session struct {
	cfg     Config
	setup   []byte
	mime    string
	dialer  Dialer
	backend audio.Backend
	cb      Callbacks
	metrics *observe.Metrics
	log     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	state atomic.Int32

	// writeMu serialises connection writes and the transitions into and out
	// of OPEN.
	writeMu   sync.Mutex
	transport Transport

	frames chan []int16
	framer *audio.Framer
	input  *audio.Analyser
	meter  *audio.Meter

	// resMu guards the device handles against a concurrent teardown.
	resMu     sync.Mutex
	output    audio.Output
	capture   audio.CaptureDevice
	scheduler *audio.Scheduler

	closeOnce sync.Once
	done      chan struct{}
	cause     error
}

// New creates an idle session. backend may be nil, in which case the session
// runs without local audio. It fails only if the tool declarations are
// invalid.
func New(cfg Config, dialer Dialer, backend audio.Backend, cb Callbacks, opts ...Option) (*Session, error) {
	cfg = cfg.withDefaults()
	if err := ValidateDeclarations(cfg.Tools); err != nil {
		return nil, err
	}
	setup, err := encodeSetup(NewSetup(cfg))
	if err != nil {
		return nil, err
	}
	if dialer == nil {
		dialer = &WebSocketDialer{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		cfg:     cfg,
		setup:   setup,
		mime:    audio.PCMMIMEType(cfg.InputSampleRate),
		dialer:  dialer,
		backend: backend,
		cb:      cb,
		ctx:     ctx,
		cancel:  cancel,
		frames:  make(chan []int16, cfg.FrameQueue),
		input:   audio.NewAnalyser(audio.DefaultAnalyserWindow),
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	s.log = s.log.With("component", "live")
	s.framer = audio.NewFramer(cfg.FrameSize, s.enqueueFrame)
	s.meter = audio.NewMeter(cfg.VolumeInterval, cfg.VolumeGain, s.reportVolume)
	return s, nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Done is closed once the session has fully torn down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err blocks until the session has closed and returns why: nil after a
// local Disconnect or a clean remote close, the connection error otherwise.
func (s *Session) Err() error {
	<-s.done
	return s.cause
}

// Connect dials the service, sends the setup message and starts the audio
// paths. It may only be called once, on an idle session. On failure the
// session ends CLOSED and OnError and OnDisconnect have fired.
func (s *Session) Connect(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateConnecting)) {
		return fmt.Errorf("%w: connect in state %s", ErrInvalidState, s.State())
	}
	s.log.Info("connecting", "model", s.cfg.Model, "api_version", s.cfg.APIVersion)

	t, err := s.dialer.Dial(ctx, Endpoint(s.cfg.BaseURL, s.cfg.APIVersion, s.cfg.APIKey))
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrConnection, err)
		s.reportError(err)
		s.closeSession(err)
		return err
	}

	if err := s.open(t); err != nil {
		return err
	}

	s.metrics.ActiveSessions.Add(s.ctx, 1)
	for _, err := range s.startAudio() {
		s.reportError(err)
	}
	s.log.Info("session open")
	if s.cb.OnConnect != nil {
		s.cb.OnConnect()
	}

	go s.sendLoop()
	go s.receiveLoop()
	return nil
}

// open sends the setup message and moves to OPEN while holding the write
// lock, so the setup is the first message on the wire.
func (s *Session) open(t Transport) error {
	s.writeMu.Lock()
	if s.State() != StateConnecting {
		s.writeMu.Unlock()
		_ = t.Close()
		return fmt.Errorf("%w: disconnected while connecting", ErrClosed)
	}
	s.transport = t
	if err := t.Write(s.ctx, s.setup); err != nil {
		s.writeMu.Unlock()
		err = fmt.Errorf("%w: send setup: %w", ErrConnection, err)
		s.reportError(err)
		s.closeSession(err)
		return err
	}
	s.state.Store(int32(StateOpen))
	s.writeMu.Unlock()
	return nil
}

// Disconnect closes the session and releases every device. It returns once
// resources are released and does not wait for tool callbacks in flight;
// their responses are discarded. Safe to call in any state and more than
// once.
func (s *Session) Disconnect() {
	s.closeSession(nil)
}

// write sends data if the session is OPEN and returns [ErrClosed] otherwise.
func (s *Session) write(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.State() != StateOpen {
		return ErrClosed
	}
	return s.transport.Write(s.ctx, data)
}

// ── Audio ─────────────────────────────────────────────────────────────────────

// startAudio opens the output and capture devices. Failures are returned for
// reporting and the session continues without the affected path.
func (s *Session) startAudio() []error {
	if s.backend == nil {
		return nil
	}

	s.resMu.Lock()
	defer s.resMu.Unlock()
	if s.State() != StateOpen {
		return nil
	}

	var errs []error
	var outTap audio.Tap
	out, err := s.backend.OpenOutput(s.cfg.OutputSampleRate)
	if err != nil {
		errs = append(errs, fmt.Errorf("%w: %w", ErrPlayback, err))
	} else {
		s.output = out
		s.scheduler = audio.NewScheduler(out, out)
		if tapper, ok := out.(audio.Tapper); ok {
			outTap = tapper.Tap()
		}
	}

	var inTap audio.Tap
	capture, err := s.backend.OpenCapture(s.cfg.InputSampleRate)
	if err != nil {
		errs = append(errs, fmt.Errorf("%w: %w", ErrCapture, err))
	} else if err := capture.Start(s.onCapture); err != nil {
		errs = append(errs, fmt.Errorf("%w: start: %w", ErrCapture, err))
		if stopErr := capture.Stop(); stopErr != nil {
			s.log.Debug("stop failed capture device", "err", stopErr)
		}
	} else {
		s.capture = capture
		inTap = s.input
	}

	s.meter.Attach(inTap, outTap)
	go s.meter.Run(s.ctx)
	return errs
}

// onCapture runs on the capture device's goroutine.
func (s *Session) onCapture(block []float32) {
	s.input.Write(block)
	s.framer.Ingest(block)
}

// enqueueFrame hands a frame to the send loop without blocking.
func (s *Session) enqueueFrame(frame []int16) {
	if s.State() != StateOpen {
		s.metrics.RecordFrameDropped(s.ctx, observe.DropNotOpen)
		return
	}
	select {
	case s.frames <- frame:
	default:
		s.metrics.RecordFrameDropped(s.ctx, observe.DropBackpressure)
	}
}

func (s *Session) sendLoop() {
	var reported bool
	for {
		select {
		case <-s.ctx.Done():
			return
		case frame := <-s.frames:
			payload, err := encodeAudioFrame(frame, s.mime)
			if err != nil {
				s.log.Error("encode audio frame", "err", err)
				continue
			}
			err = s.write(payload)
			switch {
			case err == nil:
				s.metrics.FramesSent.Add(s.ctx, 1)
			case errors.Is(err, ErrClosed):
				s.metrics.RecordFrameDropped(s.ctx, observe.DropNotOpen)
			case s.ctx.Err() != nil:
				return
			case !reported:
				// The receive loop notices the broken connection and tears
				// down; report the first failure only.
				reported = true
				s.reportError(fmt.Errorf("%w: send audio: %w", ErrConnection, err))
			}
		}
	}
}

func (s *Session) reportVolume(r audio.Reading) {
	s.metrics.RecordVolume(s.ctx, r.Input, r.Output)
	if s.cb.OnVolume != nil {
		s.cb.OnVolume(r.Input, r.Output)
	}
}

// playAudio decodes and schedules each audio part in order. A bad part is
// skipped without affecting the others.
func (s *Session) playAudio(parts []AudioPart) {
	if s.scheduler == nil {
		return
	}
	for i, p := range parts {
		rate, ok := audio.ParsePCMMIMEType(p.MIMEType, s.cfg.OutputSampleRate)
		if !ok {
			rate = s.cfg.OutputSampleRate
		}
		seg, err := audio.DecodeSegment(p.Data, rate)
		if err != nil {
			s.metrics.RecordDecodeError(s.ctx, "audio")
			s.log.Warn("skipping audio part", "index", i, "err", fmt.Errorf("%w: %w", ErrDecode, err))
			continue
		}
		if len(seg.Samples) == 0 {
			continue
		}
		if seg.SampleRate != s.cfg.OutputSampleRate {
			seg = audio.Segment{
				Samples:    audio.Resample(seg.Samples, seg.SampleRate, s.cfg.OutputSampleRate),
				SampleRate: s.cfg.OutputSampleRate,
			}
		}

		now := s.output.Now()
		start, err := s.scheduler.Schedule(seg)
		if err != nil {
			s.log.Warn("dropping audio segment", "err", err)
			continue
		}
		s.metrics.SegmentsScheduled.Add(s.ctx, 1)
		s.metrics.PlaybackLead.Record(s.ctx, (start - now).Seconds())
	}
}

// ── Inbound ───────────────────────────────────────────────────────────────────

func (s *Session) receiveLoop() {
	for {
		data, err := s.transport.Read(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			if errors.Is(err, ErrRemoteClosed) {
				s.log.Info("connection closed by remote", "err", err)
				s.closeSession(nil)
				return
			}
			err = fmt.Errorf("%w: read: %w", ErrConnection, err)
			s.reportError(err)
			s.closeSession(err)
			return
		}
		s.handleMessage(data)
	}
}

func (s *Session) handleMessage(data []byte) {
	msg, err := DecodeInbound(data)
	if err != nil {
		s.metrics.RecordDecodeError(s.ctx, "json")
		s.log.Warn("skipping malformed message", "err", err, "bytes", len(data))
		return
	}

	switch m := msg.(type) {
	case SetupComplete:
		s.log.Debug("setup complete")
	case ServerContent:
		if m.Interrupted {
			// Already scheduled audio keeps playing; the cursor never
			// moves backward.
			s.log.Debug("model turn interrupted")
		}
		s.playAudio(m.Audio)
		if m.TurnComplete {
			s.log.Debug("model turn complete")
		}
	case ToolCall:
		s.dispatchToolCall(m.Calls)
	case ToolCallCancellation:
		s.log.Info("tool calls cancelled by server", "ids", m.IDs)
	case GoAway:
		s.log.Warn("server is going away", "time_left", m.TimeLeft)
	case ServerError:
		s.reportError(fmt.Errorf("%w: %w", ErrProtocol, m))
	case Unrecognized:
		s.log.Debug("ignoring unrecognized message", "bytes", len(m.Raw))
	}
}

// ── Teardown ──────────────────────────────────────────────────────────────────

func (s *Session) reportError(err error) {
	s.metrics.RecordSessionError(s.ctx, errorKind(err))
	s.log.Warn("session error", "err", err)
	if s.cb.OnError != nil {
		s.cb.OnError(err)
	}
}

// closeSession moves to CLOSED and releases everything exactly once: cancel
// the session context (stopping the meter and loops), stop capture, detach
// the taps, close the output, close the transport, then notify the host.
func (s *Session) closeSession(cause error) {
	closed := false
	s.closeOnce.Do(func() {
		closed = true
		s.cause = cause
		s.cancel()

		s.writeMu.Lock()
		prev := State(s.state.Swap(int32(StateClosed)))
		t := s.transport
		s.writeMu.Unlock()

		s.resMu.Lock()
		if s.capture != nil {
			if err := s.capture.Stop(); err != nil {
				s.log.Debug("stop capture", "err", err)
			}
		}
		s.meter.Detach()
		s.input.Reset()
		if s.output != nil {
			if err := s.output.Close(); err != nil {
				s.log.Debug("close output", "err", err)
			}
		}
		s.resMu.Unlock()

		if t != nil {
			if err := t.Close(); err != nil {
				s.log.Debug("close transport", "err", err)
			}
		}
		if prev == StateOpen {
			s.metrics.ActiveSessions.Add(context.Background(), -1)
		}

		s.log.Info("session closed", "from", prev.String())
		close(s.done)
	})
	if closed && s.cb.OnDisconnect != nil {
		s.cb.OnDisconnect()
	}
}
