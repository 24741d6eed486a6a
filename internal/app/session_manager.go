package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pwmlive/pwmlive/internal/board"
	"github.com/pwmlive/pwmlive/internal/config"
	"github.com/pwmlive/pwmlive/internal/live"
	"github.com/pwmlive/pwmlive/internal/observe"
	"github.com/pwmlive/pwmlive/pkg/audio"
)

// ErrSessionActive is returned by [SessionManager.Start] while a session is
// still connecting or open.
var ErrSessionActive = errors.New("app: a session is already active")

// ErrNoSession is reported by [SessionManager.Ready] before the first start.
var ErrNoSession = errors.New("app: no session")

// SessionInfo holds metadata about the current session.
type SessionInfo struct {
	// SessionID is a local identifier used in logs.
	SessionID string

	// Model is the remote model the session was set up with.
	Model string

	// StartedAt is when Start was called.
	StartedAt time.Time

	// State is the lifecycle state at the time of the call.
	State live.State

	// InputLevel and OutputLevel are the latest volume readings in [0, 1].
	InputLevel  float64
	OutputLevel float64
}

// SessionManager owns at most one live session at a time. A closed session
// is never restarted automatically; call Start again for a new one.
// All exported methods are safe for concurrent use.
type SessionManager struct {
	mu      sync.Mutex
	sess    *live.Session
	info    SessionInfo
	counter int

	cfg     *config.Config
	dialer  live.Dialer
	backend audio.Backend
	board   *board.Board
	metrics *observe.Metrics
	log     *slog.Logger
}

// SessionManagerConfig holds all dependencies for a [SessionManager].
type SessionManagerConfig struct {
	Config *config.Config

	// Dialer opens the connection. Nil selects a WebSocket dialer using the
	// configured keepalive interval.
	Dialer live.Dialer

	// Backend provides the audio devices. Nil runs without local audio.
	Backend audio.Backend

	// Board executes tool calls. Nil answers every call with an empty result.
	Board *board.Board

	Metrics *observe.Metrics
}

// NewSessionManager creates a SessionManager with the given dependencies.
func NewSessionManager(cfg SessionManagerConfig) *SessionManager {
	sm := &SessionManager{
		cfg:     cfg.Config,
		dialer:  cfg.Dialer,
		backend: cfg.Backend,
		board:   cfg.Board,
		metrics: cfg.Metrics,
		log:     slog.Default().With("component", "session_manager"),
	}
	if sm.dialer == nil {
		sm.dialer = &live.WebSocketDialer{KeepaliveInterval: cfg.Config.Live.KeepaliveInterval}
	}
	if sm.metrics == nil {
		sm.metrics = observe.DefaultMetrics()
	}
	return sm
}

// Start creates a new session and connects it. It returns [ErrSessionActive]
// if the previous session has not closed yet. On a connect failure the new
// session is already closed when Start returns.
func (sm *SessionManager) Start(ctx context.Context) error {
	sm.mu.Lock()
	if sm.sess != nil && sm.sess.State() != live.StateClosed {
		sm.mu.Unlock()
		return fmt.Errorf("%w (id=%s)", ErrSessionActive, sm.info.SessionID)
	}

	sm.counter++
	now := time.Now().UTC()
	id := fmt.Sprintf("live-%s-%d", now.Format("20060102T150405Z"), sm.counter)
	log := sm.log.With("session_id", id)

	var handler live.ToolHandler
	if sm.board != nil {
		handler = sm.board.HandleToolCall
	}
	cb := live.Callbacks{
		OnToolCall: handler,
		OnVolume:   sm.recordVolume,
		OnConnect: func() {
			log.Info("session connected")
		},
		OnDisconnect: func() {
			log.Info("session disconnected")
		},
		OnError: func(err error) {
			log.Warn("session error", "err", err)
		},
	}

	sess, err := live.New(liveConfig(sm.cfg), sm.dialer, sm.backend, cb,
		live.WithMetrics(sm.metrics),
		live.WithLogger(log),
	)
	if err != nil {
		sm.mu.Unlock()
		return fmt.Errorf("app: create session: %w", err)
	}
	sm.sess = sess
	sm.info = SessionInfo{SessionID: id, Model: sm.cfg.Live.Model, StartedAt: now}
	sm.mu.Unlock()

	// Connect runs the host callbacks, which must not find sm.mu held.
	if err := sess.Connect(ctx); err != nil {
		return fmt.Errorf("app: connect session: %w", err)
	}
	return nil
}

// Stop disconnects the current session, if any. It is idempotent.
func (sm *SessionManager) Stop() {
	sm.mu.Lock()
	sess := sm.sess
	sm.mu.Unlock()
	if sess != nil {
		sess.Disconnect()
	}
}

// Done returns a channel closed when the current session has torn down, or
// nil when no session was started.
func (sm *SessionManager) Done() <-chan struct{} {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.sess == nil {
		return nil
	}
	return sm.sess.Done()
}

// Err returns why the current session closed. It must only be called after
// Done is closed.
func (sm *SessionManager) Err() error {
	sm.mu.Lock()
	sess := sm.sess
	sm.mu.Unlock()
	if sess == nil {
		return nil
	}
	return sess.Err()
}

// Info returns a snapshot of the current session. ok is false before the
// first Start.
func (sm *SessionManager) Info() (info SessionInfo, ok bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.sess == nil {
		return SessionInfo{}, false
	}
	info = sm.info
	info.State = sm.sess.State()
	return info, true
}

// Ready reports nil while the current session is OPEN. It is used as the
// readiness check of the admin server.
func (sm *SessionManager) Ready(_ context.Context) error {
	info, ok := sm.Info()
	if !ok {
		return ErrNoSession
	}
	if info.State != live.StateOpen {
		return fmt.Errorf("app: session %s is %s", info.SessionID, info.State)
	}
	return nil
}

func (sm *SessionManager) recordVolume(input, output float64) {
	sm.mu.Lock()
	sm.info.InputLevel = input
	sm.info.OutputLevel = output
	sm.mu.Unlock()
}

// liveConfig maps the file configuration onto a session configuration.
func liveConfig(cfg *config.Config) live.Config {
	return live.Config{
		APIKey:             cfg.Live.APIKey,
		BaseURL:            cfg.Live.BaseURL,
		APIVersion:         cfg.Live.APIVersion,
		Model:              cfg.Live.Model,
		Voice:              cfg.Live.Voice,
		Instructions:       cfg.Live.Instructions,
		ResponseModalities: cfg.Live.ResponseModalities,
		Tools:              board.Capabilities(),
		InputSampleRate:    cfg.Audio.InputSampleRate,
		OutputSampleRate:   cfg.Audio.OutputSampleRate,
		FrameSize:          cfg.Audio.FrameSize,
		VolumeInterval:     cfg.Audio.VolumeInterval,
		VolumeGain:         cfg.Audio.VolumeGain,
	}
}
