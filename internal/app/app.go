// Package app wires the pwmlive subsystems into a running application.
//
// The App struct owns the full lifecycle: New builds the board and the
// session manager, Run serves the admin endpoints and keeps the live session
// until the context ends or the session closes, and Shutdown tears
// everything down in order.
//
// For testing, inject test doubles via functional options (WithDialer,
// WithMetrics). The audio backend and board publisher come from main via the
// config registry.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/pwmlive/pwmlive/internal/board"
	"github.com/pwmlive/pwmlive/internal/config"
	"github.com/pwmlive/pwmlive/internal/health"
	"github.com/pwmlive/pwmlive/internal/live"
	"github.com/pwmlive/pwmlive/internal/observe"
	"github.com/pwmlive/pwmlive/pkg/audio"
)

// adminShutdownTimeout bounds the admin server drain when Shutdown is called
// with a context that has no deadline.
const adminShutdownTimeout = 5 * time.Second

// Providers holds the pluggable devices. Populated by main via the config
// registry.
type Providers struct {
	// Backend provides audio devices. Nil runs the session without audio.
	Backend audio.Backend

	// Publisher receives board commands. Required.
	Publisher board.Publisher
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	dialer   live.Dialer
	metrics  *observe.Metrics
	levelVar *slog.LevelVar

	board    *board.Board
	sessions *SessionManager
	health   *health.Handler
	admin    *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithDialer injects the session dialer instead of the WebSocket dialer.
func WithDialer(d live.Dialer) Option {
	return func(a *App) { a.dialer = d }
}

// WithMetrics records metrics on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLevelVar lets [App.ApplyConfig] change the log level of the handler
// built on v.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.levelVar = v }
}

// New creates an App by wiring all subsystems together. It does not connect
// anything; see [App.Run].
func New(cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.Publisher == nil {
		return nil, errors.New("app: a board publisher is required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	initial := board.State{
		Brightness: cfg.Board.Brightness,
		Blinking:   cfg.Board.Blinking,
		IntervalMS: cfg.Board.IntervalMS,
	}
	a.board = board.New(initial, providers.Publisher, board.WithMetrics(a.metrics))
	a.closers = append(a.closers, a.board.Close)

	a.sessions = NewSessionManager(SessionManagerConfig{
		Config:  cfg,
		Dialer:  a.dialer,
		Backend: providers.Backend,
		Board:   a.board,
		Metrics: a.metrics,
	})

	a.health = health.New(health.Checker{Name: "session", Check: a.sessions.Ready})

	return a, nil
}

// Sessions returns the session manager.
func (a *App) Sessions() *SessionManager { return a.sessions }

// Board returns the board driven by tool calls.
func (a *App) Board() *board.Board { return a.board }

// Handler returns the admin HTTP handler serving /metrics, /healthz and
// /readyz.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	a.health.Register(mux)
	mux.Handle("GET /metrics", observe.MetricsHandler())
	return observe.Instrument(a.metrics, mux)
}

// Run starts the admin server (when configured) and the live session, then
// blocks until ctx is cancelled or the session closes. It returns nil on
// cancellation, and the session's close cause otherwise.
func (a *App) Run(ctx context.Context) error {
	if addr := a.cfg.Server.AdminAddr; addr != "" {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("app: admin listen %s: %w", addr, err)
		}
		a.admin = &http.Server{
			Handler:           a.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := a.admin.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("admin server error", "err", err)
			}
		}()
		slog.Info("admin server listening", "addr", ln.Addr().String())
	}

	if err := a.sessions.Start(ctx); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return nil
	case <-a.sessions.Done():
		if err := a.sessions.Err(); err != nil {
			return fmt.Errorf("app: session ended: %w", err)
		}
		slog.Info("session ended by the remote side")
		return nil
	}
}

// ApplyConfig reacts to a configuration change picked up by the watcher. The
// log level is applied immediately; every other change is only logged
// because it needs a new session or process.
func (a *App) ApplyConfig(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.LogLevelChanged && a.levelVar != nil {
		a.levelVar.Set(SlogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("configuration changes need a restart to take effect", "fields", d.RestartRequired)
	}
}

// Shutdown tears down all subsystems: the live session first, then the
// admin server, then the closers in order. It respects the context deadline:
// if ctx expires before all closers finish, remaining closers are skipped
// and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		a.sessions.Stop()

		if a.admin != nil {
			sctx := ctx
			if _, ok := ctx.Deadline(); !ok {
				var cancel context.CancelFunc
				sctx, cancel = context.WithTimeout(ctx, adminShutdownTimeout)
				defer cancel()
			}
			if err := a.admin.Shutdown(sctx); err != nil {
				slog.Warn("admin server shutdown error", "err", err)
			}
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// SlogLevel converts a config log level to a slog level. Unknown values map
// to Info.
func SlogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
