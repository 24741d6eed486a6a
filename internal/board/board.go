// Package board executes the LED controller tool calls a live session
// receives and forwards each change to a [Publisher].
//
// The board keeps the authoritative state locally: set_* calls validate their
// arguments, publish a [Command] and commit the new [State] only after the
// publish succeeded. get_status is answered from local state without touching
// the publisher.
//
// Tool results are always returned with a nil error. Rejected arguments and
// publish failures are reported to the model as {"error": "..."} so it can
// correct itself, instead of being acknowledged as "ok".
package board

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/pwmlive/pwmlive/internal/observe"
)

// Tool names understood by [Board.HandleToolCall].
const (
	ToolSetBlinking   = "set_blinking"
	ToolSetBrightness = "set_brightness"
	ToolSetInterval   = "set_interval"
	ToolGetStatus     = "get_status"
)

// Limits on the board state.
const (
	MaxBrightness = 10
	MinIntervalMS = 1
	MaxIntervalMS = 60000
)

// ErrInvalidArgs marks tool arguments the board rejects.
var ErrInvalidArgs = errors.New("board: invalid arguments")

// State is the LED controller state.
type State struct {
	Brightness int  `json:"brightness"`
	Blinking   bool `json:"blinking"`
	IntervalMS int  `json:"interval_ms"`
}

// Command is one state change sent to the controller. State is the full
// state after the change so a controller that missed earlier commands still
// converges.
type Command struct {
	Name  string    `json:"command"`
	Value any       `json:"value"`
	State State     `json:"state"`
	Time  time.Time `json:"time"`
}

// Publisher delivers commands to the controller.
type Publisher interface {
	Publish(ctx context.Context, cmd Command) error
	Close() error
}

// Option configures a [Board].
type Option func(*Board)

// WithMetrics records board metrics on m instead of
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(b *Board) { b.metrics = m }
}

// WithLogger sets the board logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Board) { b.log = l }
}

// withClock overrides the command timestamp source.
func withClock(now func() time.Time) Option {
	return func(b *Board) { b.now = now }
}

// Board is the local model of the LED controller. It is safe for concurrent
// use; tool calls from one batch may arrive in parallel.
type Board struct {
	pub     Publisher
	metrics *observe.Metrics
	log     *slog.Logger
	now     func() time.Time

	// mu serialises state changes so commands reach the publisher in the
	// order they were committed.
	mu    sync.Mutex
	state State
}

// New returns a Board starting from initial and publishing to pub.
func New(initial State, pub Publisher, opts ...Option) *Board {
	b := &Board{
		pub:     pub,
		metrics: observe.DefaultMetrics(),
		log:     slog.Default().With("component", "board"),
		now:     time.Now,
		state:   initial,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// State returns a snapshot of the current state.
func (b *Board) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// HandleToolCall executes one tool call. Its signature matches the live
// session's tool handler.
func (b *Board) HandleToolCall(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case ToolGetStatus:
		return b.State(), nil
	case ToolSetBlinking:
		enabled, err := boolArg(args, "enabled")
		if err != nil {
			return b.reject(ctx, name, err), nil
		}
		return b.apply(ctx, name, enabled, func(s *State) { s.Blinking = enabled }), nil
	case ToolSetBrightness:
		level, err := intArg(args, "level", 0, MaxBrightness)
		if err != nil {
			return b.reject(ctx, name, err), nil
		}
		return b.apply(ctx, name, level, func(s *State) { s.Brightness = level }), nil
	case ToolSetInterval:
		ms, err := intArg(args, "ms", MinIntervalMS, MaxIntervalMS)
		if err != nil {
			return b.reject(ctx, name, err), nil
		}
		return b.apply(ctx, name, ms, func(s *State) { s.IntervalMS = ms }), nil
	default:
		return b.reject(ctx, name, fmt.Errorf("board: unknown function %q", name)), nil
	}
}

// Close closes the publisher.
func (b *Board) Close() error {
	return b.pub.Close()
}

func (b *Board) apply(ctx context.Context, name string, value any, change func(*State)) any {
	ctx, span := observe.StartSpan(ctx, "board.publish",
		trace.WithAttributes(attribute.String("board.command", name)),
	)
	defer span.End()

	b.mu.Lock()
	defer b.mu.Unlock()

	next := b.state
	change(&next)
	cmd := Command{Name: name, Value: value, State: next, Time: b.now()}

	if err := b.pub.Publish(ctx, cmd); err != nil {
		observe.EndSpanError(span, err)
		b.metrics.RecordBoardCommand(ctx, name, "error")
		observe.Logger(ctx).Warn("board command not delivered", "command", name, "err", err)
		return errorResult(fmt.Errorf("board: publish %s: %w", name, err))
	}

	b.state = next
	b.metrics.RecordBoardCommand(ctx, name, "ok")
	b.log.Info("board updated", "command", name, "value", value,
		"brightness", next.Brightness, "blinking", next.Blinking, "interval_ms", next.IntervalMS)
	return next
}

func (b *Board) reject(ctx context.Context, name string, err error) any {
	b.metrics.RecordBoardCommand(ctx, name, "rejected")
	b.log.Warn("board call rejected", "command", name, "err", err)
	return errorResult(err)
}

func errorResult(err error) map[string]any {
	return map[string]any{"error": err.Error()}
}

func boolArg(args map[string]any, key string) (bool, error) {
	v, ok := args[key]
	if !ok {
		return false, fmt.Errorf("%w: %q is required", ErrInvalidArgs, key)
	}
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		switch x {
		case "true", "on":
			return true, nil
		case "false", "off":
			return false, nil
		}
	}
	return false, fmt.Errorf("%w: %q must be a boolean, got %v", ErrInvalidArgs, key, v)
}

// intArg reads a JSON number and rounds it to the nearest integer in
// [lo, hi].
func intArg(args map[string]any, key string, lo, hi int) (int, error) {
	v, ok := args[key]
	if !ok {
		return 0, fmt.Errorf("%w: %q is required", ErrInvalidArgs, key)
	}
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case int:
		f = float64(x)
	default:
		return 0, fmt.Errorf("%w: %q must be a number, got %v", ErrInvalidArgs, key, v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %q must be finite", ErrInvalidArgs, key)
	}
	n := int(math.Round(f))
	if n < lo || n > hi {
		return 0, fmt.Errorf("%w: %q must be between %d and %d, got %v", ErrInvalidArgs, key, lo, hi, v)
	}
	return n, nil
}
