package board

import (
	"context"
	"log/slog"
)

// LogPublisher writes every command to a logger. It is the publisher used
// when no broker is configured.
type LogPublisher struct {
	log *slog.Logger
}

// NewLogPublisher returns a LogPublisher writing to l, or to the default
// logger when l is nil.
func NewLogPublisher(l *slog.Logger) *LogPublisher {
	if l == nil {
		l = slog.Default()
	}
	return &LogPublisher{log: l.With("component", "board.log")}
}

// Publish logs cmd at Info.
func (p *LogPublisher) Publish(ctx context.Context, cmd Command) error {
	p.log.InfoContext(ctx, "board command",
		"command", cmd.Name,
		"value", cmd.Value,
		"brightness", cmd.State.Brightness,
		"blinking", cmd.State.Blinking,
		"interval_ms", cmd.State.IntervalMS,
	)
	return nil
}

// Close is a no-op.
func (p *LogPublisher) Close() error { return nil }
