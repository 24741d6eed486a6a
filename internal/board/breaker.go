package board

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrPublisherUnavailable is returned by [BreakerPublisher.Publish] while the
// breaker is open.
var ErrPublisherUnavailable = errors.New("board: publisher unavailable")

// BreakerState is the operating mode of a [BreakerPublisher].
type BreakerState int

const (
	// BreakerClosed forwards every command.
	BreakerClosed BreakerState = iota

	// BreakerOpen rejects commands until the cool-down elapses.
	BreakerOpen

	// BreakerHalfOpen lets a single probe command through.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerOptions tunes a [BreakerPublisher].
type BreakerOptions struct {
	// MaxFailures is the number of consecutive publish failures that open the
	// breaker. Default: 3.
	MaxFailures int

	// Cooldown is how long the breaker stays open before it lets a probe
	// through. Default: 15s.
	Cooldown time.Duration

	Logger *slog.Logger
}

// BreakerPublisher wraps a [Publisher] and stops calling it after repeated
// failures, so tool calls fail fast while the broker is down instead of each
// one waiting for its own timeout.
type BreakerPublisher struct {
	next        Publisher
	maxFailures int
	cooldown    time.Duration
	log         *slog.Logger
	now         func() time.Time

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
	probing  bool
}

// NewBreakerPublisher wraps next.
func NewBreakerPublisher(next Publisher, opts BreakerOptions) *BreakerPublisher {
	if opts.MaxFailures <= 0 {
		opts.MaxFailures = 3
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = 15 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &BreakerPublisher{
		next:        next,
		maxFailures: opts.MaxFailures,
		cooldown:    opts.Cooldown,
		log:         opts.Logger.With("component", "board.breaker"),
		now:         time.Now,
	}
}

// Publish forwards cmd unless the breaker is open.
func (p *BreakerPublisher) Publish(ctx context.Context, cmd Command) error {
	if err := p.admit(); err != nil {
		return err
	}
	err := p.next.Publish(ctx, cmd)
	p.record(err)
	return err
}

// Close closes the wrapped publisher.
func (p *BreakerPublisher) Close() error { return p.next.Close() }

// State returns the current breaker state.
func (p *BreakerPublisher) State() BreakerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *BreakerPublisher) admit() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case BreakerOpen:
		if wait := p.cooldown - p.now().Sub(p.openedAt); wait > 0 {
			return fmt.Errorf("%w (retry in %s)", ErrPublisherUnavailable, wait.Round(time.Second))
		}
		p.state = BreakerHalfOpen
		p.probing = true
		p.log.Info("publisher breaker half-open, probing")
	case BreakerHalfOpen:
		if p.probing {
			return fmt.Errorf("%w (probe in flight)", ErrPublisherUnavailable)
		}
		p.probing = true
	}
	return nil
}

func (p *BreakerPublisher) record(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == BreakerHalfOpen {
		p.probing = false
		if err != nil {
			p.state = BreakerOpen
			p.openedAt = p.now()
			p.log.Warn("publisher breaker re-opened", "err", err)
			return
		}
		p.state = BreakerClosed
		p.failures = 0
		p.log.Info("publisher breaker closed")
		return
	}

	if err == nil {
		p.failures = 0
		return
	}
	p.failures++
	if p.failures >= p.maxFailures {
		p.state = BreakerOpen
		p.openedAt = p.now()
		p.log.Warn("publisher breaker opened", "consecutive_failures", p.failures, "err", err)
	}
}
