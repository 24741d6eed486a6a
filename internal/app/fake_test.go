package app_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/pwmlive/pwmlive/internal/app"
	"github.com/pwmlive/pwmlive/internal/board"
	"github.com/pwmlive/pwmlive/internal/config"
	"github.com/pwmlive/pwmlive/internal/live"
	"github.com/pwmlive/pwmlive/internal/observe"
)

// fakeTransport is an in-memory live.Transport.
type fakeTransport struct {
	inbound chan []byte
	readErr chan error

	mu      sync.Mutex
	writes  [][]byte
	closed  bool
	written chan struct{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		inbound: make(chan []byte, 8),
		readErr: make(chan error, 1),
		written: make(chan struct{}, 1),
	}
}

func (f *fakeTransport) Read(ctx context.Context) ([]byte, error) {
	select {
	case data := <-f.inbound:
		return data, nil
	case err := <-f.readErr:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeTransport) Write(_ context.Context, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("fake: write on closed transport")
	}
	f.writes = append(f.writes, append([]byte(nil), data...))
	select {
	case f.written <- struct{}{}:
	default:
	}
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// waitWrite blocks until a write containing substr arrives.
func (f *fakeTransport) waitWrite(t *testing.T, substr string) []byte {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		f.mu.Lock()
		for _, w := range f.writes {
			if bytes.Contains(w, []byte(substr)) {
				f.mu.Unlock()
				return w
			}
		}
		f.mu.Unlock()
		select {
		case <-f.written:
		case <-time.After(10 * time.Millisecond):
		case <-deadline:
			t.Fatalf("no write containing %q", substr)
		}
	}
}

// fakeDialer hands out a fresh transport per dial.
type fakeDialer struct {
	mu         sync.Mutex
	err        error
	transports []*fakeTransport
}

func (d *fakeDialer) Dial(context.Context, string) (live.Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	t := newFakeTransport()
	d.transports = append(d.transports, t)
	return t, nil
}

func (d *fakeDialer) last(t *testing.T) *fakeTransport {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.transports) == 0 {
		t.Fatal("nothing dialed")
	}
	return d.transports[len(d.transports)-1]
}

type recordingPublisher struct {
	mu     sync.Mutex
	cmds   []board.Command
	closed int
}

func (p *recordingPublisher) Publish(_ context.Context, cmd board.Command) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cmds = append(p.cmds, cmd)
	return nil
}

func (p *recordingPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	return nil
}

func (p *recordingPublisher) commands() []board.Command {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]board.Command(nil), p.cmds...)
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

// testConfig returns a defaulted config that runs without audio devices.
func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Live.APIKey = "test-key"
	cfg.Audio.Backend = config.BackendNone
	cfg.Board.Brightness = 5
	config.ApplyDefaults(cfg)
	return cfg
}

// waitReady polls until the readiness of sm equals wantReady.
func waitReady(t *testing.T, sm *app.SessionManager, wantReady bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if (sm.Ready(context.Background()) == nil) == wantReady {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("readiness never became %v", wantReady)
}
