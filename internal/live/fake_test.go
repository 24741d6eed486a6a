package live_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pwmlive/pwmlive/internal/live"
	"github.com/pwmlive/pwmlive/pkg/audio"
)

// fakeTransport is an in-memory live.Transport. Tests push inbound messages
// with send and inspect what the session wrote with waitWrites.
type fakeTransport struct {
	inbound chan []byte
	readErr chan error

	mu       sync.Mutex
	writes   [][]byte
	writeErr error
	closed   int
	written  chan struct{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		inbound: make(chan []byte, 16),
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
	if f.writeErr != nil {
		return f.writeErr
	}
	if f.closed > 0 {
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
	f.closed++
	return nil
}

func (f *fakeTransport) setWriteErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeErr = err
}

func (f *fakeTransport) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// send marshals v and delivers it as the next inbound message.
func (f *fakeTransport) send(t *testing.T, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal inbound: %v", err)
	}
	f.inbound <- data
}

func (f *fakeTransport) sendRaw(data string) {
	f.inbound <- []byte(data)
}

func (f *fakeTransport) snapshot() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.writes))
	copy(out, f.writes)
	return out
}

// waitWrites blocks until at least n messages were written.
func (f *fakeTransport) waitWrites(t *testing.T, n int) [][]byte {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		if w := f.snapshot(); len(w) >= n {
			return w
		}
		select {
		case <-f.written:
		case <-deadline:
			t.Fatalf("timeout: %d writes, want %d", len(f.snapshot()), n)
		}
	}
}

type fakeDialer struct {
	transport live.Transport
	err       error

	mu   sync.Mutex
	urls []string
}

func (d *fakeDialer) Dial(_ context.Context, url string) (live.Transport, error) {
	d.mu.Lock()
	d.urls = append(d.urls, url)
	d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	return d.transport, nil
}

// recorder collects host callbacks.
type recorder struct {
	mu          sync.Mutex
	errs        []error
	connects    int
	disconnects int
	volumes     []audio.Reading

	disconnected chan struct{}
	errored      chan struct{}
}

func newRecorder() *recorder {
	return &recorder{
		disconnected: make(chan struct{}, 4),
		errored:      make(chan struct{}, 16),
	}
}

func (r *recorder) callbacks() live.Callbacks {
	return live.Callbacks{
		OnConnect: func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.connects++
		},
		OnDisconnect: func() {
			r.mu.Lock()
			r.disconnects++
			r.mu.Unlock()
			r.disconnected <- struct{}{}
		},
		OnError: func(err error) {
			r.mu.Lock()
			r.errs = append(r.errs, err)
			r.mu.Unlock()
			select {
			case r.errored <- struct{}{}:
			default:
			}
		},
		OnVolume: func(in, out float64) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.volumes = append(r.volumes, audio.Reading{Input: in, Output: out})
		},
	}
}

func (r *recorder) errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

func (r *recorder) counts() (connects, disconnects int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connects, r.disconnects
}

func (r *recorder) lastVolume() (audio.Reading, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.volumes) == 0 {
		return audio.Reading{}, false
	}
	return r.volumes[len(r.volumes)-1], true
}

func (r *recorder) waitDisconnect(t *testing.T) {
	t.Helper()
	select {
	case <-r.disconnected:
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for OnDisconnect")
	}
}

func (r *recorder) waitError(t *testing.T, target error) error {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		for _, err := range r.errors() {
			if errors.Is(err, target) {
				return err
			}
		}
		select {
		case <-r.errored:
		case <-deadline:
			t.Fatalf("timeout waiting for error matching %v; got %v", target, r.errors())
		}
	}
}

// message kinds written by the session.
func kindOf(t *testing.T, data []byte) string {
	t.Helper()
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("session wrote invalid JSON: %v", err)
	}
	for _, k := range []string{"setup", "realtime_input", "tool_response"} {
		if _, ok := raw[k]; ok {
			return k
		}
	}
	return "unknown"
}

type toolResponseEnvelope struct {
	ToolResponse struct {
		FunctionResponses []struct {
			ID       string         `json:"id"`
			Name     string         `json:"name"`
			Response map[string]any `json:"response"`
		} `json:"function_responses"`
	} `json:"tool_response"`
}

type realtimeEnvelope struct {
	RealtimeInput struct {
		MediaChunks []struct {
			MIMEType string `json:"mime_type"`
			Data     string `json:"data"`
		} `json:"media_chunks"`
	} `json:"realtime_input"`
}

// audioMessage builds a serverContent message with one inline part per chunk.
func audioMessage(mime string, chunks ...string) map[string]any {
	parts := make([]map[string]any, 0, len(chunks))
	for _, c := range chunks {
		parts = append(parts, map[string]any{
			"inlineData": map[string]any{"mimeType": mime, "data": c},
		})
	}
	return map[string]any{
		"serverContent": map[string]any{"modelTurn": map[string]any{"parts": parts}},
	}
}

// pcmChunk returns n samples of base64 PCM16 at a constant level.
func pcmChunk(n int, level int16) string {
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = level
	}
	return audio.EncodeFrame(samples)
}
