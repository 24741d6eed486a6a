package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// Endpoint defaults for the Gemini Live service.
const (
	DefaultBaseURL    = "wss://generativelanguage.googleapis.com/ws"
	DefaultAPIVersion = "v1alpha"

	// DefaultReadLimit bounds a single inbound message. Audio replies are
	// much larger than the 32 KiB websocket default.
	DefaultReadLimit = 16 << 20

	DefaultKeepaliveInterval = 20 * time.Second
	keepaliveTimeout         = 5 * time.Second
)

// ErrRemoteClosed is returned by [Transport.Read] when the peer closed the
// connection cleanly.
var ErrRemoteClosed = errors.New("live: connection closed by remote")

// Transport is a message-oriented, full-duplex connection. Read is only
// called from one goroutine; Write calls are serialised by the session.
type Transport interface {
	// Read blocks for the next message. Text and binary frames are both
	// returned as raw bytes.
	Read(ctx context.Context) ([]byte, error)

	// Write sends one text message.
	Write(ctx context.Context, data []byte) error

	// Close closes the connection. It is safe to call more than once.
	Close() error
}

// Dialer opens a [Transport] to url.
type Dialer interface {
	Dial(ctx context.Context, url string) (Transport, error)
}

// Endpoint builds the BidiGenerateContent URL. Empty baseURL or apiVersion
// select the defaults.
func Endpoint(baseURL, apiVersion, apiKey string) string {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if apiVersion == "" {
		apiVersion = DefaultAPIVersion
	}
	return fmt.Sprintf(
		"%s/google.ai.generativelanguage.%s.GenerativeService.BidiGenerateContent?key=%s",
		strings.TrimSuffix(baseURL, "/"), apiVersion, url.QueryEscape(apiKey),
	)
}

// ── WebSocket ─────────────────────────────────────────────────────────────────

// WebSocketDialer dials [Transport]s over WebSocket.
type WebSocketDialer struct {
	// HTTPClient is used for the upgrade request. Nil uses the default.
	HTTPClient *http.Client

	// ReadLimit caps inbound message size. Zero selects DefaultReadLimit.
	ReadLimit int64

	// KeepaliveInterval is the ping cadence. Zero selects
	// DefaultKeepaliveInterval; negative disables pings.
	KeepaliveInterval time.Duration
}

// Dial implements [Dialer].
func (d *WebSocketDialer) Dial(ctx context.Context, rawURL string) (Transport, error) {
	conn, _, err := websocket.Dial(ctx, rawURL, &websocket.DialOptions{
		HTTPClient: d.HTTPClient,
		HTTPHeader: http.Header{
			"Content-Type": []string{"application/json"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", redactKey(err))
	}

	limit := d.ReadLimit
	if limit == 0 {
		limit = DefaultReadLimit
	}
	conn.SetReadLimit(limit)

	ctx, cancel := context.WithCancel(context.Background())
	t := &wsTransport{conn: conn, ctx: ctx, cancel: cancel}

	interval := d.KeepaliveInterval
	if interval == 0 {
		interval = DefaultKeepaliveInterval
	}
	if interval > 0 {
		go t.keepaliveLoop(interval)
	}
	return t, nil
}

type wsTransport struct {
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
	closeErr  error
}

func (t *wsTransport) Read(ctx context.Context) ([]byte, error) {
	_, data, err := t.conn.Read(ctx)
	if err != nil {
		switch websocket.CloseStatus(err) {
		case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			return nil, fmt.Errorf("%w: %w", ErrRemoteClosed, err)
		}
		return nil, err
	}
	return data, nil
}

func (t *wsTransport) Write(ctx context.Context, data []byte) error {
	return t.conn.Write(ctx, websocket.MessageText, data)
}

func (t *wsTransport) Close() error {
	t.closeOnce.Do(func() {
		t.cancel()
		err := t.conn.Close(websocket.StatusNormalClosure, "session closed")
		// Closing an already-failed connection is not an error worth reporting.
		if err != nil && websocket.CloseStatus(err) == -1 && !errors.Is(err, net.ErrClosed) {
			t.closeErr = err
		}
	})
	return t.closeErr
}

// keepaliveLoop pings the peer until the transport is closed. Pongs are
// processed by the concurrent Read in the session's receive loop.
func (t *wsTransport) keepaliveLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(t.ctx, keepaliveTimeout)
			if err := t.conn.Ping(pingCtx); err != nil && t.ctx.Err() == nil {
				slog.Debug("live: keepalive ping failed", "err", err)
			}
			cancel()
		}
	}
}

// redactKey strips the API key from URL errors returned by the dialer.
func redactKey(err error) error {
	var uerr *url.Error
	if !errors.As(err, &uerr) {
		return err
	}
	u, perr := url.Parse(uerr.URL)
	if perr != nil {
		return err
	}
	q := u.Query()
	if q.Has("key") {
		q.Set("key", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return &url.Error{Op: uerr.Op, URL: u.String(), Err: uerr.Err}
}
