package board

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// DefaultMQTTTimeout bounds the broker connect and each publish when
// MQTTOptions.Timeout is unset.
const DefaultMQTTTimeout = 10 * time.Second

var (
	// ErrNotConnected is returned by Publish while the broker link is down.
	ErrNotConnected = errors.New("board: mqtt not connected")

	// ErrTimeout is returned when the broker does not acknowledge in time.
	ErrTimeout = errors.New("board: mqtt timeout")
)

// MQTTOptions configures an [MQTTPublisher].
type MQTTOptions struct {
	Broker   string
	ClientID string
	Username string
	Password string

	// TopicPrefix is joined with "set" to form the command topic.
	TopicPrefix string
	QoS         byte
	Timeout     time.Duration

	Logger *slog.Logger
}

// MQTTPublisher sends commands as JSON to "{prefix}/set" on an MQTT broker.
// The client reconnects on its own; publishes fail fast while it is down.
type MQTTPublisher struct {
	client  paho.Client
	topic   string
	qos     byte
	timeout time.Duration
	log     *slog.Logger

	closeOnce sync.Once
}

// NewMQTTPublisher connects to the broker and returns a ready publisher.
func NewMQTTPublisher(opts MQTTOptions) (*MQTTPublisher, error) {
	if opts.Broker == "" {
		return nil, errors.New("board: mqtt broker is required")
	}
	p := newMQTTPublisher(nil, opts)

	co := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetCleanSession(true).
		SetMaxReconnectInterval(10 * time.Second).
		SetConnectTimeout(p.timeout)
	if opts.Username != "" {
		co.SetUsername(opts.Username)
		if opts.Password != "" {
			co.SetPassword(opts.Password)
		}
	}
	co.SetConnectionLostHandler(func(_ paho.Client, err error) {
		p.log.Warn("mqtt connection lost", "err", err)
	})
	co.SetOnConnectHandler(func(paho.Client) {
		p.log.Info("mqtt connected", "broker", opts.Broker)
	})

	p.client = paho.NewClient(co)
	if err := waitToken(context.Background(), p.client.Connect(), p.timeout); err != nil {
		return nil, fmt.Errorf("board: mqtt connect %s: %w", opts.Broker, err)
	}
	return p, nil
}

func newMQTTPublisher(client paho.Client, opts MQTTOptions) *MQTTPublisher {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultMQTTTimeout
	}
	l := opts.Logger
	if l == nil {
		l = slog.Default()
	}
	return &MQTTPublisher{
		client:  client,
		topic:   Topic(opts.TopicPrefix, "set"),
		qos:     opts.QoS,
		timeout: timeout,
		log:     l.With("component", "board.mqtt"),
	}
}

// Topic joins prefix and leaf with a single slash.
func Topic(prefix, leaf string) string {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		return leaf
	}
	return prefix + "/" + leaf
}

// Publish encodes cmd and waits for the broker acknowledgement required by
// the configured QoS.
func (p *MQTTPublisher) Publish(ctx context.Context, cmd Command) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("board: encode %s: %w", cmd.Name, err)
	}
	if !p.client.IsConnectionOpen() {
		return ErrNotConnected
	}
	if err := waitToken(ctx, p.client.Publish(p.topic, p.qos, false, payload), p.timeout); err != nil {
		return fmt.Errorf("board: publish to %s: %w", p.topic, err)
	}
	p.log.Debug("mqtt published", "topic", p.topic, "command", cmd.Name)
	return nil
}

// Close disconnects from the broker, allowing in-flight work 250ms to finish.
func (p *MQTTPublisher) Close() error {
	p.closeOnce.Do(func() {
		p.client.Disconnect(250)
	})
	return nil
}

func waitToken(ctx context.Context, token paho.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrTimeout
	}
}
