package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS is a topic-based transport. Each subscribed topic maps to one NATS
// subject; the message subject is reported as the frame topic.
type NATS struct {
	cfg    Config
	logger *slog.Logger

	frames chan Frame
	errors chan error

	mu     sync.Mutex
	conn   *nats.Conn
	subs   map[string]*nats.Subscription
	closed bool
}

// NewNATS creates an unconnected NATS transport.
func NewNATS(cfg Config, logger *slog.Logger) *NATS {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}

	return &NATS{
		cfg:    cfg,
		logger: logger,
		frames: make(chan Frame, cfg.BufferSize),
		errors: make(chan error, 1),
		subs:   make(map[string]*nats.Subscription),
	}
}

// buildOptions constructs connection options. Reconnection is disabled:
// the bus client owns recovery.
func (n *NATS) buildOptions() []nats.Option {
	opts := []nats.Option{
		nats.NoReconnect(),
		nats.Timeout(n.cfg.HandshakeTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err == nil {
				err = ErrNotConnected
			}
			n.reportError(err)
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			n.logger.Warn("nats async error", "error", err)
		}),
	}
	if n.cfg.Name != "" {
		opts = append(opts, nats.Name(n.cfg.Name))
	}
	return opts
}

// Connect dials the NATS server.
func (n *NATS) Connect(ctx context.Context) error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return ErrAlreadyClosed
	}
	n.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	conn, err := nats.Connect(n.cfg.URL, n.buildOptions()...)
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}

	n.mu.Lock()
	n.conn = conn
	n.mu.Unlock()

	n.logger.Debug("nats connected", "url", n.cfg.URL)
	return nil
}

// Close unsubscribes every topic and closes the connection.
func (n *NATS) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil
	}
	n.closed = true

	for topic, sub := range n.subs {
		if err := sub.Unsubscribe(); err != nil {
			n.logger.Debug("nats unsubscribe on close failed", "topic", topic, "error", err)
		}
	}
	n.subs = make(map[string]*nats.Subscription)

	if n.conn != nil {
		n.conn.Close()
	}
	return nil
}

// Subscribe creates one NATS subscription per topic.
func (n *NATS) Subscribe(topics ...string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.conn == nil || !n.conn.IsConnected() {
		return ErrNotConnected
	}

	for _, topic := range topics {
		if _, exists := n.subs[topic]; exists {
			continue
		}
		sub, err := n.conn.Subscribe(topic, n.deliver)
		if err != nil {
			return fmt.Errorf("nats subscribe %s: %w", topic, err)
		}
		n.subs[topic] = sub
	}
	return nil
}

// Unsubscribe removes the subscriptions for topics.
func (n *NATS) Unsubscribe(topics ...string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, topic := range topics {
		sub, ok := n.subs[topic]
		if !ok {
			continue
		}
		delete(n.subs, topic)
		if err := sub.Unsubscribe(); err != nil {
			return fmt.Errorf("nats unsubscribe %s: %w", topic, err)
		}
	}
	return nil
}

// Frames returns the inbound frame channel.
func (n *NATS) Frames() <-chan Frame {
	return n.frames
}

// Errors returns the error channel.
func (n *NATS) Errors() <-chan error {
	return n.errors
}

// IsConnected returns current connection state.
func (n *NATS) IsConnected() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return !n.closed && n.conn != nil && n.conn.IsConnected()
}

func (n *NATS) deliver(msg *nats.Msg) {
	frame := Frame{
		Topic:      msg.Subject,
		Payload:    msg.Data,
		ReceivedAt: time.Now(),
	}
	select {
	case n.frames <- frame:
	default:
		n.logger.Warn("frame buffer full, dropping frame", "topic", msg.Subject)
	}
}

func (n *NATS) reportError(err error) {
	select {
	case n.errors <- err:
	default:
	}
}
