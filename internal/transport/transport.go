// Package transport implements the pub/sub links to a node's telemetry
// endpoint.
//
// Two transports are provided:
//   - WebSocket: line-based frames (one whitespace-delimited event per
//     text message), topics controlled with JSON subscribe commands
//   - NATS: topic-based frames, subject = topic path, data = payload
//
// A Transport is single-use: once closed it cannot be reconnected. The bus
// client builds a fresh one from a Factory for every connect.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Errors
var (
	ErrNotConnected     = errors.New("not connected")
	ErrAlreadyClosed    = errors.New("already closed")
	ErrUnknownTransport = errors.New("unknown transport")
)

// Kinds of transport.
const (
	KindWebSocket = "websocket"
	KindNATS      = "nats"
)

// Frame is a raw, unparsed wire message.
type Frame struct {
	Topic      string    // Empty for line-based frames
	Payload    []byte    // Line text or topic payload
	ReceivedAt time.Time // Local timestamp when the frame was read
}

// Transport is a single connection to a telemetry endpoint.
type Transport interface {
	// Connect establishes the connection.
	Connect(ctx context.Context) error

	// Close tears the connection down. Safe to call more than once.
	Close() error

	// Subscribe starts delivery of the given topics.
	Subscribe(topics ...string) error

	// Unsubscribe stops delivery of the given topics.
	Unsubscribe(topics ...string) error

	// Frames returns the channel of inbound frames.
	Frames() <-chan Frame

	// Errors returns a channel of connection errors.
	Errors() <-chan error

	// IsConnected returns current connection state.
	IsConnected() bool
}

// Factory builds a fresh, unconnected Transport.
type Factory func() Transport

// Config configures a transport.
type Config struct {
	URL              string        // ws://host:port/path or nats://host:port
	Name             string        // Client name reported to the endpoint
	BufferSize       int           // Frame channel buffer size
	HandshakeTimeout time.Duration // Dial timeout
	WriteTimeout     time.Duration // Write deadline for control messages
	PingInterval     time.Duration // WebSocket ping cadence
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BufferSize:       1000,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		PingInterval:     30 * time.Second,
	}
}

// NewFactory returns a Factory for the given transport kind.
func NewFactory(kind string, cfg Config, logger *slog.Logger) (Factory, error) {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = def.HandshakeTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}

	switch kind {
	case KindWebSocket:
		return func() Transport { return NewWebSocket(cfg, logger) }, nil
	case KindNATS:
		return func() Transport { return NewNATS(cfg, logger) }, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTransport, kind)
	}
}
