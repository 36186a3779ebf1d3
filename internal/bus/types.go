package bus

import (
	"errors"
	"time"

	"github.com/iotaledger/explorer-sub006/internal/event"
)

// Errors
var (
	ErrInvalidAddress = errors.New("invalid address")
)

// Handler receives decoded events for one tag. A returned error is logged
// and counted; it does not affect other handlers.
type Handler func(event.Event) error

// Config holds configuration for a bus Client.
type Config struct {
	Network           string        // Label used in logs and metrics
	Topics            []string      // Always-on topics, subscribed on every connect
	KeepAliveInterval time.Duration // How often activity is checked (default: 15s)
	ActivityTimeout   time.Duration // Idle threshold before reconnect (default: 30s)
	ConnectTimeout    time.Duration // Dial + subscribe deadline (default: 10s)
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		KeepAliveInterval: 15 * time.Second,
		ActivityTimeout:   30 * time.Second,
		ConnectTimeout:    10 * time.Second,
	}
}

// Stats contains runtime statistics.
type Stats struct {
	Network       string    `json:"network"`
	Connected     bool      `json:"connected"`
	LastActivity  time.Time `json:"lastActivity"`
	Connects      int64     `json:"connects"`
	Reconnects    int64     `json:"reconnects"`
	Subscriptions int       `json:"subscriptions"`
	Tags          int       `json:"tags"`
	Dispatched    int64     `json:"dispatched"`
	Dropped       int64     `json:"dropped"`
	HandlerErrors int64     `json:"handlerErrors"`
}
