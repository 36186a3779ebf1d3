package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/iotaledger/explorer-sub006/internal/event"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if _, err := ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	if c.Bus.KeepAliveInterval <= 0 {
		return errors.New("bus.keep_alive_interval must be > 0")
	}
	if c.Bus.ActivityTimeout < c.Bus.KeepAliveInterval {
		return fmt.Errorf("bus.activity_timeout (%s) must be >= bus.keep_alive_interval (%s)",
			c.Bus.ActivityTimeout, c.Bus.KeepAliveInterval)
	}
	if c.Bus.BufferSize < 1 {
		return errors.New("bus.buffer_size must be >= 1")
	}

	if c.Feed.FlushInterval <= 0 || c.Feed.SampleInterval <= 0 {
		return errors.New("feed.flush_interval and feed.sample_interval must be > 0")
	}
	if c.Feed.Capacity < 1 {
		return errors.New("feed.capacity must be >= 1")
	}

	if c.Transactions.TickInterval <= 0 {
		return errors.New("transactions.tick_interval must be > 0")
	}
	if c.Transactions.MinBatch < 1 {
		return errors.New("transactions.min_batch must be >= 1")
	}
	if c.Transactions.Capacity < 1 {
		return errors.New("transactions.capacity must be >= 1")
	}

	if c.Milestones.Capacity < 1 {
		return errors.New("milestones.capacity must be >= 1")
	}
	if c.Milestones.CheckInterval <= 0 || c.Milestones.IdleTimeout <= 0 {
		return errors.New("milestones.check_interval and milestones.idle_timeout must be > 0")
	}

	if err := c.Storage.validate(); err != nil {
		return err
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if !strings.HasPrefix(c.Server.MetricsPath, "/") {
		return fmt.Errorf("server.metrics_path must start with /, got %q", c.Server.MetricsPath)
	}

	if len(c.Networks) == 0 {
		return errors.New("at least one network is required")
	}
	seen := make(map[string]struct{}, len(c.Networks))
	for i := range c.Networks {
		n := &c.Networks[i]
		if err := n.validate(fmt.Sprintf("networks[%d]", i)); err != nil {
			return err
		}
		if _, dup := seen[n.Name]; dup {
			return fmt.Errorf("networks: duplicate name %q", n.Name)
		}
		seen[n.Name] = struct{}{}
	}

	return nil
}

func (s *StorageConfig) validate() error {
	switch s.Type {
	case "memory":
	case "file":
		if s.Path == "" {
			return errors.New("storage.path is required for file storage")
		}
	case "postgres":
		return s.Postgres.validate("storage.postgres")
	case "redis":
		if s.Redis.Addr == "" {
			return errors.New("storage.redis.addr is required")
		}
	case "mongo":
		if s.Mongo.URI == "" {
			return errors.New("storage.mongo.uri is required")
		}
	default:
		return fmt.Errorf("storage.type must be one of memory, file, postgres, redis, mongo; got %q", s.Type)
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}

func (n *NetworkConfig) validate(prefix string) error {
	if n.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	prefix = fmt.Sprintf("networks[%s]", n.Name)

	switch n.Protocol {
	case event.ProtocolLegacy:
		if !event.IsAddress(n.CoordinatorAddress) {
			return fmt.Errorf("%s.coordinator_address must be 81 trytes for legacy networks", prefix)
		}
	case event.ProtocolChrysalis:
	default:
		return fmt.Errorf("%s.protocol must be legacy or chrysalis, got %q", prefix, n.Protocol)
	}

	if n.Transport != "websocket" && n.Transport != "nats" {
		return fmt.Errorf("%s.transport must be websocket or nats, got %q", prefix, n.Transport)
	}

	if n.Endpoint == "" {
		return fmt.Errorf("%s.endpoint is required", prefix)
	}
	u, err := url.Parse(n.Endpoint)
	if err != nil {
		return fmt.Errorf("%s.endpoint: %w", prefix, err)
	}
	switch n.Transport {
	case "websocket":
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return fmt.Errorf("%s.endpoint must be a ws:// or wss:// URL", prefix)
		}
	case "nats":
		if u.Scheme != "nats" && u.Scheme != "tls" {
			return fmt.Errorf("%s.endpoint must be a nats:// or tls:// URL", prefix)
		}
	}
	return nil
}

// ParseLevel maps a logging.level value to a slog level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("logging.level must be debug, info, warn or error, got %q", level)
	}
}
