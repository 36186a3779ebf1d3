package config

import "time"

// Config is the root configuration for an explorer-feed instance.
type Config struct {
	Instance     InstanceConfig     `yaml:"instance"`
	Logging      LoggingConfig      `yaml:"logging"`
	Bus          BusConfig          `yaml:"bus"`
	Feed         FeedConfig         `yaml:"feed"`
	Transactions TransactionsConfig `yaml:"transactions"`
	Milestones   MilestonesConfig   `yaml:"milestones"`
	Storage      StorageConfig      `yaml:"storage"`
	Server       ServerConfig       `yaml:"server"`
	Networks     []NetworkConfig    `yaml:"networks"`
}

// InstanceConfig identifies this instance.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// BusConfig holds event bus client settings shared by every network.
type BusConfig struct {
	KeepAliveInterval time.Duration `yaml:"keep_alive_interval"`
	ActivityTimeout   time.Duration `yaml:"activity_timeout"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout"`
	BufferSize        int           `yaml:"buffer_size"`
}

// FeedConfig holds item aggregator settings.
type FeedConfig struct {
	FlushInterval  time.Duration `yaml:"flush_interval"`
	SampleInterval time.Duration `yaml:"sample_interval"`
	Capacity       int           `yaml:"capacity"`
}

// TransactionsConfig holds transaction aggregator settings.
type TransactionsConfig struct {
	TickInterval time.Duration `yaml:"tick_interval"`
	MinBatch     int           `yaml:"min_batch"`
	MaxWait      time.Duration `yaml:"max_wait"`
	Capacity     int           `yaml:"capacity"`
}

// MilestonesConfig holds milestone tracker settings.
type MilestonesConfig struct {
	Capacity      int           `yaml:"capacity"`
	IdleTimeout   time.Duration `yaml:"idle_timeout"`
	CheckInterval time.Duration `yaml:"check_interval"`
}

// StorageConfig selects and configures the milestone store.
type StorageConfig struct {
	Type     string      `yaml:"type"` // memory, file, postgres, redis, mongo
	Path     string      `yaml:"path"` // Directory for the file store
	Postgres DBConfig    `yaml:"postgres"`
	Redis    RedisConfig `yaml:"redis"`
	Mongo    MongoConfig `yaml:"mongo"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`

	// ApplicationName is reported to the server in pg_stat_activity.
	// Defaults to explorer-feed/<instance.id>.
	ApplicationName string `yaml:"application_name"`
}

// RedisConfig holds a Redis connection.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// MongoConfig holds a MongoDB connection.
type MongoConfig struct {
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

// ServerConfig holds HTTP surface settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`
	MetricsPath  string        `yaml:"metrics_path"`
	WriteTimeout time.Duration `yaml:"write_timeout"` // Per-message deadline on feed sockets
}

// NetworkConfig describes one monitored network.
type NetworkConfig struct {
	Name               string   `yaml:"name"`
	Protocol           string   `yaml:"protocol"`  // legacy or chrysalis
	Transport          string   `yaml:"transport"` // websocket or nats
	Endpoint           string   `yaml:"endpoint"`
	CoordinatorAddress string   `yaml:"coordinator_address"` // Required for legacy
	Topics             []string `yaml:"topics"`              // Overrides protocol defaults
}
