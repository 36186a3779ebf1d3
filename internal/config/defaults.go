package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultLogLevel            = "info"
	DefaultLogFormat           = "text"
	DefaultKeepAliveInterval   = 15 * time.Second
	DefaultActivityTimeout     = 30 * time.Second
	DefaultConnectTimeout      = 10 * time.Second
	DefaultBusBufferSize       = 1000
	DefaultFeedFlushInterval   = 500 * time.Millisecond
	DefaultFeedSampleInterval  = 1 * time.Second
	DefaultFeedCapacity        = 100
	DefaultTxTickInterval      = 1 * time.Second
	DefaultTxMinBatch          = 5
	DefaultTxMaxWait           = 15 * time.Second
	DefaultTxCapacity          = 100
	DefaultMilestoneCapacity   = 100
	DefaultMilestoneIdle       = 5 * time.Minute
	DefaultMilestoneCheck      = 5 * time.Second
	DefaultStorageType         = "memory"
	DefaultDBPort              = 5432
	DefaultDBSSLMode           = "prefer"
	DefaultMaxConns            = 10
	DefaultMinConns            = 2
	DefaultRedisKeyPrefix      = "explorer:milestones:"
	DefaultMongoDatabase       = "explorer"
	DefaultMongoCollection     = "milestones"
	DefaultServerPort          = 8080
	DefaultMetricsPath         = "/metrics"
	DefaultServerWriteTimeout  = 10 * time.Second
	DefaultNetworkTransport    = "websocket"
	DefaultStoragePath         = "data"
	DefaultApplicationName     = "explorer-feed"
)

func (c *Config) applyDefaults() {
	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}

	// Bus defaults
	if c.Bus.KeepAliveInterval == 0 {
		c.Bus.KeepAliveInterval = DefaultKeepAliveInterval
	}
	if c.Bus.ActivityTimeout == 0 {
		c.Bus.ActivityTimeout = DefaultActivityTimeout
	}
	if c.Bus.ConnectTimeout == 0 {
		c.Bus.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Bus.BufferSize == 0 {
		c.Bus.BufferSize = DefaultBusBufferSize
	}

	// Feed defaults
	if c.Feed.FlushInterval == 0 {
		c.Feed.FlushInterval = DefaultFeedFlushInterval
	}
	if c.Feed.SampleInterval == 0 {
		c.Feed.SampleInterval = DefaultFeedSampleInterval
	}
	if c.Feed.Capacity == 0 {
		c.Feed.Capacity = DefaultFeedCapacity
	}

	// Transactions defaults
	if c.Transactions.TickInterval == 0 {
		c.Transactions.TickInterval = DefaultTxTickInterval
	}
	if c.Transactions.MinBatch == 0 {
		c.Transactions.MinBatch = DefaultTxMinBatch
	}
	if c.Transactions.MaxWait == 0 {
		c.Transactions.MaxWait = DefaultTxMaxWait
	}
	if c.Transactions.Capacity == 0 {
		c.Transactions.Capacity = DefaultTxCapacity
	}

	// Milestones defaults
	if c.Milestones.Capacity == 0 {
		c.Milestones.Capacity = DefaultMilestoneCapacity
	}
	if c.Milestones.IdleTimeout == 0 {
		c.Milestones.IdleTimeout = DefaultMilestoneIdle
	}
	if c.Milestones.CheckInterval == 0 {
		c.Milestones.CheckInterval = DefaultMilestoneCheck
	}

	// Storage defaults
	if c.Storage.Type == "" {
		c.Storage.Type = DefaultStorageType
	}
	if c.Storage.Type == "file" && c.Storage.Path == "" {
		c.Storage.Path = DefaultStoragePath
	}
	if c.Storage.Type == "postgres" {
		applyDBDefaults(&c.Storage.Postgres)
		if c.Storage.Postgres.ApplicationName == "" && c.Instance.ID != "" {
			c.Storage.Postgres.ApplicationName = DefaultApplicationName + "/" + c.Instance.ID
		}
	}
	if c.Storage.Redis.KeyPrefix == "" {
		c.Storage.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}
	if c.Storage.Mongo.Database == "" {
		c.Storage.Mongo.Database = DefaultMongoDatabase
	}
	if c.Storage.Mongo.Collection == "" {
		c.Storage.Mongo.Collection = DefaultMongoCollection
	}

	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = DefaultServerPort
	}
	if c.Server.MetricsPath == "" {
		c.Server.MetricsPath = DefaultMetricsPath
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = DefaultServerWriteTimeout
	}

	// Network defaults
	for i := range c.Networks {
		if c.Networks[i].Transport == "" {
			c.Networks[i].Transport = DefaultNetworkTransport
		}
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
