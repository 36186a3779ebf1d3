package feed

import (
	"errors"
	"time"
)

// Errors
var (
	ErrAlreadyRunning = errors.New("aggregator already running")
)

// Feed names used as metric labels.
const (
	FeedItems        = "items"
	FeedTransactions = "transactions"
)

// Sample is one interval's counters.
type Sample struct {
	Timestamp      time.Time
	ItemCount      int
	ConfirmedCount int
}

// ItemMetadata is what is known about one item. Fields are only ever
// filled in, never overwritten.
type ItemMetadata struct {
	Milestone *uint32 `json:"milestone,omitempty"`
	Confirmed *uint32 `json:"confirmed,omitempty"`
	Timestamp *int64  `json:"timestamp,omitempty"`
	Value     *int64  `json:"value,omitempty"`
}

// Merge fills the fields of m that are unset with those of other.
func (m *ItemMetadata) Merge(other ItemMetadata) {
	if m.Milestone == nil && other.Milestone != nil {
		v := *other.Milestone
		m.Milestone = &v
	}
	if m.Confirmed == nil && other.Confirmed != nil {
		v := *other.Confirmed
		m.Confirmed = &v
	}
	if m.Timestamp == nil && other.Timestamp != nil {
		v := *other.Timestamp
		m.Timestamp = &v
	}
	if m.Value == nil && other.Value != nil {
		v := *other.Value
		m.Value = &v
	}
}

// RateWindow summarises the retained samples. Start and End are unix
// milliseconds of the oldest and newest sample; counts are newest first.
type RateWindow struct {
	Start           int64 `json:"start"`
	End             int64 `json:"end"`
	ItemCounts      []int `json:"itemCounts"`
	ConfirmedCounts []int `json:"confirmedCounts"`
}

// Snapshot is the message delivered to feed subscribers.
type Snapshot struct {
	SubscriptionID string                  `json:"subscriptionId"`
	Items          []string                `json:"items"`
	ItemsMetadata  map[string]ItemMetadata `json:"itemsMetadata"`
	RateWindow     RateWindow              `json:"rateWindow"`
	TotalValue     int64                   `json:"totalValue,omitempty"`
}

// Callback receives snapshots. A returned error is logged.
type Callback func(Snapshot) error

// Stats are the rolling rates over the retained window.
type Stats struct {
	ItemsPerSecond          float64 `json:"itemsPerSecond"`
	ConfirmedItemsPerSecond float64 `json:"confirmedItemsPerSecond"`
	ConfirmationRate        float64 `json:"confirmationRate"`
}

// Config holds configuration for the item Aggregator.
type Config struct {
	Network        string
	SampleInterval time.Duration // Default: 1s
	FlushInterval  time.Duration // Default: 500ms
	Capacity       int           // Ring capacity (default: 100)
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		SampleInterval: time.Second,
		FlushInterval:  500 * time.Millisecond,
		Capacity:       100,
	}
}

// TxConfig holds configuration for the TxAggregator.
type TxConfig struct {
	Network      string
	TickInterval time.Duration // Sampling and threshold check cadence (default: 1s)
	MinBatch     int           // Flush once this many items are pending (default: 5)
	MaxWait      time.Duration // Flush anything pending after this long (default: 15s)
	Capacity     int           // Ring capacity (default: 100)
}

// DefaultTxConfig returns default configuration.
func DefaultTxConfig() TxConfig {
	return TxConfig{
		TickInterval: time.Second,
		MinBatch:     5,
		MaxWait:      15 * time.Second,
		Capacity:     100,
	}
}
