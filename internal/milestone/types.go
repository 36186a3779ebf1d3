package milestone

import (
	"errors"
	"time"

	"github.com/iotaledger/explorer-sub006/internal/bus"
	"github.com/iotaledger/explorer-sub006/internal/store"
)

// Errors
var (
	ErrAlreadyRunning = errors.New("tracker already running")
	ErrNoCoordinator  = errors.New("legacy network requires a coordinator address")
)

// Source is the subset of the bus client the tracker subscribes on.
type Source interface {
	Subscribe(tag string, handler bus.Handler) string
	SubscribeAddress(address string, handler bus.Handler) (string, error)
	Unsubscribe(id string)
}

// Callback is notified of every accepted milestone.
type Callback func(store.MilestoneRecord) error

// Config holds tracker settings.
type Config struct {
	Network            string
	Protocol           string
	CoordinatorAddress string        // Legacy milestone source
	Capacity           int           // Retained milestones
	IdleTimeout        time.Duration // Silence before resubscribing
	CheckInterval      time.Duration // Idle check period
	PersistTimeout     time.Duration
}

// DefaultConfig returns the default tracker settings.
func DefaultConfig() Config {
	return Config{
		Capacity:       100,
		IdleTimeout:    5 * time.Minute,
		CheckInterval:  5 * time.Second,
		PersistTimeout: 10 * time.Second,
	}
}
