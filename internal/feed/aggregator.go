// Package feed turns the high-frequency event stream of a bus client into
// rolling rate statistics and periodic batched snapshots.
//
// Two aggregators share the same state handling:
//   - Aggregator: samples on SampleInterval, flushes on FlushInterval
//   - TxAggregator: one tick for both, deduplicates by hash and flushes on
//     count-or-time thresholds
//
// Flushes clear the shared pending buffer for everyone. A new subscriber
// gets a one-off copy of the current state without clearing it.
package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/iotaledger/explorer-sub006/internal/clock"
	"github.com/iotaledger/explorer-sub006/internal/metrics"
)

// Aggregator is the item feed aggregator of one network.
type Aggregator struct {
	*core
	cfg    Config
	source Source

	lifeMu  sync.Mutex
	running bool
	busIDs  []string
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewAggregator creates an idle Aggregator reading from source.
func NewAggregator(cfg Config, source Source, profile Profile, clk clock.Clock, m *metrics.Metrics, logger *slog.Logger) *Aggregator {
	def := DefaultConfig()
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = def.SampleInterval
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = def.Capacity
	}

	return &Aggregator{
		core:   newCore(FeedItems, cfg.Network, cfg.Capacity, profile, false, clk, m, logger),
		cfg:    cfg,
		source: source,
	}
}

// Start subscribes on the source and begins sampling and flushing.
func (a *Aggregator) Start(ctx context.Context) error {
	a.lifeMu.Lock()
	defer a.lifeMu.Unlock()

	if a.running {
		return ErrAlreadyRunning
	}
	a.running = true
	a.ctx, a.cancel = context.WithCancel(ctx)
	a.busIDs = a.subscribeSource(a.source)

	a.wg.Add(1)
	go a.run()

	a.logger.Info("feed aggregator started",
		"sample_interval", a.cfg.SampleInterval,
		"flush_interval", a.cfg.FlushInterval,
		"capacity", a.cfg.Capacity,
	)
	return nil
}

// Stop unsubscribes from the source and halts the schedules.
func (a *Aggregator) Stop(ctx context.Context) error {
	a.lifeMu.Lock()
	defer a.lifeMu.Unlock()

	if !a.running {
		return nil
	}
	a.running = false

	for _, id := range a.busIDs {
		a.source.Unsubscribe(id)
	}
	a.busIDs = nil
	a.cancel()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		a.logger.Info("feed aggregator stopped")
	case <-ctx.Done():
		a.logger.Warn("feed aggregator stop timed out")
	}
	return nil
}

// Reset stops the aggregator and clears counters, samples, pending items
// and metadata. Subscribers are kept.
func (a *Aggregator) Reset(ctx context.Context) error {
	if err := a.Stop(ctx); err != nil {
		return err
	}
	a.reset()
	return nil
}

// Running reports whether the schedules are active.
func (a *Aggregator) Running() bool {
	a.lifeMu.Lock()
	defer a.lifeMu.Unlock()
	return a.running
}

// Subscribe registers cb for snapshots and schedules an immediate
// delivery of the current state to it alone.
func (a *Aggregator) Subscribe(cb Callback) string {
	id, _ := a.subs.Add(subscriberKey, cb)

	// Stop waits on wg while holding lifeMu.
	a.lifeMu.Lock()
	a.wg.Add(1)
	a.lifeMu.Unlock()
	go func() {
		defer a.wg.Done()
		a.flushTo(id)
	}()
	return id
}

// Unsubscribe removes a snapshot subscriber. Unknown ids are ignored.
func (a *Aggregator) Unsubscribe(id string) {
	a.subs.Remove(id)
}

// Stats returns the rolling rates.
func (a *Aggregator) Stats() Stats {
	return a.stats()
}

// Window returns the current rate window.
func (a *Aggregator) Window() RateWindow {
	return a.window()
}

func (a *Aggregator) run() {
	defer a.wg.Done()

	sampleTicker := time.NewTicker(a.cfg.SampleInterval)
	defer sampleTicker.Stop()
	flushTicker := time.NewTicker(a.cfg.FlushInterval)
	defer flushTicker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-sampleTicker.C:
			a.sample()
		case <-flushTicker.C:
			a.broadcast()
		}
	}
}
