package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/iotaledger/explorer-sub006/internal/clock"
	"github.com/iotaledger/explorer-sub006/internal/metrics"
)

// TxAggregator is the transaction feed. It samples and checks flush
// thresholds once per tick, counts each hash once per flush window and
// tracks the summed value of pending transactions.
type TxAggregator struct {
	*core
	cfg    TxConfig
	source Source

	lifeMu  sync.Mutex
	running bool
	busIDs  []string
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewTxAggregator creates an idle TxAggregator reading from source.
func NewTxAggregator(cfg TxConfig, source Source, profile Profile, clk clock.Clock, m *metrics.Metrics, logger *slog.Logger) *TxAggregator {
	def := DefaultTxConfig()
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = def.TickInterval
	}
	if cfg.MinBatch <= 0 {
		cfg.MinBatch = def.MinBatch
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = def.MaxWait
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = def.Capacity
	}

	t := &TxAggregator{
		core:   newCore(FeedTransactions, cfg.Network, cfg.Capacity, profile, true, clk, m, logger),
		cfg:    cfg,
		source: source,
	}
	t.lastFlush = t.clock.Now()
	return t
}

// Start subscribes on the source and begins ticking.
func (t *TxAggregator) Start(ctx context.Context) error {
	t.lifeMu.Lock()
	defer t.lifeMu.Unlock()

	if t.running {
		return ErrAlreadyRunning
	}
	t.running = true
	t.ctx, t.cancel = context.WithCancel(ctx)
	t.busIDs = t.subscribeSource(t.source)

	t.mu.Lock()
	t.lastFlush = t.clock.Now()
	t.mu.Unlock()

	t.wg.Add(1)
	go t.run()

	t.logger.Info("transaction aggregator started",
		"tick_interval", t.cfg.TickInterval,
		"min_batch", t.cfg.MinBatch,
		"max_wait", t.cfg.MaxWait,
	)
	return nil
}

// Stop unsubscribes from the source and halts ticking.
func (t *TxAggregator) Stop(ctx context.Context) error {
	t.lifeMu.Lock()
	defer t.lifeMu.Unlock()

	if !t.running {
		return nil
	}
	t.running = false

	for _, id := range t.busIDs {
		t.source.Unsubscribe(id)
	}
	t.busIDs = nil
	t.cancel()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.logger.Info("transaction aggregator stopped")
	case <-ctx.Done():
		t.logger.Warn("transaction aggregator stop timed out")
	}
	return nil
}

// Reset stops the aggregator and clears its state.
func (t *TxAggregator) Reset(ctx context.Context) error {
	if err := t.Stop(ctx); err != nil {
		return err
	}
	t.reset()
	return nil
}

// Running reports whether the aggregator is ticking.
func (t *TxAggregator) Running() bool {
	t.lifeMu.Lock()
	defer t.lifeMu.Unlock()
	return t.running
}

// Subscribe registers cb and schedules an immediate delivery of the
// current state to it alone.
func (t *TxAggregator) Subscribe(cb Callback) string {
	id, _ := t.subs.Add(subscriberKey, cb)

	// Stop waits on wg while holding lifeMu.
	t.lifeMu.Lock()
	t.wg.Add(1)
	t.lifeMu.Unlock()
	go func() {
		defer t.wg.Done()
		t.flushTo(id)
	}()
	return id
}

// Unsubscribe removes a snapshot subscriber.
func (t *TxAggregator) Unsubscribe(id string) {
	t.subs.Remove(id)
}

// Stats returns the rolling transaction rates.
func (t *TxAggregator) Stats() Stats {
	return t.stats()
}

// Window returns the current rate window.
func (t *TxAggregator) Window() RateWindow {
	return t.window()
}

func (t *TxAggregator) run() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case <-ticker.C:
			t.tick()
		}
	}
}

// tick samples, then flushes if a threshold is met.
func (t *TxAggregator) tick() {
	t.sample()
	if t.shouldFlush() {
		t.broadcast()
	}
}

func (t *TxAggregator) shouldFlush() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.pending) >= t.cfg.MinBatch {
		return true
	}
	// Metadata for items not in this window still waits for MaxWait.
	if len(t.pending) == 0 && len(t.metadata) == 0 {
		return false
	}
	return t.clock.Now().Sub(t.lastFlush) > t.cfg.MaxWait
}
