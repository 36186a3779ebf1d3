// Package milestone tracks the most recent milestones of a network.
//
// The tracker keeps a bounded newest-first list, accepts only strictly
// increasing indexes and writes the list through to a MilestoneStore in
// the background. Persistence failures are logged and counted; the
// in-memory list is never rolled back.
//
// If no milestone arrives within IdleTimeout the tracker drops and
// re-creates its bus subscription.
package milestone

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/iotaledger/explorer-sub006/internal/clock"
	"github.com/iotaledger/explorer-sub006/internal/event"
	"github.com/iotaledger/explorer-sub006/internal/metrics"
	"github.com/iotaledger/explorer-sub006/internal/registry"
	"github.com/iotaledger/explorer-sub006/internal/store"
)

const subscriberKey = "milestones"

// Tracker is the milestone tracker of one network.
type Tracker struct {
	cfg     Config
	source  Source
	store   store.MilestoneStore
	clock   clock.Clock
	metrics *metrics.Metrics
	logger  *slog.Logger

	subs *registry.Registry[Callback]

	mu           sync.Mutex
	milestones   []store.MilestoneRecord
	lastActivity time.Time
	busID        string
	active       bool
	gen          uint64 // bumped on every Init and Stop

	persistCh chan *store.MilestoneSet

	lifeMu  sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewTracker creates an idle tracker. A nil store disables persistence.
func NewTracker(cfg Config, source Source, st store.MilestoneStore, clk clock.Clock, m *metrics.Metrics, logger *slog.Logger) *Tracker {
	def := DefaultConfig()
	if cfg.Capacity <= 0 {
		cfg.Capacity = def.Capacity
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = def.IdleTimeout
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = def.CheckInterval
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = def.PersistTimeout
	}
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Tracker{
		cfg:       cfg,
		source:    source,
		store:     st,
		clock:     clk,
		metrics:   m,
		logger:    logger.With("component", "milestones", "network", cfg.Network),
		subs:      registry.New[Callback](),
		persistCh: make(chan *store.MilestoneSet, 1),
	}
}

// Init loads the persisted list, subscribes on the bus and starts the
// idle check. Store errors leave the list empty.
func (t *Tracker) Init(ctx context.Context) error {
	t.lifeMu.Lock()
	defer t.lifeMu.Unlock()

	if t.running {
		return ErrAlreadyRunning
	}

	t.load(ctx)
	id, err := t.subscribe()
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.busID = id
	t.active = true
	t.gen++
	t.lastActivity = t.clock.Now()
	t.mu.Unlock()

	t.running = true
	t.ctx, t.cancel = context.WithCancel(context.Background())

	t.wg.Add(2)
	go t.idleLoop()
	go t.persistLoop()

	t.logger.Info("milestone tracker started",
		"loaded", len(t.Milestones()),
		"idle_timeout", t.cfg.IdleTimeout,
	)
	return nil
}

// Stop drops the subscription and halts the background loops. A pending
// write is flushed before the persist loop exits.
func (t *Tracker) Stop(ctx context.Context) error {
	t.lifeMu.Lock()
	defer t.lifeMu.Unlock()

	if !t.running {
		return nil
	}
	t.running = false

	t.mu.Lock()
	t.active = false
	t.gen++
	t.mu.Unlock()
	t.unsubscribe()
	t.cancel()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.logger.Info("milestone tracker stopped")
	case <-ctx.Done():
		t.logger.Warn("milestone tracker stop timed out")
	}
	return nil
}

// Reset stops the tracker, discards the in-memory list and initializes
// it again from the store.
func (t *Tracker) Reset(ctx context.Context) error {
	if err := t.Stop(ctx); err != nil {
		return err
	}
	t.mu.Lock()
	t.milestones = nil
	t.mu.Unlock()
	return t.Init(ctx)
}

// Running reports whether the tracker is subscribed and checking.
func (t *Tracker) Running() bool {
	t.lifeMu.Lock()
	defer t.lifeMu.Unlock()
	return t.running
}

// Milestones returns a copy of the list, newest first.
func (t *Tracker) Milestones() []store.MilestoneRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]store.MilestoneRecord, len(t.milestones))
	copy(out, t.milestones)
	return out
}

// Latest returns the newest milestone.
func (t *Tracker) Latest() (store.MilestoneRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.milestones) == 0 {
		return store.MilestoneRecord{}, false
	}
	return t.milestones[0], true
}

// Subscribe registers cb for accepted milestones.
func (t *Tracker) Subscribe(cb Callback) string {
	id, _ := t.subs.Add(subscriberKey, cb)
	return id
}

// Unsubscribe removes a callback. Unknown ids are ignored.
func (t *Tracker) Unsubscribe(id string) {
	t.subs.Remove(id)
}

func (t *Tracker) load(ctx context.Context) {
	if t.store == nil {
		return
	}
	set, err := t.store.Get(ctx, t.cfg.Network)
	if err != nil {
		t.logger.Info("no persisted milestones", "error", err)
		return
	}

	list := normalize(set.Indexes, t.cfg.Capacity)
	if len(list) != len(set.Indexes) {
		t.logger.Warn("persisted milestones were not strictly descending",
			"stored", len(set.Indexes),
			"kept", len(list),
		)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.milestones = list
	if len(t.milestones) > 0 {
		t.metrics.SetLatestMilestone(t.cfg.Network, t.milestones[0].MilestoneIndex)
	}
}

// normalize orders recs newest first, drops repeated indexes and caps
// the result. recs is not modified.
func normalize(recs []store.MilestoneRecord, capacity int) []store.MilestoneRecord {
	out := slices.Clone(recs)
	slices.SortStableFunc(out, func(a, b store.MilestoneRecord) int {
		switch {
		case a.MilestoneIndex > b.MilestoneIndex:
			return -1
		case a.MilestoneIndex < b.MilestoneIndex:
			return 1
		}
		return 0
	})
	out = slices.CompactFunc(out, func(a, b store.MilestoneRecord) bool {
		return a.MilestoneIndex == b.MilestoneIndex
	})
	if len(out) > capacity {
		out = out[:capacity]
	}
	return out
}

func (t *Tracker) subscribe() (string, error) {
	var (
		id  string
		err error
	)
	switch t.cfg.Protocol {
	case event.ProtocolLegacy:
		if t.cfg.CoordinatorAddress == "" {
			return "", ErrNoCoordinator
		}
		id, err = t.source.SubscribeAddress(t.cfg.CoordinatorAddress, t.handle)
		if err != nil {
			return "", fmt.Errorf("subscribe coordinator: %w", err)
		}
	case event.ProtocolChrysalis:
		id = t.source.Subscribe(event.TopicMilestoneLatest, t.handle)
	default:
		return "", fmt.Errorf("%w: %q", event.ErrUnknownProtocol, t.cfg.Protocol)
	}
	return id, nil
}

func (t *Tracker) unsubscribe() {
	t.mu.Lock()
	id := t.busID
	t.busID = ""
	t.mu.Unlock()

	if id != "" {
		t.source.Unsubscribe(id)
	}
}

func (t *Tracker) handle(ev event.Event) error {
	var rec store.MilestoneRecord
	switch e := ev.(type) {
	case *event.AddressActivity:
		rec = store.MilestoneRecord{ID: e.Hash, MilestoneIndex: e.MilestoneIndex}
	case *event.MilestoneInfo:
		rec = store.MilestoneRecord{ID: e.MilestoneID, MilestoneIndex: e.Index}
	default:
		return nil
	}
	t.accept(rec)
	return nil
}

// accept adds rec if it is newer than the head. Returns whether it was added.
func (t *Tracker) accept(rec store.MilestoneRecord) bool {
	t.mu.Lock()
	t.lastActivity = t.clock.Now()
	if len(t.milestones) > 0 && rec.MilestoneIndex <= t.milestones[0].MilestoneIndex {
		t.mu.Unlock()
		return false
	}

	next := make([]store.MilestoneRecord, 0, min(len(t.milestones)+1, t.cfg.Capacity))
	next = append(next, rec)
	for _, m := range t.milestones {
		if len(next) == t.cfg.Capacity {
			break
		}
		next = append(next, m)
	}
	t.milestones = next
	t.queuePersistLocked(&store.MilestoneSet{Network: t.cfg.Network, Indexes: next})
	t.mu.Unlock()

	t.metrics.SetLatestMilestone(t.cfg.Network, rec.MilestoneIndex)
	t.notify(rec)
	return true
}

// queuePersistLocked replaces any queued write with set. Callers hold mu,
// so the channel has a single sender.
func (t *Tracker) queuePersistLocked(set *store.MilestoneSet) {
	if t.store == nil {
		return
	}
	select {
	case t.persistCh <- set:
	default:
		select {
		case <-t.persistCh:
		default:
		}
		t.persistCh <- set
	}
}

func (t *Tracker) notify(rec store.MilestoneRecord) {
	for _, sub := range t.subs.Get(subscriberKey) {
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.logger.Error("milestone subscriber panicked", "subscription", sub.ID, "panic", r)
				}
			}()
			if err := sub.Callback(rec); err != nil {
				t.logger.Warn("milestone subscriber failed", "subscription", sub.ID, "error", err)
			}
		}()
	}
}

func (t *Tracker) persistLoop() {
	defer t.wg.Done()

	for {
		select {
		case <-t.ctx.Done():
			select {
			case set := <-t.persistCh:
				t.persist(set)
			default:
			}
			return
		case set := <-t.persistCh:
			t.persist(set)
		}
	}
}

func (t *Tracker) persist(set *store.MilestoneSet) {
	ctx, cancel := context.WithTimeout(context.Background(), t.cfg.PersistTimeout)
	defer cancel()

	if err := t.store.Set(ctx, set); err != nil {
		t.metrics.PersistError(t.cfg.Network)
		t.logger.Warn("persist milestones failed", "error", err, "count", len(set.Indexes))
	}
}

func (t *Tracker) idleLoop() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case <-ticker.C:
			t.checkIdle()
		}
	}
}

// checkIdle resubscribes when the source has been silent for longer than
// IdleTimeout. The in-memory list is kept. A subscription made after a
// concurrent Stop is dropped again instead of installed.
func (t *Tracker) checkIdle() bool {
	t.mu.Lock()
	idle := t.clock.Now().Sub(t.lastActivity)
	active, gen := t.active, t.gen
	t.mu.Unlock()

	if !active || idle <= t.cfg.IdleTimeout {
		return false
	}

	t.logger.Warn("no milestones received, resubscribing", "idle", idle)
	t.unsubscribe()
	id, err := t.subscribe()
	if err != nil {
		t.logger.Error("resubscribe failed", "error", err)
		return true
	}

	t.mu.Lock()
	if !t.active || t.gen != gen {
		t.mu.Unlock()
		t.source.Unsubscribe(id)
		return true
	}
	t.busID = id
	t.lastActivity = t.clock.Now()
	t.mu.Unlock()
	return true
}
