package feed

import (
	"log/slog"
	"sync"
	"time"

	"github.com/iotaledger/explorer-sub006/internal/clock"
	"github.com/iotaledger/explorer-sub006/internal/event"
	"github.com/iotaledger/explorer-sub006/internal/metrics"
	"github.com/iotaledger/explorer-sub006/internal/registry"
)

// subscriberKey is the single registry bucket feed subscribers share.
const subscriberKey = "snapshot"

// core is the aggregation state shared by both aggregators. All fields
// below mu are guarded by it.
type core struct {
	feed    string
	network string
	profile Profile
	dedupe  bool
	clock   clock.Clock
	metrics *metrics.Metrics
	logger  *slog.Logger

	subs *registry.Registry[Callback]

	mu             sync.Mutex
	ring           *Ring
	itemCount      int
	confirmedCount int
	pending        []string
	seen           map[string]struct{}
	metadata       map[string]ItemMetadata
	value          int64
	lastFlush      time.Time
}

func newCore(feed, network string, capacity int, profile Profile, dedupe bool, clk clock.Clock, m *metrics.Metrics, logger *slog.Logger) *core {
	if logger == nil {
		logger = slog.Default()
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &core{
		feed:     feed,
		network:  network,
		profile:  profile,
		dedupe:   dedupe,
		clock:    clk,
		metrics:  m,
		logger:   logger.With("component", "feed", "feed", feed),
		subs:     registry.New[Callback](),
		ring:     NewRing(capacity),
		seen:     make(map[string]struct{}),
		metadata: make(map[string]ItemMetadata),
	}
}

// handle is the bus handler for every profile tag.
func (c *core) handle(ev event.Event) error {
	obs, ok := c.profile.Extract(ev)
	if !ok {
		return nil
	}
	c.observe(obs)
	return nil
}

func (c *core) observe(obs Observation) {
	if obs.ID == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch obs.Kind {
	case KindArrival:
		if c.dedupe {
			if _, dup := c.seen[obs.ID]; dup {
				return
			}
			c.seen[obs.ID] = struct{}{}
		}
		c.itemCount++
		c.pending = append(c.pending, obs.ID)

		var md ItemMetadata
		if obs.Timestamp != 0 {
			ts := obs.Timestamp
			md.Timestamp = &ts
		}
		if obs.HasValue {
			v := obs.Value
			md.Value = &v
			c.value += obs.Value
		}
		if md != (ItemMetadata{}) {
			c.mergeLocked(obs.ID, md)
		}

	case KindConfirmation:
		c.confirmedCount++
		idx := obs.Milestone
		c.mergeLocked(obs.ID, ItemMetadata{Confirmed: &idx})

	case KindMilestone:
		idx := obs.Milestone
		md := ItemMetadata{Milestone: &idx}
		if obs.Timestamp != 0 {
			ts := obs.Timestamp
			md.Timestamp = &ts
		}
		c.mergeLocked(obs.ID, md)
	}
}

func (c *core) mergeLocked(id string, md ItemMetadata) {
	cur := c.metadata[id]
	cur.Merge(md)
	c.metadata[id] = cur
}

// sample pushes the interval counters into the ring and resets them.
func (c *core) sample() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ring.Push(Sample{
		Timestamp:      c.clock.Now(),
		ItemCount:      c.itemCount,
		ConfirmedCount: c.confirmedCount,
	})
	c.itemCount = 0
	c.confirmedCount = 0
}

// snapshotLocked copies the shared state. Caller holds c.mu.
func (c *core) snapshotLocked() Snapshot {
	items := make([]string, len(c.pending))
	copy(items, c.pending)

	md := make(map[string]ItemMetadata, len(c.metadata))
	for k, v := range c.metadata {
		md[k] = v
	}

	return Snapshot{
		Items:         items,
		ItemsMetadata: md,
		RateWindow:    Window(c.ring.Samples()),
		TotalValue:    c.value,
	}
}

// broadcast delivers the shared state to every subscriber and clears it.
// It returns the number of items delivered, or -1 if there was nothing to
// send.
func (c *core) broadcast() int {
	c.mu.Lock()
	if len(c.pending) == 0 && len(c.metadata) == 0 {
		c.mu.Unlock()
		return -1
	}

	snap := c.snapshotLocked()
	c.pending = nil
	c.metadata = make(map[string]ItemMetadata)
	c.seen = make(map[string]struct{})
	c.value = 0
	c.lastFlush = c.clock.Now()
	c.mu.Unlock()

	for _, sub := range c.subs.Get(subscriberKey) {
		c.deliver(sub, snap)
	}

	c.metrics.Flushed(c.network, c.feed, len(snap.Items))
	return len(snap.Items)
}

// flushTo delivers the current state to one subscriber without clearing
// it.
func (c *core) flushTo(id string) {
	sub, ok := c.subs.Lookup(id)
	if !ok {
		return
	}

	c.mu.Lock()
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.deliver(sub, snap)
}

func (c *core) deliver(sub registry.Entry[Callback], snap Snapshot) {
	snap.SubscriptionID = sub.ID

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("subscriber panicked", "id", sub.ID, "panic", r)
		}
	}()

	if err := sub.Callback(snap); err != nil {
		c.logger.Warn("subscriber failed", "id", sub.ID, "error", err)
	}
}

func (c *core) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ring.Clear()
	c.itemCount = 0
	c.confirmedCount = 0
	c.pending = nil
	c.seen = make(map[string]struct{})
	c.metadata = make(map[string]ItemMetadata)
	c.value = 0
	c.lastFlush = c.clock.Now()
}

func (c *core) stats() Stats {
	c.mu.Lock()
	samples := c.ring.Samples()
	c.mu.Unlock()
	return ComputeStats(samples)
}

func (c *core) window() RateWindow {
	c.mu.Lock()
	samples := c.ring.Samples()
	c.mu.Unlock()
	return Window(samples)
}

func (c *core) pendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// subscribeSource registers the core on every profile tag.
func (c *core) subscribeSource(src Source) []string {
	ids := make([]string, 0, len(c.profile.Tags))
	for _, tag := range c.profile.Tags {
		ids = append(ids, src.Subscribe(tag, c.handle))
	}
	return ids
}
