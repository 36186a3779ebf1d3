// Package bus implements the event bus client: the single live link from a
// network stack to its node's telemetry endpoint.
//
// The client owns one transport at a time, decodes inbound frames into
// typed events and dispatches them to handlers registered per tag. A
// keep-alive loop reconnects when the link has been silent for longer than
// the activity timeout, since pub/sub endpoints do not reliably signal a
// half-open connection.
package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/iotaledger/explorer-sub006/internal/clock"
	"github.com/iotaledger/explorer-sub006/internal/event"
	"github.com/iotaledger/explorer-sub006/internal/metrics"
	"github.com/iotaledger/explorer-sub006/internal/registry"
	"github.com/iotaledger/explorer-sub006/internal/transport"
)

// Client is the event bus client for one network.
type Client struct {
	cfg     Config
	factory transport.Factory
	decoder event.Decoder
	clock   clock.Clock
	metrics *metrics.Metrics
	logger  *slog.Logger

	subs *registry.Registry[Handler]

	// connMu serializes Connect and Disconnect.
	connMu sync.Mutex

	mu           sync.Mutex
	tr           transport.Transport
	stop         chan struct{} // Closed to stop the current read loop
	lastActivity time.Time
	connects     int64
	reconnects   int64
	dispatched   int64
	dropped      int64
	handlerErrs  int64

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures optional Client collaborators.
type Option func(*Client)

// WithClock sets the clock used for activity tracking.
func WithClock(c clock.Clock) Option {
	return func(cl *Client) { cl.clock = c }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(cl *Client) { cl.metrics = m }
}

// NewClient creates a disconnected Client.
func NewClient(cfg Config, factory transport.Factory, decoder event.Decoder, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.KeepAliveInterval <= 0 {
		cfg.KeepAliveInterval = def.KeepAliveInterval
	}
	if cfg.ActivityTimeout <= 0 {
		cfg.ActivityTimeout = def.ActivityTimeout
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}

	c := &Client{
		cfg:     cfg,
		factory: factory,
		decoder: decoder,
		clock:   clock.Real(),
		logger:  logger.With("component", "bus"),
		subs:    registry.New[Handler](),
		ctx:     context.Background(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start connects and begins the keep-alive loop.
func (c *Client) Start(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(ctx)

	c.Connect(c.ctx)

	c.wg.Add(1)
	go c.keepAliveLoop()

	c.logger.Info("bus client started",
		"keep_alive_interval", c.cfg.KeepAliveInterval,
		"activity_timeout", c.cfg.ActivityTimeout,
	)
	return nil
}

// Stop halts the keep-alive loop and disconnects.
func (c *Client) Stop(ctx context.Context) error {
	c.logger.Info("stopping bus client")

	if c.cancel != nil {
		c.cancel()
	}
	c.Disconnect()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("bus client stopped")
	case <-ctx.Done():
		c.logger.Warn("bus client stop timed out")
	}
	return nil
}

// Connect opens the transport and subscribes every configured topic plus
// each tag that currently has handlers. It is a no-op while connected.
// Failures are logged and leave the client disconnected.
func (c *Client) Connect(ctx context.Context) {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	c.mu.Lock()
	connected := c.tr != nil
	c.mu.Unlock()
	if connected {
		return
	}

	if err := c.connect(ctx); err != nil {
		c.logger.Error("connect failed", "error", err)
		c.disconnect()
	}
}

func (c *Client) connect(ctx context.Context) error {
	tr := c.factory()

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	if err := tr.Connect(dialCtx); err != nil {
		tr.Close()
		return fmt.Errorf("dial: %w", err)
	}

	stop := make(chan struct{})

	c.mu.Lock()
	c.tr = tr
	c.stop = stop
	c.lastActivity = c.clock.Now()
	c.connects++
	topics := c.topicsLocked()
	c.mu.Unlock()

	c.wg.Add(1)
	go c.readLoop(tr, stop)

	if err := tr.Subscribe(topics...); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	c.metrics.SetConnected(c.cfg.Network, true)
	c.logger.Info("bus connected", "topics", len(topics))
	return nil
}

// Disconnect unsubscribes all topics and closes the transport. It is a
// no-op when not connected.
func (c *Client) Disconnect() {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	c.disconnect()
}

func (c *Client) disconnect() {
	c.mu.Lock()
	tr, stop := c.tr, c.stop
	if tr == nil {
		c.mu.Unlock()
		return
	}
	c.tr, c.stop = nil, nil
	topics := c.topicsLocked()
	c.mu.Unlock()

	close(stop)

	if tr.IsConnected() {
		if err := tr.Unsubscribe(topics...); err != nil {
			c.logger.Debug("unsubscribe on disconnect failed", "error", err)
		}
	}
	if err := tr.Close(); err != nil {
		c.logger.Debug("transport close failed", "error", err)
	}

	c.metrics.SetConnected(c.cfg.Network, false)
	c.logger.Info("bus disconnected")
}

// disconnectIf tears down tr only if it is still the live transport.
func (c *Client) disconnectIf(tr transport.Transport) {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	c.mu.Lock()
	current := c.tr
	c.mu.Unlock()
	if current == tr {
		c.disconnect()
	}
}

// IsConnected reports whether a transport is held.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tr != nil
}

// Subscribe registers handler under tag and returns the subscription id.
// Handlers sharing a tag are called in registration order.
func (c *Client) Subscribe(tag string, handler Handler) string {
	id, first := c.subs.Add(tag, handler)

	c.mu.Lock()
	tr := c.tr
	configured := c.isConfigured(tag)
	c.mu.Unlock()

	if first && tr != nil && !configured {
		if err := tr.Subscribe(tag); err != nil {
			c.logger.Warn("live subscribe failed", "tag", event.Family(tag), "error", err)
		}
	}

	c.logger.Debug("subscribed", "tag", event.Family(tag), "id", id)
	return id
}

// SubscribeAddress registers handler for activity on an 81-tryte address.
func (c *Client) SubscribeAddress(address string, handler Handler) (string, error) {
	if !event.IsAddress(address) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	return c.Subscribe(address, handler), nil
}

// Unsubscribe removes a subscription. Unknown ids are ignored.
func (c *Client) Unsubscribe(id string) {
	tag, emptied, ok := c.subs.Remove(id)
	if !ok {
		return
	}

	c.mu.Lock()
	tr := c.tr
	configured := c.isConfigured(tag)
	c.mu.Unlock()

	if emptied && tr != nil && !configured {
		if err := tr.Unsubscribe(tag); err != nil {
			c.logger.Debug("live unsubscribe failed", "tag", event.Family(tag), "error", err)
		}
	}
}

// HandleFrame decodes a frame and dispatches it to every handler of its
// tag. Frames without handlers are dropped before decoding.
func (c *Client) HandleFrame(frame transport.Frame) {
	c.mu.Lock()
	c.lastActivity = c.clock.Now()
	c.mu.Unlock()

	tag, err := c.decoder.Tag(frame)
	if err != nil {
		c.drop(metrics.DropUndecodable)
		c.logger.Debug("dropping frame without tag", "error", err)
		return
	}
	c.metrics.FrameReceived(c.cfg.Network, event.Family(tag))

	handlers := c.subs.Get(tag)
	if len(handlers) == 0 {
		c.drop(metrics.DropNoSubscribers)
		return
	}

	ev, err := c.decoder.Decode(tag, frame)
	if err != nil {
		c.drop(metrics.DropUndecodable)
		c.logger.Debug("dropping undecodable frame", "tag", event.Family(tag), "error", err)
		return
	}

	for _, h := range handlers {
		c.invoke(h, ev)
	}

	c.mu.Lock()
	c.dispatched++
	c.mu.Unlock()
}

func (c *Client) invoke(h registry.Entry[Handler], ev event.Event) {
	defer func() {
		if r := recover(); r != nil {
			c.handlerFailed(h, fmt.Errorf("panic: %v", r))
		}
	}()

	if err := h.Callback(ev); err != nil {
		c.handlerFailed(h, err)
	}
}

func (c *Client) handlerFailed(h registry.Entry[Handler], err error) {
	c.mu.Lock()
	c.handlerErrs++
	c.mu.Unlock()

	family := event.Family(h.Key)
	c.metrics.HandlerError(c.cfg.Network, family)
	c.logger.Error("handler failed", "tag", family, "id", h.ID, "error", err)
}

func (c *Client) drop(reason string) {
	c.mu.Lock()
	c.dropped++
	c.mu.Unlock()
	c.metrics.FrameDropped(c.cfg.Network, reason)
}

// Stats returns current statistics.
func (c *Client) Stats() Stats {
	subs := c.subs.Len()
	tags := len(c.subs.Keys())

	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Network:       c.cfg.Network,
		Connected:     c.tr != nil,
		LastActivity:  c.lastActivity,
		Connects:      c.connects,
		Reconnects:    c.reconnects,
		Subscriptions: subs,
		Tags:          tags,
		Dispatched:    c.dispatched,
		Dropped:       c.dropped,
		HandlerErrors: c.handlerErrs,
	}
}

// readLoop pumps frames from one transport until stopped or the
// transport reports an error.
func (c *Client) readLoop(tr transport.Transport, stop <-chan struct{}) {
	defer c.wg.Done()

	for {
		select {
		case <-stop:
			return
		case frame := <-tr.Frames():
			c.HandleFrame(frame)
		case err := <-tr.Errors():
			c.logger.Warn("transport error, disconnecting", "error", err)
			go c.disconnectIf(tr)
			return
		}
	}
}

func (c *Client) keepAliveLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.keepAlive(c.ctx)
		}
	}
}

// keepAlive reconnects when no frame has arrived within the activity
// timeout. A client that failed to connect is idle by definition, so
// this is also the retry path.
func (c *Client) keepAlive(ctx context.Context) {
	c.mu.Lock()
	idle := c.clock.Now().Sub(c.lastActivity)
	c.mu.Unlock()

	if idle <= c.cfg.ActivityTimeout {
		return
	}

	c.logger.Warn("no activity, reconnecting", "idle", idle.Round(time.Second))

	c.mu.Lock()
	c.reconnects++
	c.mu.Unlock()
	c.metrics.Reconnect(c.cfg.Network)

	c.Disconnect()
	c.Connect(ctx)
}

// topicsLocked returns configured topics followed by every subscribed tag
// not already configured. Caller holds c.mu.
func (c *Client) topicsLocked() []string {
	seen := make(map[string]struct{}, len(c.cfg.Topics))
	topics := make([]string, 0, len(c.cfg.Topics))
	for _, t := range c.cfg.Topics {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		topics = append(topics, t)
	}
	for _, t := range c.subs.Keys() {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		topics = append(topics, t)
	}
	return topics
}

func (c *Client) isConfigured(tag string) bool {
	for _, t := range c.cfg.Topics {
		if t == tag {
			return true
		}
	}
	return false
}
