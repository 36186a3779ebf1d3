// Package network assembles the per-network stacks: one bus client, the
// item feed aggregator, the transaction aggregator for legacy networks and
// the milestone tracker, all sharing one milestone store.
package network

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/iotaledger/explorer-sub006/internal/bus"
	"github.com/iotaledger/explorer-sub006/internal/clock"
	"github.com/iotaledger/explorer-sub006/internal/config"
	"github.com/iotaledger/explorer-sub006/internal/event"
	"github.com/iotaledger/explorer-sub006/internal/feed"
	"github.com/iotaledger/explorer-sub006/internal/metrics"
	"github.com/iotaledger/explorer-sub006/internal/milestone"
	"github.com/iotaledger/explorer-sub006/internal/store"
	"github.com/iotaledger/explorer-sub006/internal/transport"
)

// Errors
var (
	ErrUnknownFeed    = errors.New("unknown feed")
	ErrUnknownNetwork = errors.New("unknown network")
)

// Network is the running stack of one monitored network.
type Network struct {
	cfg    config.NetworkConfig
	logger *slog.Logger
	runCtx context.Context // Parent of the component lifecycles, set by Start

	Bus          *bus.Client
	Feed         *feed.Aggregator
	Transactions *feed.TxAggregator // nil for chrysalis networks
	Milestones   *milestone.Tracker
}

// New builds the stack for netCfg from the shared component settings in root.
func New(root *config.Config, netCfg config.NetworkConfig, st store.MilestoneStore, clk clock.Clock, m *metrics.Metrics, logger *slog.Logger) (*Network, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if clk == nil {
		clk = clock.Real()
	}
	logger = logger.With("network", netCfg.Name)

	decoder, err := event.NewDecoder(netCfg.Protocol)
	if err != nil {
		return nil, err
	}
	profile, err := feed.ProfileFor(netCfg.Protocol)
	if err != nil {
		return nil, err
	}

	trCfg := transport.DefaultConfig()
	trCfg.URL = netCfg.Endpoint
	trCfg.Name = root.Instance.ID + "-" + netCfg.Name
	trCfg.BufferSize = root.Bus.BufferSize
	trCfg.HandshakeTimeout = root.Bus.ConnectTimeout
	factory, err := transport.NewFactory(netCfg.Transport, trCfg, logger)
	if err != nil {
		return nil, err
	}

	topics := netCfg.Topics
	if len(topics) == 0 {
		topics = event.DefaultTopics(netCfg.Protocol)
	}
	client := bus.NewClient(bus.Config{
		Network:           netCfg.Name,
		Topics:            topics,
		KeepAliveInterval: root.Bus.KeepAliveInterval,
		ActivityTimeout:   root.Bus.ActivityTimeout,
		ConnectTimeout:    root.Bus.ConnectTimeout,
	}, factory, decoder, logger, bus.WithClock(clk), bus.WithMetrics(m))

	n := &Network{
		cfg:    netCfg,
		logger: logger,
		Bus:    client,
		Feed: feed.NewAggregator(feed.Config{
			Network:        netCfg.Name,
			SampleInterval: root.Feed.SampleInterval,
			FlushInterval:  root.Feed.FlushInterval,
			Capacity:       root.Feed.Capacity,
		}, client, profile, clk, m, logger),
		Milestones: milestone.NewTracker(milestone.Config{
			Network:            netCfg.Name,
			Protocol:           netCfg.Protocol,
			CoordinatorAddress: netCfg.CoordinatorAddress,
			Capacity:           root.Milestones.Capacity,
			IdleTimeout:        root.Milestones.IdleTimeout,
			CheckInterval:      root.Milestones.CheckInterval,
		}, client, st, clk, m, logger),
	}

	if netCfg.Protocol == event.ProtocolLegacy {
		n.Transactions = feed.NewTxAggregator(feed.TxConfig{
			Network:      netCfg.Name,
			TickInterval: root.Transactions.TickInterval,
			MinBatch:     root.Transactions.MinBatch,
			MaxWait:      root.Transactions.MaxWait,
			Capacity:     root.Transactions.Capacity,
		}, client, profile, clk, m, logger)
	}
	return n, nil
}

// Name returns the configured network name.
func (n *Network) Name() string { return n.cfg.Name }

// Protocol returns the network's protocol generation.
func (n *Network) Protocol() string { return n.cfg.Protocol }

// Start registers every component on the bus client and then connects
// it, so frames arriving with the first subscribe already have handlers.
// On failure the components already started are stopped again.
func (n *Network) Start(ctx context.Context) error {
	n.runCtx = ctx
	if err := n.Milestones.Init(ctx); err != nil {
		return fmt.Errorf("init milestones: %w", err)
	}
	if err := n.Feed.Start(ctx); err != nil {
		n.Milestones.Stop(ctx)
		return fmt.Errorf("start feed: %w", err)
	}
	if n.Transactions != nil {
		if err := n.Transactions.Start(ctx); err != nil {
			n.Feed.Stop(ctx)
			n.Milestones.Stop(ctx)
			return fmt.Errorf("start transactions: %w", err)
		}
	}
	if err := n.Bus.Start(ctx); err != nil {
		n.Stop(context.WithoutCancel(ctx))
		return fmt.Errorf("start bus: %w", err)
	}
	n.logger.Info("network started", "protocol", n.cfg.Protocol, "transport", n.cfg.Transport)
	return nil
}

// Stop disconnects the bus client first, then stops the aggregators and
// the tracker.
func (n *Network) Stop(ctx context.Context) error {
	err := n.Bus.Stop(ctx)
	if n.Transactions != nil {
		n.Transactions.Stop(ctx)
	}
	n.Feed.Stop(ctx)
	n.Milestones.Stop(ctx)
	return err
}

// Reset reinitializes the milestone tracker and restarts the aggregators
// with cleared state. ctx bounds the stop and reload; the restarted
// components keep running under the context given to Start.
func (n *Network) Reset(ctx context.Context) error {
	if n.runCtx == nil {
		return fmt.Errorf("reset %s: network not started", n.cfg.Name)
	}
	if err := n.Milestones.Reset(ctx); err != nil {
		return fmt.Errorf("reset milestones: %w", err)
	}
	if err := n.Feed.Reset(ctx); err != nil {
		return err
	}
	if err := n.Feed.Start(n.runCtx); err != nil {
		return err
	}
	if n.Transactions != nil {
		if err := n.Transactions.Reset(ctx); err != nil {
			return err
		}
		if err := n.Transactions.Start(n.runCtx); err != nil {
			return err
		}
	}
	n.logger.Info("network reset")
	return nil
}

// Status returns the bus client statistics.
func (n *Network) Status() bus.Stats {
	return n.Bus.Stats()
}

// RecentMilestones returns the tracked milestones, newest first.
func (n *Network) RecentMilestones() []store.MilestoneRecord {
	return n.Milestones.Milestones()
}

// LatestMilestone returns the newest tracked milestone.
func (n *Network) LatestMilestone() (store.MilestoneRecord, bool) {
	return n.Milestones.Latest()
}

// FeedStats returns the rates of the named feed.
func (n *Network) FeedStats(name string) (feed.Stats, error) {
	switch name {
	case feed.FeedItems:
		return n.Feed.Stats(), nil
	case feed.FeedTransactions:
		if n.Transactions != nil {
			return n.Transactions.Stats(), nil
		}
	}
	return feed.Stats{}, fmt.Errorf("%w: %q", ErrUnknownFeed, name)
}

// SubscribeFeed registers cb on the named feed.
func (n *Network) SubscribeFeed(name string, cb feed.Callback) (string, error) {
	switch name {
	case feed.FeedItems:
		return n.Feed.Subscribe(cb), nil
	case feed.FeedTransactions:
		if n.Transactions != nil {
			return n.Transactions.Subscribe(cb), nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFeed, name)
}

// UnsubscribeFeed removes a feed subscription.
func (n *Network) UnsubscribeFeed(name, id string) {
	switch name {
	case feed.FeedItems:
		n.Feed.Unsubscribe(id)
	case feed.FeedTransactions:
		if n.Transactions != nil {
			n.Transactions.Unsubscribe(id)
		}
	}
}
