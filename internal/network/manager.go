package network

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/iotaledger/explorer-sub006/internal/clock"
	"github.com/iotaledger/explorer-sub006/internal/config"
	"github.com/iotaledger/explorer-sub006/internal/metrics"
	"github.com/iotaledger/explorer-sub006/internal/store"
)

// Manager owns every configured network and the shared milestone store.
type Manager struct {
	networks []*Network
	byName   map[string]*Network
	store    store.MilestoneStore
	logger   *slog.Logger
}

// NewManager builds one stack per entry in cfg.Networks. The manager
// takes ownership of st and closes it in Stop.
func NewManager(cfg *config.Config, st store.MilestoneStore, clk clock.Clock, m *metrics.Metrics, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	mgr := &Manager{
		byName: make(map[string]*Network, len(cfg.Networks)),
		store:  st,
		logger: logger.With("component", "manager"),
	}
	for _, nc := range cfg.Networks {
		n, err := New(cfg, nc, st, clk, m, logger)
		if err != nil {
			return nil, fmt.Errorf("network %s: %w", nc.Name, err)
		}
		mgr.networks = append(mgr.networks, n)
		mgr.byName[nc.Name] = n
	}
	return mgr, nil
}

// Start starts every network concurrently. If any fails, the others are
// stopped again and the first error is returned.
func (m *Manager) Start(ctx context.Context) error {
	var g errgroup.Group
	for _, n := range m.networks {
		n := n
		g.Go(func() error {
			if err := n.Start(ctx); err != nil {
				return fmt.Errorf("start %s: %w", n.Name(), err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		m.stopNetworks(context.WithoutCancel(ctx))
		return err
	}
	m.logger.Info("all networks started", "count", len(m.networks))
	return nil
}

// Stop stops every network and closes the store.
func (m *Manager) Stop(ctx context.Context) error {
	err := m.stopNetworks(ctx)
	if m.store != nil {
		if cerr := m.store.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close store: %w", cerr))
		}
	}
	m.logger.Info("all networks stopped")
	return err
}

func (m *Manager) stopNetworks(ctx context.Context) error {
	var g errgroup.Group
	for _, n := range m.networks {
		n := n
		g.Go(func() error { return n.Stop(ctx) })
	}
	return g.Wait()
}

// Reset resets every network. Errors are collected, not short-circuited.
func (m *Manager) Reset(ctx context.Context) error {
	var errs []error
	for _, n := range m.networks {
		if err := n.Reset(ctx); err != nil {
			m.logger.Error("reset failed", "network", n.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Networks returns the networks in configuration order.
func (m *Manager) Networks() []*Network {
	out := make([]*Network, len(m.networks))
	copy(out, m.networks)
	return out
}

// Network returns the named network.
func (m *Manager) Network(name string) (*Network, error) {
	n, ok := m.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownNetwork, name)
	}
	return n, nil
}
