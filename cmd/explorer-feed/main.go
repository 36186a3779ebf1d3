package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/iotaledger/explorer-sub006/internal/clock"
	"github.com/iotaledger/explorer-sub006/internal/config"
	"github.com/iotaledger/explorer-sub006/internal/metrics"
	"github.com/iotaledger/explorer-sub006/internal/network"
	"github.com/iotaledger/explorer-sub006/internal/server"
	"github.com/iotaledger/explorer-sub006/internal/version"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := pflag.StringP("config", "c", "configs/explorer-feed.yaml", "path to config file")
	showVersion := pflag.Bool("version", false, "print version and exit")
	pflag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(os.Stdout, cfg.Logging)
	slog.SetDefault(logger)

	logger.Info("starting explorer-feed",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
		"instance_id", cfg.Instance.ID,
		"networks", len(cfg.Networks),
	)

	if err := run(cfg, *configPath, logger); err != nil {
		logger.Error("explorer-feed failed", "error", err)
		os.Exit(1)
	}
}

func newLogger(w io.Writer, cfg config.LoggingConfig) *slog.Logger {
	level, _ := config.ParseLevel(cfg.Level)
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func run(cfg *config.Config, configPath string, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	logger.Info("opening milestone store", "type", cfg.Storage.Type)
	st, err := network.OpenStore(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	mgr, err := network.NewManager(cfg, st, clock.Real(), m, logger)
	if err != nil {
		st.Close()
		return err
	}

	nets := mgr.Networks()
	views := make([]server.Network, len(nets))
	for i, n := range nets {
		views[i] = n
	}
	srv := server.New(cfg.Server, views, m, logger)

	if err := mgr.Start(ctx); err != nil {
		return err
	}
	if err := srv.Start(ctx); err != nil {
		return err
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		current := cfg
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-hup:
				next, changed, err := config.Reload(configPath, current)
				if err != nil {
					logger.Error("config reload failed", "error", err)
					continue
				}
				if changed {
					logger.Warn("network list changed, restart required to apply it")
				}
				current = next

				resetCtx, cancel := context.WithTimeout(gctx, shutdownTimeout)
				if err := mgr.Reset(resetCtx); err != nil {
					logger.Error("reset failed", "error", err)
				} else {
					logger.Info("networks reset after reload")
				}
				cancel()
			}
		}
	})

	logger.Info("explorer-feed running", "port", cfg.Server.Port)
	<-ctx.Done()
	logger.Info("received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Warn("http server shutdown", "error", err)
	}
	if err := mgr.Stop(shutdownCtx); err != nil {
		logger.Warn("network shutdown", "error", err)
	}
	return g.Wait()
}
