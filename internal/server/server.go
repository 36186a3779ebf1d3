// Package server exposes the running networks over HTTP: health, the
// milestone list, rate statistics, a WebSocket snapshot feed and the
// Prometheus metrics endpoint.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/iotaledger/explorer-sub006/internal/bus"
	"github.com/iotaledger/explorer-sub006/internal/config"
	"github.com/iotaledger/explorer-sub006/internal/feed"
	"github.com/iotaledger/explorer-sub006/internal/metrics"
	"github.com/iotaledger/explorer-sub006/internal/store"
)

const (
	readTimeout     = 15 * time.Second
	snapshotBacklog = 16
)

// Network is the read side of a running network stack.
type Network interface {
	Name() string
	Protocol() string
	Status() bus.Stats
	RecentMilestones() []store.MilestoneRecord
	LatestMilestone() (store.MilestoneRecord, bool)
	FeedStats(name string) (feed.Stats, error)
	SubscribeFeed(name string, cb feed.Callback) (string, error)
	UnsubscribeFeed(name, id string)
}

// Server is the HTTP surface of an explorer-feed instance.
type Server struct {
	cfg      config.ServerConfig
	networks []Network
	byName   map[string]Network
	metrics  *metrics.Metrics
	logger   *slog.Logger

	router   *mux.Router
	upgrader websocket.Upgrader

	mu   sync.Mutex
	http *http.Server
	wg   sync.WaitGroup
}

// New creates a Server for networks.
func New(cfg config.ServerConfig, networks []Network, m *metrics.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = config.DefaultMetricsPath
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = config.DefaultServerWriteTimeout
	}

	s := &Server{
		cfg:      cfg,
		networks: networks,
		byName:   make(map[string]Network, len(networks)),
		metrics:  m,
		logger:   logger.With("component", "server"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	for _, n := range networks {
		s.byName[n.Name()] = n
	}

	r := mux.NewRouter()
	r.HandleFunc("/health", s.healthHandler).Methods(http.MethodGet)
	r.HandleFunc("/networks", s.networksHandler).Methods(http.MethodGet)
	r.HandleFunc("/networks/{network}/milestones", s.milestonesHandler).Methods(http.MethodGet)
	r.HandleFunc("/networks/{network}/stats", s.statsHandler).Methods(http.MethodGet)
	r.HandleFunc("/networks/{network}/feed", s.feedHandler)
	r.Handle(cfg.MetricsPath, m.Handler()).Methods(http.MethodGet)
	s.router = r

	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured port in the background.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.http != nil {
		return errors.New("server already started")
	}
	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: readTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	srv := s.http
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server failed", "error", err)
		}
	}()

	s.logger.Info("http server listening", "port", s.cfg.Port, "metrics_path", s.cfg.MetricsPath)
	return nil
}

// Stop shuts the listener down and waits for in-flight requests. Open feed
// sockets end when the context passed to Start is cancelled.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.http
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	err := srv.Shutdown(ctx)
	s.wg.Wait()
	s.logger.Info("http server stopped")
	return err
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (Network, bool) {
	name := mux.Vars(r)["network"]
	n, ok := s.byName[name]
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("network %q not found", name))
	}
	return n, ok
}
