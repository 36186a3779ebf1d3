package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/iotaledger/explorer-sub006/internal/bus"
	"github.com/iotaledger/explorer-sub006/internal/feed"
	"github.com/iotaledger/explorer-sub006/internal/store"
)

// Response bodies.
type (
	errorResponse struct {
		Error string `json:"error"`
	}

	networkHealth struct {
		Name            string    `json:"name"`
		Protocol        string    `json:"protocol"`
		Connected       bool      `json:"connected"`
		LastActivity    time.Time `json:"lastActivity"`
		LatestMilestone *uint32   `json:"latestMilestone,omitempty"`
	}

	healthResponse struct {
		Status   string          `json:"status"`
		Networks []networkHealth `json:"networks"`
	}

	milestonesResponse struct {
		Network    string                  `json:"network"`
		Milestones []store.MilestoneRecord `json:"milestones"`
	}

	statsResponse struct {
		Network      string      `json:"network"`
		Items        feed.Stats  `json:"items"`
		Transactions *feed.Stats `json:"transactions,omitempty"`
		Bus          bus.Stats   `json:"bus"`
	}
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// healthHandler reports 503 while any network is disconnected.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	res := healthResponse{Status: "ok", Networks: make([]networkHealth, 0, len(s.networks))}
	for _, n := range s.networks {
		st := n.Status()
		h := networkHealth{
			Name:         n.Name(),
			Protocol:     n.Protocol(),
			Connected:    st.Connected,
			LastActivity: st.LastActivity,
		}
		if latest, ok := n.LatestMilestone(); ok {
			idx := latest.MilestoneIndex
			h.LatestMilestone = &idx
		}
		if !st.Connected {
			res.Status = "degraded"
		}
		res.Networks = append(res.Networks, h)
	}

	status := http.StatusOK
	if res.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

func (s *Server) networksHandler(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(s.networks))
	for _, n := range s.networks {
		names = append(names, n.Name())
	}
	writeJSON(w, http.StatusOK, names)
}

func (s *Server) milestonesHandler(w http.ResponseWriter, r *http.Request) {
	n, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, milestonesResponse{Network: n.Name(), Milestones: n.RecentMilestones()})
}

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	n, ok := s.lookup(w, r)
	if !ok {
		return
	}

	items, err := n.FeedStats(feed.FeedItems)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	res := statsResponse{Network: n.Name(), Items: items, Bus: n.Status()}
	if tx, err := n.FeedStats(feed.FeedTransactions); err == nil {
		res.Transactions = &tx
	}
	writeJSON(w, http.StatusOK, res)
}

// feedHandler upgrades to a WebSocket and streams snapshots of the feed
// named by the "feed" query parameter (default items). Snapshots are
// dropped for clients that fall behind.
func (s *Server) feedHandler(w http.ResponseWriter, r *http.Request) {
	n, ok := s.lookup(w, r)
	if !ok {
		return
	}
	name := r.URL.Query().Get("feed")
	if name == "" {
		name = feed.FeedItems
	}

	snapshots := make(chan feed.Snapshot, snapshotBacklog)
	id, err := n.SubscribeFeed(name, func(snap feed.Snapshot) error {
		select {
		case snapshots <- snap:
		default:
			s.logger.Debug("feed client behind, snapshot dropped", "network", n.Name(), "feed", name)
		}
		return nil
	})
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	defer n.UnsubscribeFeed(name, id)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("feed upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	logger := s.logger.With("network", n.Name(), "feed", name, "subscription", id)
	logger.Debug("feed client connected", "remote", r.RemoteAddr)

	// The reader only detects the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(time.Second))
			return
		case <-closed:
			logger.Debug("feed client disconnected")
			return
		case snap := <-snapshots:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.WriteJSON(snap); err != nil {
				logger.Debug("feed write failed", "error", err)
				return
			}
		}
	}
}
