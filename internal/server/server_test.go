package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/iotaledger/explorer-sub006/internal/bus"
	"github.com/iotaledger/explorer-sub006/internal/config"
	"github.com/iotaledger/explorer-sub006/internal/feed"
	"github.com/iotaledger/explorer-sub006/internal/metrics"
	"github.com/iotaledger/explorer-sub006/internal/store"
)

type fakeNetwork struct {
	name       string
	protocol   string
	connected  bool
	milestones []store.MilestoneRecord
	hasTx      bool

	mu           sync.Mutex
	callbacks    map[string]feed.Callback
	unsubscribed []string
}

func newFakeNetwork(name string, connected bool) *fakeNetwork {
	return &fakeNetwork{name: name, protocol: "legacy", connected: connected, hasTx: true, callbacks: make(map[string]feed.Callback)}
}

func (f *fakeNetwork) Name() string     { return f.name }
func (f *fakeNetwork) Protocol() string { return f.protocol }
func (f *fakeNetwork) Status() bus.Stats {
	return bus.Stats{Network: f.name, Connected: f.connected, Dispatched: 7}
}
func (f *fakeNetwork) RecentMilestones() []store.MilestoneRecord { return f.milestones }
func (f *fakeNetwork) LatestMilestone() (store.MilestoneRecord, bool) {
	if len(f.milestones) == 0 {
		return store.MilestoneRecord{}, false
	}
	return f.milestones[0], true
}

func (f *fakeNetwork) FeedStats(name string) (feed.Stats, error) {
	switch {
	case name == feed.FeedItems:
		return feed.Stats{ItemsPerSecond: 2.5}, nil
	case name == feed.FeedTransactions && f.hasTx:
		return feed.Stats{ItemsPerSecond: 1, ConfirmationRate: 50}, nil
	}
	return feed.Stats{}, errors.New("unknown feed")
}

func (f *fakeNetwork) SubscribeFeed(name string, cb feed.Callback) (string, error) {
	if name != feed.FeedItems && name != feed.FeedTransactions {
		return "", errors.New("unknown feed")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	id := name + "-sub"
	f.callbacks[id] = cb
	return id, nil
}

func (f *fakeNetwork) UnsubscribeFeed(name, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.callbacks, id)
	f.unsubscribed = append(f.unsubscribed, id)
}

func (f *fakeNetwork) callback(id string) feed.Callback {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.callbacks[id]
}

func newTestServer(t *testing.T, nets ...Network) *httptest.Server {
	t.Helper()
	s := New(config.ServerConfig{Port: 8080}, nets, metrics.New(), nil)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func getJSON(t *testing.T, url string, wantStatus int, v any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("GET %s status = %d, want %d (%s)", url, resp.StatusCode, wantStatus, body)
	}
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
}

func TestHealth(t *testing.T) {
	up := newFakeNetwork("mainnet", true)
	up.milestones = []store.MilestoneRecord{{ID: "M", MilestoneIndex: 42}}
	ts := newTestServer(t, up)

	var res healthResponse
	getJSON(t, ts.URL+"/health", http.StatusOK, &res)
	if res.Status != "ok" || len(res.Networks) != 1 {
		t.Fatalf("health = %+v", res)
	}
	if res.Networks[0].LatestMilestone == nil || *res.Networks[0].LatestMilestone != 42 {
		t.Errorf("latestMilestone = %v, want 42", res.Networks[0].LatestMilestone)
	}

	down := newFakeNetwork("devnet", false)
	ts = newTestServer(t, up, down)
	getJSON(t, ts.URL+"/health", http.StatusServiceUnavailable, &res)
	if res.Status != "degraded" {
		t.Errorf("status = %q, want degraded", res.Status)
	}
}

func TestMilestones(t *testing.T) {
	n := newFakeNetwork("mainnet", true)
	n.milestones = []store.MilestoneRecord{{ID: "B", MilestoneIndex: 2}, {ID: "A", MilestoneIndex: 1}}
	ts := newTestServer(t, n)

	var res milestonesResponse
	getJSON(t, ts.URL+"/networks/mainnet/milestones", http.StatusOK, &res)
	if res.Network != "mainnet" || len(res.Milestones) != 2 || res.Milestones[0].ID != "B" {
		t.Errorf("milestones = %+v", res)
	}

	var errRes errorResponse
	getJSON(t, ts.URL+"/networks/nope/milestones", http.StatusNotFound, &errRes)
	if !strings.Contains(errRes.Error, "nope") {
		t.Errorf("error = %q", errRes.Error)
	}
}

func TestStats(t *testing.T) {
	legacy := newFakeNetwork("mainnet", true)
	chrysalis := newFakeNetwork("devnet", true)
	chrysalis.hasTx = false
	ts := newTestServer(t, legacy, chrysalis)

	var res statsResponse
	getJSON(t, ts.URL+"/networks/mainnet/stats", http.StatusOK, &res)
	if res.Items.ItemsPerSecond != 2.5 || res.Transactions == nil || res.Transactions.ConfirmationRate != 50 {
		t.Errorf("stats = %+v", res)
	}
	if res.Bus.Dispatched != 7 {
		t.Errorf("bus.dispatched = %d, want 7", res.Bus.Dispatched)
	}

	res = statsResponse{}
	getJSON(t, ts.URL+"/networks/devnet/stats", http.StatusOK, &res)
	if res.Transactions != nil {
		t.Error("chrysalis stats should omit transactions")
	}
}

func TestNetworksAndMetrics(t *testing.T) {
	ts := newTestServer(t, newFakeNetwork("mainnet", true), newFakeNetwork("devnet", true))

	var names []string
	getJSON(t, ts.URL+"/networks", http.StatusOK, &names)
	if len(names) != 2 || names[0] != "mainnet" {
		t.Errorf("networks = %v", names)
	}

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "go_goroutines") {
		t.Errorf("metrics status = %d", resp.StatusCode)
	}
}

func TestFeedSocket(t *testing.T) {
	n := newFakeNetwork("mainnet", true)
	ts := newTestServer(t, n)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/networks/mainnet/feed?feed=transactions"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	cb := n.callback("transactions-sub")
	if cb == nil {
		t.Fatal("feed subscription not registered")
	}
	cb(feed.Snapshot{SubscriptionID: "transactions-sub", Items: []string{"HASH1", "HASH2"}})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var snap feed.Snapshot
	if err := conn.ReadJSON(&snap); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if len(snap.Items) != 2 || snap.Items[0] != "HASH1" {
		t.Errorf("snapshot = %+v", snap)
	}

	conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if n.callback("transactions-sub") == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("closing the socket should unsubscribe the feed")
}

func TestFeedSocket_UnknownFeed(t *testing.T) {
	ts := newTestServer(t, newFakeNetwork("mainnet", true))

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/networks/mainnet/feed?feed=blocks"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("Dial should fail for an unknown feed")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Errorf("response = %v, want 404", resp)
	}
}
