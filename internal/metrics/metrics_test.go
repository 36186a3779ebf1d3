package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.FrameReceived("mainnet", "sn")
	m.FrameReceived("mainnet", "sn")
	m.FrameDropped("mainnet", DropNoSubscribers)
	m.Flushed("mainnet", "items", 5)
	m.SetConnected("mainnet", true)
	m.SetLatestMilestone("mainnet", 1234)

	if got := testutil.ToFloat64(m.framesReceived.WithLabelValues("mainnet", "sn")); got != 2 {
		t.Errorf("frames received = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.itemsFlushed.WithLabelValues("mainnet", "items")); got != 5 {
		t.Errorf("items flushed = %v, want 5", got)
	}
	if got := testutil.ToFloat64(m.connected.WithLabelValues("mainnet")); got != 1 {
		t.Errorf("connected = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.latestMilestone.WithLabelValues("mainnet")); got != 1234 {
		t.Errorf("latest milestone = %v, want 1234", got)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.Reconnect("devnet")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `explorer_feed_reconnects_total{network="devnet"} 1`) {
		t.Error("reconnect counter missing from exposition")
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.FrameReceived("n", "t")
	m.FrameDropped("n", DropUndecodable)
	m.HandlerError("n", "t")
	m.Reconnect("n")
	m.SetConnected("n", false)
	m.Flushed("n", "items", 1)
	m.SetLatestMilestone("n", 1)
	m.PersistError("n")

	if m.Registry() != nil {
		t.Error("nil metrics should have no registry")
	}
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
