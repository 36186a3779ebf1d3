package bus

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/iotaledger/explorer-sub006/internal/clock"
	"github.com/iotaledger/explorer-sub006/internal/event"
	"github.com/iotaledger/explorer-sub006/internal/transport"
)

var coordinator = strings.Repeat("C", 81)

// fakeTransport records calls instead of touching the network.
type fakeTransport struct {
	mu          sync.Mutex
	connectErr  error
	connected   bool
	closed      bool
	subscribed  []string
	unsubscribe []string

	frames chan transport.Frame
	errors chan error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		frames: make(chan transport.Frame, 16),
		errors: make(chan error, 1),
	}
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.closed = true
	return nil
}

func (f *fakeTransport) Subscribe(topics ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed = append(f.subscribed, topics...)
	return nil
}

func (f *fakeTransport) Unsubscribe(topics ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribe = append(f.unsubscribe, topics...)
	return nil
}

func (f *fakeTransport) Frames() <-chan transport.Frame { return f.frames }
func (f *fakeTransport) Errors() <-chan error           { return f.errors }

func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) subs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.subscribed...)
}

// fakeFactory hands out fake transports and remembers each one.
type fakeFactory struct {
	mu         sync.Mutex
	built      []*fakeTransport
	connectErr error
}

func (ff *fakeFactory) factory() transport.Transport {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	tr := newFakeTransport()
	tr.connectErr = ff.connectErr
	ff.built = append(ff.built, tr)
	return tr
}

func (ff *fakeFactory) count() int {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return len(ff.built)
}

func (ff *fakeFactory) last() *fakeTransport {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return ff.built[len(ff.built)-1]
}

func newTestClient(t *testing.T, ff *fakeFactory, clk clock.Clock) *Client {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Network = "test"
	cfg.Topics = []string{event.TagTransaction, event.TagConfirmed}
	return NewClient(cfg, ff.factory, event.LineDecoder{}, nil, WithClock(clk))
}

func frame(s string) transport.Frame {
	return transport.Frame{Payload: []byte(s), ReceivedAt: time.Now()}
}

func TestClient_ConnectIdempotent(t *testing.T) {
	ff := &fakeFactory{}
	c := newTestClient(t, ff, clock.NewFake(time.Unix(1000, 0)))

	c.Connect(context.Background())
	defer c.Disconnect()

	if !c.IsConnected() {
		t.Fatal("expected connected")
	}

	c.Connect(context.Background())
	if ff.count() != 1 {
		t.Errorf("transports built = %d, want 1", ff.count())
	}

	subs := ff.last().subs()
	if len(subs) != 2 || subs[0] != "tx" || subs[1] != "sn" {
		t.Errorf("subscribed = %v, want [tx sn]", subs)
	}
}

func TestClient_ConnectFailure(t *testing.T) {
	ff := &fakeFactory{connectErr: errors.New("refused")}
	c := newTestClient(t, ff, clock.NewFake(time.Unix(1000, 0)))

	c.Connect(context.Background())
	if c.IsConnected() {
		t.Error("failed connect should leave client disconnected")
	}
	if !ff.last().closed {
		t.Error("failed transport should be closed")
	}

	// Disconnect without a connection is a no-op.
	c.Disconnect()
}

func TestClient_DisconnectUnsubscribes(t *testing.T) {
	ff := &fakeFactory{}
	c := newTestClient(t, ff, clock.NewFake(time.Unix(1000, 0)))

	c.Subscribe(event.TagLatestIndex, func(event.Event) error { return nil })
	c.Connect(context.Background())

	tr := ff.last()
	if got := tr.subs(); len(got) != 3 || got[2] != "lmi" {
		t.Errorf("subscribed = %v, want configured topics plus lmi", got)
	}

	c.Disconnect()
	if !tr.closed {
		t.Error("transport should be closed")
	}
	tr.mu.Lock()
	n := len(tr.unsubscribe)
	tr.mu.Unlock()
	if n != 3 {
		t.Errorf("unsubscribed %d topics, want 3", n)
	}
	if c.IsConnected() {
		t.Error("expected disconnected")
	}
}

func TestClient_KeepAlive(t *testing.T) {
	ff := &fakeFactory{}
	clk := clock.NewFake(time.Unix(1000, 0))
	c := newTestClient(t, ff, clk)

	c.Connect(context.Background())
	defer c.Disconnect()
	first := ff.last()

	clk.Advance(20 * time.Second)
	c.keepAlive(context.Background())
	if ff.count() != 1 {
		t.Fatalf("reconnected after 20s idle; transports = %d", ff.count())
	}

	clk.Advance(11 * time.Second) // 31s idle
	c.keepAlive(context.Background())

	if ff.count() != 2 {
		t.Fatalf("transports built = %d, want 2", ff.count())
	}
	if !first.closed {
		t.Error("stale transport should be closed")
	}
	if !c.IsConnected() {
		t.Error("expected reconnected")
	}
	if got := c.Stats().Reconnects; got != 1 {
		t.Errorf("reconnects = %d, want 1", got)
	}

	// Activity was reset by the reconnect.
	c.keepAlive(context.Background())
	if ff.count() != 2 {
		t.Errorf("transports built = %d after fresh reconnect, want 2", ff.count())
	}
}

func TestClient_KeepAliveActivity(t *testing.T) {
	ff := &fakeFactory{}
	clk := clock.NewFake(time.Unix(1000, 0))
	c := newTestClient(t, ff, clk)

	c.Connect(context.Background())
	defer c.Disconnect()

	clk.Advance(25 * time.Second)
	c.HandleFrame(frame("lmi 1 2"))
	clk.Advance(25 * time.Second)
	c.keepAlive(context.Background())

	if ff.count() != 1 {
		t.Errorf("frame activity should prevent reconnect; transports = %d", ff.count())
	}
}

func TestClient_SubscribeAddress(t *testing.T) {
	c := newTestClient(t, &fakeFactory{}, clock.Real())

	if _, err := c.SubscribeAddress("short", func(event.Event) error { return nil }); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("error = %v, want ErrInvalidAddress", err)
	}

	id, err := c.SubscribeAddress(coordinator, func(event.Event) error { return nil })
	if err != nil {
		t.Fatalf("SubscribeAddress failed: %v", err)
	}
	if id == "" {
		t.Error("expected non-empty id")
	}
}

func TestClient_UnsubscribeTwice(t *testing.T) {
	ff := &fakeFactory{}
	c := newTestClient(t, ff, clock.Real())
	c.Connect(context.Background())
	defer c.Disconnect()

	id := c.Subscribe(event.TagLatestIndex, func(event.Event) error { return nil })
	tr := ff.last()

	c.Unsubscribe(id)
	c.Unsubscribe(id)

	tr.mu.Lock()
	unsubs := append([]string(nil), tr.unsubscribe...)
	tr.mu.Unlock()
	if len(unsubs) != 1 || unsubs[0] != "lmi" {
		t.Errorf("unsubscribed = %v, want [lmi]", unsubs)
	}
	if c.Stats().Subscriptions != 0 {
		t.Error("expected no subscriptions")
	}
}

func TestClient_ConfiguredTopicStaysSubscribed(t *testing.T) {
	ff := &fakeFactory{}
	c := newTestClient(t, ff, clock.Real())
	c.Connect(context.Background())
	defer c.Disconnect()

	id := c.Subscribe(event.TagConfirmed, func(event.Event) error { return nil })
	c.Unsubscribe(id)

	tr := ff.last()
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if len(tr.unsubscribe) != 0 {
		t.Errorf("configured topic was unsubscribed: %v", tr.unsubscribe)
	}
	if len(tr.subscribed) != 2 {
		t.Errorf("configured topic subscribed twice: %v", tr.subscribed)
	}
}

func TestClient_DispatchOrder(t *testing.T) {
	c := newTestClient(t, &fakeFactory{}, clock.Real())

	var order []int
	c.Subscribe("sn", func(event.Event) error { order = append(order, 1); return nil })
	c.Subscribe("sn", func(event.Event) error { order = append(order, 2); return nil })
	c.Subscribe("sn", func(event.Event) error { order = append(order, 3); return nil })

	c.HandleFrame(frame("sn 10 H A T B BU"))

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("order = %v, want [1 2 3]", order)
	}
}

func TestClient_HandlerIsolation(t *testing.T) {
	c := newTestClient(t, &fakeFactory{}, clock.Real())

	var got []uint32
	c.Subscribe("sn", func(event.Event) error { panic("boom") })
	c.Subscribe("sn", func(event.Event) error { return errors.New("nope") })
	c.Subscribe("sn", func(ev event.Event) error {
		got = append(got, ev.(*event.ConfirmedTransaction).MilestoneIndex)
		return nil
	})

	c.HandleFrame(frame("sn 42 H A T B BU"))

	if len(got) != 1 || got[0] != 42 {
		t.Errorf("last handler got %v, want [42]", got)
	}
	if errs := c.Stats().HandlerErrors; errs != 2 {
		t.Errorf("handler errors = %d, want 2", errs)
	}
}

func TestClient_SnapshotDispatch(t *testing.T) {
	c := newTestClient(t, &fakeFactory{}, clock.Real())

	var calls int
	var secondID string
	c.Subscribe("sn", func(event.Event) error {
		calls++
		c.Unsubscribe(secondID)
		return nil
	})
	secondID = c.Subscribe("sn", func(event.Event) error { calls++; return nil })

	// The round started with both handlers.
	c.HandleFrame(frame("sn 1 H A T B BU"))
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}

	calls = 0
	c.HandleFrame(frame("sn 2 H A T B BU"))
	if calls != 1 {
		t.Errorf("calls = %d after unsubscribe, want 1", calls)
	}
}

func TestClient_DropWithoutSubscribers(t *testing.T) {
	c := newTestClient(t, &fakeFactory{}, clock.Real())

	c.HandleFrame(frame("sn not-even-valid"))
	c.HandleFrame(frame(""))

	var called bool
	c.Subscribe("sn", func(event.Event) error { called = true; return nil })
	c.HandleFrame(frame("sn bad"))

	if called {
		t.Error("malformed frame reached a handler")
	}
	if got := c.Stats().Dropped; got != 3 {
		t.Errorf("dropped = %d, want 3", got)
	}
}

func TestClient_ReadLoop(t *testing.T) {
	ff := &fakeFactory{}
	c := newTestClient(t, ff, clock.Real())

	received := make(chan uint32, 1)
	c.Subscribe("lmi", func(ev event.Event) error {
		received <- ev.(*event.LatestMilestoneIndex).Latest
		return nil
	})

	c.Connect(context.Background())
	defer c.Disconnect()

	ff.last().frames <- frame("lmi 7 8")

	select {
	case got := <-received:
		if got != 8 {
			t.Errorf("latest = %d, want 8", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for dispatch")
	}
}

func TestClient_TransportErrorDisconnects(t *testing.T) {
	ff := &fakeFactory{}
	c := newTestClient(t, ff, clock.Real())
	c.Connect(context.Background())

	ff.last().errors <- errors.New("reset by peer")

	deadline := time.After(time.Second)
	for c.IsConnected() {
		select {
		case <-deadline:
			t.Fatal("client still connected after transport error")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestClient_StartStop(t *testing.T) {
	ff := &fakeFactory{}
	c := newTestClient(t, ff, clock.Real())

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !c.IsConnected() {
		t.Error("expected connected after Start")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if c.IsConnected() {
		t.Error("expected disconnected after Stop")
	}
}
