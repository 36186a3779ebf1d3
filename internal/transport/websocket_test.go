package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// mockWSServer creates a test WebSocket server.
func mockWSServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))

	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func testConfig(url string) Config {
	cfg := DefaultConfig()
	cfg.URL = url
	cfg.BufferSize = 100
	return cfg
}

func TestWebSocket_ConnectClose(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	ws := NewWebSocket(testConfig(wsURL(server)), nil)
	if err := ws.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if !ws.IsConnected() {
		t.Error("expected IsConnected to return true")
	}

	if err := ws.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if ws.IsConnected() {
		t.Error("expected IsConnected to return false after Close")
	}

	// Closed transports are single-use.
	if err := ws.Connect(context.Background()); err != ErrAlreadyClosed {
		t.Errorf("Connect after Close = %v, want ErrAlreadyClosed", err)
	}

	// Double close is a no-op.
	if err := ws.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestWebSocket_SubscribeCommand(t *testing.T) {
	var mu sync.Mutex
	var got []Command

	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var cmd Command
			if err := json.Unmarshal(msg, &cmd); err != nil {
				continue
			}
			mu.Lock()
			got = append(got, cmd)
			mu.Unlock()
		}
	})
	defer server.Close()

	ws := NewWebSocket(testConfig(wsURL(server)), nil)
	if err := ws.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer ws.Close()

	if err := ws.Subscribe("sn", "tx"); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if err := ws.Unsubscribe("tx"); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}

	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Fatalf("server received %d commands, want 2", len(got))
	}
	if got[0].Cmd != "subscribe" || len(got[0].Params.Topics) != 2 {
		t.Errorf("first command = %+v", got[0])
	}
	if got[1].Cmd != "unsubscribe" || got[1].Params.Topics[0] != "tx" {
		t.Errorf("second command = %+v", got[1])
	}
	if got[0].ID == got[1].ID {
		t.Error("command ids should differ")
	}
}

func TestWebSocket_FramesSplitLines(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte("sn 100 HASH ADDR T B BUNDLE"))
		conn.WriteMessage(websocket.TextMessage, []byte("lmi 99 100\nlmi 100 101\n"))
		time.Sleep(time.Second)
	})
	defer server.Close()

	ws := NewWebSocket(testConfig(wsURL(server)), nil)
	if err := ws.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer ws.Close()

	want := []string{"sn 100 HASH ADDR T B BUNDLE", "lmi 99 100", "lmi 100 101"}
	timeout := time.After(500 * time.Millisecond)

	for i, w := range want {
		select {
		case f := <-ws.Frames():
			if string(f.Payload) != w {
				t.Errorf("frame %d = %q, want %q", i, f.Payload, w)
			}
			if f.Topic != "" {
				t.Errorf("line frames should have no topic, got %q", f.Topic)
			}
			if f.ReceivedAt.IsZero() {
				t.Error("ReceivedAt should not be zero")
			}
		case <-timeout:
			t.Fatalf("timeout waiting for frame %d", i)
		}
	}
}

func TestWebSocket_ErrorOnServerClose(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		// Return immediately; the deferred Close drops the connection.
	})
	defer server.Close()

	ws := NewWebSocket(testConfig(wsURL(server)), nil)
	if err := ws.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer ws.Close()

	select {
	case err := <-ws.Errors():
		if err == nil {
			t.Error("expected non-nil error")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for connection error")
	}
}

func TestWebSocket_SubscribeNotConnected(t *testing.T) {
	ws := NewWebSocket(testConfig("ws://localhost:12345"), nil)
	if err := ws.Subscribe("sn"); err != ErrNotConnected {
		t.Errorf("Subscribe = %v, want ErrNotConnected", err)
	}
	// Empty topic lists never touch the connection.
	if err := ws.Subscribe(); err != nil {
		t.Errorf("empty Subscribe = %v, want nil", err)
	}
}

func TestNewFactory(t *testing.T) {
	tests := []struct {
		kind    string
		wantErr bool
	}{
		{KindWebSocket, false},
		{KindNATS, false},
		{"zmq", true},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			f, err := NewFactory(tt.kind, Config{URL: "ws://localhost:1"}, nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewFactory(%q) error = %v, wantErr %v", tt.kind, err, tt.wantErr)
			}
			if err != nil {
				return
			}
			tr := f()
			if tr == nil {
				t.Fatal("factory returned nil transport")
			}
			if tr.IsConnected() {
				t.Error("fresh transport should not be connected")
			}
		})
	}
}

func TestNATS_NotConnected(t *testing.T) {
	n := NewNATS(testConfig("nats://localhost:1"), nil)
	if err := n.Subscribe("milestones/latest"); err != ErrNotConnected {
		t.Errorf("Subscribe = %v, want ErrNotConnected", err)
	}
	if err := n.Unsubscribe("milestones/latest"); err != nil {
		t.Errorf("Unsubscribe of unknown topic = %v, want nil", err)
	}
	if err := n.Close(); err != nil {
		t.Errorf("Close = %v", err)
	}
	if err := n.Connect(context.Background()); err != ErrAlreadyClosed {
		t.Errorf("Connect after Close = %v, want ErrAlreadyClosed", err)
	}
}
