package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Command is a topic control command sent to a line-feed endpoint.
type Command struct {
	ID     int64         `json:"id"`
	Cmd    string        `json:"cmd"` // "subscribe" or "unsubscribe"
	Params CommandParams `json:"params"`
}

// CommandParams lists the topics a command applies to.
type CommandParams struct {
	Topics []string `json:"topics"`
}

// WebSocket is a line-based transport over a WebSocket connection.
type WebSocket struct {
	cfg    Config
	logger *slog.Logger

	conn *websocket.Conn

	frames chan Frame
	errors chan error
	done   chan struct{}

	writeMu sync.Mutex
	cmdID   int64

	mu        sync.RWMutex
	connected bool
	closed    bool
}

// NewWebSocket creates an unconnected WebSocket transport.
func NewWebSocket(cfg Config, logger *slog.Logger) *WebSocket {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}

	return &WebSocket{
		cfg:    cfg,
		logger: logger,
		frames: make(chan Frame, cfg.BufferSize),
		errors: make(chan error, 1),
		done:   make(chan struct{}),
	}
}

// Connect dials the endpoint and starts the read and ping loops.
func (w *WebSocket) Connect(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrAlreadyClosed
	}
	w.mu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: w.cfg.HandshakeTimeout,
	}

	header := http.Header{}
	if w.cfg.Name != "" {
		header.Set("User-Agent", w.cfg.Name)
	}

	conn, _, err := dialer.DialContext(ctx, w.cfg.URL, header)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.conn = conn
	w.connected = true
	w.mu.Unlock()

	conn.SetPingHandler(func(data string) error {
		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(time.Second),
		)
	})

	go w.readLoop()
	go w.pingLoop()

	w.logger.Debug("websocket connected", "url", w.cfg.URL)
	return nil
}

// Close gracefully closes the connection.
func (w *WebSocket) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.connected = false
	conn := w.conn
	w.mu.Unlock()

	close(w.done)

	if conn != nil {
		w.writeMu.Lock()
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		w.writeMu.Unlock()
		return conn.Close()
	}
	return nil
}

// Subscribe sends a subscribe command for topics.
func (w *WebSocket) Subscribe(topics ...string) error {
	return w.command("subscribe", topics)
}

// Unsubscribe sends an unsubscribe command for topics.
func (w *WebSocket) Unsubscribe(topics ...string) error {
	return w.command("unsubscribe", topics)
}

// Frames returns the inbound frame channel.
func (w *WebSocket) Frames() <-chan Frame {
	return w.frames
}

// Errors returns the error channel.
func (w *WebSocket) Errors() <-chan error {
	return w.errors
}

// IsConnected returns the current connection state.
func (w *WebSocket) IsConnected() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.connected
}

func (w *WebSocket) command(cmd string, topics []string) error {
	if len(topics) == 0 {
		return nil
	}

	w.mu.RLock()
	if !w.connected {
		w.mu.RUnlock()
		return ErrNotConnected
	}
	conn := w.conn
	w.mu.RUnlock()

	data, err := json.Marshal(Command{
		ID:     atomic.AddInt64(&w.cmdID, 1),
		Cmd:    cmd,
		Params: CommandParams{Topics: topics},
	})
	if err != nil {
		return err
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(w.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop splits each text message into lines and emits one frame per
// non-empty line.
func (w *WebSocket) readLoop() {
	defer func() {
		w.mu.Lock()
		w.connected = false
		w.mu.Unlock()
	}()

	for {
		_, data, err := w.conn.ReadMessage()
		receivedAt := time.Now()

		if err != nil {
			select {
			case <-w.done:
				return
			default:
				select {
				case w.errors <- err:
				default:
				}
				return
			}
		}

		for _, line := range bytes.Split(data, []byte("\n")) {
			line = bytes.TrimSpace(line)
			if len(line) == 0 {
				continue
			}

			frame := Frame{Payload: line, ReceivedAt: receivedAt}
			select {
			case w.frames <- frame:
			case <-w.done:
				return
			default:
				w.logger.Warn("frame buffer full, dropping frame")
			}
		}
	}
}

// pingLoop keeps intermediaries from timing the connection out.
func (w *WebSocket) pingLoop() {
	ticker := time.NewTicker(w.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.mu.RLock()
			conn := w.conn
			w.mu.RUnlock()

			if conn == nil {
				continue
			}
			w.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, []byte("keepalive"), time.Now().Add(w.cfg.WriteTimeout))
			w.writeMu.Unlock()
			if err != nil {
				w.logger.Debug("failed to send ping", "error", err)
			}
		}
	}
}
