package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// DefaultHandshakeTimeout is the time allowed for the opening handshake.
	DefaultHandshakeTimeout = 10 * time.Second

	// Time allowed to write a control message to the peer.
	wsWriteWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	wsPongWait = 60 * time.Second

	// DefaultPingPeriod is the keepalive interval. Must be less than wsPongWait.
	DefaultPingPeriod = (wsPongWait * 9) / 10

	// Maximum inbound message size.
	wsReadLimit = 64 * 1024
)

var errTransportClosed = errors.New("transport closed")
var errNotOpen = errors.New("connection not open")

// WSOption configures the WebSocket transport.
type WSOption func(*wsTransport)

// WithHandshakeTimeout bounds the opening handshake. Zero keeps the default.
func WithHandshakeTimeout(d time.Duration) WSOption {
	return func(t *wsTransport) {
		if d > 0 {
			t.dialer.HandshakeTimeout = d
		}
	}
}

// WithPingPeriod sets the keepalive interval. The read deadline is extended
// to ten ninths of it on every pong. Zero keeps the default.
func WithPingPeriod(d time.Duration) WSOption {
	return func(t *wsTransport) {
		if d > 0 {
			t.pingPeriod = d
			t.pongWait = d * 10 / 9
		}
	}
}

// WebSocketTransport returns a TransportFactory backed by gorilla/websocket.
func WebSocketTransport(logger *slog.Logger, opts ...WSOption) TransportFactory {
	if logger == nil {
		logger = slog.Default()
	}
	return func(url string, header http.Header, emit func(Event)) (Transport, error) {
		t := &wsTransport{
			url:    url,
			header: header,
			emit:   emit,
			dialer: &websocket.Dialer{
				Proxy:            http.ProxyFromEnvironment,
				HandshakeTimeout: DefaultHandshakeTimeout,
				ReadBufferSize:   4096,
				WriteBufferSize:  4096,
			},
			pingPeriod: DefaultPingPeriod,
			pongWait:   wsPongWait,
			logger:     logger.With("transport", "websocket"),
		}
		for _, opt := range opts {
			opt(t)
		}
		return t, nil
	}
}

// wsTransport implements Transport over a client WebSocket connection.
// Each Start runs one dial+read cycle on its own goroutine.
type wsTransport struct {
	url        string
	header     http.Header
	emit       func(Event)
	dialer     *websocket.Dialer
	pingPeriod time.Duration
	pongWait   time.Duration
	logger     *slog.Logger

	mu         sync.Mutex
	conn       *websocket.Conn
	running    bool // dialing or connected
	closed     bool
	cancelDial context.CancelFunc
	wg         sync.WaitGroup

	writeMu sync.Mutex // protects concurrent writes
}

// Start dials in the background unless a cycle is already running.
func (t *wsTransport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return errTransportClosed
	}
	if t.running {
		return nil
	}
	t.running = true

	var (
		dctx   context.Context
		cancel context.CancelFunc
	)
	if d := t.dialer.HandshakeTimeout; d > 0 {
		dctx, cancel = context.WithTimeout(ctx, d)
	} else {
		dctx, cancel = context.WithCancel(ctx)
	}
	t.cancelDial = cancel
	t.wg.Add(1)
	go t.run(dctx, cancel)
	return nil
}

// SendBinary writes data as one binary message. A failed write closes the
// connection, which the read loop reports as a disconnect.
func (t *wsTransport) SendBinary(data []byte, timeout time.Duration) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return errNotOpen
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(timeout))
	if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		conn.Close()
		return err
	}
	return nil
}

// Close closes the connection and waits for the read goroutine to exit.
func (t *wsTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	conn := t.conn
	if t.cancelDial != nil {
		t.cancelDial()
	}
	t.mu.Unlock()

	if conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		conn.Close()
	}
	t.wg.Wait()
	return nil
}

func (t *wsTransport) run(dctx context.Context, cancel context.CancelFunc) {
	defer t.wg.Done()

	conn, _, err := t.dialer.DialContext(dctx, t.url, t.header)
	cancel()
	if err != nil {
		t.finish()
		t.report(Event{Kind: EventError, Err: fmt.Errorf("dial %s: %w", t.url, err)})
		return
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		conn.Close()
		return
	}
	t.conn = conn
	t.mu.Unlock()

	conn.SetReadLimit(wsReadLimit)
	conn.SetReadDeadline(time.Now().Add(t.pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(t.pongWait))
		return nil
	})

	t.report(Event{Kind: EventConnected})

	stop := make(chan struct{})
	go t.pingLoop(conn, stop)
	err = t.readLoop(conn)
	close(stop)
	conn.Close()

	t.finish()
	t.report(Event{Kind: EventDisconnected, Err: err})
}

func (t *wsTransport) readLoop(conn *websocket.Conn) error {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				t.logger.Warn("read error", "error", err)
			}
			return err
		}

		op := OpText
		if msgType == websocket.BinaryMessage {
			op = OpBinary
		}
		t.report(Event{Kind: EventData, Op: op, Data: data})
	}
}

func (t *wsTransport) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(t.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		case <-stop:
			return
		}
	}
}

// finish marks the cycle as over so the next Start can dial again.
func (t *wsTransport) finish() {
	t.mu.Lock()
	t.conn = nil
	t.running = false
	t.cancelDial = nil
	t.mu.Unlock()
}

// report forwards ev unless the transport has been closed.
func (t *wsTransport) report(ev Event) {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if !closed {
		t.emit(ev)
	}
}
