package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lexiqai/live-captions/internal/observability"
	"github.com/lexiqai/live-captions/internal/protocol"
	"github.com/lexiqai/live-captions/internal/resilience"
	"github.com/rs/zerolog"
)

// Config holds WebSocket connection settings.
type Config struct {
	URL              string
	AuthToken        string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	Reconnect        *resilience.ReconnectConfig
}

// WebSocket is a Transport over a gorilla/websocket connection. Run owns the
// connection lifecycle and redials after drops.
type WebSocket struct {
	cfg    Config
	dialer *websocket.Dialer
	logger zerolog.Logger

	mu       sync.RWMutex
	conn     *websocket.Conn
	connects int

	// gorilla/websocket supports one concurrent writer
	writeMu sync.Mutex

	handlersMu sync.RWMutex
	onMessage  []func(protocol.Event)
	onConnect  []func()
}

// NewWebSocket creates a transport. Nothing is dialed until Run.
func NewWebSocket(cfg Config, logger zerolog.Logger) *WebSocket {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	return &WebSocket{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
			ReadBufferSize:   4096,
			WriteBufferSize:  16384,
		},
		logger: logger.With().Str("component", "transport").Logger(),
	}
}

// OnMessage registers a handler for decoded inbound events.
func (w *WebSocket) OnMessage(fn func(protocol.Event)) {
	w.handlersMu.Lock()
	defer w.handlersMu.Unlock()
	w.onMessage = append(w.onMessage, fn)
}

// OnConnect registers a handler called after every successful dial,
// including the first.
func (w *WebSocket) OnConnect(fn func()) {
	w.handlersMu.Lock()
	defer w.handlersMu.Unlock()
	w.onConnect = append(w.onConnect, fn)
}

// IsConnected reports whether a connection is currently established.
func (w *WebSocket) IsConnected() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.conn != nil
}

// Run dials the service and keeps the connection up until ctx is cancelled.
// It returns nil on cancellation and an error only when reconnection gives up.
func (w *WebSocket) Run(ctx context.Context) error {
	for {
		var conn *websocket.Conn
		err := resilience.Reconnect(ctx, func() error {
			c, err := w.dial(ctx)
			if err != nil {
				return err
			}
			conn = c
			return nil
		}, w.cfg.Reconnect)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			observability.RecordError("connect", "transport")
			return &Error{Op: "connect", Err: err}
		}

		w.setConn(conn)
		w.notifyConnect()

		err = w.readLoop(ctx, conn)
		w.clearConn(conn)

		if ctx.Err() != nil {
			return nil
		}
		w.logger.Warn().Err(err).Msg("Connection lost, reconnecting")
		observability.RecordError("disconnect", "transport")
	}
}

func (w *WebSocket) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if w.cfg.AuthToken != "" {
		header.Set("Authorization", "Bearer "+w.cfg.AuthToken)
	}

	conn, resp, err := w.dialer.DialContext(ctx, w.cfg.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", w.cfg.URL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", w.cfg.URL, err)
	}
	return conn, nil
}

func (w *WebSocket) setConn(conn *websocket.Conn) {
	w.mu.Lock()
	w.conn = conn
	w.connects++
	reconnect := w.connects > 1
	w.mu.Unlock()

	observability.SetTransportConnected(true)
	if reconnect {
		observability.RecordReconnect()
	}
	w.logger.Info().Str("url", w.cfg.URL).Bool("reconnect", reconnect).Msg("Connected to transcription service")
}

func (w *WebSocket) clearConn(conn *websocket.Conn) {
	w.mu.Lock()
	if w.conn == conn {
		w.conn = nil
	}
	w.mu.Unlock()
	observability.SetTransportConnected(false)
}

func (w *WebSocket) notifyConnect() {
	w.handlersMu.RLock()
	handlers := append([]func(){}, w.onConnect...)
	w.handlersMu.RUnlock()
	for _, fn := range handlers {
		fn()
	}
}

func (w *WebSocket) dispatch(ev protocol.Event) {
	w.handlersMu.RLock()
	handlers := append([]func(protocol.Event){}, w.onMessage...)
	w.handlersMu.RUnlock()
	for _, fn := range handlers {
		fn(ev)
	}
}

// readLoop blocks until the connection fails or ctx is cancelled.
func (w *WebSocket) readLoop(ctx context.Context, conn *websocket.Conn) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			w.closeConn(conn)
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			conn.Close()
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return &Error{Op: "read", Err: err}
			}
			return err
		}

		ev, err := protocol.Decode(data)
		if err != nil {
			var perr *protocol.Error
			name := ""
			if errors.As(err, &perr) {
				name = perr.Event
			}
			observability.RecordProtocolError(name)
			w.logger.Warn().Err(err).Int("bytes", len(data)).Msg("Ignoring malformed frame")
			continue
		}
		w.dispatch(ev)
	}
}

// closeConn sends a normal close frame and closes the socket.
func (w *WebSocket) closeConn(conn *websocket.Conn) {
	w.writeMu.Lock()
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	w.writeMu.Unlock()
	conn.Close()
}

// Send writes one event. It never queues: callers see ErrNotConnected or a
// *Error and decide whether to retry.
func (w *WebSocket) Send(ev protocol.Event) error {
	data, err := protocol.Encode(ev)
	if err != nil {
		return err
	}

	w.mu.RLock()
	conn := w.conn
	w.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	if err := conn.SetWriteDeadline(time.Now().Add(w.cfg.WriteTimeout)); err != nil {
		return &Error{Op: "write", Err: err}
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		// Unblocks the read loop so Run redials.
		conn.Close()
		return &Error{Op: "write", Err: err}
	}
	return nil
}
