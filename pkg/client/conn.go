package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/converse-live/backend/internal/protocol"
)

// ErrNotConnected is returned by Send when there is no live connection.
// Nothing is written to the transport in that case.
var ErrNotConnected = errors.New("client: not connected")

// ErrClosed is returned when the connection has been closed by the caller.
var ErrClosed = errors.New("client: connection closed")

// ConnState is the connection lifecycle state.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Options holds tunables for the connection.
type Options struct {
	// ReconnectDelay is the fixed delay between reconnection attempts.
	ReconnectDelay time.Duration

	// MaxReconnects is the number of reconnection attempts after an
	// unexpected close before giving up.
	MaxReconnects int

	// HandshakeTimeout bounds the WebSocket dial.
	HandshakeTimeout time.Duration

	// WriteTimeout bounds a single frame write.
	WriteTimeout time.Duration
}

// DefaultOptions returns the standard connection tunables.
func DefaultOptions() Options {
	return Options{
		ReconnectDelay:   3 * time.Second,
		MaxReconnects:    5,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.ReconnectDelay == 0 {
		o.ReconnectDelay = def.ReconnectDelay
	}
	if o.MaxReconnects == 0 {
		o.MaxReconnects = def.MaxReconnects
	}
	if o.HandshakeTimeout == 0 {
		o.HandshakeTimeout = def.HandshakeTimeout
	}
	if o.WriteTimeout == 0 {
		o.WriteTimeout = def.WriteTimeout
	}
	return o
}

// Conn is one client connection to the conversation server. The client
// identity is generated once at construction and survives reconnection, so
// the server can hand the same session back after a network blip.
type Conn struct {
	baseURL    string
	clientID   string
	opts       Options
	dispatcher *Dispatcher
	log        *zap.Logger

	mu     sync.Mutex
	ws     *websocket.Conn
	state  ConnState
	closed bool

	writeMu sync.Mutex
}

// NewConn creates a connection to the server at baseURL (scheme ws or wss).
// The endpoint is fixed for the lifetime of the connection.
func NewConn(baseURL string, dispatcher *Dispatcher, opts Options, log *zap.Logger) *Conn {
	if log == nil {
		log = zap.NewNop()
	}
	if dispatcher == nil {
		dispatcher = NewDispatcher(log)
	}
	return &Conn{
		baseURL:    baseURL,
		clientID:   uuid.New().String(),
		opts:       opts.withDefaults(),
		dispatcher: dispatcher,
		log:        log,
		state:      StateDisconnected,
	}
}

// ClientID returns the stable client identity.
func (c *Conn) ClientID() string {
	return c.clientID
}

// Dispatcher returns the event dispatcher for this connection.
func (c *Conn) Dispatcher() *Dispatcher {
	return c.dispatcher
}

// State returns the current connection state.
func (c *Conn) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect dials the server. Calling Connect while a dial is pending or the
// connection is live is a no-op.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state == StateConnected || c.state == StateConnecting {
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.mu.Unlock()

	ws, err := c.dial(ctx)
	if err != nil {
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		return err
	}

	c.attach(ws)
	return nil
}

func (c *Conn) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: c.opts.HandshakeTimeout,
	}
	url := fmt.Sprintf("%s/ws/%s", c.baseURL, c.clientID)

	ws, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}
	return ws, nil
}

// attach installs a freshly dialed socket and starts its read loop.
func (c *Conn) attach(ws *websocket.Conn) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		ws.Close()
		return
	}
	c.ws = ws
	c.state = StateConnected
	c.mu.Unlock()

	c.log.Info("connected", zap.String("clientId", c.clientID))
	c.dispatcher.Dispatch(&Envelope{Type: EventConnected})

	go c.readLoop(ws)
}

// readLoop delivers decoded server events until the socket fails.
func (c *Conn) readLoop(ws *websocket.Conn) {
	for {
		_, frame, err := ws.ReadMessage()
		if err != nil {
			c.handleDisconnect(ws, err)
			return
		}

		env, err := protocol.Decode(frame)
		if err != nil {
			c.log.Warn("dropping malformed frame", zap.Error(err))
			continue
		}

		c.dispatcher.Dispatch(env)
	}
}

// handleDisconnect tears down a failed socket and, unless the caller closed
// the connection, starts the reconnection loop.
func (c *Conn) handleDisconnect(ws *websocket.Conn, cause error) {
	c.mu.Lock()
	if c.ws != ws {
		// A replacement socket is already live
		c.mu.Unlock()
		return
	}
	c.ws = nil
	c.state = StateDisconnected
	wasClosed := c.closed
	c.mu.Unlock()

	ws.Close()

	if wasClosed {
		return
	}

	c.log.Warn("connection lost", zap.Error(cause))
	c.dispatcher.Dispatch(&Envelope{Type: EventDisconnected})

	go c.reconnectLoop()
}

// reconnectLoop retries the dial a fixed number of times with a fixed delay,
// keeping the same client identity. Exhausting the attempts emits a terminal
// reconnect-failed event.
func (c *Conn) reconnectLoop() {
	for attempt := 1; attempt <= c.opts.MaxReconnects; attempt++ {
		time.Sleep(c.opts.ReconnectDelay)

		c.mu.Lock()
		if c.closed || c.state != StateDisconnected {
			c.mu.Unlock()
			return
		}
		c.state = StateConnecting
		c.mu.Unlock()

		c.log.Info("reconnecting",
			zap.Int("attempt", attempt),
			zap.Int("max", c.opts.MaxReconnects))

		ctx, cancel := context.WithTimeout(context.Background(), c.opts.HandshakeTimeout)
		ws, err := c.dial(ctx)
		cancel()
		if err != nil {
			c.log.Warn("reconnect attempt failed", zap.Int("attempt", attempt), zap.Error(err))
			c.mu.Lock()
			c.state = StateDisconnected
			c.mu.Unlock()
			continue
		}

		c.attach(ws)
		return
	}

	c.log.Error("reconnection attempts exhausted", zap.Int("attempts", c.opts.MaxReconnects))
	c.dispatcher.Dispatch(&Envelope{Type: EventReconnectFailed})
}

// Send writes one event to the server. When there is no live connection it
// returns ErrNotConnected without touching the transport.
func (c *Conn) Send(env *Envelope) error {
	c.mu.Lock()
	ws := c.ws
	connected := c.state == StateConnected
	c.mu.Unlock()

	if !connected || ws == nil {
		return ErrNotConnected
	}

	frame, err := env.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	return nil
}

// InitSession asks the server to start a session, or to resume sessionID when
// it is non-empty and still exists.
func (c *Conn) InitSession(sessionID string, mode Mode, cfg ModeConfig) error {
	return c.Send(&Envelope{
		Type:      protocol.EventInitSession,
		SessionID: sessionID,
		Mode:      mode,
		Config:    cfg,
	})
}

// SendText sends one recognized utterance.
func (c *Conn) SendText(text string) error {
	return c.Send(&Envelope{
		Type: protocol.EventTextMessage,
		Text: text,
	})
}

// ChangeMode asks the server to switch the conversation mode.
func (c *Conn) ChangeMode(mode Mode, cfg ModeConfig) error {
	return c.Send(&Envelope{
		Type:   protocol.EventChangeMode,
		Mode:   mode,
		Config: cfg,
	})
}

// StopAI asks the server to cancel any reply in progress.
func (c *Conn) StopAI() error {
	return c.Send(&Envelope{Type: protocol.EventStopAI})
}

// Close shuts the connection down and suppresses reconnection.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	ws := c.ws
	c.ws = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	if ws != nil {
		c.writeMu.Lock()
		ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
		ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		ws.Close()
	}
	return nil
}
