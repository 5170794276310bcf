package ws

import (
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/converse-live/backend/internal/protocol"
)

// Client represents one WebSocket client connection.
type Client struct {
	conn     *websocket.Conn
	clientID string
	send     chan []byte
	mu       sync.Mutex
	closed   bool
}

// NewClient creates a new WebSocket client.
func NewClient(conn *websocket.Conn, clientID string) *Client {
	return &Client{
		conn:     conn,
		clientID: clientID,
		send:     make(chan []byte, 256),
	}
}

// Send queues a frame to be written to the client.
func (c *Client) Send(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	select {
	case c.send <- data:
	default:
		// Buffer full, close the client
		c.closeLocked()
	}
}

// Close closes the client connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Client) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// IsClosed returns true if the client is closed.
func (c *Client) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// ClientID returns the client identity associated with this connection.
func (c *Client) ClientID() string {
	return c.clientID
}

// Conn returns the underlying WebSocket connection.
func (c *Client) Conn() *websocket.Conn {
	return c.conn
}

// SendChan returns the send channel for the client.
func (c *Client) SendChan() <-chan []byte {
	return c.send
}

// Registry tracks connected clients, one live connection per client identity.
type Registry struct {
	clients map[string]*Client
	mu      sync.RWMutex
	log     *zap.Logger
}

// NewRegistry creates a new Registry.
func NewRegistry(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		clients: make(map[string]*Client),
		log:     log,
	}
}

// Register adds a client, replacing and closing any previous connection for
// the same identity.
func (r *Registry) Register(client *Client) {
	r.mu.Lock()
	prev := r.clients[client.clientID]
	r.clients[client.clientID] = client
	r.mu.Unlock()

	if prev != nil {
		r.log.Info("replacing connection for client", zap.String("clientId", client.clientID))
		prev.Close()
	}
}

// Unregister removes a client. A connection that has already been replaced is
// left alone so the replacement stays registered.
func (r *Registry) Unregister(client *Client) {
	r.mu.Lock()
	if cur, ok := r.clients[client.clientID]; ok && cur == client {
		delete(r.clients, client.clientID)
	}
	r.mu.Unlock()

	client.Close()
}

// Get returns the connection for a client identity, or nil.
func (r *Registry) Get(clientID string) *Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.clients[clientID]
}

// ClientCount returns the number of connected clients.
func (r *Registry) ClientCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// SendEvent marshals an event and queues it to the named client. Events for
// clients that are not connected are dropped.
func (r *Registry) SendEvent(clientID string, ev *protocol.Envelope) {
	client := r.Get(clientID)
	if client == nil {
		r.log.Debug("dropping event for disconnected client",
			zap.String("clientId", clientID), zap.String("type", string(ev.Type)))
		return
	}

	data, err := ev.Encode()
	if err != nil {
		r.log.Error("failed to encode event", zap.String("type", string(ev.Type)), zap.Error(err))
		return
	}
	client.Send(data)
}

// Close closes all client connections.
func (r *Registry) Close() {
	r.mu.Lock()
	clients := make([]*Client, 0, len(r.clients))
	for _, client := range r.clients {
		clients = append(clients, client)
	}
	r.clients = make(map[string]*Client)
	r.mu.Unlock()

	for _, client := range clients {
		client.Close()
	}
}
