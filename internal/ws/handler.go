package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/converse-live/backend/internal/protocol"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 8192
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: restrict to the configured frontend origin in production
		return true
	},
}

// CommandDispatcher consumes decoded client commands.
type CommandDispatcher interface {
	Dispatch(ctx context.Context, clientID string, env *protocol.Envelope)
	ClientDisconnected(clientID string)
}

// Handler handles WebSocket connections for conversation clients.
type Handler struct {
	registry   *Registry
	dispatcher CommandDispatcher
	log        *zap.Logger
}

// NewHandler creates a new WebSocket handler.
func NewHandler(registry *Registry, dispatcher CommandDispatcher, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		registry:   registry,
		dispatcher: dispatcher,
		log:        log,
	}
}

// HandleConnection upgrades the HTTP request and manages the bidirectional
// event stream for one client identity.
func (h *Handler) HandleConnection(w http.ResponseWriter, r *http.Request, clientID string) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := NewClient(conn, clientID)
	h.registry.Register(client)
	h.log.Info("client connected", zap.String("clientId", clientID))

	go h.writePump(client)
	go h.readPump(client)

	return nil
}

// readPump pumps decoded commands from the WebSocket connection to the dispatcher.
func (h *Handler) readPump(client *Client) {
	defer func() {
		h.registry.Unregister(client)
		client.Conn().Close()
		h.dispatcher.ClientDisconnected(client.ClientID())
		h.log.Info("client disconnected", zap.String("clientId", client.ClientID()))
	}()

	client.Conn().SetReadLimit(maxMessageSize)
	client.Conn().SetReadDeadline(time.Now().Add(pongWait))
	client.Conn().SetPongHandler(func(string) error {
		client.Conn().SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, frame, err := client.Conn().ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Warn("websocket read error", zap.String("clientId", client.ClientID()), zap.Error(err))
			}
			break
		}

		env, err := protocol.Decode(frame)
		if err != nil {
			h.log.Warn("dropping malformed frame", zap.String("clientId", client.ClientID()), zap.Error(err))
			continue
		}

		h.dispatcher.Dispatch(context.Background(), client.ClientID(), env)
	}
}

// writePump pumps queued frames to the WebSocket connection.
func (h *Handler) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Conn().Close()
	}()

	for {
		select {
		case frame, ok := <-client.SendChan():
			client.Conn().SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The registry closed the client
				client.Conn().WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// One event per text frame so the peer can parse each in isolation
			if err := client.Conn().WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

			n := len(client.SendChan())
			for i := 0; i < n; i++ {
				queued := <-client.SendChan()
				client.Conn().SetWriteDeadline(time.Now().Add(writeWait))
				if err := client.Conn().WriteMessage(websocket.TextMessage, queued); err != nil {
					return
				}
			}
		case <-ticker.C:
			client.Conn().SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn().WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SetCheckOrigin sets a custom origin checker for the WebSocket upgrader.
func SetCheckOrigin(fn func(r *http.Request) bool) {
	upgrader.CheckOrigin = fn
}
