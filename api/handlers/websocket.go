// Package handlers provides HTTP API request handlers.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/converse-live/backend/internal/ws"
)

// WebSocketHandler handles WebSocket connections for conversation clients.
type WebSocketHandler struct {
	wsHandler *ws.Handler
}

// NewWebSocketHandler creates a new WebSocketHandler.
func NewWebSocketHandler(wsHandler *ws.Handler) *WebSocketHandler {
	return &WebSocketHandler{
		wsHandler: wsHandler,
	}
}

// Connect handles GET /ws/:clientId - opens the conversation event stream.
func (h *WebSocketHandler) Connect(c *gin.Context) {
	clientID := c.Param("clientId")
	if clientID == "" {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Client ID is required")
		return
	}

	// Upgrade failures write their own HTTP response
	h.wsHandler.HandleConnection(c.Writer, c.Request, clientID)
}

// RegisterRoutes registers the WebSocket route on the root router.
func (h *WebSocketHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/ws/:clientId", h.Connect)
}
