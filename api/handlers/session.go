// Package handlers provides HTTP API request handlers.
package handlers

import (
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/converse-live/backend/internal/model"
	"github.com/converse-live/backend/internal/session"
)

// SessionHandler handles HTTP requests for session management.
type SessionHandler struct {
	sessionManager *session.Manager
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessionManager *session.Manager) *SessionHandler {
	return &SessionHandler{
		sessionManager: sessionManager,
	}
}

// SessionResponse represents a session in API responses.
type SessionResponse struct {
	SessionID string           `json:"sessionId"`
	Mode      model.Mode       `json:"mode"`
	Config    model.ModeConfig `json:"config"`
	Status    string           `json:"status"`
	CreatedAt string           `json:"createdAt"`
}

// HistoryResponse represents a session transcript in API responses.
type HistoryResponse struct {
	SessionID string                  `json:"sessionId"`
	History   []model.TranscriptEntry `json:"history"`
	Count     int                     `json:"count"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// toSessionResponse converts a model.Session to SessionResponse.
func toSessionResponse(s *model.Session) *SessionResponse {
	return &SessionResponse{
		SessionID: s.ID,
		Mode:      s.Mode,
		Config:    s.Config,
		Status:    string(s.Status),
		CreatedAt: s.CreatedAt.Format(time.RFC3339),
	}
}

// sendError sends an error response with the appropriate status code.
func sendError(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// Health handles GET /health.
func (h *SessionHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "healthy",
		"activeSessions": h.sessionManager.ActiveCount(),
	})
}

// Start handles POST /api/session/start - creates a new conversation session.
func (h *SessionHandler) Start(c *gin.Context) {
	var req model.StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	sess, err := h.sessionManager.Create(c.Request.Context(), "", req.Mode, req.Config)
	if err != nil {
		if errors.Is(err, model.ErrInvalidMode) {
			sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
			return
		}
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create session: "+err.Error())
		return
	}

	c.JSON(http.StatusCreated, toSessionResponse(sess))
}

// ChangeMode handles POST /api/session/:id/mode - switches a session's mode.
func (h *SessionHandler) ChangeMode(c *gin.Context) {
	sessionID := c.Param("id")
	if sessionID == "" {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Session ID is required")
		return
	}

	var req model.StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	if err := h.sessionManager.ChangeMode(c.Request.Context(), sessionID, req.Mode, req.Config); err != nil {
		if errors.Is(err, model.ErrSessionNotFound) {
			sendError(c, http.StatusNotFound, "SESSION_NOT_FOUND", "Session "+sessionID+" not found")
			return
		}
		if errors.Is(err, model.ErrInvalidMode) {
			sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
			return
		}
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to change mode: "+err.Error())
		return
	}

	sc, err := h.sessionManager.Get(c.Request.Context(), sessionID)
	if err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load session: "+err.Error())
		return
	}

	c.JSON(http.StatusOK, toSessionResponse(sc.Session))
}

// History handles GET /api/session/:id/history - returns the stored transcript.
func (h *SessionHandler) History(c *gin.Context) {
	sessionID := c.Param("id")
	if sessionID == "" {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Session ID is required")
		return
	}

	entries, err := h.sessionManager.Transcript(c.Request.Context(), sessionID)
	if err != nil {
		if errors.Is(err, model.ErrSessionNotFound) {
			sendError(c, http.StatusNotFound, "SESSION_NOT_FOUND", "Session "+sessionID+" not found")
			return
		}
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load history: "+err.Error())
		return
	}
	if entries == nil {
		entries = []model.TranscriptEntry{}
	}

	c.JSON(http.StatusOK, HistoryResponse{
		SessionID: sessionID,
		History:   entries,
		Count:     len(entries),
	})
}

// Delete handles DELETE /api/session/:id - ends a session and removes its record.
func (h *SessionHandler) Delete(c *gin.Context) {
	sessionID := c.Param("id")
	if sessionID == "" {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Session ID is required")
		return
	}

	if err := h.sessionManager.Delete(c.Request.Context(), sessionID); err != nil {
		if errors.Is(err, model.ErrSessionNotFound) {
			sendError(c, http.StatusNotFound, "SESSION_NOT_FOUND", "Session "+sessionID+" not found")
			return
		}
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to delete session: "+err.Error())
		return
	}

	c.Status(http.StatusNoContent)
}

// GetRecording handles GET /api/session/:id/recording - downloads the
// conversation recording.
func (h *SessionHandler) GetRecording(c *gin.Context) {
	sessionID := c.Param("id")
	if sessionID == "" {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Session ID is required")
		return
	}

	path := h.sessionManager.RecordingPath(sessionID)
	if path == "" {
		sendError(c, http.StatusNotFound, "RECORDING_NOT_FOUND", "Recording not found for session "+sessionID)
		return
	}
	if _, err := os.Stat(path); err != nil {
		sendError(c, http.StatusNotFound, "RECORDING_NOT_FOUND", "Recording not found for session "+sessionID)
		return
	}

	c.Header("Content-Type", "application/x-ndjson")
	c.Header("Content-Disposition", "attachment; filename="+sessionID+".jsonl")
	c.File(path)
}

// RegisterRoutes registers the session handler routes on a Gin router group.
func (h *SessionHandler) RegisterRoutes(rg *gin.RouterGroup) {
	sess := rg.Group("/session")
	{
		sess.POST("/start", h.Start)
		sess.POST("/:id/mode", h.ChangeMode)
		sess.GET("/:id/history", h.History)
		sess.GET("/:id/recording", h.GetRecording)
		sess.DELETE("/:id", h.Delete)
	}
}
