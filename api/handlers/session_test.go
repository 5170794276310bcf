package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/converse-live/backend/internal/db"
	"github.com/converse-live/backend/internal/model"
	"github.com/converse-live/backend/internal/repository"
	"github.com/converse-live/backend/internal/session"
)

func newTestRouter(t *testing.T) (*gin.Engine, *session.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	testDB, err := db.NewTestDB()
	if err != nil {
		t.Fatalf("failed to init test db: %v", err)
	}
	t.Cleanup(func() { testDB.Close() })

	manager := session.NewManager(
		repository.NewSessionRepository(testDB),
		repository.NewTranscriptRepository(testDB),
		session.Config{IdleTTL: time.Hour, SweepInterval: time.Hour},
		nil,
	)

	h := NewSessionHandler(manager)
	r := gin.New()
	r.GET("/health", h.Health)
	api := r.Group("/api")
	h.RegisterRoutes(api)
	return r, manager
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp["status"] != "healthy" {
		t.Errorf("unexpected health payload: %v", resp)
	}
}

func TestStartSession(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/session/start", map[string]interface{}{
		"mode":   "interview",
		"config": map[string]interface{}{"role": "SRE", "totalQuestions": 3},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var resp SessionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.SessionID == "" {
		t.Error("expected a session id")
	}
	if resp.Mode != model.ModeInterview || resp.Config.Role != "SRE" {
		t.Errorf("unexpected session payload: %+v", resp)
	}
}

func TestStartSessionInvalidMode(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/session/start", map[string]interface{}{
		"mode": "karaoke",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse error response: %v", err)
	}
	if resp.Error.Code != "VALIDATION_ERROR" {
		t.Errorf("unexpected error code: %s", resp.Error.Code)
	}
}

func TestChangeModeEndpoint(t *testing.T) {
	r, manager := newTestRouter(t)

	sess, err := manager.Create(context.Background(), "", model.ModeChat, model.ModeConfig{})
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}

	w := doJSON(t, r, http.MethodPost, "/api/session/"+sess.ID+"/mode", map[string]interface{}{
		"mode":   "debate",
		"config": map[string]interface{}{"topic": "remote work", "stance": "pro"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp SessionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Mode != model.ModeDebate || resp.Config.Topic != "remote work" {
		t.Errorf("unexpected session payload: %+v", resp)
	}
}

func TestChangeModeUnknownSession(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/session/missing/mode", map[string]interface{}{
		"mode": "chat",
	})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	r, manager := newTestRouter(t)
	ctx := context.Background()

	sess, err := manager.Create(ctx, "", model.ModeChat, model.ModeConfig{})
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	if err := manager.AddMessage(ctx, sess.ID, model.RoleUser, "hello"); err != nil {
		t.Fatalf("failed to add message: %v", err)
	}
	if err := manager.AddMessage(ctx, sess.ID, model.RoleAI, "hi there"); err != nil {
		t.Fatalf("failed to add message: %v", err)
	}

	w := doJSON(t, r, http.MethodGet, "/api/session/"+sess.ID+"/history", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp HistoryResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Count != 2 || len(resp.History) != 2 {
		t.Fatalf("expected 2 entries, got %+v", resp)
	}
	if resp.History[0].Role != model.RoleUser || resp.History[1].Role != model.RoleAI {
		t.Errorf("unexpected history order: %+v", resp.History)
	}
}

func TestHistoryUnknownSession(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodGet, "/api/session/missing/history", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestDeleteSessionEndpoint(t *testing.T) {
	r, manager := newTestRouter(t)

	sess, err := manager.Create(context.Background(), "", model.ModeChat, model.ModeConfig{})
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}

	w := doJSON(t, r, http.MethodDelete, "/api/session/"+sess.ID, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}

	// A second delete reports the session gone
	w = doJSON(t, r, http.MethodDelete, "/api/session/"+sess.ID, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on repeat delete, got %d", w.Code)
	}
}

func TestRecordingNotFound(t *testing.T) {
	r, manager := newTestRouter(t)

	sess, err := manager.Create(context.Background(), "", model.ModeChat, model.ModeConfig{})
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}

	// The test manager has no transcript directory configured
	w := doJSON(t, r, http.MethodGet, "/api/session/"+sess.ID+"/recording", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}
