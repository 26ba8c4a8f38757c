package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kozaktomas/face-auth/internal/database"
	"github.com/kozaktomas/face-auth/internal/database/mock"
	"github.com/kozaktomas/face-auth/internal/web/middleware"
)

func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d (body: %s)", expected, recorder.Code, recorder.Body.String())
	}
}

func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	if ct := recorder.Header().Get("Content-Type"); ct != expected {
		t.Errorf("expected Content-Type %q, got %q", expected, ct)
	}
}

func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	var body map[string]string
	parseJSONResponse(t, recorder, &body)
	if body["error"] != expected {
		t.Errorf("expected error %q, got %q", expected, body["error"])
	}
}

func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to parse JSON response: %v (body: %s)", err, recorder.Body.String())
	}
}

func newTestSessionManager(t *testing.T) (*middleware.SessionManager, *mock.MockSessionStore) {
	t.Helper()
	store := mock.NewMockSessionStore()
	sm := middleware.NewSessionManager("test-secret", store, nil)
	t.Cleanup(sm.Stop)
	return sm, store
}

func storeSession(t *testing.T, store *mock.MockSessionStore, id, identityID, email string) database.Session {
	t.Helper()
	s := database.Session{
		ID:         id,
		IdentityID: identityID,
		Email:      email,
		CreatedAt:  time.Now(),
		ExpiresAt:  time.Now().Add(time.Hour),
	}
	if err := store.SaveSession(context.Background(), s); err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}
	return s
}

func withBearer(req *http.Request, sm *middleware.SessionManager, sessionID string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+sm.Token(sessionID))
	return req
}
