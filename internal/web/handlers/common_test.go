package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRespondJSON(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		data     any
		wantBody string
	}{
		{"object", http.StatusOK, map[string]string{"status": "ok"}, "{\"status\":\"ok\"}\n"},
		{"created", http.StatusCreated, []int{1, 2}, "[1,2]\n"},
		{"nil data", http.StatusNoContent, nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			respondJSON(recorder, tt.status, tt.data)

			assertStatusCode(t, recorder, tt.status)
			assertContentType(t, recorder, "application/json")
			if got := recorder.Body.String(); got != tt.wantBody {
				t.Errorf("expected body %q, got %q", tt.wantBody, got)
			}
		})
	}
}

func TestRespondError(t *testing.T) {
	recorder := httptest.NewRecorder()
	respondError(recorder, http.StatusBadRequest, "bad input")

	assertStatusCode(t, recorder, http.StatusBadRequest)
	assertContentType(t, recorder, "application/json")
	assertJSONError(t, recorder, "bad input")
}

func TestSanitizeForLog(t *testing.T) {
	if got := sanitizeForLog("alice@example.com\r\nforged=1"); got != "alice@example.comforged=1" {
		t.Errorf("sanitizeForLog() = %q", got)
	}
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func TestHealthHandler_Check(t *testing.T) {
	tests := []struct {
		name       string
		db         Pinger
		wantStatus int
		wantValue  string
	}{
		{"no database configured", nil, http.StatusOK, "ok"},
		{"database reachable", stubPinger{}, http.StatusOK, "ok"},
		{"database down", stubPinger{err: errors.New("connection refused")}, http.StatusServiceUnavailable, "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHealthHandler(tt.db)
			recorder := httptest.NewRecorder()
			handler.Check(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

			assertStatusCode(t, recorder, tt.wantStatus)
			var body map[string]string
			parseJSONResponse(t, recorder, &body)
			if body["status"] != tt.wantValue {
				t.Errorf("expected status %q, got %q", tt.wantValue, body["status"])
			}
		})
	}
}
