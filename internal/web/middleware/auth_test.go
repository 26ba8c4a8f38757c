package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kozaktomas/face-auth/internal/database"
	"github.com/kozaktomas/face-auth/internal/database/mock"
)

func newTestManager(t *testing.T) (*SessionManager, *mock.MockSessionStore) {
	t.Helper()
	store := mock.NewMockSessionStore()
	sm := NewSessionManager("test-secret", store, nil)
	t.Cleanup(sm.Stop)
	return sm, store
}

func saveSession(t *testing.T, store *mock.MockSessionStore, id string, ttl time.Duration) *database.Session {
	t.Helper()
	s := database.Session{
		ID:         id,
		IdentityID: "identity-1",
		Email:      "alice@example.com",
		CreatedAt:  time.Now(),
		ExpiresAt:  time.Now().Add(ttl),
	}
	if err := store.SaveSession(context.Background(), s); err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}
	return &s
}

func TestSessionManager_CookieRoundTrip(t *testing.T) {
	sm, store := newTestManager(t)
	session := saveSession(t, store, "session-1", time.Hour)

	rec := httptest.NewRecorder()
	sm.SetSessionCookie(rec, httptest.NewRequest(http.MethodGet, "/", nil), session)

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected 1 cookie, got %d", len(cookies))
	}
	if !cookies[0].HttpOnly {
		t.Error("session cookie must be HttpOnly")
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	got := sm.GetSessionFromRequest(req)
	if got == nil {
		t.Fatal("GetSessionFromRequest() returned nil")
	}
	if got.Email != "alice@example.com" {
		t.Errorf("Email = %s, want alice@example.com", got.Email)
	}
}

func TestSessionManager_GetSessionFromRequest(t *testing.T) {
	sm, store := newTestManager(t)
	saveSession(t, store, "live", time.Hour)
	saveSession(t, store, "expired", -time.Minute)

	tests := []struct {
		name    string
		prepare func(r *http.Request)
		want    bool
	}{
		{"no credentials", func(r *http.Request) {}, false},
		{"valid cookie", func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: sessionCookieName, Value: sm.Token("live")})
		}, true},
		{"valid bearer", func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+sm.Token("live"))
		}, true},
		{"unsigned id", func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "live"})
		}, false},
		{"bad signature", func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "live.forged"})
		}, false},
		{"expired session", func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: sessionCookieName, Value: sm.Token("expired")})
		}, false},
		{"unknown session", func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: sessionCookieName, Value: sm.Token("missing")})
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			tt.prepare(req)
			got := sm.GetSessionFromRequest(req) != nil
			if got != tt.want {
				t.Errorf("GetSessionFromRequest() found = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSessionManager_OtherSecretRejected(t *testing.T) {
	sm, store := newTestManager(t)
	saveSession(t, store, "live", time.Hour)

	other := NewSessionManager("other-secret", store, nil)
	defer other.Stop()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: other.Token("live")})
	if sm.GetSessionFromRequest(req) != nil {
		t.Error("token signed with another secret must be rejected")
	}
}

func TestSessionManager_DeleteSession(t *testing.T) {
	sm, store := newTestManager(t)
	saveSession(t, store, "live", time.Hour)

	if err := sm.DeleteSession(context.Background(), "live"); err != nil {
		t.Fatalf("DeleteSession() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: sm.Token("live")})
	if sm.GetSessionFromRequest(req) != nil {
		t.Error("deleted session must not be returned")
	}
}

func TestClearSessionCookie(t *testing.T) {
	sm, _ := newTestManager(t)
	rec := httptest.NewRecorder()
	sm.ClearSessionCookie(rec)

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge >= 0 {
		t.Errorf("expected expiring cookie, got %+v", cookies)
	}
}

func TestRequireAuth(t *testing.T) {
	sm, store := newTestManager(t)
	saveSession(t, store, "live", time.Hour)

	var seen *database.Session
	handler := RequireAuth(sm)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetSessionFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("rejects anonymous", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
		if rec.Header().Get("WWW-Authenticate") == "" {
			t.Error("expected WWW-Authenticate challenge")
		}
	})

	t.Run("passes session", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+sm.Token("live"))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if seen == nil || seen.ID != "live" {
			t.Errorf("session in context = %+v", seen)
		}
	})
}

func TestGetSessionFromContext_Empty(t *testing.T) {
	if GetSessionFromContext(context.Background()) != nil {
		t.Error("expected nil session")
	}
}
