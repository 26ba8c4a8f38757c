package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kozaktomas/face-auth/internal/config"
	"github.com/kozaktomas/face-auth/internal/credential"
	"github.com/kozaktomas/face-auth/internal/database"
	"github.com/kozaktomas/face-auth/internal/database/mock"
	"github.com/kozaktomas/face-auth/internal/facematch"
)

type testEnv struct {
	server   *Server
	sessions *mock.MockSessionStore
}

func newTestServer(t *testing.T) testEnv {
	t.Helper()
	cfg := &config.Config{}
	cfg.Auth.SigningSecret = "test-secret"
	cfg.Web.SuccessURL = "/success"

	profiles := mock.NewMockProfileRepository()
	profiles.AddIdentity(facematch.Identity{
		ID:         "identity-1",
		FullName:   "Alice Example",
		Email:      "alice@example.com",
		Descriptor: make(facematch.Descriptor, facematch.DescriptorSize),
		CreatedAt:  time.Now(),
	})
	sessions := mock.NewMockSessionStore()
	backend := credential.NewService(mock.NewMockCredentialStore(), sessions, &credential.LogMailer{}, credential.Config{SigningSecret: "test-secret"}, nil)

	s := NewServer(cfg, "127.0.0.1", 0, Deps{
		Backend:  backend,
		Profiles: profiles,
		Sessions: sessions,
	}, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return testEnv{server: s, sessions: sessions}
}

func TestRoutes(t *testing.T) {
	env := newTestServer(t)
	if err := env.sessions.SaveSession(context.Background(), database.Session{
		ID:         "session-1",
		IdentityID: "identity-1",
		Email:      "alice@example.com",
		CreatedAt:  time.Now(),
		ExpiresAt:  time.Now().Add(time.Hour),
	}); err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}
	token := env.server.sessionManager.Token("session-1")

	tests := []struct {
		name       string
		method     string
		path       string
		bearer     string
		wantStatus int
	}{
		{"health", http.MethodGet, "/api/v1/health", "", http.StatusOK},
		{"status anonymous", http.MethodGet, "/api/v1/auth/status", "", http.StatusOK},
		{"profile requires auth", http.MethodGet, "/api/v1/profile", "", http.StatusUnauthorized},
		{"profile with session", http.MethodGet, "/api/v1/profile", token, http.StatusOK},
		{"finish-signin without token", http.MethodGet, "/finish-signin", "", http.StatusBadRequest},
		{"finish-signin with bad token", http.MethodGet, "/finish-signin?token=garbage&email=alice%40example.com", "", http.StatusUnauthorized},
		{"success page", http.MethodGet, "/success", "", http.StatusOK},
		{"unknown route", http.MethodGet, "/api/v1/photos", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.bearer != "" {
				req.Header.Set("Authorization", "Bearer "+tt.bearer)
			}
			recorder := httptest.NewRecorder()
			env.server.Router().ServeHTTP(recorder, req)

			if recorder.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d (body: %s)", tt.wantStatus, recorder.Code, recorder.Body.String())
			}
		})
	}
}

func TestRoutes_SecurityHeaders(t *testing.T) {
	env := newTestServer(t)
	recorder := httptest.NewRecorder()
	env.server.Router().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	if got := recorder.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("expected nosniff header, got %q", got)
	}
}
