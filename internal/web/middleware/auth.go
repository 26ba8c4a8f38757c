package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/kozaktomas/face-auth/internal/database"
)

type contextKey string

const sessionContextKey contextKey = "session"

// RequireAuth rejects requests without a live session cookie or bearer
// token and stores the session in the request context.
func RequireAuth(sm *SessionManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := sm.GetSessionFromRequest(r)
			if session == nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="face-auth"`)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
				return
			}

			next.ServeHTTP(w, r.WithContext(SetSessionInContext(r.Context(), session)))
		})
	}
}

// GetSessionFromContext retrieves the session from the request context
func GetSessionFromContext(ctx context.Context) *database.Session {
	session, ok := ctx.Value(sessionContextKey).(*database.Session)
	if !ok {
		return nil
	}
	return session
}

// SetSessionInContext adds a session to the context.
func SetSessionInContext(ctx context.Context, session *database.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, session)
}
