package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/kozaktomas/face-auth/internal/constants"
	"github.com/kozaktomas/face-auth/internal/database"
)

const sessionCookieName = "face_auth_session"

// SessionManager maps signed cookies to sessions kept in the session store
type SessionManager struct {
	secret []byte
	store  database.SessionStore
	logger *slog.Logger

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewSessionManager creates a session manager and starts the expired
// session cleanup loop. Call Stop to end it.
func NewSessionManager(secret string, store database.SessionStore, logger *slog.Logger) *SessionManager {
	// Use a default secret if none provided (for development)
	if secret == "" {
		secret = "face-auth-dev-secret-change-in-production"
	}
	if logger == nil {
		logger = slog.Default()
	}
	sm := &SessionManager{
		secret: []byte(secret),
		store:  store,
		logger: logger,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go sm.cleanupLoop(constants.SessionCleanupInterval)
	return sm
}

func (sm *SessionManager) cleanupLoop(interval time.Duration) {
	defer close(sm.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-sm.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			n, err := sm.store.DeleteExpiredSessions(ctx)
			cancel()
			if err != nil {
				sm.logger.Warn("session cleanup failed", "error", err)
				continue
			}
			if n > 0 {
				sm.logger.Info("expired sessions removed", "count", n)
			}
		}
	}
}

// Stop ends the cleanup loop
func (sm *SessionManager) Stop() {
	sm.stopOnce.Do(func() {
		close(sm.stop)
		<-sm.done
	})
}

// SetSessionCookie sets the signed session cookie on the response
func (sm *SessionManager) SetSessionCookie(w http.ResponseWriter, r *http.Request, session *database.Session) {
	maxAge := int(time.Until(session.ExpiresAt).Seconds())
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sm.Token(session.ID),
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
}

// ClearSessionCookie removes the session cookie
func (sm *SessionManager) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

// Token returns the signed form of a session ID, as used in the cookie
// and in Authorization: Bearer headers.
func (sm *SessionManager) Token(sessionID string) string {
	return sessionID + "." + sm.signData(sessionID)
}

// GetSessionFromRequest returns the session referenced by the cookie or
// bearer token, or nil when there is none or it is no longer valid.
func (sm *SessionManager) GetSessionFromRequest(r *http.Request) *database.Session {
	var token string
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		token = cookie.Value
	} else if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		token = strings.TrimPrefix(auth, "Bearer ")
	}
	if token == "" {
		return nil
	}

	sessionID, signature, ok := strings.Cut(token, ".")
	if !ok || !sm.verifySignature(sessionID, signature) {
		return nil
	}

	session, err := sm.store.GetSession(r.Context(), sessionID)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			sm.logger.Warn("session lookup failed", "error", err)
		}
		return nil
	}
	if session.Expired(time.Now()) {
		return nil
	}
	return session
}

// DeleteSession removes a session from the store
func (sm *SessionManager) DeleteSession(ctx context.Context, sessionID string) error {
	return sm.store.DeleteSession(ctx, sessionID)
}

// signData creates an HMAC signature for data
func (sm *SessionManager) signData(data string) string {
	h := hmac.New(sha256.New, sm.secret)
	h.Write([]byte(data))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

// verifySignature verifies an HMAC signature
func (sm *SessionManager) verifySignature(data, signature string) bool {
	expected := sm.signData(data)
	return hmac.Equal([]byte(signature), []byte(expected))
}
