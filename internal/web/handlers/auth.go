package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/kozaktomas/face-auth/internal/credential"
	"github.com/kozaktomas/face-auth/internal/web/middleware"
	"github.com/kozaktomas/face-auth/internal/web/static"
)

// AuthHandler handles sign-in completion and session endpoints
type AuthHandler struct {
	backend        credential.Backend
	sessionManager *middleware.SessionManager
	successURL     string
	logger         *slog.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(backend credential.Backend, sm *middleware.SessionManager, successURL string, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{
		backend:        backend,
		sessionManager: sm,
		successURL:     successURL,
		logger:         logger,
	}
}

// FinishSignIn redeems the emailed sign-in link the browser was sent to.
// Without an email query parameter it renders a page asking for it.
func (h *AuthHandler) FinishSignIn(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("token") == "" {
		respondError(w, http.StatusBadRequest, "not a sign-in link")
		return
	}
	email := r.URL.Query().Get("email")
	if email == "" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := static.RenderConfirmEmail(w, static.ConfirmEmailData{Token: r.URL.Query().Get("token")}); err != nil {
			h.logger.Error("render confirm page", "error", err)
		}
		return
	}

	session, err := h.backend.CompleteSignInFromLink(r.Context(), email, r.URL.String())
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, credential.ErrInvalidLink) || errors.Is(err, credential.ErrInvalidCredentials) {
			status = http.StatusUnauthorized
		}
		h.logger.Warn("finish sign-in failed", "email", sanitizeForLog(email), "error", err)
		respondError(w, status, "Error signing in. Please try again.")
		return
	}

	h.sessionManager.SetSessionCookie(w, r, session)
	http.Redirect(w, r, h.successURL, http.StatusSeeOther)
}

// Logout handles user logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if session := h.sessionManager.GetSessionFromRequest(r); session != nil {
		if err := h.sessionManager.DeleteSession(r.Context(), session.ID); err != nil {
			h.logger.Warn("failed to delete session", "error", err)
		}
	}

	h.sessionManager.ClearSessionCookie(w)
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// StatusResponse represents the auth status response
type StatusResponse struct {
	Authenticated bool   `json:"authenticated"`
	Email         string `json:"email,omitempty"`
	ExpiresAt     string `json:"expires_at,omitempty"`
}

// Status checks if the user is authenticated by validating the session.
func (h *AuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	session := h.sessionManager.GetSessionFromRequest(r)
	if session == nil {
		respondJSON(w, http.StatusOK, StatusResponse{Authenticated: false})
		return
	}
	respondJSON(w, http.StatusOK, StatusResponse{
		Authenticated: true,
		Email:         session.Email,
		ExpiresAt:     session.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// Success renders the page the browser lands on after finishing sign-in.
func (h *AuthHandler) Success(w http.ResponseWriter, r *http.Request) {
	var data static.SuccessData
	if session := h.sessionManager.GetSessionFromRequest(r); session != nil {
		data.Email = session.Email
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := static.RenderSuccess(w, data); err != nil {
		h.logger.Error("render success page", "error", err)
	}
}
