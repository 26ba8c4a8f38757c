package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/kozaktomas/face-auth/internal/database"
	"github.com/kozaktomas/face-auth/internal/web/middleware"
)

// ProfileHandler serves the signed-in identity's profile
type ProfileHandler struct {
	profiles database.ProfileReader
}

// NewProfileHandler creates a new profile handler
func NewProfileHandler(profiles database.ProfileReader) *ProfileHandler {
	return &ProfileHandler{profiles: profiles}
}

// ProfileResponse is the public part of an identity record
type ProfileResponse struct {
	ID         string `json:"id"`
	FullName   string `json:"full_name"`
	Email      string `json:"email"`
	EnrolledAt string `json:"enrolled_at"`
}

// Get returns the profile of the identity behind the current session.
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetSessionFromContext(r.Context())
	if session == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	identity, err := h.profiles.Get(r.Context(), session.IdentityID)
	if errors.Is(err, database.ErrNotFound) {
		respondError(w, http.StatusNotFound, "profile not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load profile")
		return
	}

	respondJSON(w, http.StatusOK, ProfileResponse{
		ID:         identity.ID,
		FullName:   identity.FullName,
		Email:      identity.Email,
		EnrolledAt: identity.CreatedAt.UTC().Format(time.RFC3339),
	})
}
