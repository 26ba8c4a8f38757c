package database

import (
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/face-auth/internal/facematch"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrEmailExists is returned when a credential for the email is already registered.
	ErrEmailExists = errors.New("email already registered")

	// ErrLinkUsed is returned when a sign-in link was already consumed.
	ErrLinkUsed = errors.New("sign-in link already used")
)

// StoredCredential is the secret an identity signs in with.
type StoredCredential struct {
	IdentityID string
	Email      string
	SecretHash []byte
	CreatedAt  time.Time
}

// SignInLink records an issued email sign-in link so it can be used only once.
type SignInLink struct {
	JTI       string
	Email     string
	CreatedAt time.Time
	ExpiresAt time.Time
	UsedAt    *time.Time
}

// Session is an established browser or CLI session.
type Session struct {
	ID         string
	IdentityID string
	Email      string
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// Expired reports whether the session is no longer valid at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// ValidateIdentity checks a record before it crosses the repository boundary.
func ValidateIdentity(identity *facematch.Identity) error {
	if identity.ID == "" {
		return errors.New("identity id is required")
	}
	if identity.Email == "" {
		return fmt.Errorf("identity %s: email is required", identity.ID)
	}
	if err := identity.Descriptor.Validate(); err != nil {
		return fmt.Errorf("identity %s: %w", identity.ID, err)
	}
	return nil
}
