// Package credential implements the identity credential backend: secret
// storage, password-style sign-in and single-use email sign-in links.
package credential

import (
	"context"
	"errors"

	"github.com/kozaktomas/face-auth/internal/database"
)

var (
	// ErrInvalidCredentials is returned when the email or secret does not match.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidLink is returned for sign-in links that are malformed, expired,
	// already used or issued for another email.
	ErrInvalidLink = errors.New("invalid sign-in link")
)

// Session is an established sign-in.
type Session = database.Session

// Backend is the identity provider the authentication flows delegate to.
type Backend interface {
	// CreateIdentity registers email with secret and returns the new identity id.
	CreateIdentity(ctx context.Context, email, secret string) (string, error)
	// SignIn establishes a session for a known email and secret.
	SignIn(ctx context.Context, email, secret string) (*Session, error)
	// SendSignInLink emails a single-use sign-in link pointing at returnURL.
	SendSignInLink(ctx context.Context, email, returnURL string) error
	// CompleteSignInFromLink redeems a link received by email.
	CompleteSignInFromLink(ctx context.Context, email, linkURL string) (*Session, error)
}
