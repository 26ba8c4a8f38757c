package database

import (
	"context"
	"time"

	"github.com/kozaktomas/face-auth/internal/facematch"
)

// ProfileReader provides read-only access to enrolled identities
type ProfileReader interface {
	// Get retrieves an identity by ID, returns ErrNotFound if missing
	Get(ctx context.Context, id string) (*facematch.Identity, error)
	// Snapshot returns every enrolled identity ordered by enrollment time.
	// Records with malformed descriptors are skipped.
	Snapshot(ctx context.Context) ([]facematch.Identity, error)
	// Count returns the number of enrolled identities
	Count(ctx context.Context) (int, error)
}

// ProfileWriter provides write access to enrolled identities
type ProfileWriter interface {
	ProfileReader

	// Put stores the identity under id, replacing any existing record
	Put(ctx context.Context, id string, identity facematch.Identity) error
}

// CandidateFinder preselects the identities nearest to a query descriptor.
// Results are approximate and must be rescored exactly by the caller.
type CandidateFinder interface {
	FindCandidates(ctx context.Context, query facematch.Descriptor, limit int) ([]facematch.Identity, error)
}

// CredentialStore persists sign-in secrets and issued sign-in links
type CredentialStore interface {
	// CreateCredential stores a new credential, returns ErrEmailExists on duplicates
	CreateCredential(ctx context.Context, cred StoredCredential) error
	// GetCredentialByEmail returns the credential for email, or ErrNotFound
	GetCredentialByEmail(ctx context.Context, email string) (*StoredCredential, error)
	// SaveSignInLink records an issued link
	SaveSignInLink(ctx context.Context, link SignInLink) error
	// ConsumeSignInLink marks the link used at now. It returns ErrNotFound for
	// unknown links and ErrLinkUsed when the link was consumed before.
	ConsumeSignInLink(ctx context.Context, jti string, now time.Time) (*SignInLink, error)
}

// SessionStore persists established sessions
type SessionStore interface {
	SaveSession(ctx context.Context, s Session) error
	// GetSession returns an unexpired session, or ErrNotFound
	GetSession(ctx context.Context, id string) (*Session, error)
	DeleteSession(ctx context.Context, id string) error
	// DeleteExpiredSessions removes expired sessions and returns the count deleted
	DeleteExpiredSessions(ctx context.Context) (int64, error)
}
