package auth

import (
	"context"
	"fmt"

	"github.com/kozaktomas/face-auth/internal/credential"
	"github.com/kozaktomas/face-auth/internal/facematch"
)

// Completion is the outcome of finishing sign-in for a matched identity.
type Completion struct {
	State   State
	Session *credential.Session
}

// Completer finishes sign-in once a face matched an enrolled identity.
type Completer interface {
	Complete(ctx context.Context, identity *facematch.Identity) (Completion, error)
}

// LinkCompleter emails a sign-in link to the matched identity and leaves
// the flow waiting for the link to be opened.
type LinkCompleter struct {
	Backend   credential.Backend
	ReturnURL string
}

func (c *LinkCompleter) Complete(ctx context.Context, identity *facematch.Identity) (Completion, error) {
	if err := c.Backend.SendSignInLink(ctx, identity.Email, c.ReturnURL); err != nil {
		if ctx.Err() != nil {
			return Completion{}, ctx.Err()
		}
		return Completion{}, fmt.Errorf("%w: %v", ErrLinkDispatchFailed, err)
	}
	return Completion{State: StateAwaitingEmailConfirmation}, nil
}

// CredentialCompleter signs the matched identity in directly. The email is
// used as the secret, mirroring what enrollment registers.
type CredentialCompleter struct {
	Backend credential.Backend
}

func (c *CredentialCompleter) Complete(ctx context.Context, identity *facematch.Identity) (Completion, error) {
	sess, err := c.Backend.SignIn(ctx, identity.Email, identity.Email)
	if err != nil {
		if ctx.Err() != nil {
			return Completion{}, ctx.Err()
		}
		return Completion{}, fmt.Errorf("%w: %v", ErrSignInFailed, err)
	}
	return Completion{State: StateSessionEstablished, Session: sess}, nil
}
