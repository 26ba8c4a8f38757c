package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/kozaktomas/face-auth/internal/constants"
	"github.com/kozaktomas/face-auth/internal/database"
	"github.com/kozaktomas/face-auth/internal/facematch"
)

const signInSubject = "Your sign-in link"

// Config holds the settings of a Service.
type Config struct {
	SigningSecret string
	LinkTTL       time.Duration
	SessionTTL    time.Duration
}

// Service is the Backend backed by the credential and session stores.
type Service struct {
	creds    database.CredentialStore
	sessions database.SessionStore
	signer   *LinkSigner
	mailer   Mailer
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates a credential service.
func NewService(creds database.CredentialStore, sessions database.SessionStore, mailer Mailer, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.LinkTTL <= 0 {
		cfg.LinkTTL = constants.DefaultLinkTTL
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = constants.DefaultSessionTTL
	}
	return &Service{
		creds:    creds,
		sessions: sessions,
		signer:   NewLinkSigner(cfg.SigningSecret, cfg.LinkTTL),
		mailer:   mailer,
		cfg:      cfg,
		logger:   logger.With("component", "credential"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// normalizeAddress validates email and returns its canonical lowercase form.
func normalizeAddress(email string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil {
		return "", fmt.Errorf("invalid email %q: %w", email, err)
	}
	return facematch.NormalizeEmail(addr.Address), nil
}

// CreateIdentity stores a bcrypt hash of secret under a new identity id.
func (s *Service) CreateIdentity(ctx context.Context, email, secret string) (string, error) {
	addr, err := normalizeAddress(email)
	if err != nil {
		return "", err
	}
	if secret == "" {
		return "", errors.New("secret is required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing secret: %w", err)
	}

	id := uuid.NewString()
	err = s.creds.CreateCredential(ctx, database.StoredCredential{
		IdentityID: id,
		Email:      addr,
		SecretHash: hash,
		CreatedAt:  s.now(),
	})
	if err != nil {
		return "", fmt.Errorf("creating credential for %s: %w", addr, err)
	}

	s.logger.InfoContext(ctx, "identity created", "identity_id", id, "email", addr)
	return id, nil
}

// SignIn checks secret against the stored hash and opens a session.
func (s *Service) SignIn(ctx context.Context, email, secret string) (*Session, error) {
	addr, err := normalizeAddress(email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	cred, err := s.creds.GetCredentialByEmail(ctx, addr)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("loading credential: %w", err)
	}
	if bcrypt.CompareHashAndPassword(cred.SecretHash, []byte(secret)) != nil {
		return nil, ErrInvalidCredentials
	}

	return s.openSession(ctx, cred.IdentityID, cred.Email)
}

// SendSignInLink records a single-use link for email and mails it.
func (s *Service) SendSignInLink(ctx context.Context, email, returnURL string) error {
	addr, err := normalizeAddress(email)
	if err != nil {
		return err
	}

	now := s.now()
	link, err := s.signer.Issue(addr, returnURL, now)
	if err != nil {
		return err
	}

	err = s.creds.SaveSignInLink(ctx, database.SignInLink{
		JTI:       link.JTI,
		Email:     addr,
		CreatedAt: now,
		ExpiresAt: link.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("recording sign-in link: %w", err)
	}

	body := fmt.Sprintf("Open this link to finish signing in:\n\n%s\n\nThe link expires at %s.\n",
		link.URL, link.ExpiresAt.Format(time.RFC1123))
	if err := s.mailer.Send(ctx, addr, signInSubject, body); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "sign-in link sent", "email", addr, "expires_at", link.ExpiresAt)
	return nil
}

// CompleteSignInFromLink verifies linkURL was issued to email, consumes it and
// opens a session for the identity registered with that email.
func (s *Service) CompleteSignInFromLink(ctx context.Context, email, linkURL string) (*Session, error) {
	addr, err := normalizeAddress(email)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLink, err)
	}

	now := s.now()
	jti, tokenEmail, err := s.signer.Verify(linkURL, now)
	if err != nil {
		return nil, err
	}
	if tokenEmail != addr {
		return nil, fmt.Errorf("%w: issued for another email", ErrInvalidLink)
	}

	if _, err := s.creds.ConsumeSignInLink(ctx, jti, now); err != nil {
		if errors.Is(err, database.ErrNotFound) || errors.Is(err, database.ErrLinkUsed) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidLink, err)
		}
		return nil, fmt.Errorf("consuming sign-in link: %w", err)
	}

	cred, err := s.creds.GetCredentialByEmail(ctx, addr)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("loading credential: %w", err)
	}

	return s.openSession(ctx, cred.IdentityID, cred.Email)
}

// Session returns the stored session with id, or database.ErrNotFound.
func (s *Service) Session(ctx context.Context, id string) (*Session, error) {
	sess, err := s.sessions.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Expired(s.now()) {
		return nil, database.ErrNotFound
	}
	return sess, nil
}

// SignOut deletes the session with id.
func (s *Service) SignOut(ctx context.Context, id string) error {
	return s.sessions.DeleteSession(ctx, id)
}

func (s *Service) openSession(ctx context.Context, identityID, email string) (*Session, error) {
	now := s.now()
	sess := Session{
		ID:         uuid.NewString(),
		IdentityID: identityID,
		Email:      email,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.cfg.SessionTTL),
	}
	if err := s.sessions.SaveSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("saving session: %w", err)
	}
	s.logger.InfoContext(ctx, "session established", "identity_id", identityID, "session_id", sess.ID)
	return &sess, nil
}
