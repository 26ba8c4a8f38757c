package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/face-auth/internal/database"
)

// CredentialRepository provides PostgreSQL-backed credential and sign-in link storage.
type CredentialRepository struct {
	pool *Pool
}

// NewCredentialRepository creates a new PostgreSQL credential repository.
func NewCredentialRepository(pool *Pool) *CredentialRepository {
	return &CredentialRepository{pool: pool}
}

// CreateCredential stores a new credential. Emails are unique.
func (r *CredentialRepository) CreateCredential(ctx context.Context, cred database.StoredCredential) error {
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO credentials (identity_id, email, secret_hash, created_at)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := r.pool.Exec(ctx, query, cred.IdentityID, cred.Email, cred.SecretHash, cred.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return database.ErrEmailExists
		}
		return fmt.Errorf("create credential: %w", err)
	}
	return nil
}

// GetCredentialByEmail returns the credential registered for email.
func (r *CredentialRepository) GetCredentialByEmail(ctx context.Context, email string) (*database.StoredCredential, error) {
	query := `
		SELECT identity_id, email, secret_hash, created_at
		FROM credentials
		WHERE email = $1
	`
	var cred database.StoredCredential
	err := r.pool.QueryRow(ctx, query, email).Scan(&cred.IdentityID, &cred.Email, &cred.SecretHash, &cred.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get credential: %w", err)
	}
	return &cred, nil
}

// SaveSignInLink records an issued sign-in link.
func (r *CredentialRepository) SaveSignInLink(ctx context.Context, link database.SignInLink) error {
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO sign_in_links (jti, email, created_at, expires_at)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := r.pool.Exec(ctx, query, link.JTI, link.Email, link.CreatedAt, link.ExpiresAt); err != nil {
		return fmt.Errorf("save sign-in link: %w", err)
	}
	return nil
}

// ConsumeSignInLink atomically marks a link as used.
func (r *CredentialRepository) ConsumeSignInLink(ctx context.Context, jti string, now time.Time) (*database.SignInLink, error) {
	query := `
		UPDATE sign_in_links SET used_at = $2
		WHERE jti = $1 AND used_at IS NULL
		RETURNING jti, email, created_at, expires_at, used_at
	`
	var link database.SignInLink
	var usedAt sql.NullTime
	err := r.pool.QueryRow(ctx, query, jti, now).Scan(&link.JTI, &link.Email, &link.CreatedAt, &link.ExpiresAt, &usedAt)
	if errors.Is(err, sql.ErrNoRows) {
		var exists bool
		if err := r.pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM sign_in_links WHERE jti = $1)", jti).Scan(&exists); err != nil {
			return nil, fmt.Errorf("check sign-in link: %w", err)
		}
		if exists {
			return nil, database.ErrLinkUsed
		}
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("consume sign-in link: %w", err)
	}
	if usedAt.Valid {
		link.UsedAt = &usedAt.Time
	}
	return &link, nil
}

// DeleteExpiredSignInLinks removes links that expired before now.
func (r *CredentialRepository) DeleteExpiredSignInLinks(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, "DELETE FROM sign_in_links WHERE expires_at <= $1", now)
	if err != nil {
		return 0, fmt.Errorf("delete expired sign-in links: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}
	return count, nil
}
