package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/face-auth/internal/database"
	"github.com/kozaktomas/face-auth/internal/facematch"
)

const identityColumns = `id, full_name, email, descriptor, created_at`

// ProfileRepository provides PostgreSQL-backed identity storage with an
// optional in-memory HNSW index for candidate preselection.
type ProfileRepository struct {
	pool          *Pool
	hnswIndex     *database.HNSWIndex
	hnswEnabled   bool
	hnswIndexPath string // Path to persist HNSW index (optional)
	hnswMu        sync.RWMutex
}

// NewProfileRepository creates a new PostgreSQL profile repository.
func NewProfileRepository(pool *Pool) *ProfileRepository {
	return &ProfileRepository{pool: pool}
}

// Put upserts an identity. The descriptor is stored as a vector(128).
func (r *ProfileRepository) Put(ctx context.Context, id string, identity facematch.Identity) error {
	identity.ID = id
	if err := database.ValidateIdentity(&identity); err != nil {
		return fmt.Errorf("put identity: %w", err)
	}
	identity.Descriptor = facematch.Quantize(identity.Descriptor)
	if identity.CreatedAt.IsZero() {
		identity.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO identities (id, full_name, email, descriptor, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			full_name = EXCLUDED.full_name,
			email = EXCLUDED.email,
			descriptor = EXCLUDED.descriptor
	`
	vec := pgvector.NewVector(identity.Descriptor.Float32())
	if _, err := r.pool.Exec(ctx, query, id, identity.FullName, identity.Email, vec, identity.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("put identity %s: %w", id, database.ErrEmailExists)
		}
		return fmt.Errorf("put identity %s: %w", id, err)
	}

	r.hnswMu.RLock()
	idx := r.hnswIndex
	enabled := r.hnswEnabled
	r.hnswMu.RUnlock()
	if enabled && idx != nil {
		if err := idx.Add(identity); err != nil {
			slog.Warn("failed to add identity to HNSW index", "id", id, "error", err)
		}
	}
	return nil
}

// Get retrieves an identity by ID.
func (r *ProfileRepository) Get(ctx context.Context, id string) (*facematch.Identity, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+identityColumns+` FROM identities WHERE id = $1`, id)
	identity, err := scanIdentityRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &identity, nil
}

// Snapshot returns every identity ordered by enrollment time. Rows whose
// descriptor has the wrong dimension are logged and skipped.
func (r *ProfileRepository) Snapshot(ctx context.Context) ([]facematch.Identity, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+identityColumns+` FROM identities ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query identities: %w", err)
	}
	defer rows.Close()

	return scanIdentities(rows)
}

// Count returns the number of enrolled identities.
func (r *ProfileRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM identities").Scan(&count); err != nil {
		return 0, fmt.Errorf("count identities: %w", err)
	}
	return count, nil
}

// FindCandidates returns the identities nearest to query by L2 distance.
// Uses in-memory HNSW index if enabled, otherwise falls back to PostgreSQL.
func (r *ProfileRepository) FindCandidates(ctx context.Context, query facematch.Descriptor, limit int) ([]facematch.Identity, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	r.hnswMu.RLock()
	idx := r.hnswIndex
	enabled := r.hnswEnabled && idx != nil
	r.hnswMu.RUnlock()

	if enabled {
		searchK := max(limit*database.HNSWSearchMultiplier, limit)
		return idx.Search(query, searchK)
	}
	return r.findCandidatesPostgres(ctx, query, limit)
}

// findCandidatesPostgres uses the pgvector HNSW index with ef_search tuned to the in-memory graph.
func (r *ProfileRepository) findCandidatesPostgres(ctx context.Context, query facematch.Descriptor, limit int) ([]facematch.Identity, error) {
	tx, err := r.pool.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL hnsw.ef_search = %d", database.HNSWEfSearch)); err != nil {
		return nil, fmt.Errorf("set ef_search: %w", err)
	}

	sqlQuery := `
		SELECT ` + identityColumns + `
		FROM identities
		ORDER BY descriptor <-> $1::vector
		LIMIT $2
	`
	rows, err := tx.QueryContext(ctx, sqlQuery, pgvector.NewVector(query.Float32()), limit)
	if err != nil {
		return nil, fmt.Errorf("query nearest identities: %w", err)
	}
	defer rows.Close()

	return scanIdentities(rows)
}

// scanIdentityRow scans a single identity and restores its quantized descriptor.
func scanIdentityRow(scanner interface{ Scan(...any) error }) (facematch.Identity, error) {
	var identity facematch.Identity
	var vec pgvector.Vector

	if err := scanner.Scan(&identity.ID, &identity.FullName, &identity.Email, &vec, &identity.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return identity, err
		}
		return identity, fmt.Errorf("scan identity: %w", err)
	}
	identity.Descriptor = facematch.FromFloat32(vec.Slice())
	return identity, nil
}

func scanIdentities(rows *sql.Rows) ([]facematch.Identity, error) {
	var identities []facematch.Identity
	for rows.Next() {
		identity, err := scanIdentityRow(rows)
		if err != nil {
			return nil, err
		}
		if err := identity.Descriptor.Validate(); err != nil {
			slog.Warn("skipping identity with malformed descriptor", "id", identity.ID, "error", err)
			continue
		}
		identities = append(identities, identity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}
	return identities, nil
}

// identityStats returns the values recorded in the HNSW metadata file.
func (r *ProfileRepository) identityStats(ctx context.Context) (int64, time.Time, error) {
	var count int64
	var last sql.NullTime
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*), MAX(created_at) FROM identities").Scan(&count, &last)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("failed to get identity stats: %w", err)
	}
	return count, last.Time.UTC(), nil
}

// tryLoadIndex attempts to load a fresh identity HNSW index from disk.
func (r *ProfileRepository) tryLoadIndex(indexPath string, count int64, lastEnrolledAt time.Time) bool {
	metadata, err := database.LoadHNSWMetadata(indexPath)
	if err != nil {
		slog.Info("identity index: metadata unavailable, rebuilding", "error", err)
		return false
	}
	if metadata.Stale(count, lastEnrolledAt) {
		slog.Info("identity index: stale, rebuilding",
			"db_count", count, "cached_count", metadata.IdentityCount)
		return false
	}

	idx := database.NewHNSWIndex()
	if err := idx.LoadWithMetadata(indexPath); err != nil {
		slog.Info("identity index: load failed, rebuilding", "error", err)
		return false
	}
	if idx.IsEmpty() {
		return false
	}
	r.hnswIndex = idx
	slog.Info("identity index: loaded from disk", "identities", idx.Count())
	return true
}

// EnableHNSW loads or builds the in-memory HNSW index. If indexPath is set the
// cached index is used when its metadata still matches the database.
// This should be called once at startup.
func (r *ProfileRepository) EnableHNSW(ctx context.Context, indexPath string) error {
	r.hnswMu.Lock()
	defer r.hnswMu.Unlock()

	r.hnswIndexPath = indexPath

	count, lastEnrolledAt, err := r.identityStats(ctx)
	if err != nil {
		return err
	}

	if indexPath != "" && r.tryLoadIndex(indexPath, count, lastEnrolledAt) {
		r.hnswEnabled = true
		return nil
	}

	identities, err := r.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("failed to load identities: %w", err)
	}

	r.hnswIndex = database.NewHNSWIndex()
	r.hnswIndex.BuildFromIdentities(identities)

	if indexPath != "" && len(identities) > 0 {
		metadata := database.HNSWIndexMetadata{IdentityCount: count, LastEnrolledAt: lastEnrolledAt}
		if err := r.hnswIndex.SaveWithMetadata(indexPath, metadata); err != nil {
			slog.Warn("failed to save HNSW index to disk", "error", err)
		}
	}

	r.hnswEnabled = true
	return nil
}

// DisableHNSW disables the in-memory HNSW index, falling back to PostgreSQL queries.
func (r *ProfileRepository) DisableHNSW() {
	r.hnswMu.Lock()
	defer r.hnswMu.Unlock()
	r.hnswEnabled = false
	r.hnswIndex = nil
}

// IsHNSWEnabled returns whether the in-memory HNSW index is enabled.
func (r *ProfileRepository) IsHNSWEnabled() bool {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()
	return r.hnswEnabled && r.hnswIndex != nil
}

// HNSWCount returns the number of identities in the HNSW index.
func (r *ProfileRepository) HNSWCount() int {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()
	if r.hnswIndex == nil {
		return 0
	}
	return r.hnswIndex.Count()
}

// RebuildHNSW rebuilds the HNSW index from PostgreSQL data, ignoring any
// saved copy. Call SaveHNSWIndex to persist the result.
func (r *ProfileRepository) RebuildHNSW(ctx context.Context) error {
	identities, err := r.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("failed to load identities: %w", err)
	}
	idx := database.NewHNSWIndex()
	idx.BuildFromIdentities(identities)

	r.hnswMu.Lock()
	r.hnswIndex = idx
	r.hnswEnabled = true
	r.hnswMu.Unlock()
	return nil
}

// SaveHNSWIndex saves the current HNSW index to disk (if path configured).
func (r *ProfileRepository) SaveHNSWIndex() error {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()

	if r.hnswIndexPath == "" || r.hnswIndex == nil {
		return nil
	}

	count, lastEnrolledAt, err := r.identityStats(context.Background())
	if err != nil {
		return err
	}

	metadata := database.HNSWIndexMetadata{IdentityCount: count, LastEnrolledAt: lastEnrolledAt}
	if err := r.hnswIndex.SaveWithMetadata(r.hnswIndexPath, metadata); err != nil {
		return fmt.Errorf("saving HNSW identity index: %w", err)
	}

	slog.Info("identity index saved", "path", r.hnswIndexPath, "identities", count)
	return nil
}
