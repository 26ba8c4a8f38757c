package postgres

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrMigrationChanged is returned when an applied migration file was edited afterwards.
var ErrMigrationChanged = errors.New("applied migration was modified")

// migrationLockKey is the advisory lock taken while migrating. The server and
// every CLI command migrate on startup and may race.
const migrationLockKey int64 = 0x66616365

// Migration is a schema version recorded in schema_migrations.
type Migration struct {
	Version   string
	Checksum  string
	AppliedAt time.Time
}

type migrationFile struct {
	version  string
	sql      string
	checksum string
}

// loadMigrationFiles returns the embedded migrations in version order.
func loadMigrationFiles() ([]migrationFile, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations directory: %w", err)
	}

	var files []migrationFile
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		content, err := migrationsFS.ReadFile("migrations/" + e.Name())
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", e.Name(), err)
		}
		sum := sha256.Sum256(content)
		files = append(files, migrationFile{
			version:  e.Name(),
			sql:      string(content),
			checksum: hex.EncodeToString(sum[:]),
		})
	}
	slices.SortFunc(files, func(a, b migrationFile) int { return strings.Compare(a.version, b.version) })
	return files, nil
}

func appliedChecksums(ctx context.Context, tx *sql.Tx) (map[string]string, error) {
	rows, err := tx.QueryContext(ctx, "SELECT version, checksum FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]string)
	for rows.Next() {
		var version, checksum string
		if err := rows.Scan(&version, &checksum); err != nil {
			return nil, fmt.Errorf("scan migration version: %w", err)
		}
		applied[version] = checksum
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied migrations: %w", err)
	}
	return applied, nil
}

// Migrate applies every pending migration in one transaction under an
// advisory lock. It fails with ErrMigrationChanged when an applied file no
// longer matches its recorded checksum.
func (p *Pool) Migrate(ctx context.Context) error {
	files, err := loadMigrationFiles()
	if err != nil {
		return err
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLockKey); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			checksum TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	applied, err := appliedChecksums(ctx, tx)
	if err != nil {
		return err
	}

	var versions []string
	for _, f := range files {
		if checksum, ok := applied[f.version]; ok {
			if checksum != f.checksum {
				return fmt.Errorf("%w: %s", ErrMigrationChanged, f.version)
			}
			continue
		}
		if _, err := tx.ExecContext(ctx, f.sql); err != nil {
			return fmt.Errorf("execute migration %s: %w", f.version, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, checksum) VALUES ($1, $2)", f.version, f.checksum); err != nil {
			return fmt.Errorf("record migration %s: %w", f.version, err)
		}
		versions = append(versions, f.version)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migrations: %w", err)
	}
	for _, v := range versions {
		slog.Info("applied migration", "version", v)
	}
	return nil
}

// AppliedMigrations returns the recorded schema versions in order.
func (p *Pool) AppliedMigrations(ctx context.Context) ([]Migration, error) {
	rows, err := p.db.QueryContext(ctx, "SELECT version, checksum, applied_at FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	var out []Migration
	for rows.Next() {
		var m Migration
		if err := rows.Scan(&m.Version, &m.Checksum, &m.AppliedAt); err != nil {
			return nil, fmt.Errorf("scan migration version: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate migration versions: %w", err)
	}
	return out, nil
}
