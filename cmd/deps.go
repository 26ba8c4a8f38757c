package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kozaktomas/face-auth/internal/auth"
	"github.com/kozaktomas/face-auth/internal/camera"
	"github.com/kozaktomas/face-auth/internal/config"
	"github.com/kozaktomas/face-auth/internal/credential"
	"github.com/kozaktomas/face-auth/internal/database"
	"github.com/kozaktomas/face-auth/internal/database/postgres"
	"github.com/kozaktomas/face-auth/internal/embedding"
	"github.com/kozaktomas/face-auth/internal/extract"
	"github.com/kozaktomas/face-auth/internal/logger"
)

// stores are the PostgreSQL-backed repositories shared by every command.
type stores struct {
	profiles    *postgres.ProfileRepository
	credentials database.CredentialStore
	sessions    database.SessionStore
}

// openStores connects to PostgreSQL, runs migrations and resolves the
// registered repositories.
func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	if cfg.Database.URL == "" {
		return nil, errors.New("DATABASE_URL environment variable is required")
	}
	if err := postgres.Initialize(ctx, &cfg.Database); err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}

	writer, err := database.GetProfileWriter(ctx)
	if err != nil {
		return nil, err
	}
	profiles, ok := writer.(*postgres.ProfileRepository)
	if !ok {
		return nil, fmt.Errorf("unexpected profile repository %T", writer)
	}
	credentials, err := database.GetCredentialStore(ctx)
	if err != nil {
		return nil, err
	}
	sessions, err := database.GetSessionStore(ctx)
	if err != nil {
		return nil, err
	}
	return &stores{profiles: profiles, credentials: credentials, sessions: sessions}, nil
}

func closeStores() {
	if pool := postgres.GetGlobalPool(); pool != nil {
		pool.Close()
	}
}

// enableIndex builds or loads the identity HNSW index used in index matching mode.
func enableIndex(ctx context.Context, profiles *postgres.ProfileRepository, indexPath string, log *slog.Logger) {
	if err := profiles.EnableHNSW(ctx, indexPath); err != nil {
		log.Warn("failed to build identity HNSW index, falling back to pgvector queries", "error", err)
		return
	}
	log.Info("identity HNSW index ready", "identities", profiles.HNSWCount(), "path", indexPath)
}

// saveHNSWIndex persists the identity HNSW index when it is enabled and a
// path is configured.
func saveHNSWIndex(log *slog.Logger) {
	rebuilder := database.GetProfileHNSWRebuilder()
	if rebuilder == nil || !rebuilder.IsHNSWEnabled() {
		return
	}
	if err := rebuilder.SaveHNSWIndex(); err != nil {
		log.Warn("failed to save identity HNSW index", "error", err)
	}
}

func newMailer(cfg *config.Config, log *slog.Logger) credential.Mailer {
	if cfg.Mail.Host == "" {
		return &credential.LogMailer{Logger: log}
	}
	return &credential.SMTPMailer{
		Host:     cfg.Mail.Host,
		Port:     cfg.Mail.Port,
		Username: cfg.Mail.Username,
		Password: cfg.Mail.Password,
		From:     cfg.Mail.From,
	}
}

func newCredentialService(cfg *config.Config, s *stores, log *slog.Logger) *credential.Service {
	return credential.NewService(s.credentials, s.sessions, newMailer(cfg, log), credential.Config{
		SigningSecret: cfg.Auth.SigningSecret,
		LinkTTL:       cfg.Auth.LinkTTL,
		SessionTTL:    cfg.Auth.SessionTTL,
	}, log)
}

// newCamera builds a camera controller over the configured ffmpeg device.
func newCamera(cfg *config.Config, log *slog.Logger) *camera.Controller {
	device := &camera.FFmpegDevice{
		InputFormat: cfg.Camera.InputFormat,
		Device:      cfg.Camera.Device,
		Width:       cfg.Camera.Width,
		Height:      cfg.Camera.Height,
		FrameRate:   cfg.Camera.FrameRate,
	}
	opts := []camera.Option{camera.WithLogger(logger.WithComponent(log, "camera"))}
	if cfg.Camera.SnapshotDir != "" {
		opts = append(opts, camera.WithSurface(&camera.SnapshotSurface{Dir: cfg.Camera.SnapshotDir}))
	}
	return camera.NewController(device, opts...)
}

func newExtractor(cfg *config.Config, log *slog.Logger) *extract.Extractor {
	client := embedding.NewClient(cfg.Embedding.URL, cfg.Embedding.Timeout, logger.WithComponent(log, "embedding"))
	return extract.New(client, logger.WithComponent(log, "extract"))
}

func newCompleter(cfg *config.Config, backend credential.Backend) auth.Completer {
	if cfg.Auth.Completion == config.CompletionCredential {
		return &auth.CredentialCompleter{Backend: backend}
	}
	return &auth.LinkCompleter{Backend: backend, ReturnURL: cfg.Auth.LinkBaseURL}
}

func newCandidateSource(ctx context.Context, cfg *config.Config, profiles *postgres.ProfileRepository, log *slog.Logger) auth.CandidateSource {
	if cfg.Matching.Mode == config.MatchModeIndex {
		enableIndex(ctx, profiles, cfg.Database.HNSWIndexPath, log)
		return auth.IndexCandidates{Finder: profiles, Limit: cfg.Matching.CandidateLimit}
	}
	return auth.SnapshotCandidates{Profiles: profiles}
}
