package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-auth/internal/constants"
	"github.com/kozaktomas/face-auth/internal/database/postgres"
	"github.com/kozaktomas/face-auth/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the Face Auth web server.
The web server redeems emailed sign-in links, keeps sessions and
exposes the signed-in identity's profile.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8085, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
}

// resolveServeHostPort resolves port and host from flags and environment variables.
func resolveServeHostPort(cmd *cobra.Command) (int, string) {
	port := mustGetInt(cmd, "port")
	host := mustGetString(cmd, "host")

	if envPort := os.Getenv("WEB_PORT"); envPort != "" {
		fmt.Sscanf(envPort, "%d", &port)
	}
	if envHost := os.Getenv("WEB_HOST"); envHost != "" {
		host = envHost
	}
	return port, host
}

// pruneSignInLinks removes expired sign-in links until ctx is canceled.
func pruneSignInLinks(ctx context.Context, creds *postgres.CredentialRepository, log *slog.Logger) {
	ticker := time.NewTicker(constants.SessionCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := creds.DeleteExpiredSignInLinks(ctx, now)
			if err != nil {
				log.Warn("sign-in link cleanup failed", "error", err)
				continue
			}
			if n > 0 {
				log.Info("expired sign-in links removed", "count", n)
			}
		}
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.ValidateSigning(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	log.Info("connecting to PostgreSQL")
	s, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStores()

	if creds, ok := s.credentials.(*postgres.CredentialRepository); ok {
		go pruneSignInLinks(ctx, creds, log)
	}

	port, host := resolveServeHostPort(cmd)
	server := web.NewServer(cfg, host, port, web.Deps{
		Backend:  newCredentialService(cfg, s, log),
		Profiles: s.profiles,
		Sessions: s.sessions,
		DB:       postgres.GetGlobalPool(),
	}, log)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info("shutting down")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("error during shutdown", "error", err)
		}
		cancel()
	}()

	fmt.Printf("Starting Face Auth on http://%s:%d\n", host, port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
