package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-auth/internal/auth"
	"github.com/kozaktomas/face-auth/internal/config"
	"github.com/kozaktomas/face-auth/internal/constants"
	"github.com/kozaktomas/face-auth/internal/logger"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in by matching a face capture against enrolled identities",
	Long: `Turn on the local camera, capture a face and compare it with every
enrolled identity. On a match the sign-in is completed with the
configured strategy (AUTH_COMPLETION): "link" emails a single-use sign-in
link, "credential" establishes a session directly.

Examples:
  face-auth login
  face-auth login --attempts 3`,
	RunE: runLogin,
}

func init() {
	rootCmd.AddCommand(loginCmd)

	loginCmd.Flags().Int("attempts", 1, "Number of scans to try before giving up")
	loginCmd.Flags().Bool("verbose", false, "Print every state transition")
}

// printTransitions drains transition events to stderr until events is closed.
func printTransitions(events <-chan auth.Transition) {
	for t := range events {
		fmt.Fprintf(os.Stderr, "  %s -> %s\n", t.From, t.To)
	}
}

func runLogin(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Auth.Completion == config.CompletionLink {
		if err := cfg.ValidateSigning(); err != nil {
			return err
		}
	}
	attempts := max(mustGetInt(cmd, "attempts"), 1)
	verbose := mustGetBool(cmd, "verbose")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	s, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStores()
	defer saveHNSWIndex(log)

	opts := []auth.Option{
		auth.WithThreshold(cfg.Matching.Threshold),
		auth.WithLogger(logger.WithComponent(log, "auth")),
	}
	var wg sync.WaitGroup
	if verbose {
		events := make(chan auth.Transition, constants.EventChannelBuffer)
		opts = append(opts, auth.WithObserver(func(t auth.Transition) { events <- t }))
		wg.Go(func() { printTransitions(events) })
		defer func() {
			close(events)
			wg.Wait()
		}()
	}

	orchestrator := auth.NewOrchestrator(
		newCamera(cfg, log),
		newExtractor(cfg, log),
		newCandidateSource(ctx, cfg, s.profiles, log),
		newCompleter(cfg, newCredentialService(cfg, s, log)),
		opts...,
	)

	res, err := loginAttempts(ctx, orchestrator, attempts, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, auth.UserMessage(err))
		return err
	}

	switch res.State {
	case auth.StateAwaitingEmailConfirmation:
		fmt.Printf("Welcome back, %s. Check %s for your sign-in link.\n", res.Match.Identity.FullName, res.Match.Identity.Email)
	case auth.StateSessionEstablished:
		fmt.Printf("Welcome back, %s. Session %s expires at %s.\n",
			res.Match.Identity.FullName, res.Session.ID, res.Session.ExpiresAt.Local().Format("2006-01-02 15:04"))
	}
	return nil
}

// loginAttempts runs activate and scan until a sign-in completes, a
// non-retryable error occurs or the attempts run out.
func loginAttempts(ctx context.Context, o *auth.Orchestrator, attempts int, log *slog.Logger) (auth.Result, error) {
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := o.Activate(ctx); err != nil {
			return auth.Result{State: o.State()}, err
		}
		fmt.Fprintln(os.Stderr, "Camera on. Look at the camera...")

		res, err := o.Scan(ctx)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if !res.State.Retryable() || errors.Is(err, context.Canceled) {
			return res, err
		}
		log.Debug("scan attempt failed", "attempt", attempt, "state", res.State, "error", err)
		if attempt < attempts {
			fmt.Fprintln(os.Stderr, auth.UserMessage(err))
		}
	}
	return auth.Result{State: o.State()}, lastErr
}
