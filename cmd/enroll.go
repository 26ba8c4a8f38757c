package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-auth/internal/auth"
	"github.com/kozaktomas/face-auth/internal/facematch"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll",
	Short: "Enroll a new identity with a face capture",
	Long: `Capture a face from the local camera and enroll it together with the
given full name and email. The email becomes the sign-in identity.

Examples:
  face-auth enroll --name "Ada Lovelace" --email ada@example.com`,
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().String("name", "", "Full name of the person being enrolled")
	enrollCmd.Flags().String("email", "", "Email address used to sign in")
}

func runEnroll(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	name := mustGetString(cmd, "name")
	email := mustGetString(cmd, "email")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	s, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStores()

	enroller := auth.NewEnroller(
		newCredentialService(cfg, s, log),
		s.profiles,
		newCamera(cfg, log),
		newExtractor(cfg, log),
		log,
	)

	var descriptor facematch.Descriptor
	err = withSpinner("Look at the camera", func() error {
		var captureErr error
		descriptor, captureErr = enroller.Capture(ctx)
		return captureErr
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, auth.UserMessage(err))
		return err
	}

	identity, err := enroller.Enroll(ctx, name, email, descriptor)
	if err != nil {
		fmt.Fprintln(os.Stderr, auth.UserMessage(err))
		return err
	}

	fmt.Printf("Enrolled %s <%s> as %s\n", identity.FullName, identity.Email, identity.ID)
	return nil
}

// withSpinner runs fn behind an indeterminate progress spinner on stderr.
func withSpinner(description string, fn func() error) error {
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionClearOnFinish(),
	)

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Go(func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				_ = bar.Add(1)
			}
		}
	})

	err := fn()
	close(done)
	wg.Wait()
	_ = bar.Finish()
	return err
}
