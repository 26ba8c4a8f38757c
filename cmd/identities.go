package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-auth/internal/constants"
	"github.com/kozaktomas/face-auth/internal/database"
	"github.com/kozaktomas/face-auth/internal/facematch"
)

var identitiesCmd = &cobra.Command{
	Use:   "identities",
	Short: "Inspect enrolled identities",
}

var identitiesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List enrolled identities in enrollment order",
	RunE:  runIdentitiesList,
}

var indexSyncCmd = &cobra.Command{
	Use:   "sync-index",
	Short: "Build the identity HNSW index, or refresh the copy saved at HNSW_INDEX_PATH",
	Long: `Build the in-memory identity HNSW index used by MATCH_MODE=index.
When HNSW_INDEX_PATH is set, a saved index that still matches the
database is reused and a stale one is rebuilt and saved again.`,
	RunE: runIndexSync,
}

func init() {
	rootCmd.AddCommand(identitiesCmd)
	identitiesCmd.AddCommand(identitiesListCmd)
	identitiesCmd.AddCommand(indexSyncCmd)

	identitiesListCmd.Flags().Int("limit", constants.DefaultIdentityListLimit, "Maximum number of identities to show (0 for all)")
	identitiesListCmd.Flags().Bool("json", false, "Output as JSON")
	identitiesListCmd.Flags().String("name", "", "Only show identities whose name contains this text (case and accent insensitive)")
	indexSyncCmd.Flags().Bool("force", false, "Rebuild from the database even if the saved index is current")
}

type identityRow struct {
	ID         string `json:"id"`
	FullName   string `json:"full_name"`
	Email      string `json:"email"`
	EnrolledAt string `json:"enrolled_at"`
}

func runIdentitiesList(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	limit := mustGetInt(cmd, "limit")
	jsonOutput := mustGetBool(cmd, "json")
	nameFilter := facematch.NameKey(mustGetString(cmd, "name"))

	ctx := cmd.Context()
	s, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStores()

	identities, err := s.profiles.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("listing identities: %w", err)
	}
	if nameFilter != "" {
		identities = slices.DeleteFunc(identities, func(identity facematch.Identity) bool {
			return !strings.Contains(facematch.NameKey(identity.FullName), nameFilter)
		})
	}
	total := len(identities)
	if limit > 0 && total > limit {
		identities = identities[:limit]
	}

	rows := make([]identityRow, 0, len(identities))
	for _, identity := range identities {
		rows = append(rows, identityRow{
			ID:         identity.ID,
			FullName:   identity.FullName,
			Email:      identity.Email,
			EnrolledAt: identity.CreatedAt.Local().Format("2006-01-02 15:04"),
		})
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tEMAIL\tENROLLED")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.ID, r.FullName, r.Email, r.EnrolledAt)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if len(rows) < total {
		fmt.Printf("\nShowing %d of %d identities\n", len(rows), total)
	}
	return nil
}

func runIndexSync(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	force := mustGetBool(cmd, "force")

	ctx := cmd.Context()
	s, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStores()

	if err := s.profiles.EnableHNSW(ctx, cfg.Database.HNSWIndexPath); err != nil {
		return fmt.Errorf("building identity index: %w", err)
	}

	rebuilder := database.GetProfileHNSWRebuilder()
	if force {
		if err := rebuilder.RebuildHNSW(ctx); err != nil {
			return fmt.Errorf("rebuilding identity index: %w", err)
		}
		if err := rebuilder.SaveHNSWIndex(); err != nil {
			return fmt.Errorf("saving identity index: %w", err)
		}
	}
	log.Info("identity HNSW index ready", "identities", rebuilder.HNSWCount(), "path", cfg.Database.HNSWIndexPath)
	return nil
}
