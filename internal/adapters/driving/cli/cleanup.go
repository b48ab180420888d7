package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cleanupRetentionDays int

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove stale session documents",
	Long: `Deletes session documents whose stale timestamp is older than the
retention window, along with their chunks and vectors. Session upload
files are unlinked when they live under the session directory.`,
	Args: cobra.NoArgs,
	RunE: runCleanup,
}

func init() {
	cleanupCmd.Flags().IntVar(&cleanupRetentionDays, "retention-days", -1, "override the configured retention window")
	rootCmd.AddCommand(cleanupCmd)
}

func runCleanup(cmd *cobra.Command, _ []string) error {
	if engine == nil {
		return errEngineNotConfigured
	}

	var override *int
	if cleanupRetentionDays >= 0 {
		override = &cleanupRetentionDays
	}

	removed, err := engine.CleanupStale(cmd.Context(), override)
	if err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}
	cmd.Printf("Removed %d stale documents.\n", removed)
	return nil
}
