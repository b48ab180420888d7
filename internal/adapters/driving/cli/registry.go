package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opencanvas/ragengine/internal/core/domain"
)

var (
	registryStatus string
	registryJSON   bool
)

var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Inspect the watcher's path registry",
	Long: `The registry tracks every file path the watcher has seen, the content
hash behind it, and its indexing outcome.`,
}

var registryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registry entries",
	Args:  cobra.NoArgs,
	RunE:  runRegistryList,
}

var registryClearFailedCmd = &cobra.Command{
	Use:   "clear-failed",
	Short: "Reset failed entries so the next rescan retries them",
	Args:  cobra.NoArgs,
	RunE:  runRegistryClearFailed,
}

func init() {
	registryListCmd.Flags().StringVar(&registryStatus, "status", "", "filter by status: pending, indexed, failed or skipped")
	registryListCmd.Flags().BoolVar(&registryJSON, "json", false, "output entries as JSON")
	registryCmd.AddCommand(registryListCmd)
	registryCmd.AddCommand(registryClearFailedCmd)
	rootCmd.AddCommand(registryCmd)
}

func runRegistryList(cmd *cobra.Command, _ []string) error {
	if engine == nil {
		return errEngineNotConfigured
	}

	var filter *domain.RegistryStatus
	if registryStatus != "" {
		status := domain.RegistryStatus(registryStatus)
		if !status.IsValid() {
			return fmt.Errorf("unknown status %q (want pending, indexed, failed or skipped)", registryStatus)
		}
		filter = &status
	}

	entries, err := engine.ListRegistry(cmd.Context(), filter)
	if err != nil {
		return fmt.Errorf("listing registry: %w", err)
	}

	if registryJSON {
		data, merr := json.MarshalIndent(entries, "", "  ")
		if merr != nil {
			return fmt.Errorf("failed to marshal entries: %w", merr)
		}
		cmd.Println(string(data))
		return nil
	}

	if len(entries) == 0 {
		cmd.Println("Registry is empty.")
		return nil
	}

	for i := range entries {
		e := &entries[i]
		cmd.Printf("  %-8s retry %d/%d  %s\n", e.Status, e.RetryCount, domain.MaxIndexRetries, e.SourcePath)
		if e.ErrorMessage != "" {
			cmd.Printf("           %s\n", e.ErrorMessage)
		}
	}
	cmd.Printf("\nTotal: %d entries\n", len(entries))
	return nil
}

func runRegistryClearFailed(cmd *cobra.Command, _ []string) error {
	if engine == nil {
		return errEngineNotConfigured
	}

	count, err := engine.ResetFailedRegistry(cmd.Context())
	if err != nil {
		return fmt.Errorf("resetting failed entries: %w", err)
	}
	cmd.Printf("Reset %d failed entries to pending.\n", count)
	return nil
}
