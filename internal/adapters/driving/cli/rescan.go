package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/opencanvas/ragengine/internal/core/domain"
)

var rescanNoWait bool

var rescanCmd = &cobra.Command{
	Use:   "rescan [dir]",
	Short: "Walk a directory once and index what changed",
	Long: `Walks the directory, hashes every watchable file, and queues the ones
whose content is not already indexed. Waits for the queue to drain
unless --no-wait is given.

Without a directory argument the configured watcher.directory is
scanned.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRescan,
}

func init() {
	rescanCmd.Flags().BoolVar(&rescanNoWait, "no-wait", false, "queue files and exit without waiting")
	rootCmd.AddCommand(rescanCmd)
}

func runRescan(cmd *cobra.Command, args []string) error {
	if engine == nil {
		return errEngineNotConfigured
	}

	dir := ""
	if len(args) > 0 {
		abs, err := filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("resolving %s: %w", args[0], err)
		}
		dir = abs
	}

	ctx := cmd.Context()
	if coord != nil {
		if err := coord.Start(ctx); err != nil {
			return fmt.Errorf("starting engine: %w", err)
		}
		defer coord.Close() //nolint:errcheck
	}

	queued, err := engine.Rescan(ctx, dir)
	if err != nil {
		return fmt.Errorf("rescan failed: %w", err)
	}
	if queued == 0 {
		cmd.Println("Nothing to index.")
		return nil
	}
	cmd.Printf("Queued %d files for indexing.\n", queued)

	if rescanNoWait {
		return nil
	}
	return waitForDrain(ctx, cmd)
}

// waitForDrain polls the registry until no entry is pending. Progress
// is judged by the pending count shrinking; a count stuck for two
// minutes ends the wait so a wedged job cannot hang the command.
func waitForDrain(ctx context.Context, cmd *cobra.Command) error {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	pendingStatus := domain.RegistryPending
	lastPending := -1
	lastProgress := time.Now()

	for {
		entries, err := engine.ListRegistry(ctx, &pendingStatus)
		if err != nil {
			return fmt.Errorf("reading registry: %w", err)
		}

		pending := len(entries)
		if pending == 0 {
			cmd.Println("Indexing complete.")
			return summarizeRegistry(ctx, cmd)
		}
		if pending != lastPending {
			cmd.Printf("Indexing... %d pending\n", pending)
			lastPending = pending
			lastProgress = time.Now()
		} else if time.Since(lastProgress) > 2*time.Minute {
			cmd.Printf("%d entries still pending; stopping the wait. Re-run rescan to retry.\n", pending)
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// summarizeRegistry prints the per-status outcome after a drain.
func summarizeRegistry(ctx context.Context, cmd *cobra.Command) error {
	entries, err := engine.ListRegistry(ctx, nil)
	if err != nil {
		return fmt.Errorf("reading registry: %w", err)
	}

	counts := make(map[domain.RegistryStatus]int)
	for i := range entries {
		counts[entries[i].Status]++
	}
	cmd.Printf("Registry: %d indexed, %d failed, %d skipped\n",
		counts[domain.RegistryIndexed],
		counts[domain.RegistryFailed],
		counts[domain.RegistrySkipped],
	)
	return nil
}
