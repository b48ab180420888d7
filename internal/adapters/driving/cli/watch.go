package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var watchDir string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch a directory and index files as they change",
	Long: `Starts the filesystem watcher, the indexing workers, and the periodic
stale-document sweep, then blocks until interrupted.

Events are debounced per path and files are hashed before queueing, so
unchanged content never reaches the indexer. The watched directory
comes from watcher.directory unless --dir is given.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchDir, "dir", "", "directory to watch (overrides watcher.directory)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	if coord == nil {
		return errors.New("watcher not configured")
	}

	dir := watchDir
	if dir == "" && settingsService != nil {
		dir = settingsService.Watcher().Directory
	}
	if dir == "" {
		return errors.New("no watch directory configured: set watcher.directory or pass --dir")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := coord.Start(ctx); err != nil {
		return fmt.Errorf("starting engine: %w", err)
	}
	defer coord.Close() //nolint:errcheck

	cmd.Printf("Watching %s (press Ctrl-C to stop)\n", dir)
	<-ctx.Done()
	cmd.Println("\nStopping...")
	return nil
}
