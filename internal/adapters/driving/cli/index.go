package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/opencanvas/ragengine/internal/adapters/driven/converter"
	"github.com/opencanvas/ragengine/internal/core/domain"
	"github.com/opencanvas/ragengine/internal/core/ports/driving"
)

var (
	indexWorkspace string
	indexSession   string
	indexName      string
	indexType      string
	indexForce     bool
	indexJSON      bool
)

var indexCmd = &cobra.Command{
	Use:   "index [file...]",
	Short: "Index Markdown files into the corpus",
	Long: `Converts the given files to Markdown and indexes them synchronously.

Content is deduplicated by hash: re-indexing identical content only
refreshes its timestamp. Use --force to rebuild chunks and vectors for
content the corpus already knows.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().StringVarP(&indexWorkspace, "workspace", "w", domain.GlobalWorkspaceID, "owning workspace")
	indexCmd.Flags().StringVar(&indexSession, "session", "", "attach the document to a session")
	indexCmd.Flags().StringVar(&indexName, "name", "", "citation display name (single file only)")
	indexCmd.Flags().StringVar(&indexType, "type", "pdf", "source type: pdf or artifact")
	indexCmd.Flags().BoolVar(&indexForce, "force", false, "reindex even when the content hash is known")
	indexCmd.Flags().BoolVar(&indexJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	if engine == nil {
		return errEngineNotConfigured
	}

	sourceType := domain.SourceType(indexType)
	if !sourceType.IsValid() {
		return fmt.Errorf("unknown source type %q (want pdf or artifact)", indexType)
	}
	if indexName != "" && len(args) > 1 {
		return errors.New("--name applies to a single file")
	}

	ctx := cmd.Context()
	conv := converter.New()
	results := make([]driving.IndexResult, 0, len(args))

	for _, arg := range args {
		path, err := filepath.Abs(arg)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", arg, err)
		}

		markdown, sourceName, err := conv.Convert(ctx, path)
		if err != nil {
			return err
		}
		if indexName != "" {
			sourceName = indexName
		}

		var fileSize int64
		if info, serr := os.Stat(path); serr == nil {
			fileSize = info.Size()
		}

		result, err := engine.IndexDocument(ctx, driving.IndexRequest{
			WorkspaceID:  indexWorkspace,
			SourceType:   sourceType,
			SourceName:   sourceName,
			SourcePath:   path,
			Markdown:     markdown,
			SessionID:    indexSession,
			FileSize:     fileSize,
			ForceReindex: indexForce,
		})
		if err != nil {
			return fmt.Errorf("indexing %s: %w", filepath.Base(path), err)
		}
		results = append(results, result)

		if !indexJSON {
			printIndexResult(cmd, filepath.Base(path), result)
		}
	}

	if indexJSON {
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal results: %w", err)
		}
		cmd.Println(string(data))
	}
	return nil
}

func printIndexResult(cmd *cobra.Command, name string, result driving.IndexResult) {
	if result.Deduplicated {
		cmd.Printf("%s: already indexed (refreshed), document %s\n", name, result.DocumentID)
		return
	}
	cmd.Printf("%s: indexed %d chunks, embedding %s, document %s\n",
		name, result.ChunkCount, result.EmbeddingState, result.DocumentID)
	if result.Warning != "" {
		cmd.Printf("  warning: %s\n", result.Warning)
	}
}
