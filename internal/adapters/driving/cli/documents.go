package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opencanvas/ragengine/internal/core/domain"
)

var documentsJSON bool

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "Manage indexed documents",
	Long:  `List, remove, or tombstone documents in the corpus.`,
}

var documentsListCmd = &cobra.Command{
	Use:   "list [workspace-id]",
	Short: "List documents in a workspace",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runDocumentsList,
}

var documentsRemoveCmd = &cobra.Command{
	Use:   "remove [doc-id]",
	Short: "Delete a document and everything derived from it",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentsRemove,
}

var documentsStaleCmd = &cobra.Command{
	Use:   "stale [doc-id]",
	Short: "Mark a session document for cleanup",
	Long:  `Tombstones a document so the next retention sweep removes it.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentsStale,
}

func init() {
	documentsListCmd.Flags().BoolVar(&documentsJSON, "json", false, "output documents as JSON")
	documentsCmd.AddCommand(documentsListCmd)
	documentsCmd.AddCommand(documentsRemoveCmd)
	documentsCmd.AddCommand(documentsStaleCmd)
	rootCmd.AddCommand(documentsCmd)
}

func runDocumentsList(cmd *cobra.Command, args []string) error {
	if engine == nil {
		return errEngineNotConfigured
	}

	workspaceID := domain.GlobalWorkspaceID
	if len(args) > 0 {
		workspaceID = args[0]
	}

	docs, err := engine.ListDocuments(cmd.Context(), workspaceID)
	if err != nil {
		return fmt.Errorf("listing documents: %w", err)
	}

	if documentsJSON {
		data, merr := json.MarshalIndent(docs, "", "  ")
		if merr != nil {
			return fmt.Errorf("failed to marshal documents: %w", merr)
		}
		cmd.Println(string(data))
		return nil
	}

	if len(docs) == 0 {
		cmd.Printf("No documents in workspace %s.\n", workspaceID)
		return nil
	}

	cmd.Printf("Documents in workspace %s:\n\n", workspaceID)
	for i := range docs {
		d := &docs[i]
		cmd.Printf("  %s\n", d.ID)
		cmd.Printf("    Name:      %s\n", d.SourceName)
		cmd.Printf("    Type:      %s\n", d.SourceType)
		cmd.Printf("    Indexed:   %s\n", d.IndexedAt.Format("2006-01-02 15:04:05"))
		cmd.Printf("    Embedding: %s\n", d.EmbeddingState)
		if d.StaleAt != nil {
			cmd.Printf("    Stale:     %s\n", d.StaleAt.Format("2006-01-02 15:04:05"))
		}
		cmd.Println()
	}
	cmd.Printf("Total: %d documents\n", len(docs))
	return nil
}

func runDocumentsRemove(cmd *cobra.Command, args []string) error {
	if engine == nil {
		return errEngineNotConfigured
	}

	docID := args[0]
	if err := engine.RemoveDocument(cmd.Context(), docID); err != nil {
		return fmt.Errorf("removing document: %w", err)
	}
	cmd.Printf("Removed document %s.\n", docID)
	return nil
}

func runDocumentsStale(cmd *cobra.Command, args []string) error {
	if engine == nil {
		return errEngineNotConfigured
	}

	docID := args[0]
	if err := engine.MarkDocumentStale(cmd.Context(), docID); err != nil {
		return fmt.Errorf("marking document stale: %w", err)
	}
	cmd.Printf("Marked document %s for cleanup.\n", docID)
	return nil
}
