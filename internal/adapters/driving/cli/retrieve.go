package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/opencanvas/ragengine/internal/core/domain"
	"github.com/opencanvas/ragengine/internal/core/ports/driving"
)

var (
	retrieveScope     string
	retrieveWorkspace string
	retrieveSession   string
	retrieveMode      string
	retrieveJSON      bool
)

var retrieveCmd = &cobra.Command{
	Use:   "retrieve [query]",
	Short: "Retrieve cited context for a query",
	Long: `Runs hybrid retrieval over the corpus and prints the assembled
context block with its citations.

Lexical and vector rankings are fused with reciprocal rank fusion,
reranked, and trimmed to the configured context budget. With --mode
the query first passes through the chat decision subgraph, which may
skip retrieval entirely (small talk) or narrow the scope to the
session document.`,
	Args: cobra.ExactArgs(1),
	RunE: runRetrieve,
}

func init() {
	retrieveCmd.Flags().StringVar(&retrieveScope, "scope", "global", "visibility scope: global, workspace or session")
	retrieveCmd.Flags().StringVarP(&retrieveWorkspace, "workspace", "w", "", "workspace qualifier for workspace scope")
	retrieveCmd.Flags().StringVar(&retrieveSession, "session", "", "session qualifier for session scope")
	retrieveCmd.Flags().StringVar(&retrieveMode, "mode", "", "route through the chat subgraph: chat or chatpdf")
	retrieveCmd.Flags().BoolVar(&retrieveJSON, "json", false, "output the full result as JSON")
	rootCmd.AddCommand(retrieveCmd)
}

func runRetrieve(cmd *cobra.Command, args []string) error {
	if engine == nil {
		return errEngineNotConfigured
	}
	query := args[0]
	ctx := cmd.Context()

	var (
		result domain.RetrievalResult
		err    error
	)
	if retrieveMode != "" {
		if router == nil {
			return errors.New("retrieval router not configured")
		}
		mode := domain.ConversationMode(retrieveMode)
		if mode != domain.ModeChat && mode != domain.ModeChatPDF {
			return fmt.Errorf("unknown mode %q (want chat or chatpdf)", retrieveMode)
		}
		result, err = router.Route(ctx, driving.SubgraphInput{
			UserMessage:        query,
			Mode:               mode,
			SessionID:          retrieveSession,
			HasSessionDocument: mode == domain.ModeChatPDF && retrieveSession != "",
		})
	} else {
		var scope domain.Scope
		scope, err = scopeFromFlags()
		if err != nil {
			return err
		}
		result, err = engine.Retrieve(ctx, driving.RetrieveRequest{
			Query: query,
			Scope: scope,
		})
	}
	if err != nil {
		return fmt.Errorf("retrieval failed: %w", err)
	}

	if retrieveJSON {
		data, merr := json.MarshalIndent(result, "", "  ")
		if merr != nil {
			return fmt.Errorf("failed to marshal result: %w", merr)
		}
		cmd.Println(string(data))
		return nil
	}

	return outputRetrievalText(cmd, result)
}

// scopeFromFlags builds a validated scope from the retrieve flags.
func scopeFromFlags() (domain.Scope, error) {
	switch domain.ScopeKind(retrieveScope) {
	case domain.ScopeGlobal:
		return domain.GlobalScope(), nil
	case domain.ScopeWorkspace:
		scope := domain.WorkspaceScope(retrieveWorkspace)
		return scope, scope.Validate()
	case domain.ScopeSession:
		scope := domain.SessionScope(retrieveSession)
		return scope, scope.Validate()
	default:
		return domain.Scope{}, fmt.Errorf("unknown scope %q: %w", retrieveScope, domain.ErrInvalidScope)
	}
}

func outputRetrievalText(cmd *cobra.Command, result domain.RetrievalResult) error {
	if !result.Grounded {
		cmd.Println("No grounded context.")
		for _, note := range result.Debug.Notes {
			cmd.Printf("  note: %s\n", note)
		}
		return nil
	}

	cmd.Println(result.ContextText)
	cmd.Println()
	cmd.Println("Citations:")
	for _, c := range result.Citations {
		if c.SectionTitle != "" {
			cmd.Printf("  [%d] %s | %s (document %s, chunk %d)\n",
				c.Marker, c.SourceName, c.SectionTitle, c.DocumentID, c.ChunkIndex)
		} else {
			cmd.Printf("  [%d] %s (document %s, chunk %d)\n",
				c.Marker, c.SourceName, c.DocumentID, c.ChunkIndex)
		}
	}

	debug := result.Debug
	cmd.Println()
	cmd.Printf("Scope %s: %d lexical, %d vector, %d fused, %d in context (%s)\n",
		result.UsedScope,
		debug.LexicalCandidates,
		debug.VectorCandidates,
		debug.FusedCandidates,
		debug.ContextChunks,
		debug.Elapsed.Round(time.Millisecond),
	)
	for _, note := range debug.Notes {
		cmd.Printf("  note: %s\n", note)
	}
	return nil
}
