package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/opencanvas/ragengine/internal/core/domain"
	"github.com/opencanvas/ragengine/internal/core/ports/driving"
)

// RetrieveInput is the input schema for the retrieve tool.
type RetrieveInput struct {
	Query       string `json:"query" jsonschema:"the question or topic to retrieve context for"`
	Scope       string `json:"scope,omitempty" jsonschema:"visibility scope: global, workspace or session (default global)"`
	WorkspaceID string `json:"workspace_id,omitempty" jsonschema:"workspace qualifier, required when scope is workspace"`
	SessionID   string `json:"session_id,omitempty" jsonschema:"session qualifier, required when scope is session"`
}

// CitationOutput maps one context marker back to its chunk.
type CitationOutput struct {
	Marker       int    `json:"marker"`
	SourceName   string `json:"source_name"`
	SectionTitle string `json:"section_title,omitempty"`
	DocumentID   string `json:"document_id"`
	ChunkIndex   int    `json:"chunk_index"`
}

// RetrieveOutput is the output schema for the retrieve tool.
type RetrieveOutput struct {
	Context   string           `json:"context"`
	Grounded  bool             `json:"grounded"`
	UsedScope string           `json:"used_scope"`
	Citations []CitationOutput `json:"citations"`
	Notes     []string         `json:"notes,omitempty"`
}

// IndexDocumentInput is the input schema for the index_document tool.
type IndexDocumentInput struct {
	Markdown    string `json:"markdown" jsonschema:"the Markdown content to index"`
	SourceName  string `json:"source_name" jsonschema:"display name used in citations"`
	WorkspaceID string `json:"workspace_id,omitempty" jsonschema:"owning workspace (default GLOBAL)"`
	SessionID   string `json:"session_id,omitempty" jsonschema:"session to attach the document to"`
	SourceType  string `json:"source_type,omitempty" jsonschema:"content origin: pdf or artifact (default artifact)"`
	Force       bool   `json:"force,omitempty" jsonschema:"reindex even when the content is already known"`
}

// IndexDocumentOutput is the output schema for the index_document tool.
type IndexDocumentOutput struct {
	DocumentID     string `json:"document_id"`
	Deduplicated   bool   `json:"deduplicated"`
	ChunkCount     int    `json:"chunk_count"`
	EmbeddingState string `json:"embedding_state"`
	Warning        string `json:"warning,omitempty"`
}

// ListRegistryInput is the input schema for the list_registry tool.
type ListRegistryInput struct {
	Status string `json:"status,omitempty" jsonschema:"filter by status: pending, indexed, failed or skipped"`
}

// RegistryEntryOutput is one watched path and its indexing outcome.
type RegistryEntryOutput struct {
	SourcePath  string `json:"source_path"`
	ContentHash string `json:"content_hash"`
	Status      string `json:"status"`
	RetryCount  int    `json:"retry_count"`
	LastSeenAt  string `json:"last_seen_at"`
	Error       string `json:"error,omitempty"`
}

// ListRegistryOutput is the output schema for the list_registry tool.
type ListRegistryOutput struct {
	Entries []RegistryEntryOutput `json:"entries"`
	Count   int                   `json:"count"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "retrieve",
		Description: "Retrieve a citation-marked context block for a query from the local corpus",
	}, s.handleRetrieve)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "index_document",
		Description: "Index a Markdown document into the local corpus",
	}, s.handleIndexDocument)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_registry",
		Description: "List the watched file paths and their indexing outcomes",
	}, s.handleListRegistry)
}

// handleRetrieve handles the retrieve tool invocation. The settings
// snapshot is left zero so the engine applies its configured defaults.
func (s *Server) handleRetrieve(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input RetrieveInput,
) (*mcp.CallToolResult, RetrieveOutput, error) {
	scope, err := scopeFromInput(input.Scope, input.WorkspaceID, input.SessionID)
	if err != nil {
		return nil, RetrieveOutput{}, err
	}

	result, err := s.ports.Engine.Retrieve(ctx, driving.RetrieveRequest{
		Query: input.Query,
		Scope: scope,
	})
	if err != nil {
		return nil, RetrieveOutput{}, err
	}

	output := RetrieveOutput{
		Context:   result.ContextText,
		Grounded:  result.Grounded,
		UsedScope: result.UsedScope.String(),
		Citations: make([]CitationOutput, len(result.Citations)),
		Notes:     result.Debug.Notes,
	}
	for i := range result.Citations {
		c := &result.Citations[i]
		output.Citations[i] = CitationOutput{
			Marker:       c.Marker,
			SourceName:   c.SourceName,
			SectionTitle: c.SectionTitle,
			DocumentID:   c.DocumentID,
			ChunkIndex:   c.ChunkIndex,
		}
	}

	return nil, output, nil
}

// handleIndexDocument handles the index_document tool invocation.
func (s *Server) handleIndexDocument(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input IndexDocumentInput,
) (*mcp.CallToolResult, IndexDocumentOutput, error) {
	workspaceID := input.WorkspaceID
	if workspaceID == "" {
		workspaceID = domain.GlobalWorkspaceID
	}

	sourceType := domain.SourceType(input.SourceType)
	if input.SourceType == "" {
		sourceType = domain.SourceArtifact
	}
	if !sourceType.IsValid() {
		return nil, IndexDocumentOutput{}, fmt.Errorf("unknown source type %q: %w", input.SourceType, domain.ErrInvalidInput)
	}

	result, err := s.ports.Engine.IndexDocument(ctx, driving.IndexRequest{
		WorkspaceID:  workspaceID,
		SourceType:   sourceType,
		SourceName:   input.SourceName,
		Markdown:     input.Markdown,
		SessionID:    input.SessionID,
		ForceReindex: input.Force,
	})
	if err != nil {
		return nil, IndexDocumentOutput{}, err
	}

	return nil, IndexDocumentOutput{
		DocumentID:     result.DocumentID,
		Deduplicated:   result.Deduplicated,
		ChunkCount:     result.ChunkCount,
		EmbeddingState: result.EmbeddingState.String(),
		Warning:        result.Warning,
	}, nil
}

// handleListRegistry handles the list_registry tool invocation.
func (s *Server) handleListRegistry(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ListRegistryInput,
) (*mcp.CallToolResult, ListRegistryOutput, error) {
	var filter *domain.RegistryStatus
	if input.Status != "" {
		status := domain.RegistryStatus(input.Status)
		if !status.IsValid() {
			return nil, ListRegistryOutput{}, fmt.Errorf("unknown registry status %q: %w", input.Status, domain.ErrInvalidInput)
		}
		filter = &status
	}

	entries, err := s.ports.Engine.ListRegistry(ctx, filter)
	if err != nil {
		return nil, ListRegistryOutput{}, err
	}

	output := ListRegistryOutput{
		Entries: make([]RegistryEntryOutput, len(entries)),
		Count:   len(entries),
	}
	for i := range entries {
		e := &entries[i]
		output.Entries[i] = RegistryEntryOutput{
			SourcePath:  e.SourcePath,
			ContentHash: e.ContentHash,
			Status:      e.Status.String(),
			RetryCount:  e.RetryCount,
			LastSeenAt:  e.LastSeenAt.Format("2006-01-02 15:04:05"),
			Error:       e.ErrorMessage,
		}
	}

	return nil, output, nil
}

// scopeFromInput builds a validated scope from tool arguments. An empty
// kind defaults to global.
func scopeFromInput(kind, workspaceID, sessionID string) (domain.Scope, error) {
	switch domain.ScopeKind(kind) {
	case domain.ScopeGlobal, "":
		return domain.GlobalScope(), nil
	case domain.ScopeWorkspace:
		scope := domain.WorkspaceScope(workspaceID)
		return scope, scope.Validate()
	case domain.ScopeSession:
		scope := domain.SessionScope(sessionID)
		return scope, scope.Validate()
	default:
		return domain.Scope{}, fmt.Errorf("unknown scope %q: %w", kind, domain.ErrInvalidScope)
	}
}
