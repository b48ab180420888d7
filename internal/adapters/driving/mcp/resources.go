package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/opencanvas/ragengine/internal/core/domain"
)

const (
	// uriScheme is the custom URI scheme for engine resources.
	uriScheme = "ragengine://"
)

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	// Static resource summarising the watcher registry.
	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "registry",
		Name:        "registry",
		Description: "Watched file paths grouped by indexing outcome",
		MIMEType:    "application/json",
	}, s.handleRegistryResource)

	// Template for workspace documents.
	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "workspaces/{workspaceId}/documents",
		Name:        "workspace-documents",
		Description: "Documents indexed in a specific workspace",
		MIMEType:    "application/json",
	}, s.handleDocumentsResource)

	// Template for document content.
	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "documents/{documentId}",
		Name:        "document-content",
		Description: "Chunked Markdown content of a specific document",
		MIMEType:    "text/markdown",
	}, s.handleDocumentContentResource)
}

// handleRegistryResource returns the registry entries with per-status
// counts.
func (s *Server) handleRegistryResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	entries, err := s.ports.Engine.ListRegistry(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("listing registry: %w", err)
	}

	type entryInfo struct {
		Path       string `json:"path"`
		Status     string `json:"status"`
		RetryCount int    `json:"retry_count"`
		Error      string `json:"error,omitempty"`
	}
	type registryInfo struct {
		Counts  map[string]int `json:"counts"`
		Entries []entryInfo    `json:"entries"`
	}

	info := registryInfo{
		Counts:  make(map[string]int),
		Entries: make([]entryInfo, len(entries)),
	}
	for i := range entries {
		e := &entries[i]
		info.Counts[e.Status.String()]++
		info.Entries[i] = entryInfo{
			Path:       e.SourcePath,
			Status:     e.Status.String(),
			RetryCount: e.RetryCount,
			Error:      e.ErrorMessage,
		}
	}

	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling registry: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// handleDocumentsResource returns the documents of a specific workspace.
func (s *Server) handleDocumentsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	// Extract workspaceId from URI: ragengine://workspaces/{workspaceId}/documents
	workspaceID := extractWorkspaceID(req.Params.URI)
	if workspaceID == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	docs, err := s.ports.Engine.ListDocuments(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}

	// Build simplified document list.
	type docInfo struct {
		ID             string `json:"id"`
		SourceName     string `json:"source_name"`
		SourceType     string `json:"source_type"`
		EmbeddingState string `json:"embedding_state"`
		IndexedAt      string `json:"indexed_at"`
		Stale          bool   `json:"stale,omitempty"`
	}

	infos := make([]docInfo, len(docs))
	for i := range docs {
		d := &docs[i]
		infos[i] = docInfo{
			ID:             d.ID,
			SourceName:     d.SourceName,
			SourceType:     d.SourceType.String(),
			EmbeddingState: d.EmbeddingState.String(),
			IndexedAt:      d.IndexedAt.Format("2006-01-02 15:04:05"),
			Stale:          d.StaleAt != nil,
		}
	}

	data, err := json.MarshalIndent(infos, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling documents: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// handleDocumentContentResource returns the chunked content of a
// specific document. Successive chunks overlap by the configured
// window, so the rendition is for inspection rather than re-ingestion.
func (s *Server) handleDocumentContentResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	if s.ports.Documents == nil {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	// Extract documentId from URI: ragengine://documents/{documentId}
	docID := extractDocumentID(req.Params.URI)
	if docID == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	chunks, err := s.ports.Documents.GetChunks(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("getting document chunks: %w", err)
	}
	if len(chunks) == 0 {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "text/markdown",
			Text:     renderChunks(chunks),
		}},
	}, nil
}

// renderChunks joins a document's chunks with chunk-index markers.
func renderChunks(chunks []domain.Chunk) string {
	var b strings.Builder
	for i := range chunks {
		c := &chunks[i]
		if i > 0 {
			b.WriteString("\n\n")
		}
		if c.SectionTitle != "" {
			fmt.Fprintf(&b, "<!-- chunk %d | %s -->\n", c.ChunkIndex, c.SectionTitle)
		} else {
			fmt.Fprintf(&b, "<!-- chunk %d -->\n", c.ChunkIndex)
		}
		b.WriteString(c.Content)
	}
	return b.String()
}

// extractWorkspaceID extracts the workspace ID from a URI like
// ragengine://workspaces/{workspaceId}/documents.
func extractWorkspaceID(uri string) string {
	const prefix = uriScheme + "workspaces/"
	const suffix = "/documents"

	if !strings.HasPrefix(uri, prefix) {
		return ""
	}

	uri = strings.TrimPrefix(uri, prefix)
	if !strings.HasSuffix(uri, suffix) {
		return ""
	}

	return strings.TrimSuffix(uri, suffix)
}

// extractDocumentID extracts the document ID from a URI like
// ragengine://documents/{documentId}.
func extractDocumentID(uri string) string {
	const prefix = uriScheme + "documents/"

	if !strings.HasPrefix(uri, prefix) {
		return ""
	}

	return strings.TrimPrefix(uri, prefix)
}
