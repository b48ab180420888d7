package services

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/opencanvas/ragengine/internal/core/domain"
	"github.com/opencanvas/ragengine/internal/core/ports/driven"
	"github.com/opencanvas/ragengine/internal/core/ports/driving"
)

// RetrievalExecutor is the single capability the subgraph drives. It is
// satisfied by RetrieverService.
type RetrievalExecutor interface {
	Retrieve(ctx context.Context, req driving.RetrieveRequest) (domain.RetrievalResult, error)
}

// smallTalkPhrases is the greeting and acknowledgment vocabulary of the
// decide node. A message of at most four words matches when the whole
// phrase is listed or when every word is.
var smallTalkPhrases = map[string]struct{}{
	"hi":        {},
	"hello":     {},
	"hey":       {},
	"thanks":    {},
	"thank you": {},
	"ok":        {},
	"okay":      {},
	"yes":       {},
	"no":        {},
	"bye":       {},
	"goodbye":   {},
	"cool":      {},
	"great":     {},
	"nice":      {},
}

const maxSmallTalkWords = 4

// SubgraphService runs the retrieval decision subgraph: decide whether
// to retrieve, select the scope, rewrite the query, and execute. Each
// node completes before the next runs and cancellation is honoured at
// node boundaries. The subgraph never writes to persistent storage.
type SubgraphService struct {
	executor RetrievalExecutor
	rewriter driven.QueryRewriter
	log      driven.Logger
}

var _ driving.RetrievalRouter = (*SubgraphService)(nil)

// NewSubgraphService creates a new retrieval router. The rewriter is
// optional; without it the rewrite node passes the original query on.
func NewSubgraphService(executor RetrievalExecutor, rewriter driven.QueryRewriter, log driven.Logger) *SubgraphService {
	return &SubgraphService{
		executor: executor,
		rewriter: rewriter,
		log:      log,
	}
}

// Route executes the subgraph for one message.
func (s *SubgraphService) Route(ctx context.Context, input driving.SubgraphInput) (domain.RetrievalResult, error) {
	settings := input.Settings.Normalized()

	// 1. Decide: cheap exits before any I/O
	if reason, skip := s.decide(input.UserMessage, settings); skip {
		s.log.Debug("retrieval skipped", "reason", reason)
		return domain.EmptyRetrievalResult(domain.Scope{}, reason), nil
	}
	if err := ctx.Err(); err != nil {
		return domain.RetrievalResult{}, err
	}

	// 2. Select scope
	scope, scopeNote := selectScope(input, settings)
	var preNotes []string
	if scopeNote != "" {
		preNotes = append(preNotes, scopeNote)
	}

	// 3. Rewrite query
	variants, rewriteNote := s.rewriteVariants(ctx, input.UserMessage, settings)
	if rewriteNote != "" {
		preNotes = append(preNotes, rewriteNote)
	}
	if err := ctx.Err(); err != nil {
		return domain.RetrievalResult{}, err
	}

	// 4. Execute under the chosen scope
	result, err := s.executor.Retrieve(ctx, driving.RetrieveRequest{
		Query:    input.UserMessage,
		Scope:    scope,
		Settings: settings,
		Variants: variants,
	})
	if err != nil {
		return domain.RetrievalResult{}, fmt.Errorf("executing retrieval: %w", err)
	}

	// A result claiming a different scope than the one the subgraph
	// selected means the visibility predicate cannot be trusted.
	if result.UsedScope != scope {
		return domain.RetrievalResult{}, fmt.Errorf(
			"requested %s but result claims %s: %w",
			scope, result.UsedScope, domain.ErrScopeViolation)
	}

	if len(preNotes) > 0 {
		result.Debug.Notes = append(preNotes, result.Debug.Notes...)
	}
	return result, nil
}

// decide returns the skip reason for messages retrieval cannot help
// with: disabled settings, blank or tiny messages, and small talk.
func (s *SubgraphService) decide(message string, settings domain.RetrievalSettings) (string, bool) {
	if !settings.Enabled {
		return "retrieval skipped: disabled", true
	}
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return "retrieval skipped: empty message", true
	}
	if len([]rune(trimmed)) <= 2 {
		return "retrieval skipped: message too short", true
	}
	if !settings.DisableSmallTalkSkip && isSmallTalk(trimmed) {
		return "retrieval skipped: small talk", true
	}
	return "", false
}

// isSmallTalk lowercases the message, strips punctuation, and matches
// the result against the greeting vocabulary.
func isSmallTalk(message string) bool {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			return unicode.ToLower(r)
		}
		return -1
	}, message)

	words := strings.Fields(cleaned)
	if len(words) == 0 {
		// Nothing but punctuation carries no retrievable content.
		return true
	}
	if len(words) > maxSmallTalkWords {
		return false
	}
	if _, ok := smallTalkPhrases[strings.Join(words, " ")]; ok {
		return true
	}
	for _, word := range words {
		if _, ok := smallTalkPhrases[word]; !ok {
			return false
		}
	}
	return true
}

// selectScope picks the visibility predicate. Document-bound
// conversations and sessions with an attached document search the
// session; everything else follows the configured preference.
func selectScope(input driving.SubgraphInput, settings domain.RetrievalSettings) (domain.Scope, string) {
	if input.Mode == domain.ModeChatPDF || input.HasSessionDocument {
		if input.SessionID != "" {
			return domain.SessionScope(input.SessionID), ""
		}
		scope := preferredScope(settings)
		return scope, "session scope unavailable: no session id, using " + scope.String()
	}
	return preferredScope(settings), ""
}

// preferredScope maps the settings preference onto a concrete scope.
// Anything that is not a qualified workspace preference means global.
func preferredScope(settings domain.RetrievalSettings) domain.Scope {
	if settings.PreferredScope == domain.ScopeWorkspace && settings.WorkspaceID != "" {
		return domain.WorkspaceScope(settings.WorkspaceID)
	}
	return domain.GlobalScope()
}

// rewriteVariants asks the LLM capability for query variants. Failure
// degrades to the original query with a debug note; it never fails the
// retrieval.
func (s *SubgraphService) rewriteVariants(ctx context.Context, query string, settings domain.RetrievalSettings) ([]string, string) {
	if !settings.EnableQueryRewrite || s.rewriter == nil {
		return nil, ""
	}
	variants, err := s.rewriter.RewriteQuery(ctx, query)
	if err != nil {
		s.log.Warn("query rewrite failed; searching the original query only", "error", err)
		return nil, "query rewrite failed: original query only"
	}
	return variants, ""
}
