package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/opencanvas/ragengine/internal/core/domain"
	"github.com/opencanvas/ragengine/internal/core/ports/driven"
	"github.com/opencanvas/ragengine/internal/core/ports/driving"
)

const (
	// retrievalSoftDeadline bounds one retrieval run. On overrun the
	// partial fused list is returned with a debug note instead of an
	// error.
	retrievalSoftDeadline = 10 * time.Second

	// maxQueryVariants bounds the variant list including the original.
	maxQueryVariants = 4

	// sectionTitleBonus rewards chunks that carry a heading.
	sectionTitleBonus = 0.05

	// sameDocPenalty is applied once per earlier candidate from the
	// same document, diversifying the selection.
	sameDocPenalty = 0.9

	// recencyBonus scales the normalised document age in session scope.
	recencyBonus = 0.03
)

// contextOpenTag and contextCloseTag delimit the assembled block.
const (
	contextOpenTag  = "<retrieved-context>"
	contextCloseTag = "</retrieved-context>"
)

// RetrieverService executes hybrid retrieval: lexical and vector
// rankings per query variant, reciprocal rank fusion, rerank, adjacency
// dedup, and context assembly. The embedder and reranker are optional;
// without them retrieval degrades to lexical-only with heuristic order.
type RetrieverService struct {
	search   driven.SearchStore
	embedder driven.EmbeddingProvider
	reranker driven.Reranker
	clock    driven.Clock
	log      driven.Logger
	deadline time.Duration
}

// NewRetrieverService creates a new retriever.
func NewRetrieverService(
	search driven.SearchStore,
	embedder driven.EmbeddingProvider,
	reranker driven.Reranker,
	clock driven.Clock,
	log driven.Logger,
) *RetrieverService {
	return &RetrieverService{
		search:   search,
		embedder: embedder,
		reranker: reranker,
		clock:    clock,
		log:      log,
		deadline: retrievalSoftDeadline,
	}
}

// gathered accumulates the per-variant ranking lists and the best raw
// scores observed per chunk while they are collected.
type gathered struct {
	lists    [][]string
	lexBest  map[string]float64
	vecBest  map[string]float64
	lexSeen  map[string]struct{}
	vecSeen  map[string]struct{}
	notes    []string
	deadline bool
}

// Retrieve runs one scope-enforced hybrid retrieval.
func (r *RetrieverService) Retrieve(ctx context.Context, req driving.RetrieveRequest) (domain.RetrievalResult, error) {
	start := r.clock.Now()

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return domain.RetrievalResult{}, fmt.Errorf("empty query: %w", domain.ErrInvalidInput)
	}
	if err := req.Scope.Validate(); err != nil {
		return domain.RetrievalResult{}, err
	}
	settings := req.Settings.Normalized()

	ctx, cancel := context.WithTimeout(ctx, r.deadline)
	defer cancel()

	variants := buildVariants(query, req.Variants)

	g := &gathered{
		lexBest: make(map[string]float64),
		vecBest: make(map[string]float64),
		lexSeen: make(map[string]struct{}),
		vecSeen: make(map[string]struct{}),
	}

	// 1. Lexical retrieval per variant
	if err := r.gatherLexical(ctx, g, variants, req.Scope, settings.KLex); err != nil {
		return domain.RetrievalResult{}, err
	}

	// 2. Vector retrieval per variant
	if err := r.gatherVector(ctx, g, variants, req.Scope, settings.KVec); err != nil {
		return domain.RetrievalResult{}, err
	}

	// 3. Reciprocal rank fusion across every collected list
	fused := fuseLists(g.lists, settings.RRFK)

	// 4. Hydrate, order, cap
	candidates, err := r.hydrate(ctx, fused, g)
	if err != nil {
		if wasDeadline(ctx, err) {
			res := domain.EmptyRetrievalResult(req.Scope,
				"soft deadline exceeded during hydration: returning no results")
			res.Debug.Variants = variants
			res.Debug.Elapsed = r.clock.Since(start)
			return res, nil
		}
		return domain.RetrievalResult{}, err
	}
	sortCandidates(candidates)

	result := domain.RetrievalResult{UsedScope: req.Scope}
	result.Debug.Variants = variants
	result.Debug.LexicalCandidates = len(g.lexSeen)
	result.Debug.VectorCandidates = len(g.vecSeen)
	result.Debug.FusedCandidates = len(candidates)
	result.Debug.Notes = g.notes

	if len(candidates) > settings.MaxCandidates {
		candidates = candidates[:settings.MaxCandidates]
	}
	result.Debug.SelectedCandidates = len(candidates)

	// 5. Rerank: heuristic always, LLM on top when enabled
	candidates = heuristicRerank(candidates, req.Scope)
	candidates = r.maybeLLMRerank(ctx, query, candidates, settings, &result.Debug)

	// 6. Adjacency dedup and context assembly
	selected, contextText, citations := assembleContext(candidates, settings)
	result.Chunks = selected
	result.Citations = citations
	result.Debug.ContextChunks = len(selected)

	// 7. Grounding
	result.Grounded = len(selected) > 0
	if result.Grounded {
		result.ContextText = contextText
	} else {
		result.Debug.Notes = append(result.Debug.Notes,
			"no grounded evidence: broaden the scope or index more documents")
	}

	result.Debug.Elapsed = r.clock.Since(start)
	r.log.Debug("retrieval complete",
		"scope", req.Scope.String(),
		"variants", len(variants),
		"fused", result.Debug.FusedCandidates,
		"selected", len(selected),
		"grounded", result.Grounded,
	)
	return result, nil
}

// gatherLexical appends one ranked list per variant. Hitting the soft
// deadline stops gathering with a note; other errors surface.
func (r *RetrieverService) gatherLexical(ctx context.Context, g *gathered, variants []string, scope domain.Scope, kLex int) error {
	for _, variant := range variants {
		if g.deadline {
			return nil
		}
		hits, err := r.search.SearchLexical(ctx, variant, scope, kLex)
		if err != nil {
			if wasDeadline(ctx, err) {
				g.noteDeadline("lexical search")
				return nil
			}
			return fmt.Errorf("lexical search: %w", err)
		}
		list := make([]string, len(hits))
		for i, hit := range hits {
			list[i] = hit.ChunkID
			g.lexSeen[hit.ChunkID] = struct{}{}
			if best, ok := g.lexBest[hit.ChunkID]; !ok || hit.Score < best {
				g.lexBest[hit.ChunkID] = hit.Score
			}
		}
		if len(list) > 0 {
			g.lists = append(g.lists, list)
		}
	}
	return nil
}

// gatherVector embeds the variants, scores them against every vector
// the scope permits, and appends one ranked list per variant. Provider
// failures degrade to lexical-only; storage failures surface.
func (r *RetrieverService) gatherVector(ctx context.Context, g *gathered, variants []string, scope domain.Scope, kVec int) error {
	if kVec <= 0 || g.deadline {
		return nil
	}
	if r.embedder == nil {
		g.notes = append(g.notes, "lexical-only: embedding provider unavailable")
		return nil
	}

	queryVecs, err := r.embedder.EmbedBatch(ctx, variants)
	if err != nil {
		if wasDeadline(ctx, err) {
			g.noteDeadline("query embedding")
			return nil
		}
		r.log.Warn("query embedding failed; continuing lexical-only", "error", err)
		g.notes = append(g.notes, "lexical-only: query embedding failed")
		return nil
	}
	if len(queryVecs) != len(variants) {
		g.notes = append(g.notes, "lexical-only: query embedding failed")
		return nil
	}

	records, err := r.search.LoadEmbeddings(ctx, scope, r.embedder.ModelName())
	if err != nil {
		if wasDeadline(ctx, err) {
			g.noteDeadline("loading embeddings")
			return nil
		}
		return fmt.Errorf("loading embeddings: %w", err)
	}
	if len(records) == 0 {
		return nil
	}

	for _, queryVec := range queryVecs {
		type scored struct {
			chunkID string
			score   float64
		}
		hits := make([]scored, 0, len(records))
		for _, record := range records {
			sim := cosineSimilarity(queryVec, record.Vector)
			if sim <= 0 {
				continue
			}
			hits = append(hits, scored{chunkID: record.ChunkID, score: sim})
		}
		sort.Slice(hits, func(i, j int) bool {
			if hits[i].score != hits[j].score {
				return hits[i].score > hits[j].score
			}
			return hits[i].chunkID < hits[j].chunkID
		})
		if len(hits) > kVec {
			hits = hits[:kVec]
		}
		list := make([]string, len(hits))
		for i, hit := range hits {
			list[i] = hit.chunkID
			g.vecSeen[hit.chunkID] = struct{}{}
			if best, ok := g.vecBest[hit.chunkID]; !ok || hit.score > best {
				g.vecBest[hit.chunkID] = hit.score
			}
		}
		if len(list) > 0 {
			g.lists = append(g.lists, list)
		}
	}
	return nil
}

func (g *gathered) noteDeadline(stage string) {
	g.deadline = true
	g.notes = append(g.notes, "soft deadline exceeded during "+stage+": returning partial results")
}

// wasDeadline distinguishes the soft deadline from real failures and
// from caller cancellation, which still surfaces as an error.
func wasDeadline(ctx context.Context, err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)
}

// fuseLists applies reciprocal rank fusion: an item at 1-based rank r
// in a list contributes 1/(k+r) to its fused score.
func fuseLists(lists [][]string, rrfK int) map[string]float64 {
	fused := make(map[string]float64)
	for _, list := range lists {
		for rank, chunkID := range list {
			fused[chunkID] += 1.0 / float64(rrfK+rank+1)
		}
	}
	return fused
}

// hydrate turns fused chunk IDs into candidates with their details and
// best per-chunk raw scores. Chunks deleted since the ranking ran are
// silently dropped.
func (r *RetrieverService) hydrate(ctx context.Context, fused map[string]float64, g *gathered) ([]domain.Candidate, error) {
	if len(fused) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(fused))
	for id := range fused {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	details, err := r.search.GetChunkDetails(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("hydrating candidates: %w", err)
	}

	candidates := make([]domain.Candidate, 0, len(details))
	for _, d := range details {
		candidate := domain.Candidate{
			ChunkID:      d.ChunkID,
			DocumentID:   d.DocumentID,
			ChunkIndex:   d.ChunkIndex,
			SectionTitle: d.SectionTitle,
			SourceName:   d.SourceName,
			Content:      d.Content,
			FusedScore:   fused[d.ChunkID],
			UpdatedAt:    d.UpdatedAt,
		}
		if score, ok := g.lexBest[d.ChunkID]; ok {
			s := score
			candidate.LexicalScore = &s
		}
		if score, ok := g.vecBest[d.ChunkID]; ok {
			s := score
			candidate.VectorScore = &s
		}
		candidates = append(candidates, candidate)
	}
	return candidates, nil
}

// sortCandidates orders by fused score descending; ties break on
// smaller chunk_index, then lexicographic chunk_id, so equal-scored
// runs are deterministic.
func sortCandidates(candidates []domain.Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].FusedScore != candidates[j].FusedScore {
			return candidates[i].FusedScore > candidates[j].FusedScore
		}
		if candidates[i].ChunkIndex != candidates[j].ChunkIndex {
			return candidates[i].ChunkIndex < candidates[j].ChunkIndex
		}
		return candidates[i].ChunkID < candidates[j].ChunkID
	})
}

// heuristicRerank reorders candidates by fused score adjusted with a
// section-title bonus, a multiplicative penalty per earlier candidate
// from the same document, and, in session scope, a recency bonus over
// the normalised document age.
func heuristicRerank(candidates []domain.Candidate, scope domain.Scope) []domain.Candidate {
	if len(candidates) < 2 {
		return candidates
	}

	var oldest, newest time.Time
	if scope.Kind == domain.ScopeSession {
		oldest, newest = candidates[0].UpdatedAt, candidates[0].UpdatedAt
		for _, c := range candidates[1:] {
			if c.UpdatedAt.Before(oldest) {
				oldest = c.UpdatedAt
			}
			if c.UpdatedAt.After(newest) {
				newest = c.UpdatedAt
			}
		}
	}
	span := newest.Sub(oldest)

	scores := make(map[string]float64, len(candidates))
	seenDocs := make(map[string]int, len(candidates))
	for _, c := range candidates {
		score := c.FusedScore
		if c.SectionTitle != "" {
			score += sectionTitleBonus
		}
		if scope.Kind == domain.ScopeSession && span > 0 {
			score += recencyBonus * float64(c.UpdatedAt.Sub(oldest)) / float64(span)
		}
		score *= math.Pow(sameDocPenalty, float64(seenDocs[c.DocumentID]))
		seenDocs[c.DocumentID]++
		scores[c.ChunkID] = score
	}

	reranked := append([]domain.Candidate(nil), candidates...)
	sort.SliceStable(reranked, func(i, j int) bool {
		si, sj := scores[reranked[i].ChunkID], scores[reranked[j].ChunkID]
		if si != sj {
			return si > sj
		}
		if reranked[i].ChunkIndex != reranked[j].ChunkIndex {
			return reranked[i].ChunkIndex < reranked[j].ChunkIndex
		}
		return reranked[i].ChunkID < reranked[j].ChunkID
	})
	return reranked
}

// maybeLLMRerank lets the LLM capability reorder the candidates. Any
// failure, including a response that is not a permutation of the
// input, keeps the heuristic order.
func (r *RetrieverService) maybeLLMRerank(ctx context.Context, query string, candidates []domain.Candidate, settings domain.RetrievalSettings, debug *domain.RetrievalDebug) []domain.Candidate {
	if !settings.EnableLLMRerank || r.reranker == nil || len(candidates) < 2 {
		return candidates
	}
	if ctx.Err() != nil {
		debug.Notes = append(debug.Notes, "soft deadline exceeded: llm rerank skipped")
		return candidates
	}
	reordered, err := r.reranker.RerankCandidates(ctx, query, candidates)
	if err != nil {
		r.log.Warn("llm rerank failed; keeping heuristic order", "error", err)
		debug.Notes = append(debug.Notes, "llm rerank failed: heuristic order kept")
		return candidates
	}
	if !isPermutation(candidates, reordered) {
		r.log.Warn("llm rerank returned an invalid order; keeping heuristic order")
		debug.Notes = append(debug.Notes, "llm rerank invalid: heuristic order kept")
		return candidates
	}
	return reordered
}

// isPermutation checks that reordered contains exactly the candidates
// of the input, nothing dropped and nothing invented.
func isPermutation(input, reordered []domain.Candidate) bool {
	if len(input) != len(reordered) {
		return false
	}
	ids := make(map[string]int, len(input))
	for _, c := range input {
		ids[c.ChunkID]++
	}
	for _, c := range reordered {
		ids[c.ChunkID]--
		if ids[c.ChunkID] < 0 {
			return false
		}
	}
	return true
}

// assembleContext selects candidates in rank order, dropping any chunk
// adjacent (same document, neighbouring chunk_index) to an already
// selected one, bounded by the chunk and character budgets, and renders
// the citation-marked context block.
func assembleContext(candidates []domain.Candidate, settings domain.RetrievalSettings) ([]domain.Candidate, string, []domain.Citation) {
	var selected []domain.Candidate
	var citations []domain.Citation
	var entries []string
	usedChars := 0

	for _, candidate := range candidates {
		if len(selected) >= settings.MaxContextChunks {
			break
		}
		if adjacentToAny(selected, candidate) {
			continue
		}
		if len(selected) > 0 && usedChars+len(candidate.Content) > settings.MaxContextChars {
			break
		}

		selected = append(selected, candidate)
		usedChars += len(candidate.Content)
		marker := len(selected)

		header := fmt.Sprintf("[%d] %s", marker, candidate.SourceName)
		if candidate.SectionTitle != "" {
			header += " | " + candidate.SectionTitle
		}
		entries = append(entries, header+"\n"+candidate.Content)

		citations = append(citations, domain.Citation{
			Marker:       marker,
			ChunkID:      candidate.ChunkID,
			DocumentID:   candidate.DocumentID,
			SourceName:   candidate.SourceName,
			SectionTitle: candidate.SectionTitle,
			ChunkIndex:   candidate.ChunkIndex,
		})
	}

	if len(selected) == 0 {
		return nil, "", nil
	}
	block := contextOpenTag + "\n" + strings.Join(entries, "\n\n") + "\n" + contextCloseTag
	return selected, block, citations
}

// adjacentToAny reports whether the candidate neighbours any selected
// chunk within the same document.
func adjacentToAny(selected []domain.Candidate, candidate domain.Candidate) bool {
	for _, s := range selected {
		if s.DocumentID != candidate.DocumentID {
			continue
		}
		delta := s.ChunkIndex - candidate.ChunkIndex
		if delta >= -1 && delta <= 1 {
			return true
		}
	}
	return false
}

// buildVariants returns the search variants, original query first,
// trimmed, de-duplicated case-insensitively, and capped.
func buildVariants(query string, extra []string) []string {
	variants := []string{query}
	seen := map[string]struct{}{strings.ToLower(query): {}}
	for _, v := range extra {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		key := strings.ToLower(v)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		variants = append(variants, v)
		if len(variants) == maxQueryVariants {
			break
		}
	}
	return variants
}

// cosineSimilarity computes exact cosine similarity. Mismatched lengths
// and zero norms yield 0, not an error.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
