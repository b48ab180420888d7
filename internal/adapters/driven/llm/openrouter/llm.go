// Package openrouter provides query rewrite and rerank adapters using
// the OpenRouter chat completions API.
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/opencanvas/ragengine/internal/core/domain"
	"github.com/opencanvas/ragengine/internal/core/ports/driven"
)

// Ensure Client implements both capability interfaces.
var (
	_ driven.QueryRewriter = (*Client)(nil)
	_ driven.Reranker      = (*Client)(nil)
)

// Default configuration values.
const (
	DefaultBaseURL = "https://openrouter.ai/api/v1"
	DefaultModel   = "openai/gpt-4o-mini"
	DefaultTimeout = 30 * time.Second
)

// maxVariants caps how many rewrites a single query may produce.
const maxVariants = 3

// passageExcerptChars bounds each candidate's contribution to the
// rerank prompt.
const passageExcerptChars = 400

// Attribution headers identify the caller to OpenRouter.
const (
	attributionReferer = "https://github.com/opencanvas/ragengine"
	attributionTitle   = "ragengine"
)

// Config holds configuration for the OpenRouter chat client.
type Config struct {
	// APIKey is the OpenRouter API key (required).
	APIKey string

	// BaseURL is the API base URL (default: https://openrouter.ai/api/v1).
	BaseURL string

	// Model is the chat model to use (default: openai/gpt-4o-mini).
	Model string

	// Timeout is the per-request timeout (default: 30s).
	Timeout time.Duration
}

// Client implements query rewriting and candidate reranking over the
// OpenRouter chat completions endpoint. Both capabilities are optional
// in the retrieval pipeline; callers treat any error as a signal to
// fall back, so the client never retries.
type Client struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
}

// chatRequest is the OpenAI-compatible request format.
type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []chatMsg `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature"`
}

// chatMsg is the chat message format.
type chatMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse is the OpenAI-compatible response format.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error,omitempty"`
}

// NewClient creates a new OpenRouter chat client. A missing key means
// the capability is unconfigured; callers then skip rewrite and LLM
// rerank entirely.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: no OpenRouter API key configured", domain.ErrLLMUnavailable)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Client{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
	}, nil
}

const rewritePrompt = `You expand search queries for a document retrieval system.
Produce up to 3 alternative phrasings of the query below that could surface
relevant passages: add synonyms, expand abbreviations, or restate the
question as keywords. One variant per line. No numbering, no commentary.

Query: %s`

// RewriteQuery returns up to three search variants for the query. The
// original is never among them; callers prepend it themselves.
func (c *Client) RewriteQuery(ctx context.Context, query string) ([]string, error) {
	raw, err := c.chatCompletion(ctx, fmt.Sprintf(rewritePrompt, query), 0.3, 150)
	if err != nil {
		return nil, fmt.Errorf("rewriting query: %w", err)
	}

	variants := make([]string, 0, maxVariants)
	for _, line := range strings.Split(raw, "\n") {
		variant := cleanVariantLine(line)
		if variant == "" || strings.EqualFold(variant, query) {
			continue
		}
		variants = append(variants, variant)
		if len(variants) == maxVariants {
			break
		}
	}
	return variants, nil
}

// cleanVariantLine strips bullets and ordinals the model emits despite
// instructions.
func cleanVariantLine(line string) string {
	s := strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*•"))
	if i := strings.IndexAny(s, ".)"); i > 0 && i <= 2 {
		if _, err := strconv.Atoi(s[:i]); err == nil {
			s = s[i+1:]
		}
	}
	return strings.TrimSpace(s)
}

const rerankPrompt = `You rank text passages by relevance to a query.
Return a JSON array of the passage numbers in descending relevance,
including every number exactly once. Return ONLY the JSON array.

Query: %s

Passages:
%s`

// RerankCandidates reorders the candidates by LLM-judged relevance.
// The response must be a permutation of the input; anything else is an
// error and the caller keeps its previous ordering.
func (c *Client) RerankCandidates(ctx context.Context, query string, candidates []domain.Candidate) ([]domain.Candidate, error) {
	if len(candidates) <= 1 {
		return candidates, nil
	}

	var sb strings.Builder
	for i, cand := range candidates {
		fmt.Fprintf(&sb, "%d. [%s | %s] %s\n\n", i+1, cand.SourceName, cand.SectionTitle, excerpt(cand.Content))
	}

	raw, err := c.chatCompletion(ctx, fmt.Sprintf(rerankPrompt, query, sb.String()), 0, 16+8*len(candidates))
	if err != nil {
		return nil, fmt.Errorf("reranking candidates: %w", err)
	}

	order, err := parseOrder(raw, len(candidates))
	if err != nil {
		return nil, fmt.Errorf("reranking candidates: %w", err)
	}

	reranked := make([]domain.Candidate, len(candidates))
	for pos, idx := range order {
		reranked[pos] = candidates[idx-1]
	}
	return reranked, nil
}

// parseOrder extracts a JSON array of 1-based passage numbers and
// verifies it is a permutation of 1..n.
func parseOrder(raw string, n int) ([]int, error) {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end < start {
		return nil, fmt.Errorf("no JSON array in response %q", excerpt(raw))
	}

	var order []int
	if err := json.Unmarshal([]byte(raw[start:end+1]), &order); err != nil {
		return nil, fmt.Errorf("parsing order: %w", err)
	}
	if len(order) != n {
		return nil, fmt.Errorf("order has %d entries for %d candidates", len(order), n)
	}

	seen := make([]bool, n)
	for _, idx := range order {
		if idx < 1 || idx > n || seen[idx-1] {
			return nil, fmt.Errorf("order %v is not a permutation of 1..%d", order, n)
		}
		seen[idx-1] = true
	}
	return order, nil
}

// excerpt trims a passage for prompt inclusion.
func excerpt(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > passageExcerptChars {
		return s[:passageExcerptChars] + "..."
	}
	return s
}

// chatCompletion sends one user message and returns the first choice.
func (c *Client) chatCompletion(ctx context.Context, prompt string, temperature float64, maxTokens int) (string, error) {
	jsonBody, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    []chatMsg{{Role: "user", Content: prompt}},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshalling request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+"/chat/completions",
		bytes.NewReader(jsonBody),
	)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("HTTP-Referer", attributionReferer)
	req.Header.Set("X-Title", attributionTitle)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}
	if err := classifyStatus(resp.StatusCode, body); err != nil {
		return "", err
	}

	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if chatResp.Error != nil {
		return "", fmt.Errorf("openrouter: %s", chatResp.Error.Message)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("openrouter: no choices returned")
	}
	return strings.TrimSpace(chatResp.Choices[0].Message.Content), nil
}

// ModelName returns the chat model in use.
func (c *Client) ModelName() string {
	return c.model
}

// Ping validates reachability and the API key via the /models endpoint.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", http.NoBody)
	if err != nil {
		return fmt.Errorf("creating ping request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("pinging openrouter: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading ping response: %w", err)
	}
	return classifyStatus(resp.StatusCode, body)
}

// Close releases resources.
func (c *Client) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

// classifyStatus maps HTTP status codes to domain error kinds.
func classifyStatus(status int, body []byte) error {
	s := strings.TrimSpace(string(body))
	if len(s) > 300 {
		s = s[:300] + "..."
	}
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: status %d: %s", domain.ErrProviderAuth, status, s)
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: status %d: %s", domain.ErrModelNotFound, status, s)
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d: %s", domain.ErrRateLimited, status, s)
	default:
		return fmt.Errorf("openrouter: status %d: %s", status, s)
	}
}
