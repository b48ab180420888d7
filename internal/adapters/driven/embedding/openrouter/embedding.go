// Package openrouter provides an embedding adapter using the OpenRouter API.
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/opencanvas/ragengine/internal/core/domain"
	"github.com/opencanvas/ragengine/internal/core/ports/driven"
)

// Ensure Client implements the interface.
var _ driven.EmbeddingProvider = (*Client)(nil)

// Default configuration values.
const (
	DefaultBaseURL = "https://openrouter.ai/api/v1"
	DefaultModel   = domain.DefaultEmbeddingModel
	DefaultTimeout = 60 * time.Second
)

const (
	// maxBatchSize caps texts per API call; larger inputs are split
	// into consecutive requests.
	maxBatchSize = 32

	// minRequestSpacing is the minimum gap between API calls.
	minRequestSpacing = 50 * time.Millisecond

	// maxRetries bounds additional attempts after a transient failure.
	maxRetries = 3

	// defaultBackoff is the first retry delay; it doubles per attempt.
	defaultBackoff = 500 * time.Millisecond
)

// Attribution headers identify the caller to OpenRouter.
const (
	attributionReferer = "https://github.com/opencanvas/ragengine"
	attributionTitle   = "ragengine"
)

// Dimensions for known embedding models. Unknown models fall back to
// 1536; the response is validated against this at storage time.
var modelDimensions = map[string]int{
	"openai/text-embedding-3-small": 1536,
	"openai/text-embedding-3-large": 3072,
	"openai/text-embedding-ada-002": 1536,
}

// Config holds configuration for the OpenRouter embedding client.
type Config struct {
	// APIKey is the OpenRouter API key (required).
	APIKey string

	// BaseURL is the API base URL (default: https://openrouter.ai/api/v1).
	BaseURL string

	// Model is the embedding model to use (default: openai/text-embedding-3-small).
	Model string

	// Timeout is the per-request timeout (default: 60s).
	Timeout time.Duration

	// Dimensions overrides the dimension table lookup for the model.
	Dimensions int
}

// Client generates embeddings through the OpenRouter API. It batches
// inputs, spaces requests with a rate limiter, and retries transient
// failures with exponential backoff.
type Client struct {
	client     *http.Client
	limiter    *rate.Limiter
	baseURL    string
	apiKey     string
	model      string
	dimensions int
	backoff    time.Duration
}

// embeddingRequest is the OpenAI-compatible request format.
type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// embeddingResponse is the OpenAI-compatible response format.
type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error,omitempty"`
}

// NewClient creates a new OpenRouter embedding client. A missing key or
// model means the capability is unconfigured, which callers treat as
// lexical-only mode rather than a failure.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: no OpenRouter API key configured", domain.ErrEmbeddingUnavailable)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	dimensions := cfg.Dimensions
	if dimensions == 0 {
		var ok bool
		if dimensions, ok = modelDimensions[cfg.Model]; !ok {
			dimensions = 1536
		}
	}

	return &Client{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter:    rate.NewLimiter(rate.Every(minRequestSpacing), 1),
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		dimensions: dimensions,
		backoff:    defaultBackoff,
	}, nil
}

// EmbedBatch generates embeddings for the given texts, in input order.
// Inputs beyond maxBatchSize are split across consecutive API calls; a
// failure in any call fails the whole batch.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxBatchSize {
		end := min(start+maxBatchSize, len(texts))

		vectors, err := c.embedWithRetry(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vectors...)
	}
	return out, nil
}

// embedWithRetry runs one API call, retrying transient failures.
func (c *Client) embedWithRetry(ctx context.Context, batch []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoff << (attempt - 1)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		vectors, retryable, err := c.requestEmbeddings(ctx, batch)
		if err == nil {
			return vectors, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// requestEmbeddings performs a single API call. The second return value
// reports whether the failure is worth another attempt.
func (c *Client) requestEmbeddings(ctx context.Context, batch []string) ([][]float32, bool, error) {
	jsonBody, err := json.Marshal(embeddingRequest{
		Model: c.model,
		Input: batch,
	})
	if err != nil {
		return nil, false, fmt.Errorf("marshalling request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+"/embeddings",
		bytes.NewReader(jsonBody),
	)
	if err != nil {
		return nil, false, fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("reading response: %w", err)
	}

	if err := classifyStatus(resp.StatusCode, body); err != nil {
		return nil, isRetryable(resp.StatusCode), err
	}

	var embedResp embeddingResponse
	if err := json.Unmarshal(body, &embedResp); err != nil {
		return nil, false, fmt.Errorf("decoding response: %w", err)
	}
	if embedResp.Error != nil {
		return nil, false, fmt.Errorf("openrouter: %s", embedResp.Error.Message)
	}
	if len(embedResp.Data) != len(batch) {
		return nil, false, fmt.Errorf("openrouter: got %d embeddings for %d inputs", len(embedResp.Data), len(batch))
	}

	// Entries may arrive out of order; index restores input order.
	vectors := make([][]float32, len(batch))
	for _, data := range embedResp.Data {
		if data.Index < 0 || data.Index >= len(batch) {
			return nil, false, fmt.Errorf("openrouter: embedding index %d out of range", data.Index)
		}
		vec := make([]float32, len(data.Embedding))
		for i, v := range data.Embedding {
			vec[i] = float32(v)
		}
		vectors[data.Index] = vec
	}
	return vectors, false, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("HTTP-Referer", attributionReferer)
	req.Header.Set("X-Title", attributionTitle)
}

// Dimensions returns the vector size the configured model produces.
func (c *Client) Dimensions() int {
	return c.dimensions
}

// ModelName returns the model identifier vectors are stored under.
func (c *Client) ModelName() string {
	return c.model
}

// Ping validates reachability and the API key via the /models endpoint,
// without running inference.
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
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: status %d: %s", domain.ErrProviderAuth, status, truncateBody(body))
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: status %d: %s", domain.ErrModelNotFound, status, truncateBody(body))
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d: %s", domain.ErrRateLimited, status, truncateBody(body))
	default:
		return fmt.Errorf("openrouter: status %d: %s", status, truncateBody(body))
	}
}

// isRetryable reports whether a failed status is worth another attempt.
// Auth and model errors never are; rate limits and server errors may
// clear up.
func isRetryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

// truncateBody keeps error messages readable when the provider returns
// a page of HTML instead of JSON.
func truncateBody(body []byte) string {
	const limit = 300
	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
