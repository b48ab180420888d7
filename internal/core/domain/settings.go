package domain

import "time"

// DefaultEmbeddingModel is used when the host configures none explicitly.
const DefaultEmbeddingModel = "openai/text-embedding-3-small"

// ConversationMode distinguishes ordinary chat from document-bound chat.
type ConversationMode string

const (
	// ModeChat is an ordinary conversation.
	ModeChat ConversationMode = "chat"

	// ModeChatPDF binds the conversation to a single session document.
	ModeChatPDF ConversationMode = "chatpdf"
)

// RetrievalSettings is the read-only snapshot the engine consumes per
// request. Hosts assemble it from their own settings storage; Normalized
// clamps every field into its supported range.
type RetrievalSettings struct {
	// Enabled gates the whole retrieval subsystem.
	Enabled bool

	// PreferredScope is the scope used when no session binds the request.
	PreferredScope ScopeKind

	// WorkspaceID qualifies PreferredScope when it is ScopeWorkspace.
	WorkspaceID string

	// ChunkSizeChars is the chunker budget per chunk.
	ChunkSizeChars int

	// ChunkOverlapChars is the chunker overlap between successive chunks.
	ChunkOverlapChars int

	// KLex is the lexical candidate count per query variant.
	KLex int

	// KVec is the vector candidate count per query variant (0 disables).
	KVec int

	// RRFK is the reciprocal rank fusion constant.
	RRFK int

	// MaxCandidates bounds the fused candidate list fed to rerank.
	MaxCandidates int

	// MaxContextChunks bounds the assembled context block.
	MaxContextChunks int

	// MaxContextChars bounds the assembled context block.
	MaxContextChars int

	// EmbeddingModel identifies the embedding model.
	EmbeddingModel string

	// EnableQueryRewrite turns on LLM query variant generation.
	EnableQueryRewrite bool

	// EnableLLMRerank lets an LLM reorder the fused candidates.
	EnableLLMRerank bool

	// DisableSmallTalkSkip turns off the greeting classifier in the
	// decision subgraph, forcing retrieval for every non-empty message.
	DisableSmallTalkSkip bool

	// IndexTextArtifacts enables ingestion of assistant text artifacts.
	IndexTextArtifacts bool
}

// DefaultRetrievalSettings returns the engine defaults.
func DefaultRetrievalSettings() RetrievalSettings {
	return RetrievalSettings{
		Enabled:           false,
		PreferredScope:    ScopeGlobal,
		ChunkSizeChars:    1200,
		ChunkOverlapChars: 150,
		KLex:              8,
		KVec:              8,
		RRFK:              60,
		MaxCandidates:     12,
		MaxContextChunks:  6,
		MaxContextChars:   6000,
		EmbeddingModel:    DefaultEmbeddingModel,
	}
}

// Normalized returns a copy with every field clamped into its supported
// range. Hosts may hand over arbitrary values; the engine never consumes
// a snapshot it has not normalised.
func (s RetrievalSettings) Normalized() RetrievalSettings {
	if !s.PreferredScope.IsValid() {
		s.PreferredScope = ScopeGlobal
	}
	s.ChunkSizeChars = clampInt(s.ChunkSizeChars, 200, 5000)
	s.ChunkOverlapChars = clampInt(s.ChunkOverlapChars, 0, 1000)
	if s.ChunkOverlapChars >= s.ChunkSizeChars {
		s.ChunkOverlapChars = s.ChunkSizeChars - 1
	}
	s.KLex = clampInt(s.KLex, 1, 50)
	s.KVec = clampInt(s.KVec, 0, 50)
	s.RRFK = clampInt(s.RRFK, 10, 200)
	s.MaxCandidates = clampInt(s.MaxCandidates, 1, 50)
	s.MaxContextChunks = clampInt(s.MaxContextChunks, 1, 20)
	s.MaxContextChars = clampInt(s.MaxContextChars, 500, 20000)
	return s
}

// ProviderSettings carries the OpenRouter credential and model choices.
// The zero value disables every provider-backed capability.
type ProviderSettings struct {
	// APIKey authenticates against the provider.
	APIKey string

	// BaseURL overrides the provider endpoint, for tests and proxies.
	BaseURL string

	// EmbeddingModel is the embedding model identifier.
	EmbeddingModel string

	// ChatModel is the chat model used for query rewrite and rerank.
	ChatModel string
}

// HasEmbedding reports whether embedding calls are configured.
func (s ProviderSettings) HasEmbedding() bool {
	return s.APIKey != "" && s.EmbeddingModel != ""
}

// HasChat reports whether chat-backed capabilities are configured.
func (s ProviderSettings) HasChat() bool {
	return s.APIKey != "" && s.ChatModel != ""
}

// WatcherSettings controls the filesystem watcher and its indexing queue.
type WatcherSettings struct {
	// Directory is the watched directory. Empty disables watching;
	// the indexing queue still runs for direct enqueues.
	Directory string

	// QueueCapacity bounds how many files may wait for indexing.
	QueueCapacity int

	// Debounce is the quiescence window applied to file events.
	Debounce time.Duration
}

// DefaultWatcherSettings returns the engine defaults.
func DefaultWatcherSettings() WatcherSettings {
	return WatcherSettings{
		QueueCapacity: 64,
		Debounce:      2500 * time.Millisecond,
	}
}

// Normalized clamps the queue capacity and debounce window.
func (s WatcherSettings) Normalized() WatcherSettings {
	s.QueueCapacity = clampInt(s.QueueCapacity, 1, 1024)
	if s.Debounce <= 0 {
		s.Debounce = 2500 * time.Millisecond
	}
	return s
}

// CleanupSettings controls the stale-document sweep.
// RetentionDays applies to document age; IntervalHours to scheduling.
type CleanupSettings struct {
	// RetentionDays is how long a stale session document survives.
	RetentionDays int

	// IntervalHours is the period of the background sweep.
	IntervalHours int
}

// DefaultCleanupSettings returns the engine defaults.
func DefaultCleanupSettings() CleanupSettings {
	return CleanupSettings{RetentionDays: 7, IntervalHours: 24}
}

// Normalized clamps both knobs to sane ranges.
func (s CleanupSettings) Normalized() CleanupSettings {
	s.RetentionDays = clampInt(s.RetentionDays, 1, 365)
	s.IntervalHours = clampInt(s.IntervalHours, 1, 168)
	return s
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
