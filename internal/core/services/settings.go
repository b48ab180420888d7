package services

import (
	"os"
	"time"

	"github.com/opencanvas/ragengine/internal/core/domain"
	"github.com/opencanvas/ragengine/internal/core/ports/driven"
)

// Config keys for engine settings.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
const (
	keyRagEnabled         = "rag.enabled"
	keyRagPreferredScope  = "rag.preferred_scope"
	keyRagWorkspaceID     = "rag.workspace_id"
	keyRagChunkSize       = "rag.chunk_size_chars"
	keyRagChunkOverlap    = "rag.chunk_overlap_chars"
	keyRagKLex            = "rag.k_lex"
	keyRagKVec            = "rag.k_vec"
	keyRagRRFK            = "rag.rrf_k"
	keyRagMaxCandidates   = "rag.max_candidates"
	keyRagMaxChunks       = "rag.max_context_chunks"
	keyRagMaxChars        = "rag.max_context_chars"
	keyRagQueryRewrite    = "rag.enable_query_rewrite"
	keyRagLLMRerank       = "rag.enable_llm_rerank"
	keyRagNoSmallTalkSkip = "rag.disable_small_talk_skip"
	keyRagIndexArtifacts  = "rag.index_text_artifacts"

	keyProviderAPIKey     = "provider.api_key"
	keyProviderBaseURL    = "provider.base_url"
	keyProviderEmbedModel = "provider.embedding_model"
	keyProviderChatModel  = "provider.chat_model"

	keyCleanupRetention = "cleanup.retention_days"
	keyCleanupInterval  = "cleanup.interval_hours"

	keyWatcherDirectory = "watcher.directory"
	keyWatcherQueueCap  = "watcher.queue_capacity"
	keyWatcherDebounce  = "watcher.debounce_ms"

	keyCacheBudgetMB = "cache.budget_mb"

	// envAPIKey lets the credential come from the environment instead
	// of the config file.
	envAPIKey = "OPENROUTER_API_KEY"
)

// SettingsService materialises typed settings snapshots from the config
// store. Every snapshot starts from the engine defaults, applies any
// configured overrides, and is normalised before it leaves the service.
type SettingsService struct {
	config driven.ConfigStore
}

// NewSettingsService creates a new settings service.
func NewSettingsService(config driven.ConfigStore) *SettingsService {
	return &SettingsService{config: config}
}

// Retrieval returns the retrieval settings snapshot.
func (s *SettingsService) Retrieval() domain.RetrievalSettings {
	settings := domain.DefaultRetrievalSettings()

	settings.Enabled = s.getBool(keyRagEnabled, settings.Enabled)
	if scope := domain.ScopeKind(s.config.GetString(keyRagPreferredScope)); scope.IsValid() {
		settings.PreferredScope = scope
	}
	settings.WorkspaceID = s.getString(keyRagWorkspaceID, settings.WorkspaceID)
	settings.ChunkSizeChars = s.getInt(keyRagChunkSize, settings.ChunkSizeChars)
	settings.ChunkOverlapChars = s.getInt(keyRagChunkOverlap, settings.ChunkOverlapChars)
	settings.KLex = s.getInt(keyRagKLex, settings.KLex)
	settings.KVec = s.getInt(keyRagKVec, settings.KVec)
	settings.RRFK = s.getInt(keyRagRRFK, settings.RRFK)
	settings.MaxCandidates = s.getInt(keyRagMaxCandidates, settings.MaxCandidates)
	settings.MaxContextChunks = s.getInt(keyRagMaxChunks, settings.MaxContextChunks)
	settings.MaxContextChars = s.getInt(keyRagMaxChars, settings.MaxContextChars)
	settings.EmbeddingModel = s.getString(keyProviderEmbedModel, settings.EmbeddingModel)
	settings.EnableQueryRewrite = s.getBool(keyRagQueryRewrite, settings.EnableQueryRewrite)
	settings.EnableLLMRerank = s.getBool(keyRagLLMRerank, settings.EnableLLMRerank)
	settings.DisableSmallTalkSkip = s.getBool(keyRagNoSmallTalkSkip, settings.DisableSmallTalkSkip)
	settings.IndexTextArtifacts = s.getBool(keyRagIndexArtifacts, settings.IndexTextArtifacts)

	return settings.Normalized()
}

// Provider returns the provider settings. The API key falls back to the
// OPENROUTER_API_KEY environment variable when the config has none.
func (s *SettingsService) Provider() domain.ProviderSettings {
	apiKey := s.config.GetString(keyProviderAPIKey)
	if apiKey == "" {
		apiKey = os.Getenv(envAPIKey)
	}
	return domain.ProviderSettings{
		APIKey:         apiKey,
		BaseURL:        s.config.GetString(keyProviderBaseURL),
		EmbeddingModel: s.getString(keyProviderEmbedModel, domain.DefaultEmbeddingModel),
		ChatModel:      s.config.GetString(keyProviderChatModel),
	}
}

// Cleanup returns the stale-document sweep settings.
func (s *SettingsService) Cleanup() domain.CleanupSettings {
	settings := domain.DefaultCleanupSettings()
	settings.RetentionDays = s.getInt(keyCleanupRetention, settings.RetentionDays)
	settings.IntervalHours = s.getInt(keyCleanupInterval, settings.IntervalHours)
	return settings.Normalized()
}

// Watcher returns the filesystem watcher settings.
func (s *SettingsService) Watcher() domain.WatcherSettings {
	settings := domain.DefaultWatcherSettings()
	settings.Directory = s.config.GetString(keyWatcherDirectory)
	settings.QueueCapacity = s.getInt(keyWatcherQueueCap, settings.QueueCapacity)
	if ms := s.config.GetInt(keyWatcherDebounce); ms > 0 {
		settings.Debounce = time.Duration(ms) * time.Millisecond
	}
	return settings.Normalized()
}

// CacheBudget returns the ingest cache budget in bytes.
func (s *SettingsService) CacheBudget() int {
	if mb := s.config.GetInt(keyCacheBudgetMB); mb > 0 {
		return mb << 20
	}
	return 0
}

// Helper methods for reading config with defaults.

func (s *SettingsService) getString(key, defaultVal string) string {
	val := s.config.GetString(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getInt(key string, defaultVal int) int {
	if _, exists := s.config.Get(key); !exists {
		return defaultVal
	}
	return s.config.GetInt(key)
}

func (s *SettingsService) getBool(key string, defaultVal bool) bool {
	if _, exists := s.config.Get(key); !exists {
		return defaultVal
	}
	return s.config.GetBool(key)
}
