// Package cli provides the command-line driving adapter. Commands talk
// to the engine exclusively through the driving ports; the wiring of
// stores, providers, and services happens once per invocation here.
package cli

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/opencanvas/ragengine/internal/adapters/driven/clock"
	"github.com/opencanvas/ragengine/internal/adapters/driven/config/file"
	"github.com/opencanvas/ragengine/internal/adapters/driven/converter"
	embedor "github.com/opencanvas/ragengine/internal/adapters/driven/embedding/openrouter"
	"github.com/opencanvas/ragengine/internal/adapters/driven/fswatch"
	llmor "github.com/opencanvas/ragengine/internal/adapters/driven/llm/openrouter"
	"github.com/opencanvas/ragengine/internal/adapters/driven/storage/sqlite"
	"github.com/opencanvas/ragengine/internal/cache"
	"github.com/opencanvas/ragengine/internal/chunker"
	"github.com/opencanvas/ragengine/internal/core/ports/driven"
	"github.com/opencanvas/ragengine/internal/core/ports/driving"
	"github.com/opencanvas/ragengine/internal/core/services"
	"github.com/opencanvas/ragengine/internal/logger"
)

// version is set at build time via -ldflags.
var version = "dev"

// Persistent flag values.
var (
	cfgPath  string
	dataDir  string
	logLevel string
)

// Engine wiring shared by the commands. initEngine fills these on the
// first command that needs them and leaves existing values alone, so
// tests can inject mocks up front.
var (
	engine          driving.Engine
	router          driving.RetrievalRouter
	coord           *services.Coordinator
	settingsService *services.SettingsService
	configStore     driven.ConfigStore
	documentStore   driven.DocumentStore
	engineClose     func() error
)

var rootCmd = &cobra.Command{
	Use:   "ragengine",
	Short: "Local hybrid retrieval engine for Markdown corpora",
	Long: `ragengine indexes Markdown documents into a local SQLite corpus and
answers queries with hybrid retrieval: lexical and vector rankings are
fused, reranked, and assembled into a citation-marked context block.

All state lives under ~/.ragengine unless overridden.`,
	PersistentPreRunE:  initEngine,
	PersistentPostRunE: teardownEngine,
	SilenceUsage:       true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (default ~/.ragengine/config.toml)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory (default ~/.ragengine/data)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn or error")
}

// commandsWithoutEngine run without building the engine. The config
// commands open just the config store themselves.
var commandsWithoutEngine = map[string]struct{}{
	"version":    {},
	"help":       {},
	"completion": {},
	"config":     {},
}

// skipsEngine reports whether a command runs without the engine wiring.
func skipsEngine(cmd *cobra.Command) bool {
	if !cmd.HasParent() {
		return true // bare root only prints help
	}
	for c := cmd; c.HasParent(); c = c.Parent() {
		if _, ok := commandsWithoutEngine[c.Name()]; ok {
			return true
		}
	}
	return false
}

// initEngine builds the full engine behind the driving ports: config,
// logging, storage, caches, optional providers, services, coordinator.
// Provider construction failures degrade to lexical-only operation
// instead of aborting the command.
func initEngine(cmd *cobra.Command, _ []string) error {
	if engine != nil {
		return nil // Already wired (tests inject mocks here)
	}
	if skipsEngine(cmd) {
		return nil
	}

	cfg, err := file.NewConfigStore(cfgPath)
	if err != nil {
		return err
	}
	configStore = cfg
	settingsService = services.NewSettingsService(cfg)

	log, err := logger.New(logger.Options{Level: logLevel})
	if err != nil {
		return err
	}

	caches, err := cache.New(settingsService.CacheBudget())
	if err != nil {
		return err
	}

	retrieval := settingsService.Retrieval()
	chnk := chunker.New(
		chunker.WithChunkSize(retrieval.ChunkSizeChars),
		chunker.WithOverlap(retrieval.ChunkOverlapChars),
	)
	clk := clock.NewSystem()

	provider := settingsService.Provider()
	var embedder driven.EmbeddingProvider
	if provider.HasEmbedding() {
		client, cerr := embedor.NewClient(embedor.Config{
			APIKey:  provider.APIKey,
			BaseURL: provider.BaseURL,
			Model:   provider.EmbeddingModel,
		})
		if cerr != nil {
			log.Warn("embedding provider unavailable, running lexical-only", "error", cerr)
		} else {
			embedder = client
		}
	}

	var (
		rewriter driven.QueryRewriter
		reranker driven.Reranker
	)
	if provider.HasChat() {
		client, cerr := llmor.NewClient(llmor.Config{
			APIKey:  provider.APIKey,
			BaseURL: provider.BaseURL,
			Model:   provider.ChatModel,
		})
		if cerr != nil {
			log.Warn("chat provider unavailable, skipping rewrite and rerank", "error", cerr)
		} else {
			rewriter = client
			reranker = client
		}
	}

	store, err := sqlite.NewStore(dataDir)
	if err != nil {
		return err
	}

	indexer := services.NewIndexerService(
		store.WorkspaceStore(),
		store.DocumentStore(),
		store.EmbeddingStore(),
		store.RegistryStore(),
		embedder,
		chnk,
		caches,
		clk,
		log,
	)
	retriever := services.NewRetrieverService(store.SearchStore(), embedder, reranker, clk, log)
	subgraph := services.NewSubgraphService(retriever, rewriter, log)

	watcherSettings := settingsService.Watcher()
	if watchDir != "" {
		watcherSettings.Directory = watchDir
	}
	watcher := services.NewWatcherService(
		indexer,
		store.RegistryStore(),
		converter.New(),
		fswatch.NewWatcher(),
		caches,
		clk,
		log,
		watcherSettings,
	)

	sessionDir := ""
	if home, herr := os.UserHomeDir(); herr == nil {
		sessionDir = filepath.Join(home, ".ragengine", "chatpdf")
	}
	cleaner := services.NewCleanupService(store.DocumentStore(), clk, log, settingsService.Cleanup(), sessionDir)

	coord = services.NewCoordinator(
		indexer,
		retriever,
		subgraph,
		watcher,
		cleaner,
		store.DocumentStore(),
		store.RegistryStore(),
		settingsService,
		clk,
		log,
	)
	engine = coord
	router = coord
	documentStore = store.DocumentStore()
	engineClose = func() error {
		err := store.Close()
		log.Sync() //nolint:errcheck // stderr sync failure is harmless
		return err
	}
	return nil
}

// teardownEngine releases what initEngine built.
func teardownEngine(*cobra.Command, []string) error {
	if engineClose == nil {
		return nil
	}
	err := engineClose()
	engineClose = nil
	return err
}

// errEngineNotConfigured guards commands running before initEngine, or
// under test setups that wire no mock.
var errEngineNotConfigured = errors.New("engine not configured")
