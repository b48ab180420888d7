package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/opencanvas/ragengine/internal/adapters/driven/config/file"
	"github.com/opencanvas/ragengine/internal/core/services"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage engine configuration",
	Long: `View and edit the configuration file.

Keys use dot notation, for example rag.k_lex or watcher.directory.
Values given to set are stored as bool, int, or float when they parse
as one, and as strings otherwise.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Print one raw configuration value",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigGet,
}

var configSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE:  runConfigSet,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	rootCmd.AddCommand(configCmd)
}

// loadConfigStore opens just the configuration, leaving storage and
// providers untouched. Config commands never need the full engine.
func loadConfigStore() error {
	if configStore != nil {
		return nil
	}
	cfg, err := file.NewConfigStore(cfgPath)
	if err != nil {
		return err
	}
	configStore = cfg
	settingsService = services.NewSettingsService(cfg)
	return nil
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	if err := loadConfigStore(); err != nil {
		return err
	}
	if settingsService == nil {
		return errors.New("settings not configured")
	}

	retrieval := settingsService.Retrieval()
	provider := settingsService.Provider()
	watcher := settingsService.Watcher()
	cleanup := settingsService.Cleanup()

	cmd.Printf("Config file: %s\n\n", configStore.Path())

	cmd.Println("[Retrieval]")
	cmd.Printf("  Enabled:             %t\n", retrieval.Enabled)
	cmd.Printf("  Preferred scope:     %s\n", retrieval.PreferredScope)
	if retrieval.WorkspaceID != "" {
		cmd.Printf("  Workspace:           %s\n", retrieval.WorkspaceID)
	}
	cmd.Printf("  Chunk size/overlap:  %d/%d chars\n", retrieval.ChunkSizeChars, retrieval.ChunkOverlapChars)
	cmd.Printf("  Candidates (lex/vec): %d/%d, fused cap %d\n", retrieval.KLex, retrieval.KVec, retrieval.MaxCandidates)
	cmd.Printf("  Context budget:      %d chunks, %d chars\n", retrieval.MaxContextChunks, retrieval.MaxContextChars)
	cmd.Printf("  Query rewrite:       %t\n", retrieval.EnableQueryRewrite)
	cmd.Printf("  LLM rerank:          %t\n", retrieval.EnableLLMRerank)
	cmd.Println()

	cmd.Println("[Provider]")
	if provider.APIKey != "" {
		cmd.Printf("  API key:             %s\n", maskAPIKey(provider.APIKey))
	} else {
		cmd.Printf("  API key:             (not set)\n")
	}
	cmd.Printf("  Embedding model:     %s\n", provider.EmbeddingModel)
	if provider.ChatModel != "" {
		cmd.Printf("  Chat model:          %s\n", provider.ChatModel)
	} else {
		cmd.Printf("  Chat model:          (not set)\n")
	}
	embeddingStatus := "configured"
	if !provider.HasEmbedding() {
		embeddingStatus = "not configured; retrieval is lexical-only"
	}
	cmd.Printf("  Embeddings:          %s\n", embeddingStatus)
	cmd.Println()

	cmd.Println("[Watcher]")
	if watcher.Directory != "" {
		cmd.Printf("  Directory:           %s\n", watcher.Directory)
	} else {
		cmd.Printf("  Directory:           (not set)\n")
	}
	cmd.Printf("  Queue capacity:      %d\n", watcher.QueueCapacity)
	cmd.Printf("  Debounce:            %s\n", watcher.Debounce)
	cmd.Println()

	cmd.Println("[Cleanup]")
	cmd.Printf("  Retention:           %d days\n", cleanup.RetentionDays)
	cmd.Printf("  Sweep interval:      %d hours\n", cleanup.IntervalHours)

	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	if err := loadConfigStore(); err != nil {
		return err
	}

	value, ok := configStore.Get(args[0])
	if !ok {
		return fmt.Errorf("key %q is not set", args[0])
	}
	cmd.Printf("%v\n", value)
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	if err := loadConfigStore(); err != nil {
		return err
	}

	key, raw := args[0], args[1]
	if err := configStore.Set(key, parseConfigValue(raw)); err != nil {
		return fmt.Errorf("setting %s: %w", key, err)
	}
	cmd.Printf("Set %s\n", key)
	return nil
}

// parseConfigValue types the raw string: numbers and bools become their
// native type so the TOML file stays typed, everything else is a string.
// Integers are tried before bools so "1" stays a number.
func parseConfigValue(raw string) any {
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	return raw
}

func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
