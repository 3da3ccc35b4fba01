// Package cmd implements the lexrag command line interface.
package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/phuslu/log"
	"github.com/spf13/cobra"

	"lexrag/config"
	"lexrag/llm/providers"
	"lexrag/llm/vector"
)

var (
	flagKB      string
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "lexrag",
	Short: "Retrieval-augmented legal assistant for Colombian tax law",
	Long: `lexrag ingests tax law documents into a vector knowledge base and
answers legal questions against it, with numbered citations back into
the source documents and a groundedness check on every answer.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log.DefaultLogger = log.Logger{
			Level:  log.InfoLevel,
			Writer: &log.ConsoleWriter{ColorOutput: true},
		}
		if flagVerbose {
			log.DefaultLogger.Level = log.DebugLevel
		}
	},
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagKB, "kb", "", "knowledge base namespace (default from LEXRAG_NAMESPACE)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
}

// loadConfig reads the environment configuration, applies flag
// overrides and validates the result.
func loadConfig() (config.Config, error) {
	cfg := config.FromEnv()
	if flagKB != "" {
		cfg.Namespace = flagKB
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// openStore opens the configured vector store backend.
func openStore(ctx context.Context, cfg config.Config) (vector.Store, error) {
	storeCfg := vector.StoreConfig{
		Dim:       cfg.EmbeddingDim,
		IndexName: cfg.IndexName,
		MaxTopK:   config.MaxTopK,
	}

	switch cfg.StoreBackend {
	case config.StoreRedis:
		db, _ := strconv.Atoi(os.Getenv("REDIS_DB"))
		return vector.NewRedisStore(ctx, vector.RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       db,
		}, storeCfg)
	default:
		return vector.NewSQLiteStore(cfg.DataDir, storeCfg)
	}
}

// newEmbeddingService builds the embedding service from the provider
// configuration.
func newEmbeddingService(ctx context.Context, cfg config.Config) (*vector.EmbeddingService, error) {
	embedder, err := providers.CreateEmbeddingModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating embedding model: %w", err)
	}

	modelID := os.Getenv("EMBEDDING_MODEL")
	if modelID == "" {
		modelID = "text-embedding-3-large"
	}

	return vector.NewEmbeddingService(embedder, modelID, cfg.EmbeddingDim,
		vector.WithMaxBatch(cfg.BatchSize),
		vector.WithMaxAttempts(cfg.EmbedRetries),
	), nil
}
