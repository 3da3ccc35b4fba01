// Package config loads and validates the runtime configuration from
// the environment. The core packages consume a Config value; they
// never read the environment themselves.
package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"

	"lexrag/llm"
)

// Provider and store backend identifiers selected by configuration at
// startup.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"

	StoreLocal = "local"
	StoreRedis = "redis"
)

// MaxTopK is the provider-side ceiling for a single similarity query.
const MaxTopK = 100

// Config carries every tunable the ingestion and query pipelines need.
type Config struct {
	// Provider selects the chat/embedding model family.
	Provider string `validate:"oneof=openai gemini"`

	// StoreBackend selects the vector store implementation.
	StoreBackend string `validate:"oneof=local redis"`

	// IndexName is the base name of the vector index. Namespaces are
	// layered on top of it, one per knowledge base.
	IndexName string `validate:"required"`

	// Namespace is the knowledge base partition queries and ingestion
	// operate on (e.g. "renta", "dian-varios").
	Namespace string `validate:"required"`

	// EmbeddingDim is the embedding dimension. Must match the model
	// and the store index (3072 for text-embedding-3-large).
	EmbeddingDim int `validate:"gt=0"`

	// ChunkSize and ChunkOverlap control the chunker, in runes.
	ChunkSize    int `validate:"gt=0"`
	ChunkOverlap int `validate:"gte=0"`

	// BatchSize is the number of chunks embedded and upserted per
	// batch during ingestion.
	BatchSize int `validate:"gt=0"`

	// IngestWorkers bounds the number of concurrent embedding batches.
	IngestWorkers int `validate:"gt=0"`

	// EmbedRetries bounds the backoff retries on a rate-limited
	// embedding call before the batch fails.
	EmbedRetries int `validate:"gte=1"`

	// TopK is the number of passages retrieved per query.
	TopK int `validate:"gte=1,lte=100"`

	// MaxRetrievalRetries bounds the rewrite-and-retrieve loop.
	MaxRetrievalRetries int `validate:"gte=0"`

	// MaxGenerationRetries bounds regeneration after a hallucinated
	// verdict.
	MaxGenerationRetries int `validate:"gte=0"`

	// DataDir is where the local store keeps its database file.
	DataDir string `validate:"required"`
}

// FromEnv builds a Config from environment variables, falling back to
// the defaults the original corpus was ingested with.
func FromEnv() Config {
	return Config{
		Provider:             getEnvString("LEXRAG_PROVIDER", ProviderOpenAI),
		StoreBackend:         getEnvString("LEXRAG_STORE", StoreLocal),
		IndexName:            getEnvString("LEXRAG_INDEX_NAME", "lexrag"),
		Namespace:            getEnvString("LEXRAG_NAMESPACE", "renta"),
		EmbeddingDim:         getEnvInt("LEXRAG_EMBEDDING_DIM", 3072),
		ChunkSize:            getEnvInt("CHUNK_SIZE", 1000),
		ChunkOverlap:         getEnvInt("CHUNK_OVERLAP", 200),
		BatchSize:            getEnvInt("LEXRAG_BATCH_SIZE", 100),
		IngestWorkers:        getEnvInt("LEXRAG_INGEST_WORKERS", 4),
		EmbedRetries:         getEnvInt("LEXRAG_EMBED_RETRIES", 5),
		TopK:                 getEnvInt("LEXRAG_TOP_K", 5),
		MaxRetrievalRetries:  getEnvInt("LEXRAG_MAX_RETRIEVAL_RETRIES", 3),
		MaxGenerationRetries: getEnvInt("LEXRAG_MAX_GENERATION_RETRIES", 1),
		DataDir:              getEnvString("LEXRAG_DATA_DIR", defaultDataDir()),
	}
}

// Validate checks field constraints plus the cross-field invariants
// that the struct tags cannot express. It returns *llm.ConfigError so
// callers can surface a precise message before any run starts.
func (c Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			return &llm.ConfigError{
				Field:  errs[0].Field(),
				Reason: fmt.Sprintf("failed %q constraint", errs[0].Tag()),
			}
		}
		return &llm.ConfigError{Field: "config", Reason: err.Error()}
	}

	if c.ChunkOverlap >= c.ChunkSize {
		return &llm.ConfigError{
			Field:  "ChunkOverlap",
			Reason: fmt.Sprintf("overlap %d must be smaller than chunk size %d", c.ChunkOverlap, c.ChunkSize),
		}
	}
	if c.TopK > MaxTopK {
		return &llm.ConfigError{
			Field:  "TopK",
			Reason: fmt.Sprintf("top-k %d exceeds provider maximum %d", c.TopK, MaxTopK),
		}
	}
	return nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".lexrag"
	}
	return home + "/.lexrag"
}

// getEnvString reads a string from an environment variable.
func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getEnvInt reads an integer from an environment variable.
func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		var result int
		if _, err := fmt.Sscanf(val, "%d", &result); err == nil {
			return result
		}
	}
	return defaultVal
}
