// Package providers constructs the chat and embedding model
// capabilities from configuration. Both are plain eino interfaces, so
// the rest of the system never sees a concrete provider type.
package providers

import (
	"context"
	"fmt"
	"os"

	openaiEmbed "github.com/cloudwego/eino-ext/components/embedding/openai"
	geminiModel "github.com/cloudwego/eino-ext/components/model/gemini"
	openaiModel "github.com/cloudwego/eino-ext/components/model/openai"
	einoEmbedding "github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"

	"lexrag/config"
)

// ChatModelConfig defines the configuration for creating a chat model.
type ChatModelConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// NewChatModel creates an OpenAI-compatible chat model from specific
// configuration.
func NewChatModel(ctx context.Context, cfg *ChatModelConfig) (model.ToolCallingChatModel, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required in config")
	}

	modelName := cfg.Model
	if modelName == "" {
		modelName = "gpt-4o-mini"
	}

	return openaiModel.NewChatModel(ctx, &openaiModel.ChatModelConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   modelName,
	})
}

// NewGeminiModel creates a Google Gemini chat model.
func NewGeminiModel(ctx context.Context, apiKey, modelName string) (model.ToolCallingChatModel, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable is required when using the gemini provider")
	}
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return geminiModel.NewChatModel(ctx, &geminiModel.Config{
		Client: client,
		Model:  modelName,
	})
}

// CreateChatModel builds the chat model selected by cfg.Provider.
// Credentials come from the environment:
//   - openai: OPENAI_API_KEY (optional OPENAI_BASE_URL, OPENAI_MODEL)
//   - gemini: GEMINI_API_KEY (optional GEMINI_MODEL)
func CreateChatModel(ctx context.Context, cfg config.Config) (model.ToolCallingChatModel, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		return NewGeminiModel(ctx, os.Getenv("GEMINI_API_KEY"), os.Getenv("GEMINI_MODEL"))
	case config.ProviderOpenAI:
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable is required")
		}
		return NewChatModel(ctx, &ChatModelConfig{
			APIKey:  apiKey,
			BaseURL: os.Getenv("OPENAI_BASE_URL"),
			Model:   os.Getenv("OPENAI_MODEL"),
		})
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

// EmbeddingConfig defines the configuration for creating an embedding
// model.
type EmbeddingConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// NewEmbeddingModel creates an OpenAI-compatible embedding model from
// specific configuration.
func NewEmbeddingModel(ctx context.Context, cfg *EmbeddingConfig) (einoEmbedding.Embedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required in config")
	}

	modelName := cfg.Model
	if modelName == "" {
		modelName = "text-embedding-3-large"
	}

	return openaiEmbed.NewEmbedder(ctx, &openaiEmbed.EmbeddingConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   modelName,
	})
}

// CreateEmbeddingModel builds the embedding model from environment
// credentials. Both providers use the OpenAI-compatible embedding
// endpoint; EMBEDDING_MODEL overrides the default model.
func CreateEmbeddingModel(ctx context.Context) (einoEmbedding.Embedder, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if key := os.Getenv("EMBEDDING_API_KEY"); key != "" {
		apiKey = key
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY or EMBEDDING_API_KEY environment variable is required")
	}

	return NewEmbeddingModel(ctx, &EmbeddingConfig{
		APIKey:  apiKey,
		BaseURL: os.Getenv("EMBEDDING_BASE_URL"),
		Model:   os.Getenv("EMBEDDING_MODEL"),
	})
}
