package cmd

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/crs-roadmap/internal/ai"
	"github.com/spigell/crs-roadmap/internal/ai/anthropic"
	"github.com/spigell/crs-roadmap/internal/ai/gemini"
	"github.com/spigell/crs-roadmap/internal/retrieval"
	"github.com/spigell/crs-roadmap/internal/secrets"
)

func newGeminiClient(ctx context.Context, cfg *AIConfig) (*genai.Client, error) {
	apiKey, err := secrets.Load(secrets.Source{
		Name:  "gemini api key",
		Value: cfg.Gemini.APIKey,
		File:  cfg.Gemini.APIKeyFile,
		Env:   "GEMINI_API_KEY",
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set ai.gemini.api-key-file or GEMINI_API_KEY)", err)
	}

	return gemini.NewClient(ctx, apiKey)
}

// newGenerator builds the text generator of the configured provider. The
// gemini client is reused when the provider is gemini.
func newGenerator(client *genai.Client, cfg *AIConfig, logger *zap.Logger) (ai.Generator, error) {
	switch provider := strings.TrimSpace(strings.ToLower(cfg.Provider)); provider {
	case "", ai.ProviderGemini:
		return gemini.NewGenerator(client, gemini.Config{
			Model:        cfg.Gemini.Model,
			MaxRetries:   cfg.Gemini.MaxRetries,
			MaxLogLength: cfg.MaxLogLength,
		}, logger)
	case ai.ProviderAnthropic:
		apiKey, err := secrets.Load(secrets.Source{
			Name:  "anthropic api key",
			Value: cfg.Anthropic.APIKey,
			File:  cfg.Anthropic.APIKeyFile,
			Env:   "ANTHROPIC_API_KEY",
		})
		if err != nil {
			return nil, fmt.Errorf("%w (set ai.anthropic.api-key-file or ANTHROPIC_API_KEY)", err)
		}
		return anthropic.NewGenerator(anthropic.Config{
			APIKey:       apiKey,
			Model:        cfg.Anthropic.Model,
			MaxTokens:    cfg.Anthropic.MaxTokens,
			MaxRetries:   cfg.Anthropic.MaxRetries,
			MaxLogLength: cfg.MaxLogLength,
		}, logger)
	default:
		return nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}
}

// buildIndex embeds the reference document. Embeddings always come from
// gemini, whichever provider generates text.
func buildIndex(ctx context.Context, client *genai.Client, config *Config, logger *zap.Logger) (*retrieval.Index, error) {
	embedder, err := gemini.NewEmbedder(client, config.AI.Gemini.EmbeddingModel, logger)
	if err != nil {
		return nil, err
	}

	rc := config.Retrieval
	return retrieval.BuildFromDocument(ctx, retrieval.Options{
		Document:  rc.Document,
		ChunkSize: rc.ChunkSize,
		CacheDB:   rc.CacheDB,
		Build: retrieval.BuildConfig{
			BatchSize:         rc.EmbedBatchSize,
			Workers:           rc.EmbedWorkers,
			RequestsPerSecond: rc.EmbedRPS,
		},
	}, embedder, logger)
}
