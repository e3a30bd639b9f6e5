package ai

import (
	"context"
)

const (
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
)

// Generator produces free text for a prompt.
type Generator interface {
	GenerateContent(ctx context.Context, prompt string, opts ...Option) (string, error)
	Model() string
}

// Embedder turns texts into vectors for semantic search.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Model() string
}

// Options carries per-call generation settings.
type Options struct {
	Temperature *float32
}

type Option func(*Options)

// WithTemperature sets the sampling temperature. Negative values keep the
// provider default.
func WithTemperature(t float32) Option {
	return func(o *Options) {
		if t < 0 {
			return
		}
		o.Temperature = &t
	}
}

// Apply resolves the provided options.
func Apply(opts ...Option) Options {
	var o Options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}
