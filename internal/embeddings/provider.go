// Package embeddings provides text embedding providers for episodic memory.
package embeddings

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrUnavailable indicates the embedding backend could not produce a vector.
	ErrUnavailable = errors.New("embedding provider unavailable")
	// ErrInvalidConfig indicates invalid provider configuration.
	ErrInvalidConfig = errors.New("invalid embedding configuration")
)

// Provider generates embeddings for text.
type Provider interface {
	// EmbedDocuments generates embeddings for a batch of texts.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query text.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the embedding vector size.
	Dimension() int

	// Close releases provider resources.
	Close() error
}

// Config holds embedding provider settings.
type Config struct {
	Provider  string
	Model     string
	APIKey    string
	Dimension int
}

// NewProvider creates an embedding provider from config.
func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "openai":
		return newOpenAIProvider(cfg)
	case "mock":
		dim := cfg.Dimension
		if dim == 0 {
			dim = MockDimension
		}
		return NewMockProvider(dim), nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}
