package embeddings

import (
	"context"
	"fmt"

	chromem "github.com/philippgille/chromem-go"
)

// openAIProvider embeds text through the OpenAI embeddings API.
type openAIProvider struct {
	embed     chromem.EmbeddingFunc
	dimension int
}

func newOpenAIProvider(cfg Config) (*openAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: api key is required for openai provider", ErrInvalidConfig)
	}

	model := chromem.EmbeddingModelOpenAI(cfg.Model)
	if cfg.Model == "" {
		model = chromem.EmbeddingModelOpenAI3Small
	}

	dim := cfg.Dimension
	if dim == 0 {
		dim = modelDimension(string(model))
	}

	return &openAIProvider{
		embed:     chromem.NewEmbeddingFuncOpenAI(cfg.APIKey, model),
		dimension: dim,
	}, nil
}

func (p *openAIProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for _, text := range texts {
		v, err := p.embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		vectors = append(vectors, v)
	}
	return vectors, nil
}

func (p *openAIProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	v, err := p.embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return v, nil
}

func (p *openAIProvider) Dimension() int {
	return p.dimension
}

func (p *openAIProvider) Close() error {
	return nil
}

func modelDimension(model string) int {
	switch model {
	case string(chromem.EmbeddingModelOpenAI3Large):
		return 3072
	default:
		return 1536
	}
}
