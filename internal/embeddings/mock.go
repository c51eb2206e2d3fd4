package embeddings

import (
	"context"
	"hash/fnv"
	"math"
)

// MockDimension is the default vector size for the mock provider.
const MockDimension = 384

// MockProvider produces deterministic embeddings without any external
// service. The same text always yields the same unit vector, so similarity
// search behaves sensibly in tests and local development.
type MockProvider struct {
	dimension int
}

// NewMockProvider creates a mock provider with the given vector size.
func NewMockProvider(dimension int) *MockProvider {
	if dimension <= 0 {
		dimension = MockDimension
	}
	return &MockProvider{dimension: dimension}
}

func (p *MockProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vectors = append(vectors, p.vector(text))
	}
	return vectors, nil
}

func (p *MockProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return p.vector(text), nil
}

func (p *MockProvider) Dimension() int {
	return p.dimension
}

func (p *MockProvider) Close() error {
	return nil
}

// vector derives a unit vector from the text via an FNV-seeded LCG.
func (p *MockProvider) vector(text string) []float32 {
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, p.dimension)
	state := seed
	var norm float64
	for i := range vec {
		state = state*6364136223846793005 + 1442695040888963407
		// Map the top bits to [-1, 1].
		v := float64(int64(state>>11))/float64(1<<52) - 1
		vec[i] = float32(v)
		norm += v * v
	}

	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}
	return vec
}
