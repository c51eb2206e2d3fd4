package embeddings

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider(t *testing.T) {
	t.Parallel()

	t.Run("mock", func(t *testing.T) {
		t.Parallel()

		p, err := NewProvider(Config{Provider: "mock"})
		require.NoError(t, err)
		assert.Equal(t, MockDimension, p.Dimension())
	})

	t.Run("openai requires api key", func(t *testing.T) {
		t.Parallel()

		_, err := NewProvider(Config{Provider: "openai"})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("openai", func(t *testing.T) {
		t.Parallel()

		p, err := NewProvider(Config{Provider: "openai", APIKey: "sk-test", Model: "text-embedding-3-small"})
		require.NoError(t, err)
		assert.Equal(t, 1536, p.Dimension())
	})

	t.Run("unknown provider", func(t *testing.T) {
		t.Parallel()

		_, err := NewProvider(Config{Provider: "cohere"})
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestMockProviderDeterministic(t *testing.T) {
	t.Parallel()

	p := NewMockProvider(64)
	ctx := context.Background()

	a, err := p.EmbedQuery(ctx, "BTC breakout above resistance")
	require.NoError(t, err)
	b, err := p.EmbedQuery(ctx, "BTC breakout above resistance")
	require.NoError(t, err)
	c, err := p.EmbedQuery(ctx, "ETH consolidating near support")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestMockProviderUnitNorm(t *testing.T) {
	t.Parallel()

	p := NewMockProvider(0)
	v, err := p.EmbedQuery(context.Background(), "anything")
	require.NoError(t, err)
	require.Len(t, v, MockDimension)

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
}

func TestMockProviderBatch(t *testing.T) {
	t.Parallel()

	p := NewMockProvider(32)
	vecs, err := p.EmbedDocuments(context.Background(), []string{"a", "b", "a"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, vecs[0], vecs[2])
	assert.NotEqual(t, vecs[0], vecs[1])
}
