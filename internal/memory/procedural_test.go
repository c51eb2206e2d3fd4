package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/signalbank/internal/memory"
	"github.com/fyrsmithlabs/signalbank/internal/storage"
)

func newProceduralStore(t *testing.T) *memory.ProceduralStore {
	t.Helper()

	s, err := memory.NewProceduralStore(storage.NewMemStore(), nil)
	require.NoError(t, err)
	return s
}

func TestProceduralStoreAndMatch(t *testing.T) {
	t.Parallel()

	s := newProceduralStore(t)
	ctx := context.Background()

	applied, err := s.StorePattern(ctx, memory.ActionPattern{
		Kind:          memory.PatternReliableActor,
		Key:           "trader-1",
		Effectiveness: 0.7,
		SampleCount:   10,
		SuccessRate:   0.7,
	})
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = s.StorePattern(ctx, memory.ActionPattern{
		Kind:          memory.PatternHighSuccessSubject,
		Key:           "BTC",
		Effectiveness: 0.9,
		SampleCount:   9,
		SuccessRate:   0.9,
	})
	require.NoError(t, err)
	assert.True(t, applied)

	patterns, err := s.RelevantPatterns(ctx, memory.Event{ActorID: "trader-1", Subject: "BTC", Action: "buy"}, 5)
	require.NoError(t, err)
	require.Len(t, patterns, 2)
	// Ordered by effectiveness descending.
	assert.Equal(t, memory.PatternHighSuccessSubject, patterns[0].Kind)
	assert.Equal(t, memory.PatternReliableActor, patterns[1].Kind)
}

func TestProceduralNoMatchingFeatures(t *testing.T) {
	t.Parallel()

	s := newProceduralStore(t)

	patterns, err := s.RelevantPatterns(context.Background(), memory.Event{}, 5)
	require.NoError(t, err)
	assert.Empty(t, patterns)
}

func TestProceduralIdempotentReplay(t *testing.T) {
	t.Parallel()

	s := newProceduralStore(t)
	ctx := context.Background()

	p := memory.ActionPattern{
		Kind:          memory.PatternActionSubject,
		Key:           "buy:BTC",
		Effectiveness: 0.7,
		SampleCount:   10,
		SuccessRate:   0.7,
	}

	applied, err := s.StorePattern(ctx, p)
	require.NoError(t, err)
	assert.True(t, applied)

	// Same detection replayed converges on the same row.
	applied, err = s.StorePattern(ctx, p)
	require.NoError(t, err)
	assert.True(t, applied)

	patterns, err := s.RelevantPatterns(ctx, memory.Event{Subject: "BTC", Action: "buy"}, 5)
	require.NoError(t, err)
	assert.Len(t, patterns, 1)
}

func TestProceduralPatternsUpdatedSince(t *testing.T) {
	t.Parallel()

	s := newProceduralStore(t)
	ctx := context.Background()

	_, err := s.StorePattern(ctx, memory.ActionPattern{
		Kind: memory.PatternReliableActor, Key: "old",
		Effectiveness: 0.8, SampleCount: 8, SuccessRate: 0.8,
		UpdatedAt: time.Now().Add(-48 * time.Hour),
	})
	require.NoError(t, err)

	_, err = s.StorePattern(ctx, memory.ActionPattern{
		Kind: memory.PatternReliableActor, Key: "new",
		Effectiveness: 0.9, SampleCount: 9, SuccessRate: 0.9,
	})
	require.NoError(t, err)

	recent, err := s.PatternsUpdatedSince(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "new", recent[0].Key)
}
