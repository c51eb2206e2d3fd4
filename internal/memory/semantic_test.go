package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/signalbank/internal/memory"
	"github.com/fyrsmithlabs/signalbank/internal/storage"
)

func newSemanticStore(t *testing.T) *memory.SemanticStore {
	t.Helper()

	store := storage.NewMemStore()
	s, err := memory.NewSemanticStore(store, store, nil)
	require.NoError(t, err)
	return s
}

func TestSemanticActorReliability(t *testing.T) {
	t.Parallel()

	s := newSemanticStore(t)
	ctx := context.Background()

	// Unknown actor defaults to 0.5.
	p, err := s.ActorProfile(ctx, "trader-1")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, p.Reliability(), 1e-9)

	for i := 0; i < 7; i++ {
		_, err := s.RecordActorOutcome(ctx, "trader-1", memory.OutcomeSuccess)
		require.NoError(t, err)
	}
	for i := 0; i < 3; i++ {
		_, err := s.RecordActorOutcome(ctx, "trader-1", memory.OutcomeFailure)
		require.NoError(t, err)
	}

	p, err = s.ActorProfile(ctx, "trader-1")
	require.NoError(t, err)
	assert.Equal(t, 7, p.Successes)
	assert.Equal(t, 3, p.Failures)
	assert.InDelta(t, 0.7, p.Reliability(), 1e-9)
}

func TestSemanticUnknownOutcomeIsNoOp(t *testing.T) {
	t.Parallel()

	s := newSemanticStore(t)
	ctx := context.Background()

	p, err := s.RecordActorOutcome(ctx, "trader-1", "pending")
	require.NoError(t, err)
	assert.Zero(t, p.Successes)
	assert.Zero(t, p.Failures)
}

func TestSemanticApplyFeedback(t *testing.T) {
	t.Parallel()

	s := newSemanticStore(t)
	ctx := context.Background()

	require.NoError(t, s.ApplyFeedback(ctx, "trader-1", 1))
	require.NoError(t, s.ApplyFeedback(ctx, "trader-1", -0.5))
	require.NoError(t, s.ApplyFeedback(ctx, "trader-1", 0))

	p, err := s.ActorProfile(ctx, "trader-1")
	require.NoError(t, err)
	assert.Equal(t, 1, p.Successes)
	assert.Equal(t, 1, p.Failures)
}

func TestSemanticSubjectKnowledge(t *testing.T) {
	t.Parallel()

	s := newSemanticStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendNote(ctx, "BTC", "halving year"))
	require.NoError(t, s.AppendSignal(ctx, "BTC", memory.SignalRecord{ActorID: "trader-1", Action: "buy", Value: 1}))

	k, err := s.SubjectKnowledge(ctx, "BTC")
	require.NoError(t, err)
	assert.Equal(t, []string{"halving year"}, k.Notes)
	require.Len(t, k.Signals, 1)
	assert.False(t, k.Signals[0].Timestamp.IsZero())
}

func TestSemanticEmptyIDs(t *testing.T) {
	t.Parallel()

	s := newSemanticStore(t)
	ctx := context.Background()

	_, err := s.ActorProfile(ctx, "")
	assert.Error(t, err)
	_, err = s.SubjectKnowledge(ctx, "")
	assert.Error(t, err)
	assert.Error(t, s.ApplyFeedback(ctx, "", 1))
}
