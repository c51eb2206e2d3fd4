package learning_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/signalbank/internal/learning"
	"github.com/fyrsmithlabs/signalbank/internal/memory"
	"github.com/fyrsmithlabs/signalbank/internal/retry"
	"github.com/fyrsmithlabs/signalbank/internal/storage"
)

func testRetryConfig() retry.Config {
	return retry.Config{
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
	}
}

func newProcessor(t *testing.T) (*learning.Processor, *learning.Learner, *storage.MemStore) {
	t.Helper()

	store := storage.NewMemStore()
	semantic, err := memory.NewSemanticStore(store, store, nil)
	require.NoError(t, err)

	learner := learning.NewLearner(learning.LearnerConfig{
		LearningRate:   0.1,
		DiscountFactor: 0.9,
	}, nil)

	proc, err := learning.NewProcessor(semantic, learner, store, store, 100, nil,
		learning.WithRetry(testRetryConfig()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = proc.Close() })
	return proc, learner, store
}

func TestProcessFeedbackUnknownKind(t *testing.T) {
	t.Parallel()
	proc, _, _ := newProcessor(t)

	_, err := proc.ProcessFeedback(context.Background(), learning.FeedbackRecord{
		Kind:  "vibes",
		Value: 1,
	})
	assert.ErrorIs(t, err, learning.ErrInvalidFeedback)
}

func TestProcessFeedbackValueOutOfRange(t *testing.T) {
	t.Parallel()
	proc, _, _ := newProcessor(t)

	_, err := proc.ProcessFeedback(context.Background(), learning.FeedbackRecord{
		Kind:  learning.FeedbackGeneral,
		Value: 2.5,
	})
	assert.ErrorIs(t, err, learning.ErrInvalidFeedback)
}

func TestProcessFeedbackValueText(t *testing.T) {
	t.Parallel()

	cases := []struct {
		text string
		want float64
	}{
		{"positive", 1},
		{"Good", 1},
		{"negative", -1},
		{"DOWN", -1},
		{"neutral", 0},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.text, func(t *testing.T) {
			t.Parallel()
			proc, _, store := newProcessor(t)

			id, err := proc.ProcessFeedback(context.Background(), learning.FeedbackRecord{
				Kind:      learning.FeedbackGeneral,
				ValueText: tc.text,
			})
			require.NoError(t, err)
			assert.NotEmpty(t, id)
			require.NoError(t, proc.Close())

			recs := store.Feedback()
			require.Len(t, recs, 1)
			assert.Equal(t, tc.want, recs[0].Value)
		})
	}
}

func TestProcessFeedbackUnrecognizedText(t *testing.T) {
	t.Parallel()
	proc, _, _ := newProcessor(t)

	_, err := proc.ProcessFeedback(context.Background(), learning.FeedbackRecord{
		Kind:      learning.FeedbackGeneral,
		ValueText: "meh",
	})
	assert.ErrorIs(t, err, learning.ErrInvalidFeedback)
}

func TestProcessFeedbackRoutesToActor(t *testing.T) {
	t.Parallel()
	proc, _, store := newProcessor(t)
	ctx := context.Background()

	_, err := proc.ProcessFeedback(ctx, learning.FeedbackRecord{
		Kind:    learning.FeedbackActorReliability,
		ActorID: "whale-7",
		Value:   1,
	})
	require.NoError(t, err)

	_, err = proc.ProcessFeedback(ctx, learning.FeedbackRecord{
		Kind:    learning.FeedbackActorReliability,
		ActorID: "whale-7",
		Value:   -0.5,
	})
	require.NoError(t, err)

	profile, err := store.GetActor(ctx, "whale-7")
	require.NoError(t, err)
	assert.Equal(t, 1, profile.Successes)
	assert.Equal(t, 1, profile.Failures)
}

func TestProcessFeedbackRoutesToSubject(t *testing.T) {
	t.Parallel()
	proc, _, store := newProcessor(t)
	ctx := context.Background()

	_, err := proc.ProcessFeedback(ctx, learning.FeedbackRecord{
		Kind:    learning.FeedbackTradeSignal,
		Subject: "ETH",
		Value:   0.8,
	})
	require.NoError(t, err)

	know, err := store.GetSubject(ctx, "ETH")
	require.NoError(t, err)
	require.Len(t, know.Signals, 1)
	assert.Equal(t, "feedback", know.Signals[0].Action)
	assert.Equal(t, 0.8, know.Signals[0].Value)
}

func TestProcessFeedbackUpdatesLearner(t *testing.T) {
	t.Parallel()
	proc, learner, _ := newProcessor(t)

	_, err := proc.ProcessFeedback(context.Background(), learning.FeedbackRecord{
		Kind:   learning.FeedbackStrategy,
		Value:  1,
		State:  "s1",
		Action: "buy",
	})
	require.NoError(t, err)

	// alpha=0.1, reward=1, empty next state.
	assert.InDelta(t, 0.1, learner.Value("s1", "buy"), 1e-9)
}

func TestShapeReward(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		result string
		pnl    float64
		want   float64
	}{
		{"scaled win", memory.OutcomeSuccess, 50, 0.5},
		{"scaled loss", memory.OutcomeFailure, -25, -0.25},
		{"clamped win", memory.OutcomeSuccess, 500, 1},
		{"clamped loss", memory.OutcomeFailure, -500, -1},
		{"unknown is neutral", memory.OutcomeUnknown, 500, 0},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, learning.ShapeReward(tc.result, tc.pnl, 100))
		})
	}
}

func TestProcessOutcome(t *testing.T) {
	t.Parallel()
	proc, learner, store := newProcessor(t)
	ctx := context.Background()

	reward, err := proc.ProcessOutcome(ctx, learning.Outcome{
		ActorID:    "whale-7",
		Subject:    "BTC",
		Action:     "buy",
		Result:     memory.OutcomeSuccess,
		ProfitLoss: 80,
		State:      "s1",
		NextState:  "s2",
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.8, reward, 1e-9)
	require.NoError(t, proc.Close())

	profile, err := store.GetActor(ctx, "whale-7")
	require.NoError(t, err)
	assert.Equal(t, 1, profile.Successes)

	know, err := store.GetSubject(ctx, "BTC")
	require.NoError(t, err)
	require.Len(t, know.Signals, 1)
	assert.InDelta(t, 0.8, know.Signals[0].Value, 1e-9)

	assert.InDelta(t, 0.08, learner.Value("s1", "buy"), 1e-9)

	stored, err := store.OutcomesInRange(ctx, learning.GlobalScope(), time.Time{}, time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.InDelta(t, 0.8, stored[0].Reward, 1e-9)
	assert.NotEmpty(t, stored[0].ID)
}

// flakyOutcomes fails the first n appends, then delegates to the MemStore.
type flakyOutcomes struct {
	*storage.MemStore

	mu       sync.Mutex
	failures int
	calls    int
}

func (f *flakyOutcomes) AppendOutcome(ctx context.Context, o learning.Outcome) error {
	f.mu.Lock()
	f.calls++
	fail := f.calls <= f.failures
	f.mu.Unlock()
	if fail {
		return errors.New("outcome store unavailable")
	}
	return f.MemStore.AppendOutcome(ctx, o)
}

func (f *flakyOutcomes) attempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type flakyFeedback struct {
	*storage.MemStore

	mu       sync.Mutex
	failures int
	calls    int
}

func (f *flakyFeedback) AppendFeedback(ctx context.Context, rec learning.FeedbackRecord) error {
	f.mu.Lock()
	f.calls++
	fail := f.calls <= f.failures
	f.mu.Unlock()
	if fail {
		return errors.New("feedback store unavailable")
	}
	return f.MemStore.AppendFeedback(ctx, rec)
}

func newFlakyProcessor(t *testing.T, outcomeFailures, feedbackFailures int) (*learning.Processor, *learning.Learner, *flakyOutcomes, *flakyFeedback) {
	t.Helper()

	store := storage.NewMemStore()
	outcomes := &flakyOutcomes{MemStore: store, failures: outcomeFailures}
	feedback := &flakyFeedback{MemStore: store, failures: feedbackFailures}

	semantic, err := memory.NewSemanticStore(store, store, nil)
	require.NoError(t, err)
	learner := learning.NewLearner(learning.LearnerConfig{
		LearningRate:   0.1,
		DiscountFactor: 0.9,
	}, nil)

	proc, err := learning.NewProcessor(semantic, learner, outcomes, feedback, 100, nil,
		learning.WithRetry(testRetryConfig()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = proc.Close() })
	return proc, learner, outcomes, feedback
}

func TestProcessOutcomeRetriesTransientWriteFailure(t *testing.T) {
	t.Parallel()
	proc, _, outcomes, _ := newFlakyProcessor(t, 1, 0)
	ctx := context.Background()

	reward, err := proc.ProcessOutcome(ctx, learning.Outcome{
		ActorID:    "whale-7",
		Result:     memory.OutcomeSuccess,
		ProfitLoss: 80,
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.8, reward, 1e-9)
	require.NoError(t, proc.Close())

	assert.Equal(t, 2, outcomes.attempts())

	stored, err := outcomes.OutcomesInRange(ctx, learning.GlobalScope(), time.Time{}, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestProcessOutcomeDropsWriteAfterRetries(t *testing.T) {
	t.Parallel()
	proc, learner, outcomes, _ := newFlakyProcessor(t, 100, 0)
	ctx := context.Background()

	_, err := proc.ProcessOutcome(ctx, learning.Outcome{
		ActorID:    "whale-7",
		Result:     memory.OutcomeSuccess,
		ProfitLoss: 80,
		State:      "s1",
		Action:     "buy",
	})
	require.NoError(t, err)
	require.NoError(t, proc.Close())

	// Initial attempt plus MaxRetries, then the write is dropped.
	assert.Equal(t, 3, outcomes.attempts())

	stored, err := outcomes.OutcomesInRange(ctx, learning.GlobalScope(), time.Time{}, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Empty(t, stored)

	// The actor and learner updates land even though the log write dropped.
	profile, err := outcomes.GetActor(ctx, "whale-7")
	require.NoError(t, err)
	assert.Equal(t, 1, profile.Successes)
	assert.InDelta(t, 0.08, learner.Value("s1", "buy"), 1e-9)
}

func TestProcessFeedbackRetriesRecordWrite(t *testing.T) {
	t.Parallel()
	proc, _, _, feedback := newFlakyProcessor(t, 0, 1)

	_, err := proc.ProcessFeedback(context.Background(), learning.FeedbackRecord{
		Kind:  learning.FeedbackGeneral,
		Value: 1,
	})
	require.NoError(t, err)
	require.NoError(t, proc.Close())

	recs := feedback.Feedback()
	require.Len(t, recs, 1)
}
