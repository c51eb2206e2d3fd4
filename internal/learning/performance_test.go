package learning_test

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/signalbank/internal/learning"
	"github.com/fyrsmithlabs/signalbank/internal/memory"
	"github.com/fyrsmithlabs/signalbank/internal/storage"
)

func seedOutcomes(t *testing.T, store *storage.MemStore, outcomes []learning.Outcome) {
	t.Helper()
	ctx := context.Background()
	for i, o := range outcomes {
		if o.ID == "" {
			o.ID = string(rune('a' + i))
		}
		require.NoError(t, store.AppendOutcome(ctx, o))
	}
}

func TestComputeAllHistory(t *testing.T) {
	t.Parallel()

	store := storage.NewMemStore()
	now := time.Now().UTC()

	seedOutcomes(t, store, []learning.Outcome{
		{Result: memory.OutcomeSuccess, ProfitLoss: 120, Timestamp: now.Add(-48 * time.Hour)},
		{Result: memory.OutcomeSuccess, ProfitLoss: 30, Timestamp: now.Add(-2 * time.Hour)},
		{Result: memory.OutcomeFailure, ProfitLoss: -50, Timestamp: now.Add(-time.Hour)},
		{Result: memory.OutcomeUnknown, ProfitLoss: 999, Timestamp: now.Add(-time.Hour)},
	})

	tracker, err := learning.NewTracker(store, nil)
	require.NoError(t, err)

	snap, err := tracker.Compute(context.Background(), learning.GlobalScope(), 0)
	require.NoError(t, err)

	assert.Equal(t, 3, snap.TotalTrades)
	assert.Equal(t, 2, snap.Wins)
	assert.Equal(t, 1, snap.Losses)
	assert.InDelta(t, 2.0/3.0, snap.SuccessRate, 1e-9)
	assert.InDelta(t, 150, snap.GrossProfit, 1e-9)
	assert.InDelta(t, -50, snap.GrossLoss, 1e-9)
	assert.InDelta(t, 100, snap.NetProfit, 1e-9)
	assert.InDelta(t, 3.0, snap.ProfitFactor, 1e-9)
	assert.InDelta(t, 100.0/3.0, snap.AvgProfit, 1e-9)
	assert.Equal(t, learning.TrendFlat, snap.Trend)
}

func TestComputeEmptyHistory(t *testing.T) {
	t.Parallel()

	tracker, err := learning.NewTracker(storage.NewMemStore(), nil)
	require.NoError(t, err)

	snap, err := tracker.Compute(context.Background(), learning.GlobalScope(), 0)
	require.NoError(t, err)

	assert.Zero(t, snap.TotalTrades)
	assert.Zero(t, snap.SuccessRate)
	assert.Zero(t, snap.ProfitFactor)
	assert.Equal(t, learning.TrendFlat, snap.Trend)
}

func TestComputeAllProfitFactorInfinite(t *testing.T) {
	t.Parallel()

	store := storage.NewMemStore()
	now := time.Now().UTC()
	seedOutcomes(t, store, []learning.Outcome{
		{Result: memory.OutcomeSuccess, ProfitLoss: 10, Timestamp: now.Add(-time.Hour)},
		{Result: memory.OutcomeSuccess, ProfitLoss: 20, Timestamp: now.Add(-time.Hour)},
	})

	tracker, err := learning.NewTracker(store, nil)
	require.NoError(t, err)

	snap, err := tracker.Compute(context.Background(), learning.GlobalScope(), 0)
	require.NoError(t, err)
	assert.True(t, math.IsInf(snap.ProfitFactor, 1))
}

func TestComputeScoped(t *testing.T) {
	t.Parallel()

	store := storage.NewMemStore()
	now := time.Now().UTC()
	seedOutcomes(t, store, []learning.Outcome{
		{ActorID: "a1", Subject: "BTC", Result: memory.OutcomeSuccess, ProfitLoss: 10, Timestamp: now.Add(-time.Hour)},
		{ActorID: "a2", Subject: "BTC", Result: memory.OutcomeFailure, ProfitLoss: -10, Timestamp: now.Add(-time.Hour)},
		{ActorID: "a1", Subject: "ETH", Result: memory.OutcomeFailure, ProfitLoss: -5, Timestamp: now.Add(-time.Hour)},
	})

	tracker, err := learning.NewTracker(store, nil)
	require.NoError(t, err)
	ctx := context.Background()

	actor, err := tracker.Compute(ctx, learning.ActorScope("a1"), 0)
	require.NoError(t, err)
	assert.Equal(t, 2, actor.TotalTrades)
	assert.Equal(t, 1, actor.Wins)

	subject, err := tracker.Compute(ctx, learning.SubjectScope("BTC"), 0)
	require.NoError(t, err)
	assert.Equal(t, 2, subject.TotalTrades)
	assert.InDelta(t, 0.5, subject.SuccessRate, 1e-9)
}

func TestComputeWindowedTrend(t *testing.T) {
	t.Parallel()

	window := time.Hour
	now := time.Now().UTC()
	inCurrent := now.Add(-30 * time.Minute)
	inPrevious := now.Add(-90 * time.Minute)

	cases := []struct {
		name     string
		current  []string
		previous []string
		want     string
	}{
		{
			name:     "improving",
			current:  []string{memory.OutcomeSuccess, memory.OutcomeSuccess},
			previous: []string{memory.OutcomeSuccess, memory.OutcomeFailure},
			want:     learning.TrendImproving,
		},
		{
			name:     "declining",
			current:  []string{memory.OutcomeFailure, memory.OutcomeFailure},
			previous: []string{memory.OutcomeSuccess, memory.OutcomeFailure},
			want:     learning.TrendDeclining,
		},
		{
			name:     "flat",
			current:  []string{memory.OutcomeSuccess, memory.OutcomeFailure},
			previous: []string{memory.OutcomeSuccess, memory.OutcomeFailure},
			want:     learning.TrendFlat,
		},
		{
			name:    "no previous data is flat",
			current: []string{memory.OutcomeSuccess},
			want:    learning.TrendFlat,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			store := storage.NewMemStore()
			var outcomes []learning.Outcome
			for _, r := range tc.current {
				outcomes = append(outcomes, learning.Outcome{Result: r, Timestamp: inCurrent})
			}
			for _, r := range tc.previous {
				outcomes = append(outcomes, learning.Outcome{Result: r, Timestamp: inPrevious})
			}
			seedOutcomes(t, store, outcomes)

			tracker, err := learning.NewTracker(store, nil)
			require.NoError(t, err)

			snap, err := tracker.Compute(context.Background(), learning.GlobalScope(), window)
			require.NoError(t, err)
			assert.Equal(t, tc.want, snap.Trend)

			// The windowed snapshot excludes the previous window's outcomes.
			assert.Equal(t, len(tc.current), snap.TotalTrades)
		})
	}
}
