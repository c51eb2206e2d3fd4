package learning

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateValueFromZero(t *testing.T) {
	t.Parallel()

	l := NewLearner(LearnerConfig{
		LearningRate:   0.1,
		DiscountFactor: 0.9,
	}, nil)

	// Q(s,a) = 0 + 0.1 * (1 + 0.9*0 - 0) = 0.1
	v := l.UpdateValue("s1", "buy", 1.0, "s2")
	assert.InDelta(t, 0.1, v, 1e-9)
	assert.InDelta(t, 0.1, l.Value("s1", "buy"), 1e-9)
}

func TestUpdateValueUsesNextStateMax(t *testing.T) {
	t.Parallel()

	l := NewLearner(LearnerConfig{LearningRate: 0.5, DiscountFactor: 0.9}, nil)

	l.UpdateValue("s2", "hold", 1.0, "")
	require.InDelta(t, 0.5, l.Value("s2", "hold"), 1e-9)

	// Q(s1,buy) = 0 + 0.5 * (0 + 0.9*0.5 - 0) = 0.225
	v := l.UpdateValue("s1", "buy", 0, "s2")
	assert.InDelta(t, 0.225, v, 1e-9)
}

func TestUpdateValueNegativeNextMax(t *testing.T) {
	t.Parallel()

	l := NewLearner(LearnerConfig{LearningRate: 1, DiscountFactor: 1}, nil)

	l.UpdateValue("s2", "only", -0.4, "")
	require.InDelta(t, -0.4, l.Value("s2", "only"), 1e-9)

	// The only known next-state value is negative, so it propagates.
	v := l.UpdateValue("s1", "buy", 0, "s2")
	assert.InDelta(t, -0.4, v, 1e-9)
}

func TestValueConvergesWithoutOvershoot(t *testing.T) {
	t.Parallel()

	l := NewLearner(LearnerConfig{LearningRate: 0.1, DiscountFactor: 0.9}, nil)

	prev := 0.0
	for i := 0; i < 200; i++ {
		v := l.UpdateValue("s", "a", 1.0, "")
		assert.LessOrEqual(t, v, 1.0)
		assert.Greater(t, v, prev)
		prev = v
	}
	// With terminal next state the fixed point is the reward itself.
	assert.InDelta(t, 1.0, prev, 1e-3)
}

func TestExplorationDecay(t *testing.T) {
	t.Parallel()

	l := NewLearner(LearnerConfig{
		ExplorationRate:    0.2,
		MinExplorationRate: 0.15,
		ExplorationDecay:   0.9,
	}, nil)

	prev := l.ExplorationRate()
	assert.InDelta(t, 0.2, prev, 1e-9)

	for i := 0; i < 10; i++ {
		l.UpdateValue("s", "a", 0.5, "")
		cur := l.ExplorationRate()
		assert.LessOrEqual(t, cur, prev)
		assert.GreaterOrEqual(t, cur, 0.15)
		prev = cur
	}
	// Decay from 0.2 by 0.9 per update hits the floor within 10 updates.
	assert.InDelta(t, 0.15, prev, 1e-9)
}

func TestSelectActionEmptyCandidates(t *testing.T) {
	t.Parallel()

	l := NewLearner(LearnerConfig{}, nil)
	_, err := l.SelectAction("s", nil)
	assert.ErrorIs(t, err, ErrNoCandidates)
}

func TestSelectActionGreedy(t *testing.T) {
	t.Parallel()

	// Seed 1 makes the first Float64 draw exceed the 0.2 exploration rate,
	// so selection is greedy.
	l := NewLearner(LearnerConfig{LearningRate: 0.5, DiscountFactor: 0.9}, nil,
		WithRand(rand.New(rand.NewSource(1))))

	l.UpdateValue("s", "sell", 1.0, "")
	l.UpdateValue("s", "buy", 0.2, "")

	action, err := l.SelectAction("s", []string{"buy", "sell", "hold"})
	require.NoError(t, err)
	assert.Equal(t, "sell", action)
}

func TestSelectActionTieBreaksToFirstListed(t *testing.T) {
	t.Parallel()

	l := NewLearner(LearnerConfig{}, nil, WithRand(rand.New(rand.NewSource(1))))

	// All candidates unseen: equal values, the first listed wins.
	action, err := l.SelectAction("s", []string{"hold", "buy", "sell"})
	require.NoError(t, err)
	assert.Equal(t, "hold", action)
}

func TestSelectActionExplores(t *testing.T) {
	t.Parallel()

	l := NewLearner(LearnerConfig{
		ExplorationRate:    1.0,
		MinExplorationRate: 1.0,
	}, nil, WithRand(rand.New(rand.NewSource(42))))

	candidates := []string{"buy", "sell", "hold"}
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		action, err := l.SelectAction("s", candidates)
		require.NoError(t, err)
		assert.Contains(t, candidates, action)
		seen[action] = true
	}
	// Uniform exploration over 100 draws reaches every candidate.
	assert.Len(t, seen, 3)
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	t.Parallel()

	l := NewLearner(LearnerConfig{LearningRate: 0.1, DiscountFactor: 0.9}, nil)
	l.UpdateValue("s1", "buy", 1.0, "")
	l.UpdateValue("s1", "sell", -1.0, "")
	l.UpdateValue("s2", "hold", 0.5, "")

	entries, rate := l.Snapshot()
	require.Len(t, entries, 3)

	restored := NewLearner(LearnerConfig{}, nil)
	restored.Restore(entries, rate)

	assert.InDelta(t, l.Value("s1", "buy"), restored.Value("s1", "buy"), 1e-9)
	assert.InDelta(t, l.Value("s1", "sell"), restored.Value("s1", "sell"), 1e-9)
	assert.InDelta(t, l.Value("s2", "hold"), restored.Value("s2", "hold"), 1e-9)
	assert.InDelta(t, rate, restored.ExplorationRate(), 1e-9)
}

func TestRestoreNegativeRateKeepsConfigured(t *testing.T) {
	t.Parallel()

	l := NewLearner(LearnerConfig{ExplorationRate: 0.3}, nil)
	l.Restore(nil, -1)
	assert.InDelta(t, 0.3, l.ExplorationRate(), 1e-9)
}

func TestStateKey(t *testing.T) {
	t.Parallel()

	a := StateKey(map[string]string{"subject": "BTC", "action": "buy"})
	b := StateKey(map[string]string{"action": "buy", "subject": "BTC"})
	c := StateKey(map[string]string{"action": "sell", "subject": "BTC"})

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, "empty", StateKey(nil))
}
