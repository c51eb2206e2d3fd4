package learning_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/signalbank/internal/learning"
)

func TestSchedulerRequiresManager(t *testing.T) {
	t.Parallel()
	_, err := learning.NewScheduler(nil, nil)
	assert.Error(t, err)
}

func TestSchedulerStartStop(t *testing.T) {
	t.Parallel()

	mgr, _ := newLearningManager(t)
	s, err := learning.NewScheduler(mgr, nil, learning.WithInterval(time.Hour))
	require.NoError(t, err)

	assert.False(t, s.Running())
	require.NoError(t, s.Start())
	assert.True(t, s.Running())

	require.NoError(t, s.Stop())
	assert.False(t, s.Running())
}

func TestSchedulerDoubleStart(t *testing.T) {
	t.Parallel()

	mgr, _ := newLearningManager(t)
	s, err := learning.NewScheduler(mgr, nil)
	require.NoError(t, err)

	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Error(t, s.Start())
}

func TestSchedulerStopIdempotent(t *testing.T) {
	t.Parallel()

	mgr, _ := newLearningManager(t)
	s, err := learning.NewScheduler(mgr, nil)
	require.NoError(t, err)

	assert.NoError(t, s.Stop())

	require.NoError(t, s.Start())
	require.NoError(t, s.Stop())
	assert.NoError(t, s.Stop())
}

func TestSchedulerRestart(t *testing.T) {
	t.Parallel()

	mgr, _ := newLearningManager(t)
	s, err := learning.NewScheduler(mgr, nil, learning.WithInterval(time.Hour))
	require.NoError(t, err)

	require.NoError(t, s.Start())
	require.NoError(t, s.Stop())
	require.NoError(t, s.Start())
	assert.True(t, s.Running())
	require.NoError(t, s.Stop())
}

func TestSchedulerRunsCycle(t *testing.T) {
	t.Parallel()

	mgr, store := newLearningManager(t)
	s, err := learning.NewScheduler(mgr, nil,
		learning.WithInterval(10*time.Millisecond),
		learning.WithCycleTimeout(time.Second),
	)
	require.NoError(t, err)

	require.NoError(t, s.Start())
	defer s.Stop()

	// A completed cycle persists learner state, observable via LoadQ.
	assert.Eventually(t, func() bool {
		_, rate, err := store.LoadQ(context.Background())
		return err == nil && rate >= 0
	}, 2*time.Second, 10*time.Millisecond)
}
