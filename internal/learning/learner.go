package learning

import (
	"crypto/sha256"
	"encoding/hex"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// LearnerConfig holds Q-learning hyperparameters.
type LearnerConfig struct {
	LearningRate       float64
	DiscountFactor     float64
	ExplorationRate    float64
	MinExplorationRate float64
	ExplorationDecay   float64
}

// ApplyDefaults sets default values for unset fields.
func (c *LearnerConfig) ApplyDefaults() {
	if c.LearningRate == 0 {
		c.LearningRate = 0.1
	}
	if c.DiscountFactor == 0 {
		c.DiscountFactor = 0.9
	}
	if c.ExplorationRate == 0 {
		c.ExplorationRate = 0.2
	}
	if c.MinExplorationRate == 0 {
		c.MinExplorationRate = 0.01
	}
	if c.ExplorationDecay == 0 {
		c.ExplorationDecay = 0.995
	}
}

// Learner maintains state-action values updated by temporal-difference
// learning, with epsilon-greedy action selection. All methods are safe for
// concurrent use.
type Learner struct {
	mu          sync.Mutex
	cfg         LearnerConfig
	values      map[string]map[string]*QEntry
	exploration float64
	rng         *rand.Rand
	logger      *zap.Logger
}

// LearnerOption customizes a Learner.
type LearnerOption func(*Learner)

// WithRand sets the random source, used by tests for determinism.
func WithRand(rng *rand.Rand) LearnerOption {
	return func(l *Learner) { l.rng = rng }
}

// NewLearner creates a learner with the given hyperparameters.
func NewLearner(cfg LearnerConfig, logger *zap.Logger, opts ...LearnerOption) *Learner {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	l := &Learner{
		cfg:         cfg,
		values:      make(map[string]map[string]*QEntry),
		exploration: cfg.ExplorationRate,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:      logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// StateKey derives a stable state key from sorted feature pairs.
func StateKey(features map[string]string) string {
	if len(features) == 0 {
		return "empty"
	}
	keys := make([]string, 0, len(features))
	for k := range features {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+features[k])
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, ";")))
	return hex.EncodeToString(sum[:16])
}

// UpdateValue applies one temporal-difference update:
//
//	Q(s,a) += lr * (reward + gamma * max_a' Q(s',a') - Q(s,a))
//
// The exploration rate decays by the configured factor on every update,
// floored at the minimum. Returns the new value.
func (l *Learner) UpdateValue(state, action string, reward float64, nextState string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := l.entryLocked(state, action)
	maxNext := l.maxValueLocked(nextState)

	entry.Value += l.cfg.LearningRate * (reward + l.cfg.DiscountFactor*maxNext - entry.Value)
	entry.Visits++

	l.exploration *= l.cfg.ExplorationDecay
	if l.exploration < l.cfg.MinExplorationRate {
		l.exploration = l.cfg.MinExplorationRate
	}

	l.logger.Debug("updated action value",
		zap.String("state", state),
		zap.String("action", action),
		zap.Float64("reward", reward),
		zap.Float64("value", entry.Value),
		zap.Float64("exploration", l.exploration),
	)
	return entry.Value
}

// SelectAction chooses among candidates with epsilon-greedy policy. With
// probability epsilon a uniformly random candidate is returned; otherwise
// the candidate with the highest value, earliest listed winning ties.
func (l *Learner) SelectAction(state string, candidates []string) (string, error) {
	if len(candidates) == 0 {
		return "", ErrNoCandidates
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.rng.Float64() < l.exploration {
		return candidates[l.rng.Intn(len(candidates))], nil
	}

	best := candidates[0]
	bestValue := l.valueLocked(state, candidates[0])
	for _, c := range candidates[1:] {
		if v := l.valueLocked(state, c); v > bestValue {
			best, bestValue = c, v
		}
	}
	return best, nil
}

// Value returns the current value for a state-action pair.
func (l *Learner) Value(state, action string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.valueLocked(state, action)
}

// ActionValues returns a copy of the known action values for a state.
func (l *Learner) ActionValues(state string) map[string]float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string]float64, len(l.values[state]))
	for action, entry := range l.values[state] {
		out[action] = entry.Value
	}
	return out
}

// ExplorationRate returns the current exploration rate.
func (l *Learner) ExplorationRate() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.exploration
}

// Snapshot returns all entries and the current exploration rate, for
// persistence.
func (l *Learner) Snapshot() ([]QEntry, float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := make([]QEntry, 0, len(l.values))
	for _, actions := range l.values {
		for _, entry := range actions {
			entries = append(entries, *entry)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].State != entries[j].State {
			return entries[i].State < entries[j].State
		}
		return entries[i].Action < entries[j].Action
	})
	return entries, l.exploration
}

// Restore replaces the learner's state from a persisted snapshot. A negative
// exploration rate leaves the configured starting rate in place.
func (l *Learner) Restore(entries []QEntry, explorationRate float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.values = make(map[string]map[string]*QEntry)
	for _, e := range entries {
		entry := e
		actions, ok := l.values[e.State]
		if !ok {
			actions = make(map[string]*QEntry)
			l.values[e.State] = actions
		}
		actions[e.Action] = &entry
	}

	if explorationRate >= 0 {
		l.exploration = explorationRate
		if l.exploration < l.cfg.MinExplorationRate {
			l.exploration = l.cfg.MinExplorationRate
		}
	}
}

func (l *Learner) entryLocked(state, action string) *QEntry {
	actions, ok := l.values[state]
	if !ok {
		actions = make(map[string]*QEntry)
		l.values[state] = actions
	}
	entry, ok := actions[action]
	if !ok {
		entry = &QEntry{State: state, Action: action}
		actions[action] = entry
	}
	return entry
}

func (l *Learner) valueLocked(state, action string) float64 {
	if entry, ok := l.values[state][action]; ok {
		return entry.Value
	}
	return 0
}

func (l *Learner) maxValueLocked(state string) float64 {
	actions := l.values[state]
	if state == "" || len(actions) == 0 {
		return 0
	}
	first := true
	max := 0.0
	for _, entry := range actions {
		if first || entry.Value > max {
			max = entry.Value
			first = false
		}
	}
	return max
}
