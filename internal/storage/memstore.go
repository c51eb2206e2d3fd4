package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fyrsmithlabs/signalbank/internal/learning"
	"github.com/fyrsmithlabs/signalbank/internal/memory"
)

// MemStore is an in-memory implementation of the repositories, used for
// tests and for running without a database file.
type MemStore struct {
	mu sync.RWMutex

	actors   map[string]*memory.ActorProfile
	subjects map[string]*memory.SubjectKnowledge
	patterns map[string]memory.ActionPattern
	outcomes []learning.Outcome
	feedback []learning.FeedbackRecord

	qEntries []learning.QEntry
	qRate    float64
	qSaved   bool
}

var (
	_ memory.ActorRepository      = (*MemStore)(nil)
	_ memory.SubjectRepository    = (*MemStore)(nil)
	_ memory.PatternRepository    = (*MemStore)(nil)
	_ learning.OutcomeRepository  = (*MemStore)(nil)
	_ learning.FeedbackRepository = (*MemStore)(nil)
	_ learning.QRepository        = (*MemStore)(nil)
)

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		actors:   make(map[string]*memory.ActorProfile),
		subjects: make(map[string]*memory.SubjectKnowledge),
		patterns: make(map[string]memory.ActionPattern),
	}
}

// Close is a no-op for the in-memory store.
func (m *MemStore) Close() error { return nil }

func (m *MemStore) getOrCreateActorLocked(actorID string) *memory.ActorProfile {
	p, ok := m.actors[actorID]
	if !ok {
		p = &memory.ActorProfile{ActorID: actorID, UpdatedAt: time.Now().UTC()}
		m.actors[actorID] = p
	}
	return p
}

func copyActor(p *memory.ActorProfile) *memory.ActorProfile {
	out := *p
	out.Trades = make([]memory.TradeRecord, len(p.Trades))
	copy(out.Trades, p.Trades)
	return &out
}

// GetActor returns the profile for an actor, creating a zeroed profile if
// none exists yet.
func (m *MemStore) GetActor(ctx context.Context, actorID string) (*memory.ActorProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyActor(m.getOrCreateActorLocked(actorID)), nil
}

// RecordActorOutcome increments the actor's success or failure count.
func (m *MemStore) RecordActorOutcome(ctx context.Context, actorID string, success bool) (*memory.ActorProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.getOrCreateActorLocked(actorID)
	if success {
		p.Successes++
	} else {
		p.Failures++
	}
	p.UpdatedAt = time.Now().UTC()
	return copyActor(p), nil
}

// AppendTrade appends a trade to the actor's history.
func (m *MemStore) AppendTrade(ctx context.Context, actorID string, trade memory.TradeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.getOrCreateActorLocked(actorID)
	p.Trades = append(p.Trades, trade)
	return nil
}

func copySubject(k *memory.SubjectKnowledge) *memory.SubjectKnowledge {
	out := *k
	out.Notes = make([]string, len(k.Notes))
	copy(out.Notes, k.Notes)
	out.Signals = make([]memory.SignalRecord, len(k.Signals))
	copy(out.Signals, k.Signals)
	return &out
}

func (m *MemStore) getOrCreateSubjectLocked(subject string) *memory.SubjectKnowledge {
	k, ok := m.subjects[subject]
	if !ok {
		k = &memory.SubjectKnowledge{Subject: subject}
		m.subjects[subject] = k
	}
	return k
}

// GetSubject returns knowledge for a subject, creating an empty record if
// none exists yet.
func (m *MemStore) GetSubject(ctx context.Context, subject string) (*memory.SubjectKnowledge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copySubject(m.getOrCreateSubjectLocked(subject)), nil
}

// AppendNote appends a free-text note to a subject.
func (m *MemStore) AppendNote(ctx context.Context, subject, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := m.getOrCreateSubjectLocked(subject)
	k.Notes = append(k.Notes, note)
	return nil
}

// AppendSignal appends an observed signal to a subject.
func (m *MemStore) AppendSignal(ctx context.Context, subject string, sig memory.SignalRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := m.getOrCreateSubjectLocked(subject)
	k.Signals = append(k.Signals, sig)
	return nil
}

// UpsertPattern inserts or updates a pattern, refusing updates that would
// roll the sample count back.
func (m *MemStore) UpsertPattern(ctx context.Context, p memory.ActionPattern) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.patterns[p.Signature]; ok && p.SampleCount < existing.SampleCount {
		return false, nil
	}
	m.patterns[p.Signature] = p
	return true, nil
}

// MatchPatterns returns patterns matching any selector, ordered by
// effectiveness descending.
func (m *MemStore) MatchPatterns(ctx context.Context, selectors []memory.PatternSelector, limit int) ([]memory.ActionPattern, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := []memory.ActionPattern{}
	for _, p := range m.patterns {
		for _, sel := range selectors {
			if p.Kind == sel.Kind && p.Key == sel.Key {
				matched = append(matched, p)
				break
			}
		}
	}

	sortPatterns(matched)
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// PatternsUpdatedSince returns patterns updated at or after the cutoff.
func (m *MemStore) PatternsUpdatedSince(ctx context.Context, cutoff time.Time) ([]memory.ActionPattern, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := []memory.ActionPattern{}
	for _, p := range m.patterns {
		if !p.UpdatedAt.Before(cutoff) {
			matched = append(matched, p)
		}
	}
	sortPatterns(matched)
	return matched, nil
}

func sortPatterns(patterns []memory.ActionPattern) {
	sort.Slice(patterns, func(i, j int) bool {
		if patterns[i].Effectiveness != patterns[j].Effectiveness {
			return patterns[i].Effectiveness > patterns[j].Effectiveness
		}
		return patterns[i].Signature < patterns[j].Signature
	})
}

// AppendOutcome appends one outcome to the log.
func (m *MemStore) AppendOutcome(ctx context.Context, o learning.Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, o)
	return nil
}

// OutcomesInRange returns outcomes with timestamps in [from, to), optionally
// filtered by scope.
func (m *MemStore) OutcomesInRange(ctx context.Context, scope learning.Scope, from, to time.Time) ([]learning.Outcome, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := []learning.Outcome{}
	for _, o := range m.outcomes {
		if !from.IsZero() && o.Timestamp.Before(from) {
			continue
		}
		if !o.Timestamp.Before(to) {
			continue
		}
		if scope.ActorID != "" && o.ActorID != scope.ActorID {
			continue
		}
		if scope.Subject != "" && o.Subject != scope.Subject {
			continue
		}
		matched = append(matched, o)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.Before(matched[j].Timestamp)
	})
	return matched, nil
}

// AppendFeedback appends one processed feedback record.
func (m *MemStore) AppendFeedback(ctx context.Context, rec learning.FeedbackRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.feedback = append(m.feedback, rec)
	return nil
}

// Feedback returns a copy of all stored feedback records.
func (m *MemStore) Feedback() []learning.FeedbackRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]learning.FeedbackRecord, len(m.feedback))
	copy(out, m.feedback)
	return out
}

// SaveQ replaces the persisted state-action values and exploration rate.
func (m *MemStore) SaveQ(ctx context.Context, entries []learning.QEntry, explorationRate float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.qEntries = make([]learning.QEntry, len(entries))
	copy(m.qEntries, entries)
	m.qRate = explorationRate
	m.qSaved = true
	return nil
}

// LoadQ returns the persisted state-action values and exploration rate.
func (m *MemStore) LoadQ(ctx context.Context) ([]learning.QEntry, float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.qSaved {
		return []learning.QEntry{}, -1, nil
	}
	out := make([]learning.QEntry, len(m.qEntries))
	copy(out, m.qEntries)
	return out, m.qRate, nil
}
