package learning

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/signalbank/internal/memory"
)

// ManagerConfig holds learning cycle tunables.
type ManagerConfig struct {
	// RecentWindow bounds the outcomes each cycle examines.
	RecentWindow time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *ManagerConfig) ApplyDefaults() {
	if c.RecentWindow == 0 {
		c.RecentWindow = 24 * time.Hour
	}
}

// CycleReport summarizes one learning cycle.
type CycleReport struct {
	Global           *Snapshot
	ActorSnapshots   int
	SubjectSnapshots int
	PatternsDetected int
	PatternsStored   int
	Duration         time.Duration
}

// Manager is the learning facade: it owns the learner, processor, tracker,
// and recognizer, and runs the periodic learning cycle.
type Manager struct {
	cfg        ManagerConfig
	learner    *Learner
	processor  *Processor
	tracker    *Tracker
	recognizer *Recognizer
	procedural *memory.ProceduralStore
	outcomes   OutcomeRepository
	qrepo      QRepository
	logger     *zap.Logger
}

// NewManager creates a learning manager. qrepo may be nil to disable
// learner persistence.
func NewManager(cfg ManagerConfig, learner *Learner, processor *Processor, tracker *Tracker, recognizer *Recognizer, procedural *memory.ProceduralStore, outcomes OutcomeRepository, qrepo QRepository, logger *zap.Logger) (*Manager, error) {
	if learner == nil || processor == nil || tracker == nil || recognizer == nil || procedural == nil || outcomes == nil {
		return nil, fmt.Errorf("learner, processor, tracker, recognizer, procedural store, and outcome repository are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()

	return &Manager{
		cfg:        cfg,
		learner:    learner,
		processor:  processor,
		tracker:    tracker,
		recognizer: recognizer,
		procedural: procedural,
		outcomes:   outcomes,
		qrepo:      qrepo,
		logger:     logger,
	}, nil
}

// Close drains the processor's in-flight durable writes.
func (m *Manager) Close() error {
	return m.processor.Close()
}

// Restore loads persisted learner state, if any.
func (m *Manager) Restore(ctx context.Context) error {
	if m.qrepo == nil {
		return nil
	}
	entries, rate, err := m.qrepo.LoadQ(ctx)
	if err != nil {
		return fmt.Errorf("loading learner state: %w", err)
	}
	if len(entries) == 0 && rate < 0 {
		return nil
	}
	m.learner.Restore(entries, rate)
	m.logger.Info("restored learner state",
		zap.Int("entries", len(entries)),
		zap.Float64("exploration_rate", m.learner.ExplorationRate()),
	)
	return nil
}

// ProcessOutcome forwards to the processor and publishes the exploration
// rate gauge.
func (m *Manager) ProcessOutcome(ctx context.Context, o Outcome) (float64, error) {
	reward, err := m.processor.ProcessOutcome(ctx, o)
	if err != nil {
		return 0, err
	}
	explorationRate.Set(m.learner.ExplorationRate())
	return reward, nil
}

// ProcessFeedback forwards to the processor.
func (m *Manager) ProcessFeedback(ctx context.Context, rec FeedbackRecord) (string, error) {
	id, err := m.processor.ProcessFeedback(ctx, rec)
	if err != nil {
		return "", err
	}
	explorationRate.Set(m.learner.ExplorationRate())
	return id, nil
}

// SelectAction forwards to the learner.
func (m *Manager) SelectAction(state string, candidates []string) (string, error) {
	return m.learner.SelectAction(state, candidates)
}

// Performance computes a snapshot for the scope and window.
func (m *Manager) Performance(ctx context.Context, scope Scope, window time.Duration) (*Snapshot, error) {
	return m.tracker.Compute(ctx, scope, window)
}

// RunCycle executes one learning cycle: compute performance snapshots,
// detect patterns over the recent outcome window, store them, and persist
// learner state. Signatures are deterministic and pattern upserts are
// monotonic, so an overlapping or replayed cycle converges instead of
// duplicating.
func (m *Manager) RunCycle(ctx context.Context) (*CycleReport, error) {
	start := time.Now()
	report := &CycleReport{}

	global, err := m.tracker.Compute(ctx, GlobalScope(), m.cfg.RecentWindow)
	if err != nil {
		cyclesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("computing global snapshot: %w", err)
	}
	report.Global = global

	recent, err := m.outcomes.OutcomesInRange(ctx, GlobalScope(), timeNow().UTC().Add(-m.cfg.RecentWindow), timeNow().UTC())
	if err != nil {
		cyclesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("loading recent outcomes: %w", err)
	}

	// Per-scope snapshots for every actor and subject seen in the window.
	actors := make(map[string]struct{})
	subjects := make(map[string]struct{})
	for _, o := range recent {
		if o.ActorID != "" {
			actors[o.ActorID] = struct{}{}
		}
		if o.Subject != "" {
			subjects[o.Subject] = struct{}{}
		}
	}
	for actorID := range actors {
		if _, err := m.tracker.Compute(ctx, ActorScope(actorID), m.cfg.RecentWindow); err != nil {
			m.logger.Warn("actor snapshot failed", zap.String("actor_id", actorID), zap.Error(err))
			continue
		}
		report.ActorSnapshots++
	}
	for subject := range subjects {
		if _, err := m.tracker.Compute(ctx, SubjectScope(subject), m.cfg.RecentWindow); err != nil {
			m.logger.Warn("subject snapshot failed", zap.String("subject", subject), zap.Error(err))
			continue
		}
		report.SubjectSnapshots++
	}

	detected := m.recognizer.Detect(recent)
	report.PatternsDetected = len(detected)
	patternsDetected.Add(float64(len(detected)))

	for _, p := range detected {
		if ctx.Err() != nil {
			cyclesTotal.WithLabelValues("canceled").Inc()
			return report, fmt.Errorf("cycle canceled: %w", ctx.Err())
		}
		applied, err := m.procedural.StorePattern(ctx, p)
		if err != nil {
			m.logger.Warn("failed to store pattern",
				zap.String("signature", p.Signature),
				zap.Error(err),
			)
			continue
		}
		if applied {
			report.PatternsStored++
		}
	}

	if m.qrepo != nil {
		entries, rate := m.learner.Snapshot()
		if err := m.qrepo.SaveQ(ctx, entries, rate); err != nil {
			m.logger.Warn("failed to persist learner state", zap.Error(err))
		}
	}

	report.Duration = time.Since(start)
	cyclesTotal.WithLabelValues("success").Inc()

	m.logger.Info("learning cycle complete",
		zap.Int("outcomes", len(recent)),
		zap.Int("patterns_detected", report.PatternsDetected),
		zap.Int("patterns_stored", report.PatternsStored),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}
