package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/signalbank/internal/retry"
)

// ManagerConfig holds tunables for context assembly and durable writes.
type ManagerConfig struct {
	SimilarityLimit int
	PatternLimit    int
	// PerStoreTimeout bounds each backing store lookup during GetContext.
	PerStoreTimeout time.Duration
	// Retry controls background durable writes in Record.
	Retry retry.Config
}

// ApplyDefaults sets default values for unset fields.
func (c *ManagerConfig) ApplyDefaults() {
	if c.SimilarityLimit == 0 {
		c.SimilarityLimit = 5
	}
	if c.PatternLimit == 0 {
		c.PatternLimit = 3
	}
	if c.PerStoreTimeout == 0 {
		c.PerStoreTimeout = 2 * time.Second
	}
	if c.Retry.MaxRetries == 0 && c.Retry.InitialBackoff == 0 {
		c.Retry = retry.DefaultConfig()
	}
}

// Manager coordinates the four memory stores behind a single facade.
//
// GetContext degrades per store: an unavailable store contributes an empty
// section and the rest of the context is still returned. Record acknowledges
// after the working-memory update and completes durable writes in the
// background with bounded retries.
type Manager struct {
	cfg        ManagerConfig
	working    *WorkingMemory
	episodic   *EpisodicStore
	semantic   *SemanticStore
	procedural *ProceduralStore
	logger     *zap.Logger

	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// NewManager creates a memory manager over the four stores.
func NewManager(cfg ManagerConfig, working *WorkingMemory, episodic *EpisodicStore, semantic *SemanticStore, procedural *ProceduralStore, logger *zap.Logger) (*Manager, error) {
	if working == nil || episodic == nil || semantic == nil || procedural == nil {
		return nil, fmt.Errorf("all four memory stores are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()

	return &Manager{
		cfg:        cfg,
		working:    working,
		episodic:   episodic,
		semantic:   semantic,
		procedural: procedural,
		logger:     logger,
	}, nil
}

// Working exposes the working memory for direct state updates.
func (m *Manager) Working() *WorkingMemory { return m.working }

// Semantic exposes the semantic store for feedback routing.
func (m *Manager) Semantic() *SemanticStore { return m.semantic }

// Procedural exposes the procedural store for the learning cycle.
func (m *Manager) Procedural() *ProceduralStore { return m.procedural }

// Episodic exposes the episodic store.
func (m *Manager) Episodic() *EpisodicStore { return m.episodic }

// GetContext assembles the decision context for an event. The long-term
// stores are queried in parallel, each under its own timeout; a store that
// fails or times out degrades to an empty section. GetContext never returns
// an error.
func (m *Manager) GetContext(ctx context.Context, ev Event) *Context {
	start := time.Now()

	out := &Context{
		Recent:   m.working.Recent(),
		State:    m.working.State(),
		Similar:  []Experience{},
		Patterns: []ActionPattern{},
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		tctx, cancel := context.WithTimeout(ctx, m.cfg.PerStoreTimeout)
		defer cancel()

		similar, err := m.episodic.RetrieveSimilar(tctx, queryText(ev), m.cfg.SimilarityLimit)
		if err != nil {
			m.degrade("episodic", err)
			return
		}
		out.Similar = similar
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		tctx, cancel := context.WithTimeout(ctx, m.cfg.PerStoreTimeout)
		defer cancel()

		if ev.ActorID != "" {
			actor, err := m.semantic.ActorProfile(tctx, ev.ActorID)
			if err != nil {
				m.degrade("semantic", err)
			} else {
				out.Actor = actor
			}
		}
		if ev.Subject != "" {
			subject, err := m.semantic.SubjectKnowledge(tctx, ev.Subject)
			if err != nil {
				m.degrade("semantic", err)
			} else {
				out.Subject = subject
			}
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		tctx, cancel := context.WithTimeout(ctx, m.cfg.PerStoreTimeout)
		defer cancel()

		patterns, err := m.procedural.RelevantPatterns(tctx, ev, m.cfg.PatternLimit)
		if err != nil {
			m.degrade("procedural", err)
			return
		}
		out.Patterns = patterns
	}()

	wg.Wait()

	contextAssemblies.Inc()
	contextAssemblyDuration.Observe(time.Since(start).Seconds())
	return out
}

func (m *Manager) degrade(store string, err error) {
	storeDegraded.WithLabelValues(store).Inc()
	m.logger.Warn("memory store degraded during context assembly",
		zap.String("store", store),
		zap.Error(err),
	)
}

// Record stores an interaction. The working-memory update is synchronous;
// the episodic and semantic writes happen in the background with bounded
// retries and are logged and dropped if they still fail.
func (m *Manager) Record(ctx context.Context, ev Event, response, outcome string) {
	now := time.Now().UTC()

	m.working.Add(Interaction{
		Input:     ev.Content,
		Response:  response,
		Outcome:   outcome,
		Timestamp: now,
	})

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.logger.Warn("record after close, durable write skipped")
		return
	}
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()

		// Detached from the caller's context so an early caller timeout
		// cannot cancel the durable write.
		bctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		err := retry.Do(bctx, m.cfg.Retry, func(rctx context.Context) error {
			return m.persist(rctx, ev, response, outcome, now)
		})
		if err != nil {
			recordPersists.WithLabelValues("dropped").Inc()
			m.logger.Error("durable write dropped after retries",
				zap.String("actor_id", ev.ActorID),
				zap.String("subject", ev.Subject),
				zap.Error(err),
			)
			return
		}
		recordPersists.WithLabelValues("ok").Inc()
	}()
}

func (m *Manager) persist(ctx context.Context, ev Event, response, outcome string, ts time.Time) error {
	if _, err := m.episodic.Store(ctx, Experience{
		Input:     ev.Content,
		Response:  response,
		Outcome:   outcome,
		Timestamp: ts,
	}); err != nil {
		return err
	}

	if ev.ActorID != "" {
		if _, err := m.semantic.RecordActorOutcome(ctx, ev.ActorID, outcome); err != nil {
			return err
		}
		if ev.Subject != "" && ev.Action != "" {
			if err := m.semantic.AppendTrade(ctx, ev.ActorID, TradeRecord{
				Subject:   ev.Subject,
				Action:    ev.Action,
				Result:    outcome,
				Timestamp: ts,
			}); err != nil {
				return err
			}
		}
	}

	if ev.Subject != "" && ev.Action != "" {
		if err := m.semantic.AppendSignal(ctx, ev.Subject, SignalRecord{
			ActorID:   ev.ActorID,
			Action:    ev.Action,
			Value:     signalValue(outcome),
			Timestamp: ts,
		}); err != nil {
			return err
		}
	}

	return nil
}

// Close waits for in-flight durable writes to finish.
func (m *Manager) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.wg.Wait()
	return nil
}

func signalValue(outcome string) float64 {
	switch outcome {
	case OutcomeSuccess:
		return 1
	case OutcomeFailure:
		return -1
	default:
		return 0
	}
}

// queryText builds the episodic retrieval query from an event.
func queryText(ev Event) string {
	parts := make([]string, 0, 4)
	if ev.Content != "" {
		parts = append(parts, ev.Content)
	}
	if ev.ActorID != "" {
		parts = append(parts, "Actor: "+ev.ActorID)
	}
	if ev.Subject != "" {
		parts = append(parts, "Subject: "+ev.Subject)
	}
	if ev.Action != "" {
		parts = append(parts, "Action: "+ev.Action)
	}
	if len(parts) == 0 {
		return "unspecified event"
	}
	return strings.Join(parts, "\n")
}
