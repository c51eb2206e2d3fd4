package learning

import (
	"context"
	"time"
)

// OutcomeRepository persists acted-on signal outcomes.
type OutcomeRepository interface {
	// AppendOutcome appends one outcome to the log.
	AppendOutcome(ctx context.Context, o Outcome) error

	// OutcomesInRange returns outcomes with timestamps in [from, to),
	// optionally filtered by scope. A zero from means no lower bound.
	OutcomesInRange(ctx context.Context, scope Scope, from, to time.Time) ([]Outcome, error)
}

// FeedbackRepository persists processed feedback records.
type FeedbackRepository interface {
	// AppendFeedback appends one processed feedback record.
	AppendFeedback(ctx context.Context, rec FeedbackRecord) error
}

// QRepository persists learner state across restarts.
type QRepository interface {
	// SaveQ replaces the persisted state-action values and exploration rate.
	SaveQ(ctx context.Context, entries []QEntry, explorationRate float64) error

	// LoadQ returns the persisted state-action values and exploration rate.
	// A store with no saved state returns an empty slice and a negative rate.
	LoadQ(ctx context.Context) ([]QEntry, float64, error)
}
