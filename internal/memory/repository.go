package memory

import (
	"context"
	"time"
)

// ActorRepository persists actor profiles and their trade history.
type ActorRepository interface {
	// GetActor returns the profile for an actor, creating a zeroed profile
	// if none exists yet.
	GetActor(ctx context.Context, actorID string) (*ActorProfile, error)

	// RecordActorOutcome atomically increments the actor's success or
	// failure count and returns the updated profile.
	RecordActorOutcome(ctx context.Context, actorID string, success bool) (*ActorProfile, error)

	// AppendTrade appends a trade to the actor's history.
	AppendTrade(ctx context.Context, actorID string, trade TradeRecord) error
}

// SubjectRepository persists per-subject notes and observed signals.
type SubjectRepository interface {
	// GetSubject returns knowledge for a subject, creating an empty record
	// if none exists yet.
	GetSubject(ctx context.Context, subject string) (*SubjectKnowledge, error)

	// AppendNote appends a free-text note to a subject.
	AppendNote(ctx context.Context, subject, note string) error

	// AppendSignal appends an observed signal to a subject.
	AppendSignal(ctx context.Context, subject string, sig SignalRecord) error
}

// PatternSelector identifies one pattern slot by kind and key.
type PatternSelector struct {
	Kind string
	Key  string
}

// PatternRepository persists detected action patterns.
type PatternRepository interface {
	// UpsertPattern inserts or updates a pattern by signature. An update is
	// applied only when the incoming sample count is not below the stored
	// one, so replayed cycles cannot roll a pattern back. Returns whether
	// the write was applied.
	UpsertPattern(ctx context.Context, p ActionPattern) (bool, error)

	// MatchPatterns returns patterns matching any selector, ordered by
	// effectiveness descending, capped at limit.
	MatchPatterns(ctx context.Context, selectors []PatternSelector, limit int) ([]ActionPattern, error)

	// PatternsUpdatedSince returns patterns updated at or after the cutoff.
	PatternsUpdatedSince(ctx context.Context, cutoff time.Time) ([]ActionPattern, error)
}
