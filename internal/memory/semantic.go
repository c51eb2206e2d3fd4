package memory

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// SemanticStore holds structured knowledge about actors and subjects on top
// of the repository layer.
type SemanticStore struct {
	actors   ActorRepository
	subjects SubjectRepository
	logger   *zap.Logger
}

// NewSemanticStore creates a semantic store over the given repositories.
func NewSemanticStore(actors ActorRepository, subjects SubjectRepository, logger *zap.Logger) (*SemanticStore, error) {
	if actors == nil || subjects == nil {
		return nil, fmt.Errorf("actor and subject repositories are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SemanticStore{
		actors:   actors,
		subjects: subjects,
		logger:   logger,
	}, nil
}

// ActorProfile returns the profile for an actor, creating a zeroed profile
// if none exists. A fresh profile scores 0.5 reliability.
func (s *SemanticStore) ActorProfile(ctx context.Context, actorID string) (*ActorProfile, error) {
	if actorID == "" {
		return nil, fmt.Errorf("actor id cannot be empty")
	}
	profile, err := s.actors.GetActor(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("getting actor %s: %w", actorID, err)
	}
	return profile, nil
}

// RecordActorOutcome updates the actor's reliability counts from a trade
// outcome. Outcomes other than success and failure leave the counts alone.
func (s *SemanticStore) RecordActorOutcome(ctx context.Context, actorID, outcome string) (*ActorProfile, error) {
	if actorID == "" {
		return nil, fmt.Errorf("actor id cannot be empty")
	}

	switch outcome {
	case OutcomeSuccess, OutcomeFailure:
	default:
		return s.ActorProfile(ctx, actorID)
	}

	profile, err := s.actors.RecordActorOutcome(ctx, actorID, outcome == OutcomeSuccess)
	if err != nil {
		return nil, fmt.Errorf("recording outcome for actor %s: %w", actorID, err)
	}

	s.logger.Debug("recorded actor outcome",
		zap.String("actor_id", actorID),
		zap.String("outcome", outcome),
		zap.Float64("reliability", profile.Reliability()),
	)
	return profile, nil
}

// ApplyFeedback adjusts actor reliability from a normalized feedback value
// in [-1, 1]. Positive counts as a success, negative as a failure, zero is
// a no-op.
func (s *SemanticStore) ApplyFeedback(ctx context.Context, actorID string, value float64) error {
	if actorID == "" {
		return fmt.Errorf("actor id cannot be empty")
	}
	if value == 0 {
		return nil
	}
	outcome := OutcomeFailure
	if value > 0 {
		outcome = OutcomeSuccess
	}
	_, err := s.RecordActorOutcome(ctx, actorID, outcome)
	return err
}

// AppendTrade appends a trade to the actor's history.
func (s *SemanticStore) AppendTrade(ctx context.Context, actorID string, trade TradeRecord) error {
	if actorID == "" {
		return fmt.Errorf("actor id cannot be empty")
	}
	if trade.Timestamp.IsZero() {
		trade.Timestamp = time.Now().UTC()
	}
	if err := s.actors.AppendTrade(ctx, actorID, trade); err != nil {
		return fmt.Errorf("appending trade for actor %s: %w", actorID, err)
	}
	return nil
}

// SubjectKnowledge returns knowledge for a subject, creating an empty record
// if none exists.
func (s *SemanticStore) SubjectKnowledge(ctx context.Context, subject string) (*SubjectKnowledge, error) {
	if subject == "" {
		return nil, fmt.Errorf("subject cannot be empty")
	}
	knowledge, err := s.subjects.GetSubject(ctx, subject)
	if err != nil {
		return nil, fmt.Errorf("getting subject %s: %w", subject, err)
	}
	return knowledge, nil
}

// AppendNote appends a free-text note to a subject.
func (s *SemanticStore) AppendNote(ctx context.Context, subject, note string) error {
	if subject == "" {
		return fmt.Errorf("subject cannot be empty")
	}
	if note == "" {
		return nil
	}
	if err := s.subjects.AppendNote(ctx, subject, note); err != nil {
		return fmt.Errorf("appending note for subject %s: %w", subject, err)
	}
	return nil
}

// AppendSignal appends an observed signal to a subject.
func (s *SemanticStore) AppendSignal(ctx context.Context, subject string, sig SignalRecord) error {
	if subject == "" {
		return fmt.Errorf("subject cannot be empty")
	}
	if sig.Timestamp.IsZero() {
		sig.Timestamp = time.Now().UTC()
	}
	if err := s.subjects.AppendSignal(ctx, subject, sig); err != nil {
		return fmt.Errorf("appending signal for subject %s: %w", subject, err)
	}
	return nil
}
