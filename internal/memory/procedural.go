package memory

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ProceduralStore holds detected action patterns ranked by effectiveness.
type ProceduralStore struct {
	patterns PatternRepository
	logger   *zap.Logger
}

// NewProceduralStore creates a procedural store over the given repository.
func NewProceduralStore(patterns PatternRepository, logger *zap.Logger) (*ProceduralStore, error) {
	if patterns == nil {
		return nil, fmt.Errorf("pattern repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProceduralStore{patterns: patterns, logger: logger}, nil
}

// StorePattern inserts or updates a pattern. The write is skipped when the
// stored pattern already reflects at least as many samples, which makes
// repeated learning cycles idempotent. Returns whether the write was applied.
func (p *ProceduralStore) StorePattern(ctx context.Context, pattern ActionPattern) (bool, error) {
	if pattern.Kind == "" || pattern.Key == "" {
		return false, fmt.Errorf("pattern kind and key are required")
	}
	if pattern.Signature == "" {
		pattern.Signature = PatternSignature(pattern.Kind, pattern.Key)
	}
	if pattern.UpdatedAt.IsZero() {
		pattern.UpdatedAt = time.Now().UTC()
	}

	applied, err := p.patterns.UpsertPattern(ctx, pattern)
	if err != nil {
		return false, fmt.Errorf("storing pattern %s: %w", pattern.Signature, err)
	}

	p.logger.Debug("stored pattern",
		zap.String("signature", pattern.Signature),
		zap.String("kind", pattern.Kind),
		zap.String("key", pattern.Key),
		zap.Float64("effectiveness", pattern.Effectiveness),
		zap.Bool("applied", applied),
	)
	return applied, nil
}

// RelevantPatterns returns the patterns matching the event's actor, subject,
// or action-subject pair, ordered by effectiveness descending.
func (p *ProceduralStore) RelevantPatterns(ctx context.Context, ev Event, limit int) ([]ActionPattern, error) {
	if limit < 1 {
		limit = 1
	}

	var selectors []PatternSelector
	if ev.ActorID != "" {
		selectors = append(selectors, PatternSelector{Kind: PatternReliableActor, Key: ev.ActorID})
	}
	if ev.Subject != "" {
		selectors = append(selectors, PatternSelector{Kind: PatternHighSuccessSubject, Key: ev.Subject})
	}
	if ev.Action != "" && ev.Subject != "" {
		selectors = append(selectors, PatternSelector{Kind: PatternActionSubject, Key: ev.Action + ":" + ev.Subject})
	}
	if len(selectors) == 0 {
		return []ActionPattern{}, nil
	}

	patterns, err := p.patterns.MatchPatterns(ctx, selectors, limit)
	if err != nil {
		return nil, fmt.Errorf("matching patterns: %w", err)
	}
	return patterns, nil
}

// PatternsUpdatedSince returns patterns updated at or after the cutoff.
func (p *ProceduralStore) PatternsUpdatedSince(ctx context.Context, cutoff time.Time) ([]ActionPattern, error) {
	patterns, err := p.patterns.PatternsUpdatedSince(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("listing patterns: %w", err)
	}
	return patterns, nil
}
