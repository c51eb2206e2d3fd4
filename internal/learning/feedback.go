package learning

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/signalbank/internal/memory"
	"github.com/fyrsmithlabs/signalbank/internal/retry"
)

// Processor validates feedback and outcomes and routes their effects into
// the semantic store and the learner. Durable writes run on background
// goroutines with bounded backoff so the calling loop never stalls on
// persistence.
type Processor struct {
	semantic *memory.SemanticStore
	learner  *Learner
	outcomes OutcomeRepository
	feedback FeedbackRepository

	rewardScale float64
	retryCfg    retry.Config
	logger      *zap.Logger

	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithRetry overrides the backoff settings for durable writes.
func WithRetry(cfg retry.Config) ProcessorOption {
	return func(p *Processor) { p.retryCfg = cfg }
}

// NewProcessor creates a feedback processor. rewardScale divides raw
// profit/loss before clamping to [-1, 1].
func NewProcessor(semantic *memory.SemanticStore, learner *Learner, outcomes OutcomeRepository, feedback FeedbackRepository, rewardScale float64, logger *zap.Logger, opts ...ProcessorOption) (*Processor, error) {
	if semantic == nil || learner == nil || outcomes == nil || feedback == nil {
		return nil, fmt.Errorf("semantic store, learner, and repositories are required")
	}
	if rewardScale <= 0 {
		rewardScale = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Processor{
		semantic:    semantic,
		learner:     learner,
		outcomes:    outcomes,
		feedback:    feedback,
		rewardScale: rewardScale,
		retryCfg:    retry.DefaultConfig(),
		logger:      logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Close waits for in-flight durable writes to finish. Later calls still
// update in-memory state but skip persistence.
func (p *Processor) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.wg.Wait()
	return nil
}

// dispatch hands a durable write to a background goroutine, detached from
// the caller's context so an early caller timeout cannot cancel it.
// Returns false after Close.
func (p *Processor) dispatch(fn func(ctx context.Context)) bool {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false
	}
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		fn(ctx)
	}()
	return true
}

// ProcessFeedback validates and routes one feedback record, returning its
// assigned ID. Caller data errors return ErrInvalidFeedback; the record is
// persisted in the background with retries and dropped on exhaustion, the
// routed updates having already been applied.
func (p *Processor) ProcessFeedback(ctx context.Context, rec FeedbackRecord) (string, error) {
	value, err := normalizeFeedback(&rec)
	if err != nil {
		feedbackProcessed.WithLabelValues("invalid").Inc()
		return "", err
	}
	rec.Value = value

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	if rec.ActorID != "" {
		if err := p.semantic.ApplyFeedback(ctx, rec.ActorID, value); err != nil {
			return "", fmt.Errorf("applying actor feedback: %w", err)
		}
	}

	if rec.Subject != "" {
		if err := p.semantic.AppendSignal(ctx, rec.Subject, memory.SignalRecord{
			ActorID:   rec.ActorID,
			Action:    "feedback",
			Value:     value,
			Timestamp: rec.Timestamp,
		}); err != nil {
			return "", fmt.Errorf("appending subject feedback: %w", err)
		}
	}

	if rec.State != "" && rec.Action != "" {
		p.learner.UpdateValue(rec.State, rec.Action, value, rec.NextState)
	}

	if !p.dispatch(func(bctx context.Context) {
		p.persistFeedback(bctx, rec)
	}) {
		p.logger.Warn("feedback after close, durable write skipped", zap.String("id", rec.ID))
	}

	feedbackProcessed.WithLabelValues("ok").Inc()
	p.logger.Debug("processed feedback",
		zap.String("id", rec.ID),
		zap.String("kind", rec.Kind),
		zap.Float64("value", value),
	)
	return rec.ID, nil
}

// ProcessOutcome shapes the reward for one acted-on signal, applies it to
// the learner, and hands the durable writes to a background goroutine.
// Returns the shaped reward; transient store failures never surface here.
func (p *Processor) ProcessOutcome(ctx context.Context, o Outcome) (float64, error) {
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	if o.Timestamp.IsZero() {
		o.Timestamp = time.Now().UTC()
	}

	o.Reward = ShapeReward(o.Result, o.ProfitLoss, p.rewardScale)

	if o.State != "" && o.Action != "" {
		p.learner.UpdateValue(o.State, o.Action, o.Reward, o.NextState)
	}

	if !p.dispatch(func(bctx context.Context) {
		p.persistOutcome(bctx, o)
	}) {
		p.logger.Warn("outcome after close, durable writes skipped", zap.String("id", o.ID))
	}

	outcomesProcessed.Inc()
	p.logger.Debug("processed outcome",
		zap.String("id", o.ID),
		zap.String("result", o.Result),
		zap.Float64("profit_loss", o.ProfitLoss),
		zap.Float64("reward", o.Reward),
	)
	return o.Reward, nil
}

// persistOutcome applies the durable effects of one outcome. Each write is
// retried with bounded backoff and dropped on exhaustion, independently, so
// one failing store cannot block the others.
func (p *Processor) persistOutcome(ctx context.Context, o Outcome) {
	if err := retry.Do(ctx, p.retryCfg, func(rctx context.Context) error {
		return p.outcomes.AppendOutcome(rctx, o)
	}); err != nil {
		durableWrites.WithLabelValues("outcome", "dropped").Inc()
		p.logger.Error("outcome log write dropped after retries",
			zap.String("id", o.ID),
			zap.Error(err),
		)
	} else {
		durableWrites.WithLabelValues("outcome", "ok").Inc()
	}

	if o.ActorID != "" {
		if err := retry.Do(ctx, p.retryCfg, func(rctx context.Context) error {
			_, err := p.semantic.RecordActorOutcome(rctx, o.ActorID, o.Result)
			return err
		}); err != nil {
			durableWrites.WithLabelValues("actor", "dropped").Inc()
			p.logger.Error("actor update dropped after retries",
				zap.String("id", o.ID),
				zap.String("actor_id", o.ActorID),
				zap.Error(err),
			)
		} else {
			durableWrites.WithLabelValues("actor", "ok").Inc()
		}
	}

	if o.Subject != "" {
		if err := retry.Do(ctx, p.retryCfg, func(rctx context.Context) error {
			return p.semantic.AppendSignal(rctx, o.Subject, memory.SignalRecord{
				ActorID:   o.ActorID,
				Action:    o.Action,
				Value:     o.Reward,
				Timestamp: o.Timestamp,
			})
		}); err != nil {
			durableWrites.WithLabelValues("subject", "dropped").Inc()
			p.logger.Error("subject update dropped after retries",
				zap.String("id", o.ID),
				zap.String("subject", o.Subject),
				zap.Error(err),
			)
		} else {
			durableWrites.WithLabelValues("subject", "ok").Inc()
		}
	}
}

func (p *Processor) persistFeedback(ctx context.Context, rec FeedbackRecord) {
	if err := retry.Do(ctx, p.retryCfg, func(rctx context.Context) error {
		return p.feedback.AppendFeedback(rctx, rec)
	}); err != nil {
		durableWrites.WithLabelValues("feedback", "dropped").Inc()
		p.logger.Error("feedback record write dropped after retries",
			zap.String("id", rec.ID),
			zap.Error(err),
		)
		return
	}
	durableWrites.WithLabelValues("feedback", "ok").Inc()
}

// ShapeReward maps an outcome to a reward in [-1, 1]. Success and failure
// outcomes scale profit/loss by scale and clamp; anything else is neutral.
func ShapeReward(result string, profitLoss, scale float64) float64 {
	switch result {
	case memory.OutcomeSuccess, memory.OutcomeFailure:
		r := profitLoss / scale
		if r > 1 {
			return 1
		}
		if r < -1 {
			return -1
		}
		return r
	default:
		return 0
	}
}

// normalizeFeedback validates the record and returns its value in [-1, 1].
func normalizeFeedback(rec *FeedbackRecord) (float64, error) {
	switch rec.Kind {
	case FeedbackGeneral, FeedbackTradeSignal, FeedbackActorReliability, FeedbackStrategy:
	default:
		return 0, fmt.Errorf("%w: unknown kind %q", ErrInvalidFeedback, rec.Kind)
	}

	if rec.ValueText != "" {
		switch strings.ToLower(rec.ValueText) {
		case "positive", "good", "yes", "up":
			return 1, nil
		case "negative", "bad", "no", "down":
			return -1, nil
		case "neutral":
			return 0, nil
		default:
			return 0, fmt.Errorf("%w: unrecognized value %q", ErrInvalidFeedback, rec.ValueText)
		}
	}

	if rec.Value < -1 || rec.Value > 1 {
		return 0, fmt.Errorf("%w: value %g out of range [-1, 1]", ErrInvalidFeedback, rec.Value)
	}
	return rec.Value, nil
}
