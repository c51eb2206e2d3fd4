package learning

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/signalbank/internal/memory"
)

// timeNow is a variable for testing purposes (allows mocking time).
var timeNow = time.Now

// trendEpsilon is the minimum success-rate movement counted as a trend.
const trendEpsilon = 0.01

// Tracker aggregates outcome history into performance snapshots.
type Tracker struct {
	outcomes OutcomeRepository
	logger   *zap.Logger
}

// NewTracker creates a performance tracker over the outcome log.
func NewTracker(outcomes OutcomeRepository, logger *zap.Logger) (*Tracker, error) {
	if outcomes == nil {
		return nil, fmt.Errorf("outcome repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{outcomes: outcomes, logger: logger}, nil
}

// Compute aggregates outcomes for the scope over the trailing window. A
// non-positive window covers all history. The trend compares the window
// against the immediately preceding window of equal length; with no
// preceding data the trend is flat.
func (t *Tracker) Compute(ctx context.Context, scope Scope, window time.Duration) (*Snapshot, error) {
	now := timeNow().UTC()

	var from time.Time
	if window > 0 {
		from = now.Add(-window)
	}

	current, err := t.outcomes.OutcomesInRange(ctx, scope, from, now)
	if err != nil {
		return nil, fmt.Errorf("loading outcomes: %w", err)
	}

	snap := aggregate(scope, from, now, current)

	if window > 0 {
		previous, err := t.outcomes.OutcomesInRange(ctx, scope, now.Add(-2*window), from)
		if err != nil {
			return nil, fmt.Errorf("loading previous window: %w", err)
		}
		snap.Trend = trend(current, previous)
	} else {
		snap.Trend = TrendFlat
	}

	return snap, nil
}

func aggregate(scope Scope, from, to time.Time, outcomes []Outcome) *Snapshot {
	snap := &Snapshot{
		Scope:       scope,
		WindowStart: from,
		WindowEnd:   to,
		Trend:       TrendFlat,
	}

	for _, o := range outcomes {
		switch o.Result {
		case memory.OutcomeSuccess:
			snap.Wins++
		case memory.OutcomeFailure:
			snap.Losses++
		default:
			continue
		}
		snap.TotalTrades++

		if o.ProfitLoss >= 0 {
			snap.GrossProfit += o.ProfitLoss
		} else {
			snap.GrossLoss += o.ProfitLoss
		}
	}

	snap.NetProfit = snap.GrossProfit + snap.GrossLoss
	if snap.TotalTrades > 0 {
		snap.SuccessRate = float64(snap.Wins) / float64(snap.TotalTrades)
		snap.AvgProfit = snap.NetProfit / float64(snap.TotalTrades)
	}
	snap.ProfitFactor = profitFactor(snap.GrossProfit, snap.GrossLoss)

	return snap
}

// profitFactor is |grossProfit / grossLoss|. All-profit history yields +Inf,
// no activity yields 0.
func profitFactor(grossProfit, grossLoss float64) float64 {
	if grossLoss == 0 {
		if grossProfit > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return math.Abs(grossProfit / grossLoss)
}

func trend(current, previous []Outcome) string {
	if len(previous) == 0 || len(current) == 0 {
		return TrendFlat
	}

	cur := successRate(current)
	prev := successRate(previous)

	switch {
	case cur > prev+trendEpsilon:
		return TrendImproving
	case cur < prev-trendEpsilon:
		return TrendDeclining
	default:
		return TrendFlat
	}
}

func successRate(outcomes []Outcome) float64 {
	total, wins := 0, 0
	for _, o := range outcomes {
		switch o.Result {
		case memory.OutcomeSuccess:
			wins++
			total++
		case memory.OutcomeFailure:
			total++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(wins) / float64(total)
}
