package learning

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/signalbank/internal/memory"
)

// RecognizerConfig holds pattern detection thresholds.
type RecognizerConfig struct {
	// MinSampleSize is the minimum outcomes a group needs before a pattern
	// can be emitted.
	MinSampleSize int

	// MinConfidence is the minimum success rate for emission.
	MinConfidence float64

	// Saturation is the sample count at which the size factor of the
	// confidence reaches 1.
	Saturation int
}

// ApplyDefaults sets default values for unset fields.
func (c *RecognizerConfig) ApplyDefaults() {
	if c.MinSampleSize == 0 {
		c.MinSampleSize = 5
	}
	if c.MinConfidence == 0 {
		c.MinConfidence = 0.7
	}
	if c.Saturation == 0 {
		c.Saturation = 10
	}
}

// Recognizer detects recurring successful groupings in outcome history.
type Recognizer struct {
	cfg    RecognizerConfig
	logger *zap.Logger
}

// NewRecognizer creates a pattern recognizer.
func NewRecognizer(cfg RecognizerConfig, logger *zap.Logger) *Recognizer {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recognizer{cfg: cfg, logger: logger}
}

// Detect groups outcomes by actor, by subject, and by action-subject pair,
// and emits a pattern for each group that clears the sample-size and
// success-rate thresholds. Effectiveness is the success rate damped by how
// much evidence backs it:
//
//	confidence = min(1, n/saturation) * successRate
//
// Output order is deterministic: effectiveness descending, then signature.
func (r *Recognizer) Detect(outcomes []Outcome) []memory.ActionPattern {
	groups := make(map[memory.PatternSelector][]Outcome)

	for _, o := range outcomes {
		switch o.Result {
		case memory.OutcomeSuccess, memory.OutcomeFailure:
		default:
			continue
		}

		if o.ActorID != "" {
			key := memory.PatternSelector{Kind: memory.PatternReliableActor, Key: o.ActorID}
			groups[key] = append(groups[key], o)
		}
		if o.Subject != "" {
			key := memory.PatternSelector{Kind: memory.PatternHighSuccessSubject, Key: o.Subject}
			groups[key] = append(groups[key], o)
		}
		if o.Action != "" && o.Subject != "" {
			key := memory.PatternSelector{Kind: memory.PatternActionSubject, Key: o.Action + ":" + o.Subject}
			groups[key] = append(groups[key], o)
		}
	}

	now := time.Now().UTC()
	patterns := make([]memory.ActionPattern, 0, len(groups))

	for sel, group := range groups {
		n := len(group)
		if n < r.cfg.MinSampleSize {
			continue
		}

		wins := 0
		for _, o := range group {
			if o.Result == memory.OutcomeSuccess {
				wins++
			}
		}
		rate := float64(wins) / float64(n)
		if rate < r.cfg.MinConfidence {
			continue
		}

		sizeFactor := float64(n) / float64(r.cfg.Saturation)
		if sizeFactor > 1 {
			sizeFactor = 1
		}

		patterns = append(patterns, memory.ActionPattern{
			Signature:     memory.PatternSignature(sel.Kind, sel.Key),
			Kind:          sel.Kind,
			Key:           sel.Key,
			Effectiveness: sizeFactor * rate,
			SampleCount:   n,
			SuccessRate:   rate,
			UpdatedAt:     now,
		})
	}

	sort.Slice(patterns, func(i, j int) bool {
		if patterns[i].Effectiveness != patterns[j].Effectiveness {
			return patterns[i].Effectiveness > patterns[j].Effectiveness
		}
		return patterns[i].Signature < patterns[j].Signature
	})

	if len(patterns) > 0 {
		r.logger.Debug("detected patterns", zap.Int("count", len(patterns)))
	}
	return patterns
}
