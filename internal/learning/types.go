// Package learning implements outcome-driven adaptation: reinforcement
// learning over signal actions, feedback routing, performance tracking, and
// pattern detection.
package learning

import (
	"errors"
	"time"
)

var (
	// ErrInvalidFeedback indicates a malformed or out-of-range feedback record.
	ErrInvalidFeedback = errors.New("invalid feedback")

	// ErrNoCandidates indicates action selection was called with no candidates.
	ErrNoCandidates = errors.New("no candidate actions")
)

// Feedback kinds accepted by the processor.
const (
	FeedbackGeneral          = "general"
	FeedbackTradeSignal      = "trade_signal"
	FeedbackActorReliability = "actor_reliability"
	FeedbackStrategy         = "strategy"
)

// FeedbackRecord is one piece of external feedback about the agent's
// behavior. Value is normalized to [-1, 1] during processing; ValueText, if
// set, takes precedence and is mapped to a numeric value.
type FeedbackRecord struct {
	ID        string
	Kind      string
	Value     float64
	ValueText string
	Text      string
	ActorID   string
	Subject   string

	// State and Action, when both set, route the normalized value into the
	// learner as a reward.
	State     string
	Action    string
	NextState string

	Timestamp time.Time
}

// Outcome is the observed result of one acted-on signal.
type Outcome struct {
	ID         string
	ActorID    string
	Subject    string
	Action     string
	Result     string
	ProfitLoss float64

	// Reward is the shaped reward derived from Result and ProfitLoss.
	Reward float64

	// State and NextState, when set, drive a learner value update.
	State     string
	NextState string

	Timestamp time.Time
}

// QEntry is one persisted state-action value.
type QEntry struct {
	State  string
	Action string
	Value  float64
	Visits int
}

// Trend classifies performance movement between two adjacent windows.
const (
	TrendImproving = "improving"
	TrendDeclining = "declining"
	TrendFlat      = "flat"
)

// Snapshot is an aggregated performance view over a scope and window.
type Snapshot struct {
	Scope        Scope
	WindowStart  time.Time
	WindowEnd    time.Time
	TotalTrades  int
	Wins         int
	Losses       int
	SuccessRate  float64
	GrossProfit  float64
	GrossLoss    float64
	NetProfit    float64
	ProfitFactor float64
	AvgProfit    float64
	Trend        string
}

// Scope selects which outcomes a snapshot aggregates. The zero value is the
// global scope.
type Scope struct {
	ActorID string
	Subject string
}

// GlobalScope covers every outcome.
func GlobalScope() Scope { return Scope{} }

// ActorScope covers outcomes attributed to one actor.
func ActorScope(actorID string) Scope { return Scope{ActorID: actorID} }

// SubjectScope covers outcomes for one subject.
func SubjectScope(subject string) Scope { return Scope{Subject: subject} }

// String renders the scope for logs and metric labels.
func (s Scope) String() string {
	switch {
	case s.ActorID != "":
		return "actor:" + s.ActorID
	case s.Subject != "":
		return "subject:" + s.Subject
	default:
		return "global"
	}
}
