// Package memory implements the layered memory subsystem: working memory,
// episodic experiences, semantic knowledge, and procedural patterns.
package memory

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// ErrNotFound is returned by repositories when a record does not exist.
var ErrNotFound = errors.New("record not found")

// Outcome classification for interactions and trades.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeUnknown = "unknown"
)

// Event is a single perceived signal: an actor proposing an action on a
// subject, plus the free-text content it arrived with.
type Event struct {
	ActorID string
	Subject string
	Action  string
	Content string
}

// Interaction is one working-memory entry: what came in, what the agent
// responded, and how it turned out.
type Interaction struct {
	Input     string
	Response  string
	Outcome   string
	Timestamp time.Time
}

// Experience is an episodic record stored with an embedding for similarity
// retrieval. Similarity is populated on retrieval only.
type Experience struct {
	ID         string
	Input      string
	Response   string
	Outcome    string
	Timestamp  time.Time
	Similarity float32
}

// TradeRecord is one observed trade attributed to an actor.
type TradeRecord struct {
	Subject   string
	Action    string
	Result    string
	Timestamp time.Time
}

// ActorProfile is accumulated semantic knowledge about a signal source.
type ActorProfile struct {
	ActorID   string
	Successes int
	Failures  int
	Trades    []TradeRecord
	UpdatedAt time.Time
}

// Reliability returns the actor's success ratio. An actor with no recorded
// outcomes is scored 0.5 (no evidence either way).
func (p *ActorProfile) Reliability() float64 {
	total := p.Successes + p.Failures
	if total == 0 {
		return 0.5
	}
	r := float64(p.Successes) / float64(total)
	if r < 0 {
		return 0
	}
	if r > 1 {
		return 1
	}
	return r
}

// SignalRecord is one observed signal about a subject.
type SignalRecord struct {
	ActorID   string
	Action    string
	Value     float64
	Timestamp time.Time
}

// SubjectKnowledge is accumulated semantic knowledge about a traded subject.
type SubjectKnowledge struct {
	Subject string
	Notes   []string
	Signals []SignalRecord
}

// Pattern kinds emitted by the recognizer.
const (
	PatternReliableActor      = "reliable_actor"
	PatternHighSuccessSubject = "high_success_subject"
	PatternActionSubject      = "action_subject"
)

// ActionPattern is a detected regularity in past outcomes, stored in the
// procedural store and ranked by effectiveness.
type ActionPattern struct {
	// Signature uniquely identifies the pattern; derived from kind and key
	// so repeated detection converges on one row.
	Signature string

	Kind string
	// Key scopes the pattern: the actor ID, the subject, or "action:subject".
	Key string

	Effectiveness float64
	SampleCount   int
	SuccessRate   float64
	UpdatedAt     time.Time
}

// PatternSignature derives the stable signature for a (kind, key) pair.
func PatternSignature(kind, key string) string {
	sum := sha256.Sum256([]byte(kind + "|" + key))
	return hex.EncodeToString(sum[:16])
}

// Context is the assembled view handed to the decision layer. Missing
// sections mean the backing store was unavailable, not that the context
// assembly failed.
type Context struct {
	Recent   []Interaction
	State    map[string]string
	Similar  []Experience
	Actor    *ActorProfile
	Subject  *SubjectKnowledge
	Patterns []ActionPattern
}
