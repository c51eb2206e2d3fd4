package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/signalbank/internal/learning"
	"github.com/fyrsmithlabs/signalbank/internal/memory"
)

// maxHistoryRows bounds the trade and signal history loaded per profile.
const maxHistoryRows = 50

// SQLiteStore implements the memory and learning repositories on SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

var (
	_ memory.ActorRepository      = (*SQLiteStore)(nil)
	_ memory.SubjectRepository    = (*SQLiteStore)(nil)
	_ memory.PatternRepository    = (*SQLiteStore)(nil)
	_ learning.OutcomeRepository  = (*SQLiteStore)(nil)
	_ learning.FeedbackRepository = (*SQLiteStore)(nil)
	_ learning.QRepository        = (*SQLiteStore)(nil)
)

// NewSQLiteStore opens (creating if needed) the database at path and runs
// migrations.
func NewSQLiteStore(path string, logger *zap.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteStore{db: db, logger: logger}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	logger.Info("SQLite store initialized", zap.String("path", path))
	return store, nil
}

// migrate creates the necessary tables.
func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS actors (
		id TEXT PRIMARY KEY,
		successes INTEGER NOT NULL DEFAULT 0,
		failures INTEGER NOT NULL DEFAULT 0,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS trades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		actor_id TEXT NOT NULL,
		subject TEXT NOT NULL,
		action TEXT NOT NULL,
		result TEXT NOT NULL,
		ts DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_trades_actor ON trades(actor_id, ts);

	CREATE TABLE IF NOT EXISTS subjects (
		subject TEXT PRIMARY KEY,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS subject_notes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		subject TEXT NOT NULL,
		note TEXT NOT NULL,
		ts DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_subject_notes ON subject_notes(subject, ts);

	CREATE TABLE IF NOT EXISTS subject_signals (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		subject TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		action TEXT NOT NULL,
		value REAL NOT NULL,
		ts DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_subject_signals ON subject_signals(subject, ts);

	CREATE TABLE IF NOT EXISTS patterns (
		signature TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		pattern_key TEXT NOT NULL,
		effectiveness REAL NOT NULL,
		sample_count INTEGER NOT NULL,
		success_rate REAL NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_patterns_kind_key ON patterns(kind, pattern_key);

	CREATE TABLE IF NOT EXISTS outcomes (
		id TEXT PRIMARY KEY,
		actor_id TEXT NOT NULL,
		subject TEXT NOT NULL,
		action TEXT NOT NULL,
		result TEXT NOT NULL,
		profit_loss REAL NOT NULL,
		reward REAL NOT NULL,
		state TEXT NOT NULL,
		next_state TEXT NOT NULL,
		ts DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_outcomes_ts ON outcomes(ts);
	CREATE INDEX IF NOT EXISTS idx_outcomes_actor ON outcomes(actor_id, ts);
	CREATE INDEX IF NOT EXISTS idx_outcomes_subject ON outcomes(subject, ts);

	CREATE TABLE IF NOT EXISTS feedback (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		value REAL NOT NULL,
		text TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		subject TEXT NOT NULL,
		ts DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS qvalues (
		state TEXT NOT NULL,
		action TEXT NOT NULL,
		value REAL NOT NULL,
		visits INTEGER NOT NULL,
		PRIMARY KEY (state, action)
	);

	CREATE TABLE IF NOT EXISTS qmeta (
		k TEXT PRIMARY KEY,
		v REAL NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func wrapDBErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}

// GetActor returns the profile for an actor, creating a zeroed profile if
// none exists yet.
func (s *SQLiteStore) GetActor(ctx context.Context, actorID string) (*memory.ActorProfile, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO actors (id, successes, failures, updated_at)
		VALUES (?, 0, 0, ?)
	`, actorID, time.Now().UTC())
	if err != nil {
		return nil, wrapDBErr("creating actor", err)
	}

	return s.loadActor(ctx, actorID)
}

func (s *SQLiteStore) loadActor(ctx context.Context, actorID string) (*memory.ActorProfile, error) {
	profile := &memory.ActorProfile{ActorID: actorID}

	err := s.db.QueryRowContext(ctx, `
		SELECT successes, failures, updated_at FROM actors WHERE id = ?
	`, actorID).Scan(&profile.Successes, &profile.Failures, &profile.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, memory.ErrNotFound
	}
	if err != nil {
		return nil, wrapDBErr("loading actor", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT subject, action, result, ts FROM (
			SELECT subject, action, result, ts FROM trades
			WHERE actor_id = ? ORDER BY ts DESC, id DESC LIMIT ?
		) ORDER BY ts ASC
	`, actorID, maxHistoryRows)
	if err != nil {
		return nil, wrapDBErr("loading trades", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t memory.TradeRecord
		if err := rows.Scan(&t.Subject, &t.Action, &t.Result, &t.Timestamp); err != nil {
			return nil, wrapDBErr("scanning trade", err)
		}
		profile.Trades = append(profile.Trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr("iterating trades", err)
	}

	return profile, nil
}

// RecordActorOutcome atomically increments the actor's success or failure
// count. The single-statement upsert gives per-actor serialization without
// any application-level locking.
func (s *SQLiteStore) RecordActorOutcome(ctx context.Context, actorID string, success bool) (*memory.ActorProfile, error) {
	successInc, failureInc := 0, 1
	if success {
		successInc, failureInc = 1, 0
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO actors (id, successes, failures, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			successes = successes + excluded.successes,
			failures = failures + excluded.failures,
			updated_at = excluded.updated_at
	`, actorID, successInc, failureInc, time.Now().UTC())
	if err != nil {
		return nil, wrapDBErr("recording actor outcome", err)
	}

	return s.loadActor(ctx, actorID)
}

// AppendTrade appends a trade to the actor's history.
func (s *SQLiteStore) AppendTrade(ctx context.Context, actorID string, trade memory.TradeRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trades (actor_id, subject, action, result, ts)
		VALUES (?, ?, ?, ?, ?)
	`, actorID, trade.Subject, trade.Action, trade.Result, trade.Timestamp.UTC())
	if err != nil {
		return wrapDBErr("appending trade", err)
	}
	return nil
}

// GetSubject returns knowledge for a subject, creating an empty record if
// none exists yet.
func (s *SQLiteStore) GetSubject(ctx context.Context, subject string) (*memory.SubjectKnowledge, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO subjects (subject, created_at) VALUES (?, ?)
	`, subject, time.Now().UTC())
	if err != nil {
		return nil, wrapDBErr("creating subject", err)
	}

	knowledge := &memory.SubjectKnowledge{Subject: subject}

	rows, err := s.db.QueryContext(ctx, `
		SELECT note FROM subject_notes WHERE subject = ? ORDER BY ts ASC, id ASC
	`, subject)
	if err != nil {
		return nil, wrapDBErr("loading notes", err)
	}
	defer rows.Close()

	for rows.Next() {
		var note string
		if err := rows.Scan(&note); err != nil {
			return nil, wrapDBErr("scanning note", err)
		}
		knowledge.Notes = append(knowledge.Notes, note)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr("iterating notes", err)
	}

	sigRows, err := s.db.QueryContext(ctx, `
		SELECT actor_id, action, value, ts FROM (
			SELECT actor_id, action, value, ts, id FROM subject_signals
			WHERE subject = ? ORDER BY ts DESC, id DESC LIMIT ?
		) ORDER BY ts ASC, id ASC
	`, subject, maxHistoryRows)
	if err != nil {
		return nil, wrapDBErr("loading signals", err)
	}
	defer sigRows.Close()

	for sigRows.Next() {
		var sig memory.SignalRecord
		if err := sigRows.Scan(&sig.ActorID, &sig.Action, &sig.Value, &sig.Timestamp); err != nil {
			return nil, wrapDBErr("scanning signal", err)
		}
		knowledge.Signals = append(knowledge.Signals, sig)
	}
	if err := sigRows.Err(); err != nil {
		return nil, wrapDBErr("iterating signals", err)
	}

	return knowledge, nil
}

// AppendNote appends a free-text note to a subject.
func (s *SQLiteStore) AppendNote(ctx context.Context, subject, note string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subject_notes (subject, note, ts) VALUES (?, ?, ?)
	`, subject, note, time.Now().UTC())
	if err != nil {
		return wrapDBErr("appending note", err)
	}
	return nil
}

// AppendSignal appends an observed signal to a subject.
func (s *SQLiteStore) AppendSignal(ctx context.Context, subject string, sig memory.SignalRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subject_signals (subject, actor_id, action, value, ts)
		VALUES (?, ?, ?, ?, ?)
	`, subject, sig.ActorID, sig.Action, sig.Value, sig.Timestamp.UTC())
	if err != nil {
		return wrapDBErr("appending signal", err)
	}
	return nil
}

// UpsertPattern inserts or updates a pattern by signature. The update is
// guarded so a replayed cycle with fewer samples cannot roll the row back.
func (s *SQLiteStore) UpsertPattern(ctx context.Context, p memory.ActionPattern) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO patterns (signature, kind, pattern_key, effectiveness, sample_count, success_rate, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(signature) DO UPDATE SET
			kind = excluded.kind,
			pattern_key = excluded.pattern_key,
			effectiveness = excluded.effectiveness,
			sample_count = excluded.sample_count,
			success_rate = excluded.success_rate,
			updated_at = excluded.updated_at
		WHERE excluded.sample_count >= patterns.sample_count
	`, p.Signature, p.Kind, p.Key, p.Effectiveness, p.SampleCount, p.SuccessRate, p.UpdatedAt.UTC())
	if err != nil {
		return false, wrapDBErr("upserting pattern", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, wrapDBErr("checking upsert result", err)
	}
	return affected > 0, nil
}

// MatchPatterns returns patterns matching any selector, ordered by
// effectiveness descending.
func (s *SQLiteStore) MatchPatterns(ctx context.Context, selectors []memory.PatternSelector, limit int) ([]memory.ActionPattern, error) {
	if len(selectors) == 0 {
		return []memory.ActionPattern{}, nil
	}

	clauses := make([]string, 0, len(selectors))
	args := make([]any, 0, len(selectors)*2+1)
	for _, sel := range selectors {
		clauses = append(clauses, "(kind = ? AND pattern_key = ?)")
		args = append(args, sel.Kind, sel.Key)
	}
	args = append(args, limit)

	query := `
		SELECT signature, kind, pattern_key, effectiveness, sample_count, success_rate, updated_at
		FROM patterns
		WHERE ` + strings.Join(clauses, " OR ") + `
		ORDER BY effectiveness DESC, signature ASC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBErr("matching patterns", err)
	}
	defer rows.Close()

	return scanPatterns(rows)
}

// PatternsUpdatedSince returns patterns updated at or after the cutoff.
func (s *SQLiteStore) PatternsUpdatedSince(ctx context.Context, cutoff time.Time) ([]memory.ActionPattern, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT signature, kind, pattern_key, effectiveness, sample_count, success_rate, updated_at
		FROM patterns
		WHERE updated_at >= ?
		ORDER BY effectiveness DESC, signature ASC
	`, cutoff.UTC())
	if err != nil {
		return nil, wrapDBErr("listing patterns", err)
	}
	defer rows.Close()

	return scanPatterns(rows)
}

func scanPatterns(rows *sql.Rows) ([]memory.ActionPattern, error) {
	patterns := []memory.ActionPattern{}
	for rows.Next() {
		var p memory.ActionPattern
		if err := rows.Scan(&p.Signature, &p.Kind, &p.Key, &p.Effectiveness, &p.SampleCount, &p.SuccessRate, &p.UpdatedAt); err != nil {
			return nil, wrapDBErr("scanning pattern", err)
		}
		patterns = append(patterns, p)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr("iterating patterns", err)
	}
	return patterns, nil
}

// AppendOutcome appends one outcome to the log.
func (s *SQLiteStore) AppendOutcome(ctx context.Context, o learning.Outcome) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO outcomes
			(id, actor_id, subject, action, result, profit_loss, reward, state, next_state, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, o.ID, o.ActorID, o.Subject, o.Action, o.Result, o.ProfitLoss, o.Reward, o.State, o.NextState, o.Timestamp.UTC())
	if err != nil {
		return wrapDBErr("appending outcome", err)
	}
	return nil
}

// OutcomesInRange returns outcomes with timestamps in [from, to), optionally
// filtered by scope.
func (s *SQLiteStore) OutcomesInRange(ctx context.Context, scope learning.Scope, from, to time.Time) ([]learning.Outcome, error) {
	query := `
		SELECT id, actor_id, subject, action, result, profit_loss, reward, state, next_state, ts
		FROM outcomes
		WHERE ts < ?
	`
	args := []any{to.UTC()}

	if !from.IsZero() {
		query += " AND ts >= ?"
		args = append(args, from.UTC())
	}
	if scope.ActorID != "" {
		query += " AND actor_id = ?"
		args = append(args, scope.ActorID)
	}
	if scope.Subject != "" {
		query += " AND subject = ?"
		args = append(args, scope.Subject)
	}
	query += " ORDER BY ts ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBErr("querying outcomes", err)
	}
	defer rows.Close()

	outcomes := []learning.Outcome{}
	for rows.Next() {
		var o learning.Outcome
		if err := rows.Scan(&o.ID, &o.ActorID, &o.Subject, &o.Action, &o.Result,
			&o.ProfitLoss, &o.Reward, &o.State, &o.NextState, &o.Timestamp); err != nil {
			return nil, wrapDBErr("scanning outcome", err)
		}
		outcomes = append(outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr("iterating outcomes", err)
	}
	return outcomes, nil
}

// AppendFeedback appends one processed feedback record.
func (s *SQLiteStore) AppendFeedback(ctx context.Context, rec learning.FeedbackRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO feedback (id, kind, value, text, actor_id, subject, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.Kind, rec.Value, rec.Text, rec.ActorID, rec.Subject, rec.Timestamp.UTC())
	if err != nil {
		return wrapDBErr("appending feedback", err)
	}
	return nil
}

// SaveQ replaces the persisted state-action values and exploration rate.
func (s *SQLiteStore) SaveQ(ctx context.Context, entries []learning.QEntry, explorationRate float64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapDBErr("starting transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM qvalues"); err != nil {
		return wrapDBErr("clearing q values", err)
	}

	for _, e := range entries {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO qvalues (state, action, value, visits) VALUES (?, ?, ?, ?)
		`, e.State, e.Action, e.Value, e.Visits); err != nil {
			return wrapDBErr("inserting q value", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO qmeta (k, v) VALUES ('exploration_rate', ?)
	`, explorationRate); err != nil {
		return wrapDBErr("saving exploration rate", err)
	}

	if err := tx.Commit(); err != nil {
		return wrapDBErr("committing q snapshot", err)
	}
	return nil
}

// LoadQ returns the persisted state-action values and exploration rate.
func (s *SQLiteStore) LoadQ(ctx context.Context) ([]learning.QEntry, float64, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT state, action, value, visits FROM qvalues")
	if err != nil {
		return nil, -1, wrapDBErr("loading q values", err)
	}
	defer rows.Close()

	entries := []learning.QEntry{}
	for rows.Next() {
		var e learning.QEntry
		if err := rows.Scan(&e.State, &e.Action, &e.Value, &e.Visits); err != nil {
			return nil, -1, wrapDBErr("scanning q value", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, -1, wrapDBErr("iterating q values", err)
	}

	rate := -1.0
	err = s.db.QueryRowContext(ctx, "SELECT v FROM qmeta WHERE k = 'exploration_rate'").Scan(&rate)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, -1, wrapDBErr("loading exploration rate", err)
	}

	return entries, rate, nil
}
