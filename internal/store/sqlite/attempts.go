// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bertillon Contributors

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/TojoRicardo/bertillon/internal/store"
	berterr "github.com/TojoRicardo/bertillon/pkg/errors"
)

// Compile-time interface check.
var _ store.MatchAttemptStore = (*MatchAttemptStore)(nil)

// MatchAttemptStore implements store.MatchAttemptStore backed by SQLite.
// The table is append-only: no update or delete statement exists in this
// package, preserving the immutability of recorded attempts.
type MatchAttemptStore struct {
	db *sql.DB
}

// NewMatchAttemptStore opens (or creates) a SQLite database at dbPath and
// initialises the match_attempts table.
func NewMatchAttemptStore(dbPath string) (*MatchAttemptStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening attempts db: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging attempts db: %w", err)
	}

	if err := migrateAttempts(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating attempts db: %w", err)
	}

	return &MatchAttemptStore{db: db}, nil
}

func migrateAttempts(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS match_attempts (
	id              TEXT PRIMARY KEY,
	query_subject   TEXT NOT NULL,
	justification   TEXT NOT NULL,
	context         TEXT NOT NULL DEFAULT '',
	timestamp       TEXT NOT NULL,
	population_size INTEGER NOT NULL DEFAULT 0,
	best_score      REAL,
	threshold       REAL NOT NULL DEFAULT 0,
	outcome         TEXT NOT NULL,
	matched_subject TEXT NOT NULL DEFAULT '',
	candidates      TEXT NOT NULL DEFAULT '[]',
	failure_code    TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_match_attempts_timestamp ON match_attempts(timestamp);
CREATE INDEX IF NOT EXISTS idx_match_attempts_outcome   ON match_attempts(outcome);
CREATE INDEX IF NOT EXISTS idx_match_attempts_subject   ON match_attempts(query_subject);
`
	_, err := db.Exec(ddl)
	return err
}

// Record appends one match attempt to the journal.
func (s *MatchAttemptStore) Record(ctx context.Context, attempt *store.MatchAttempt) error {
	if attempt.ID == "" {
		return berterr.New(berterr.CodeStoreInvalidInput, "attempt id must not be empty")
	}
	if attempt.Justification == "" {
		return berterr.New(berterr.CodeStoreInvalidInput, "attempt justification must not be empty",
			berterr.FieldAttemptID(attempt.ID))
	}

	candidates := "[]"
	if len(attempt.Candidates) > 0 {
		b, err := json.Marshal(attempt.Candidates)
		if err != nil {
			return fmt.Errorf("marshalling attempt candidates: %w", err)
		}
		candidates = string(b)
	}

	matched := ""
	if attempt.MatchedSubject != nil {
		matched = attempt.MatchedSubject.String()
	}

	var bestScore sql.NullFloat64
	if attempt.BestScore != nil {
		bestScore = sql.NullFloat64{Float64: *attempt.BestScore, Valid: true}
	}

	const q = `INSERT INTO match_attempts
(id, query_subject, justification, context, timestamp, population_size, best_score, threshold, outcome, matched_subject, candidates, failure_code)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, q,
		attempt.ID, attempt.QuerySubject.String(), attempt.Justification, attempt.Context,
		formatTime(attempt.Timestamp), attempt.PopulationSize, bestScore, attempt.Threshold,
		string(attempt.Outcome), matched, candidates, attempt.FailureCode,
	)
	if err != nil {
		return berterr.Wrapf(err, berterr.CodeStoreDatabaseFailure, "recording attempt %s", attempt.ID)
	}
	return nil
}

// Query returns attempts matching the filter, oldest first.
func (s *MatchAttemptStore) Query(ctx context.Context, filter store.AttemptFilter) ([]*store.MatchAttempt, error) {
	var qb strings.Builder
	qb.WriteString(`SELECT id, query_subject, justification, context, timestamp, population_size, best_score, threshold, outcome, matched_subject, candidates, failure_code FROM match_attempts`)

	var conditions []string
	var args []any

	if filter.QuerySubject != "" {
		conditions = append(conditions, "query_subject = ?")
		args = append(args, filter.QuerySubject)
	}
	if filter.Context != "" {
		conditions = append(conditions, "context = ?")
		args = append(args, filter.Context)
	}
	if filter.Outcome != "" {
		conditions = append(conditions, "outcome = ?")
		args = append(args, string(filter.Outcome))
	}
	if !filter.From.IsZero() {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, formatTime(filter.From))
	}
	if !filter.To.IsZero() {
		conditions = append(conditions, "timestamp < ?")
		args = append(args, formatTime(filter.To))
	}

	if len(conditions) > 0 {
		qb.WriteString(" WHERE ")
		qb.WriteString(strings.Join(conditions, " AND "))
	}

	qb.WriteString(" ORDER BY timestamp ASC")

	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}
	qb.WriteString(" LIMIT ? OFFSET ?")
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, berterr.Wrap(err, berterr.CodeStoreDatabaseFailure, "querying match attempts")
	}
	defer rows.Close() //nolint:errcheck // error on read-path close is not actionable

	var attempts []*store.MatchAttempt
	for rows.Next() {
		var a store.MatchAttempt
		var querySubject, ts, matched, candidatesJSON, outcome string
		var bestScore sql.NullFloat64
		if err := rows.Scan(
			&a.ID, &querySubject, &a.Justification, &a.Context, &ts,
			&a.PopulationSize, &bestScore, &a.Threshold, &outcome, &matched,
			&candidatesJSON, &a.FailureCode,
		); err != nil {
			return nil, berterr.Wrap(err, berterr.CodeStoreDatabaseFailure, "scanning attempt row")
		}

		ref, err := store.ParseSubjectRef(querySubject)
		if err != nil {
			return nil, berterr.Wrapf(err, berterr.CodeStoreDatabaseFailure, "parsing attempt %s query subject", a.ID)
		}
		a.QuerySubject = ref
		a.Timestamp = parseTime(ts)
		a.Outcome = store.MatchOutcome(outcome)

		if bestScore.Valid {
			score := bestScore.Float64
			a.BestScore = &score
		}
		if matched != "" {
			m, err := store.ParseSubjectRef(matched)
			if err != nil {
				return nil, berterr.Wrapf(err, berterr.CodeStoreDatabaseFailure, "parsing attempt %s matched subject", a.ID)
			}
			a.MatchedSubject = &m
		}
		if candidatesJSON != "" && candidatesJSON != "[]" {
			if err := json.Unmarshal([]byte(candidatesJSON), &a.Candidates); err != nil {
				return nil, berterr.Wrapf(err, berterr.CodeStoreDatabaseFailure, "unmarshalling attempt %s candidates", a.ID)
			}
		}

		attempts = append(attempts, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, berterr.Wrap(err, berterr.CodeStoreDatabaseFailure, "iterating attempt rows")
	}
	return attempts, nil
}

// Close closes the underlying database connection.
func (s *MatchAttemptStore) Close() error {
	return s.db.Close()
}
