// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bertillon Contributors

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/TojoRicardo/bertillon/internal/store"
	berterr "github.com/TojoRicardo/bertillon/pkg/errors"
)

// Compile-time interface check.
var _ store.AuditStore = (*AuditStore)(nil)

// AuditStore implements store.AuditStore backed by SQLite. It is the
// journal the external audit collaborator consumes; append-only.
type AuditStore struct {
	db *sql.DB
}

// NewAuditStore opens (or creates) a SQLite database at dbPath and
// initialises the audit_journal table.
func NewAuditStore(dbPath string) (*AuditStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening audit db: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging audit db: %w", err)
	}

	if err := migrateAudit(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating audit db: %w", err)
	}

	return &AuditStore{db: db}, nil
}

func migrateAudit(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS audit_journal (
	id            TEXT PRIMARY KEY,
	timestamp     TEXT NOT NULL,
	actor         TEXT NOT NULL DEFAULT '',
	subject_ref   TEXT NOT NULL DEFAULT '',
	event_kind    TEXT NOT NULL DEFAULT '',
	outcome       TEXT NOT NULL DEFAULT '',
	justification TEXT NOT NULL DEFAULT '',
	details       TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_audit_journal_timestamp ON audit_journal(timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_journal_kind      ON audit_journal(event_kind);
CREATE INDEX IF NOT EXISTS idx_audit_journal_actor     ON audit_journal(actor);
`
	_, err := db.Exec(ddl)
	return err
}

// Append writes one event to the journal.
func (s *AuditStore) Append(ctx context.Context, event *store.AuditEvent) error {
	id := event.ID
	if id == "" {
		id = uuid.NewString()
	}

	details := "{}"
	if event.Details != nil {
		b, err := json.Marshal(event.Details)
		if err != nil {
			return fmt.Errorf("marshalling audit details: %w", err)
		}
		details = string(b)
	}

	const q = `INSERT INTO audit_journal (id, timestamp, actor, subject_ref, event_kind, outcome, justification, details)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, q,
		id, formatTime(event.Timestamp), event.Actor, event.Subject,
		string(event.Kind), event.Outcome, event.Justification, details,
	)
	if err != nil {
		return berterr.Wrapf(err, berterr.CodeStoreDatabaseFailure, "appending audit event %s", id)
	}
	return nil
}

// Query returns events matching the filter, oldest first.
func (s *AuditStore) Query(ctx context.Context, filter store.AuditFilter) ([]*store.AuditEvent, error) {
	var qb strings.Builder
	qb.WriteString(`SELECT id, timestamp, actor, subject_ref, event_kind, outcome, justification, details FROM audit_journal`)

	var conditions []string
	var args []any

	if filter.Kind != "" {
		conditions = append(conditions, "event_kind = ?")
		args = append(args, string(filter.Kind))
	}
	if filter.Actor != "" {
		conditions = append(conditions, "actor = ?")
		args = append(args, filter.Actor)
	}
	if filter.Subject != "" {
		conditions = append(conditions, "subject_ref = ?")
		args = append(args, filter.Subject)
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
		return nil, berterr.Wrap(err, berterr.CodeStoreDatabaseFailure, "querying audit journal")
	}
	defer rows.Close() //nolint:errcheck // error on read-path close is not actionable

	var events []*store.AuditEvent
	for rows.Next() {
		var e store.AuditEvent
		var ts, kind, detailsJSON string
		if err := rows.Scan(
			&e.ID, &ts, &e.Actor, &e.Subject, &kind, &e.Outcome, &e.Justification, &detailsJSON,
		); err != nil {
			return nil, berterr.Wrap(err, berterr.CodeStoreDatabaseFailure, "scanning audit row")
		}
		e.Timestamp = parseTime(ts)
		e.Kind = store.EventKind(kind)
		if detailsJSON != "" && detailsJSON != "{}" {
			if err := json.Unmarshal([]byte(detailsJSON), &e.Details); err != nil {
				return nil, berterr.Wrapf(err, berterr.CodeStoreDatabaseFailure, "unmarshalling audit event %s details", e.ID)
			}
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, berterr.Wrap(err, berterr.CodeStoreDatabaseFailure, "iterating audit rows")
	}
	return events, nil
}

// Close closes the underlying database connection.
func (s *AuditStore) Close() error {
	return s.db.Close()
}
