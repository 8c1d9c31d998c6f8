// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bertillon Contributors

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/TojoRicardo/bertillon/internal/embedding"
	"github.com/TojoRicardo/bertillon/internal/store"
	berterr "github.com/TojoRicardo/bertillon/pkg/errors"
)

func init() {
	sqlite_vec.Auto()
}

// Compile-time interface check.
var _ store.BiometricStore = (*BiometricStore)(nil)

// BiometricStore implements store.BiometricStore backed by SQLite. Vectors
// are persisted in the sqlite-vec float32 blob format; every legally
// significant field is its own indexed column so each is independently
// queryable.
type BiometricStore struct {
	db     *sql.DB
	dims   int
	policy store.RetentionPolicy
}

// NewBiometricStore opens (or creates) a SQLite database at dbPath and
// initialises the biometric_records table.
func NewBiometricStore(dbPath string, dims int, policy store.RetentionPolicy) (*BiometricStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening records db: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging records db: %w", err)
	}

	if err := migrateBiometric(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating records db: %w", err)
	}

	return &BiometricStore{db: db, dims: dims, policy: policy}, nil
}

func migrateBiometric(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS biometric_records (
	id           TEXT PRIMARY KEY,
	subject_kind TEXT NOT NULL,
	subject_id   TEXT NOT NULL,
	vector       BLOB,
	source_kind  TEXT NOT NULL,
	legal_basis  TEXT NOT NULL,
	consent      INTEGER NOT NULL DEFAULT 0,
	confidence   REAL NOT NULL DEFAULT 0,
	collected_at TEXT NOT NULL,
	expires_at   TEXT NOT NULL,
	legal_status TEXT NOT NULL DEFAULT 'active',
	created_at   TEXT NOT NULL,
	updated_at   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_biometric_records_subject ON biometric_records(subject_kind, subject_id);
CREATE INDEX IF NOT EXISTS idx_biometric_records_status  ON biometric_records(legal_status);
CREATE INDEX IF NOT EXISTS idx_biometric_records_expires ON biometric_records(expires_at);
CREATE INDEX IF NOT EXISTS idx_biometric_records_basis   ON biometric_records(legal_basis);
`
	_, err := db.Exec(ddl)
	return err
}

// Insert creates a biometric record from a collection event. The raw vector
// is normalized before persisting; normalization and collectibility failures
// leave the store unchanged.
func (s *BiometricStore) Insert(ctx context.Context, params store.InsertParams) (*store.BiometricRecord, error) {
	if err := validateInsert(params); err != nil {
		return nil, err
	}

	if !s.policy.IsCollectible(params.Subject.Kind, params.ConsentObtained, params.LegalBasis) {
		return nil, berterr.New(berterr.CodeStoreInvalidLegalBasis,
			"collection is not legally permitted",
			berterr.FieldSubject(params.Subject.String()),
			berterr.FieldLegalBasis(string(params.LegalBasis)))
	}

	vec, err := embedding.Normalize(params.RawVector, s.dims)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	collectedAt := params.CollectedAt
	if collectedAt.IsZero() {
		collectedAt = now
	}

	rec := &store.BiometricRecord{
		ID:              uuid.NewString(),
		Subject:         params.Subject,
		Vector:          vec,
		SourceKind:      params.SourceKind,
		LegalBasis:      params.LegalBasis,
		ConsentObtained: params.ConsentObtained,
		Confidence:      params.Confidence,
		CollectedAt:     collectedAt,
		ExpiresAt:       s.policy.ExpiryOf(params.LegalBasis, collectedAt),
		LegalStatus:     store.LegalStatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	blob, err := sqlite_vec.SerializeFloat32(vec)
	if err != nil {
		return nil, fmt.Errorf("serializing embedding: %w", err)
	}

	const q = `INSERT INTO biometric_records
(id, subject_kind, subject_id, vector, source_kind, legal_basis, consent, confidence, collected_at, expires_at, legal_status, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, q,
		rec.ID, string(rec.Subject.Kind), rec.Subject.ID, blob,
		string(rec.SourceKind), string(rec.LegalBasis), boolToInt(rec.ConsentObtained), rec.Confidence,
		formatTime(rec.CollectedAt), formatTime(rec.ExpiresAt), string(rec.LegalStatus),
		formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt),
	)
	if err != nil {
		return nil, berterr.Wrapf(err, berterr.CodeStoreDatabaseFailure, "inserting record %s", rec.ID)
	}

	return rec, nil
}

func validateInsert(params store.InsertParams) error {
	switch {
	case params.Subject.ID == "":
		return invalidInput("subject id must not be empty")
	case params.Subject.Kind != store.SubjectKindCriminalRecord && params.Subject.Kind != store.SubjectKindUPR:
		return invalidInput(fmt.Sprintf("unknown subject kind %q", params.Subject.Kind))
	case !params.SourceKind.Valid():
		return invalidInput(fmt.Sprintf("unknown source kind %q", params.SourceKind))
	case !params.LegalBasis.Valid():
		return invalidInput(fmt.Sprintf("unknown legal basis %q", params.LegalBasis))
	default:
		return nil
	}
}

// invalidInput wraps the store sentinel so callers can classify with
// errors.Is as well as by code.
func invalidInput(msg string) error {
	return berterr.Wrap(store.ErrInvalidInput, berterr.CodeStoreInvalidInput, msg)
}

const recordColumns = `id, subject_kind, subject_id, vector, source_kind, legal_basis, consent, confidence, collected_at, expires_at, legal_status, created_at, updated_at`

// Get returns a record by ID, including tombstones of purged records (their
// Vector is nil).
func (s *BiometricStore) Get(ctx context.Context, id string) (*store.BiometricRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM biometric_records WHERE id = ?`, id)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, berterr.Wrap(store.ErrNotFound, berterr.CodeStoreRecordNotFound,
			"biometric record not found", berterr.FieldRecordID(id))
	}
	if err != nil {
		return nil, berterr.Wrapf(err, berterr.CodeStoreDatabaseFailure, "getting record %s", id)
	}
	return rec, nil
}

// ActivePopulation returns a point-in-time copy of all records usable for
// matching as of the given instant. Each entry owns a fresh vector slice;
// later writes never reach into a returned snapshot.
func (s *BiometricStore) ActivePopulation(ctx context.Context, asOf time.Time) ([]store.PopulationEntry, error) {
	const q = `SELECT id, subject_kind, subject_id, vector, collected_at
FROM biometric_records
WHERE legal_status = ? AND expires_at > ?
ORDER BY id`

	rows, err := s.db.QueryContext(ctx, q, string(store.LegalStatusActive), formatTime(asOf))
	if err != nil {
		return nil, berterr.Wrap(err, berterr.CodeStoreDatabaseFailure, "querying active population")
	}
	defer rows.Close() //nolint:errcheck // error on read-path close is not actionable

	var entries []store.PopulationEntry
	for rows.Next() {
		var e store.PopulationEntry
		var kind, subjectID, collectedAt string
		var blob []byte
		if err := rows.Scan(&e.RecordID, &kind, &subjectID, &blob, &collectedAt); err != nil {
			return nil, berterr.Wrap(err, berterr.CodeStoreDatabaseFailure, "scanning population row")
		}
		e.Subject = store.SubjectRef{Kind: store.SubjectKind(kind), ID: subjectID}
		e.Vector = deserializeVector(blob)
		e.CollectedAt = parseTime(collectedAt)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, berterr.Wrap(err, berterr.CodeStoreDatabaseFailure, "iterating population rows")
	}

	return entries, nil
}

// Archive transitions active → archived.
func (s *BiometricStore) Archive(ctx context.Context, id string) error {
	to := store.LegalStatusArchived
	return s.transition(ctx, id, to, store.PriorStatuses(to), false)
}

// MarkPendingDeletion transitions active|archived → pending_deletion.
func (s *BiometricStore) MarkPendingDeletion(ctx context.Context, id string) error {
	to := store.LegalStatusPendingDeletion
	return s.transition(ctx, id, to, store.PriorStatuses(to), false)
}

// Purge transitions pending_deletion → deleted and discards the vector,
// leaving a tombstone. With override true the pending_deletion precondition
// is waived; the caller must audit-log the override.
func (s *BiometricStore) Purge(ctx context.Context, id string, override bool) error {
	from := store.PriorStatuses(store.LegalStatusDeleted)
	if override {
		from = []store.LegalStatus{store.LegalStatusActive, store.LegalStatusArchived, store.LegalStatusPendingDeletion}
	}
	return s.transition(ctx, id, store.LegalStatusDeleted, from, true)
}

// transition performs a compare-and-swap on legal_status: the UPDATE only
// matches when the record is still in one of the expected prior states, so
// two concurrent administrative actions on the same record cannot both
// succeed.
func (s *BiometricStore) transition(ctx context.Context, id string, to store.LegalStatus, from []store.LegalStatus, dropVector bool) error {
	query := `UPDATE biometric_records SET legal_status = ?, updated_at = ?`
	if dropVector {
		query += `, vector = NULL`
	}
	query += ` WHERE id = ? AND legal_status IN (?` + repeatPlaceholder(len(from)-1) + `)`

	args := []any{string(to), formatTime(time.Now()), id}
	for _, st := range from {
		args = append(args, string(st))
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return berterr.Wrapf(err, berterr.CodeStoreDatabaseFailure, "transitioning record %s", id)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return berterr.Wrapf(err, berterr.CodeStoreDatabaseFailure, "checking rows for record %s", id)
	}
	if n == 0 {
		// Distinguish a missing record from one in the wrong state.
		var current string
		err := s.db.QueryRowContext(ctx, `SELECT legal_status FROM biometric_records WHERE id = ?`, id).Scan(&current)
		if err == sql.ErrNoRows {
			return berterr.Wrap(store.ErrNotFound, berterr.CodeStoreRecordNotFound,
				"biometric record not found", berterr.FieldRecordID(id))
		}
		if err != nil {
			return berterr.Wrapf(err, berterr.CodeStoreDatabaseFailure, "checking state of record %s", id)
		}
		return berterr.Wrap(store.ErrInvalidTransition, berterr.CodeStoreTransitionInvalid,
			fmt.Sprintf("cannot transition record from %s to %s", current, to),
			berterr.FieldRecordID(id))
	}
	return nil
}

// SweepExpired transitions every active or archived record whose expiry has
// passed to pending_deletion and reports which records it transitioned. A
// single UPDATE with RETURNING makes it atomic and idempotent for a fixed
// now; it never blocks concurrent inserts or population reads.
func (s *BiometricStore) SweepExpired(ctx context.Context, now time.Time) ([]store.SweptRecord, error) {
	const q = `UPDATE biometric_records
SET legal_status = ?, updated_at = ?
WHERE legal_status IN (?, ?) AND expires_at <= ?
RETURNING id, subject_kind, subject_id`

	rows, err := s.db.QueryContext(ctx, q,
		string(store.LegalStatusPendingDeletion), formatTime(now),
		string(store.LegalStatusActive), string(store.LegalStatusArchived),
		formatTime(now),
	)
	if err != nil {
		return nil, berterr.Wrap(err, berterr.CodeStoreDatabaseFailure, "sweeping expired records")
	}
	defer rows.Close() //nolint:errcheck // read-only rows

	var swept []store.SweptRecord
	for rows.Next() {
		var rec store.SweptRecord
		var kind string
		if err := rows.Scan(&rec.RecordID, &kind, &rec.Subject.ID); err != nil {
			return nil, berterr.Wrap(err, berterr.CodeStoreDatabaseFailure, "scanning swept record")
		}
		rec.Subject.Kind = store.SubjectKind(kind)
		swept = append(swept, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, berterr.Wrap(err, berterr.CodeStoreDatabaseFailure, "iterating swept records")
	}
	return swept, nil
}

// FindExpiring returns active or archived records whose expiry falls before
// the given instant, ordered soonest first.
func (s *BiometricStore) FindExpiring(ctx context.Context, before time.Time) ([]*store.BiometricRecord, error) {
	const q = `SELECT ` + recordColumns + `
FROM biometric_records
WHERE legal_status IN (?, ?) AND expires_at < ?
ORDER BY expires_at ASC`

	rows, err := s.db.QueryContext(ctx, q,
		string(store.LegalStatusActive), string(store.LegalStatusArchived), formatTime(before))
	if err != nil {
		return nil, berterr.Wrap(err, berterr.CodeStoreDatabaseFailure, "querying expiring records")
	}
	defer rows.Close() //nolint:errcheck // error on read-path close is not actionable

	var recs []*store.BiometricRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, berterr.Wrap(err, berterr.CodeStoreDatabaseFailure, "scanning record row")
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, berterr.Wrap(err, berterr.CodeStoreDatabaseFailure, "iterating record rows")
	}
	return recs, nil
}

// Close closes the underlying database connection.
func (s *BiometricStore) Close() error {
	return s.db.Close()
}

// rowScanner abstracts *sql.Row and *sql.Rows for record scanning.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*store.BiometricRecord, error) {
	var rec store.BiometricRecord
	var kind, subjectID, sourceKind, basis, status string
	var consent int
	var blob []byte
	var collectedAt, expiresAt, createdAt, updatedAt string

	err := row.Scan(&rec.ID, &kind, &subjectID, &blob, &sourceKind, &basis, &consent,
		&rec.Confidence, &collectedAt, &expiresAt, &status, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	rec.Subject = store.SubjectRef{Kind: store.SubjectKind(kind), ID: subjectID}
	rec.Vector = deserializeVector(blob)
	rec.SourceKind = store.SourceKind(sourceKind)
	rec.LegalBasis = store.LegalBasis(basis)
	rec.ConsentObtained = consent != 0
	rec.LegalStatus = store.LegalStatus(status)
	rec.CollectedAt = parseTime(collectedAt)
	rec.ExpiresAt = parseTime(expiresAt)
	rec.CreatedAt = parseTime(createdAt)
	rec.UpdatedAt = parseTime(updatedAt)

	return &rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// repeatPlaceholder returns n occurrences of ", ?".
func repeatPlaceholder(n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += ", ?"
	}
	return out
}
