// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bertillon Contributors

package store

import (
	"context"
	"time"
)

// BiometricStore manages durable biometric records and their lifecycle.
//
// Concurrency contract: Insert is atomic with respect to ActivePopulation
// reads (a reader never observes a partially written record); the state
// transitions are serialized per record with a compare-and-swap on the
// legal status; SweepExpired may run concurrently with inserts and
// population reads without blocking them.
type BiometricStore interface {
	// Insert creates a record from a legally valid collection event. The
	// raw vector is normalized before persisting; normalization failures
	// are surfaced verbatim. Collection that the retention policy deems
	// non-collectible fails with the invalid-legal-basis code and leaves
	// the store unchanged.
	Insert(ctx context.Context, params InsertParams) (*BiometricRecord, error)

	Get(ctx context.Context, id string) (*BiometricRecord, error)

	// ActivePopulation returns a point-in-time copy of all records that are
	// legally usable for matching as of the given instant: legal status
	// active and not yet expired. It is the only view the similarity
	// search engine queries against.
	ActivePopulation(ctx context.Context, asOf time.Time) ([]PopulationEntry, error)

	// Archive transitions active → archived.
	Archive(ctx context.Context, id string) error

	// MarkPendingDeletion transitions active|archived → pending_deletion.
	MarkPendingDeletion(ctx context.Context, id string) error

	// Purge transitions pending_deletion → deleted, discards the vector,
	// and leaves a tombstone for audit continuity. With override true the
	// pending_deletion precondition is waived; the caller is responsible
	// for audit-logging the override.
	Purge(ctx context.Context, id string, override bool) error

	// SweepExpired transitions every active or archived record whose
	// expiry has passed to pending_deletion and returns the transitioned
	// records so each transition can be audit-logged individually.
	// Idempotent for a fixed now.
	SweepExpired(ctx context.Context, now time.Time) ([]SweptRecord, error)

	// FindExpiring returns records in active or archived state whose
	// expiry falls before the given instant.
	FindExpiring(ctx context.Context, before time.Time) ([]*BiometricRecord, error)

	Close() error
}

// MatchAttemptStore manages the immutable journal of similarity searches.
// Attempts are append-only: there is no update or delete surface.
type MatchAttemptStore interface {
	Record(ctx context.Context, attempt *MatchAttempt) error
	Query(ctx context.Context, filter AttemptFilter) ([]*MatchAttempt, error)
	Close() error
}

// AuditStore is the journal consumed by the external audit collaborator.
// Every match attempt and every retention state transition is appended
// exactly once.
type AuditStore interface {
	Append(ctx context.Context, event *AuditEvent) error
	Query(ctx context.Context, filter AuditFilter) ([]*AuditEvent, error)
	Close() error
}
