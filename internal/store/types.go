// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bertillon Contributors

package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/TojoRicardo/bertillon/internal/embedding"
)

// --- Subject types ---

// SubjectKind identifies which register an entity belongs to.
type SubjectKind string

const (
	// SubjectKindCriminalRecord is a known subject with a criminal record.
	SubjectKindCriminalRecord SubjectKind = "criminal_record"
	// SubjectKindUPR is an unidentified person record: a biometric sample
	// not yet matched to a known identity.
	SubjectKindUPR SubjectKind = "upr"
)

// SubjectRef identifies the entity owning a biometric record. A record is
// owned by exactly one subject: either a criminal record or a UPR entry,
// never both.
type SubjectRef struct {
	Kind SubjectKind
	ID   string
}

// String returns the stable "kind:id" form. It is the representation used
// for persistence, audit events, and lexicographic tie-breaking.
func (r SubjectRef) String() string {
	return string(r.Kind) + ":" + r.ID
}

// ParseSubjectRef parses the "kind:id" form produced by String.
func ParseSubjectRef(s string) (SubjectRef, error) {
	kind, id, ok := strings.Cut(s, ":")
	if !ok || id == "" {
		return SubjectRef{}, fmt.Errorf("malformed subject ref %q", s)
	}
	switch SubjectKind(kind) {
	case SubjectKindCriminalRecord, SubjectKindUPR:
		return SubjectRef{Kind: SubjectKind(kind), ID: id}, nil
	default:
		return SubjectRef{}, fmt.Errorf("unknown subject kind %q", kind)
	}
}

// --- Collection metadata ---

// LegalBasis is the judicial or administrative justification permitting
// collection and retention of a biometric sample.
type LegalBasis string

const (
	LegalBasisJudicialWarrant    LegalBasis = "judicial_warrant"
	LegalBasisFlagrantOffense    LegalBasis = "flagrant_offense"
	LegalBasisPreliminaryInquiry LegalBasis = "preliminary_inquiry"
	LegalBasisLettersRogatory    LegalBasis = "letters_rogatory"
	LegalBasisExplicitConsent    LegalBasis = "explicit_consent"
)

// Valid reports whether the basis is one of the recognised enum values.
func (b LegalBasis) Valid() bool {
	switch b {
	case LegalBasisJudicialWarrant, LegalBasisFlagrantOffense,
		LegalBasisPreliminaryInquiry, LegalBasisLettersRogatory,
		LegalBasisExplicitConsent:
		return true
	default:
		return false
	}
}

// SourceKind identifies the capture medium of a biometric sample.
type SourceKind string

const (
	SourceKindPhoto      SourceKind = "photo"
	SourceKindVideoFrame SourceKind = "video_frame"
)

// Valid reports whether the source kind is a recognised enum value.
func (k SourceKind) Valid() bool {
	return k == SourceKindPhoto || k == SourceKindVideoFrame
}

// --- Biometric record ---

// BiometricRecord owns exactly one embedding plus the legal metadata that
// governs its use. The Vector field is nil once the record has been purged;
// the remaining fields form the tombstone kept for audit continuity.
type BiometricRecord struct {
	ID              string
	Subject         SubjectRef
	Vector          embedding.Vector
	SourceKind      SourceKind
	LegalBasis      LegalBasis
	ConsentObtained bool
	// Confidence is the extraction model's detection confidence at
	// collection time, in [0, 1].
	Confidence  float64
	CollectedAt time.Time
	ExpiresAt   time.Time
	LegalStatus LegalStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// PopulationEntry is one member of the active population snapshot handed to
// the similarity search engine.
type PopulationEntry struct {
	RecordID    string
	Subject     SubjectRef
	Vector      embedding.Vector
	CollectedAt time.Time
}

// SweptRecord identifies one record transitioned to pending_deletion by an
// expiry sweep. The sweeper journals an audit event per swept record.
type SweptRecord struct {
	RecordID string
	Subject  SubjectRef
}

// --- Match attempt types ---

// MatchOutcome categorises the resolution of one similarity search.
type MatchOutcome string

const (
	// MatchOutcomeMatched is a single candidate above threshold.
	MatchOutcomeMatched MatchOutcome = "matched"
	// MatchOutcomeAmbiguous is multiple candidates above threshold; the
	// ranked list is reported, never auto-resolved to one winner.
	MatchOutcomeAmbiguous MatchOutcome = "ambiguous"
	// MatchOutcomeNoMatch is a completed search with no candidate above
	// threshold. Distinct from a failure.
	MatchOutcomeNoMatch MatchOutcome = "no_match"
	// MatchOutcomeFailed is a search that terminated before producing a
	// ranked result (normalization failure, empty population, cancellation).
	MatchOutcomeFailed MatchOutcome = "failed"
)

// CandidateSummary is the attempt's own copy of one ranked candidate. It
// never dereferences a live record: the referenced record may later be
// purged while the attempt survives.
type CandidateSummary struct {
	Subject SubjectRef `json:"subject_ref"`
	Score   float64    `json:"score"`
}

// MatchAttempt is the immutable audit record of one similarity search.
// It is created by the match resolution workflow and never mutated or
// deleted afterwards.
type MatchAttempt struct {
	ID            string
	QuerySubject  SubjectRef
	Justification string
	// Context names the threshold configuration the search ran under,
	// e.g. "upr_to_criminal" or "criminal_dedup".
	Context   string
	Timestamp time.Time
	// PopulationSize is the number of candidates actually searched.
	PopulationSize int
	// BestScore is the best remapped score found, nil when the workflow
	// failed before scoring anything. A failure is never recorded as a
	// fabricated zero score.
	BestScore *float64
	Threshold float64
	Outcome   MatchOutcome
	// MatchedSubject is set only for MatchOutcomeMatched.
	MatchedSubject *SubjectRef
	Candidates     []CandidateSummary
	// FailureCode is the error code that terminated the workflow, set only
	// for MatchOutcomeFailed.
	FailureCode string
}

// AttemptFilter specifies criteria for querying match attempts.
type AttemptFilter struct {
	QuerySubject string
	Context      string
	Outcome      MatchOutcome
	From         time.Time
	To           time.Time
	Limit        int
	Offset       int
}

// --- Audit types ---

// EventKind identifies the class of an audit event.
type EventKind string

const (
	EventKindRecordInserted EventKind = "record_inserted"
	EventKindRecordArchived EventKind = "record_archived"
	EventKindRecordExpired  EventKind = "record_expired"
	EventKindRecordPurged   EventKind = "record_purged"
	EventKindMatchResolved  EventKind = "match_resolved"
	EventKindRetentionSweep EventKind = "retention_sweep"
	EventKindAdminOverride  EventKind = "admin_override"
)

// AuditEvent is the structured event emitted to the audit journal for every
// match attempt and every retention state transition.
type AuditEvent struct {
	ID            string
	Timestamp     time.Time
	Actor         string
	Subject       string
	Kind          EventKind
	Outcome       string
	Justification string
	Details       map[string]any
}

// AuditFilter specifies criteria for querying audit events.
type AuditFilter struct {
	Kind    EventKind
	Actor   string
	Subject string
	From    time.Time
	To      time.Time
	Limit   int
	Offset  int
}

// --- Insert parameters ---

// InsertParams carries everything needed to create a biometric record from
// a legally valid collection event.
type InsertParams struct {
	Subject         SubjectRef
	RawVector       []float32
	SourceKind      SourceKind
	LegalBasis      LegalBasis
	ConsentObtained bool
	Confidence      float64
	// CollectedAt defaults to the store clock when zero.
	CollectedAt time.Time
}
