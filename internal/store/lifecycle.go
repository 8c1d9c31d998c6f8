// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bertillon Contributors

package store

// LegalStatus represents the lifecycle state of a biometric record.
//
// A record is created active, moves to archived when its case closes but
// retention is still legally required, to pending_deletion when its
// retention period expires, and to deleted when a purge sweep discards the
// vector. Transitions are monotonic: there is no way back to active.
type LegalStatus string

const (
	LegalStatusActive          LegalStatus = "active"
	LegalStatusArchived        LegalStatus = "archived"
	LegalStatusPendingDeletion LegalStatus = "pending_deletion"
	LegalStatusDeleted         LegalStatus = "deleted"
)

// Valid reports whether the status is a recognised enum value.
func (s LegalStatus) Valid() bool {
	switch s {
	case LegalStatusActive, LegalStatusArchived, LegalStatusPendingDeletion, LegalStatusDeleted:
		return true
	default:
		return false
	}
}

// validTransitions defines allowed legal-status transitions as an adjacency list.
var validTransitions = map[LegalStatus]map[LegalStatus]bool{
	LegalStatusActive: {
		LegalStatusArchived:        true,
		LegalStatusPendingDeletion: true,
	},
	LegalStatusArchived: {
		LegalStatusPendingDeletion: true,
	},
	LegalStatusPendingDeletion: {
		LegalStatusDeleted: true,
	},
	LegalStatusDeleted: {},
}

// ValidTransition returns true if transitioning from one status to another
// is allowed. Purging a record that has not passed through pending_deletion
// is rejected here; an explicit administrative override bypasses this check
// and must be audit-logged by the caller.
func ValidTransition(from, to LegalStatus) bool {
	allowed, exists := validTransitions[from][to]
	return exists && allowed
}

// PriorStatuses returns the statuses from which a record may legally move
// to the given status, in lifecycle order. Backends use this to build their
// compare-and-swap precondition.
func PriorStatuses(to LegalStatus) []LegalStatus {
	var prior []LegalStatus
	for _, from := range []LegalStatus{LegalStatusActive, LegalStatusArchived, LegalStatusPendingDeletion, LegalStatusDeleted} {
		if ValidTransition(from, to) {
			prior = append(prior, from)
		}
	}
	return prior
}
