// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bertillon Contributors

// Package retention encodes the legal rules governing biometric collection
// and the lifetime of stored records: what may be collected, for how long it
// may be kept, and the scheduled sweep that expires it.
package retention

import (
	"time"

	"github.com/TojoRicardo/bertillon/internal/store"
)

// DefaultPeriod is the fallback retention period applied to any legal basis
// without a configured override: 5 years.
const DefaultPeriod = 5 * 365 * 24 * time.Hour

// Policy maps each legal basis to a retention period and encodes the
// collectibility rules. Periods come from configuration, never from
// constants scattered across call sites.
type Policy struct {
	defaultPeriod time.Duration
	periods       map[store.LegalBasis]time.Duration
}

// Compile-time interface check.
var _ store.RetentionPolicy = (*Policy)(nil)

// NewPolicy creates a policy with the given default period and per-basis
// overrides. A non-positive default falls back to DefaultPeriod; overrides
// with non-positive durations are ignored.
func NewPolicy(defaultPeriod time.Duration, overrides map[store.LegalBasis]time.Duration) *Policy {
	if defaultPeriod <= 0 {
		defaultPeriod = DefaultPeriod
	}

	periods := make(map[store.LegalBasis]time.Duration, len(overrides))
	for basis, d := range overrides {
		if basis.Valid() && d > 0 {
			periods[basis] = d
		}
	}

	return &Policy{defaultPeriod: defaultPeriod, periods: periods}
}

// Period returns the retention period for a legal basis.
func (p *Policy) Period(basis store.LegalBasis) time.Duration {
	if d, ok := p.periods[basis]; ok {
		return d
	}
	return p.defaultPeriod
}

// ExpiryOf computes the expiry instant for a record collected at the given
// time under the given basis.
func (p *Policy) ExpiryOf(basis store.LegalBasis, collectedAt time.Time) time.Time {
	return collectedAt.Add(p.Period(basis))
}

// IsCollectible reports whether a biometric sample may legally be collected.
// A known subject under a judicial basis is collectible without consent;
// every other collection, including unidentified person records, requires
// explicit consent. This is the single predicate
// enforced by the store's Insert and by the backfill tooling.
func (p *Policy) IsCollectible(kind store.SubjectKind, consent bool, basis store.LegalBasis) bool {
	if !basis.Valid() {
		return false
	}

	if kind == store.SubjectKindCriminalRecord && basis != store.LegalBasisExplicitConsent {
		return true
	}

	return consent
}
