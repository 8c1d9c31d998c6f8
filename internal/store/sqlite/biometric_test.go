// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bertillon Contributors

package sqlite_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/TojoRicardo/bertillon/internal/store"
	berterr "github.com/TojoRicardo/bertillon/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBiometricStoreInsertGet(t *testing.T) {
	bs := newTestBiometricStore(t)
	ctx := context.Background()

	rec, err := bs.Insert(ctx, suspectParams("CR-1001", []float32{3, 0, 4, 0}))
	require.NoError(t, err)
	require.NotEmpty(t, rec.ID)
	assert.Equal(t, store.LegalStatusActive, rec.LegalStatus)

	got, err := bs.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, rec.Subject, got.Subject)
	assert.Equal(t, store.SourceKindPhoto, got.SourceKind)
	assert.Equal(t, store.LegalBasisJudicialWarrant, got.LegalBasis)
	assert.InDelta(t, 0.99, got.Confidence, 1e-9)

	// Stored vector is the normalized form of the raw input.
	require.Len(t, got.Vector, testDims)
	assert.InDelta(t, 0.6, float64(got.Vector[0]), 1e-6)
	assert.InDelta(t, 0.8, float64(got.Vector[2]), 1e-6)

	// Default policy: expiry is 5 years after collection.
	assert.Equal(t, got.CollectedAt.Add(5*365*24*time.Hour), got.ExpiresAt)
}

func TestBiometricStoreInsertValidation(t *testing.T) {
	bs := newTestBiometricStore(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*store.InsertParams)
	}{
		{"empty subject id", func(p *store.InsertParams) { p.Subject.ID = "" }},
		{"unknown subject kind", func(p *store.InsertParams) { p.Subject.Kind = "witness" }},
		{"unknown source kind", func(p *store.InsertParams) { p.SourceKind = "sketch" }},
		{"unknown legal basis", func(p *store.InsertParams) { p.LegalBasis = "hunch" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := suspectParams("CR-1002", []float32{1, 0, 0, 0})
			tt.mutate(&params)

			_, err := bs.Insert(ctx, params)
			require.Error(t, err)
			assert.True(t, berterr.IsInvalidInput(err))
			assert.ErrorIs(t, err, store.ErrInvalidInput)
		})
	}
}

func TestBiometricStoreInsertRejectsNonCollectible(t *testing.T) {
	bs := newTestBiometricStore(t)
	ctx := context.Background()

	// A UPR sample without consent may not be collected, and the rejection
	// must leave the store unchanged.
	params := store.InsertParams{
		Subject:    store.SubjectRef{Kind: store.SubjectKindUPR, ID: "UPR-7"},
		RawVector:  []float32{0, 1, 0, 0},
		SourceKind: store.SourceKindVideoFrame,
		LegalBasis: store.LegalBasisPreliminaryInquiry,
	}

	_, err := bs.Insert(ctx, params)
	require.Error(t, err)
	assert.True(t, berterr.HasCode(err, berterr.CodeStoreInvalidLegalBasis))

	pop, err := bs.ActivePopulation(ctx, time.Now())
	require.NoError(t, err)
	assert.Empty(t, pop)

	// The same sample with consent is admissible.
	params.ConsentObtained = true
	_, err = bs.Insert(ctx, params)
	require.NoError(t, err)

	pop, err = bs.ActivePopulation(ctx, time.Now())
	require.NoError(t, err)
	assert.Len(t, pop, 1)
}

func TestBiometricStoreInsertRejectsConsentBasisWithoutConsent(t *testing.T) {
	bs := newTestBiometricStore(t)

	params := suspectParams("CR-1003", []float32{1, 0, 0, 0})
	params.LegalBasis = store.LegalBasisExplicitConsent

	_, err := bs.Insert(context.Background(), params)
	require.Error(t, err)
	assert.True(t, berterr.HasCode(err, berterr.CodeStoreInvalidLegalBasis))
}

func TestBiometricStoreInsertRejectsDegenerateVector(t *testing.T) {
	bs := newTestBiometricStore(t)

	_, err := bs.Insert(context.Background(), suspectParams("CR-1004", []float32{0, 0, 0, 0}))
	require.Error(t, err)
	assert.True(t, berterr.IsDegenerateVector(err))

	pop, err := bs.ActivePopulation(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Empty(t, pop)
}

func TestBiometricStoreGetNotFound(t *testing.T) {
	bs := newTestBiometricStore(t)

	_, err := bs.Get(context.Background(), "no-such-id")
	require.Error(t, err)
	assert.True(t, berterr.IsNotFound(err))
}

func TestBiometricStoreActivePopulationExcludesExpired(t *testing.T) {
	bs := newTestBiometricStore(t)
	ctx := context.Background()

	fresh, err := bs.Insert(ctx, suspectParams("CR-2001", []float32{1, 0, 0, 0}))
	require.NoError(t, err)

	stale := suspectParams("CR-2002", []float32{0, 1, 0, 0})
	stale.CollectedAt = collectedLongAgo()
	staleRec, err := bs.Insert(ctx, stale)
	require.NoError(t, err)

	// The expired record is still legal_status=active but its expiry has
	// passed, so it never reaches the search population.
	pop, err := bs.ActivePopulation(ctx, time.Now())
	require.NoError(t, err)
	require.Len(t, pop, 1)
	assert.Equal(t, fresh.ID, pop[0].RecordID)

	got, err := bs.Get(ctx, staleRec.ID)
	require.NoError(t, err)
	assert.Equal(t, store.LegalStatusActive, got.LegalStatus)
}

func TestBiometricStoreActivePopulationSnapshotIsolation(t *testing.T) {
	bs := newTestBiometricStore(t)
	ctx := context.Background()

	rec, err := bs.Insert(ctx, suspectParams("CR-2003", []float32{1, 0, 0, 0}))
	require.NoError(t, err)

	pop, err := bs.ActivePopulation(ctx, time.Now())
	require.NoError(t, err)
	require.Len(t, pop, 1)

	// Archiving after the snapshot does not disturb the snapshot itself.
	require.NoError(t, bs.Archive(ctx, rec.ID))
	assert.Equal(t, rec.ID, pop[0].RecordID)
	assert.InDelta(t, 1.0, float64(pop[0].Vector[0]), 1e-6)

	after, err := bs.ActivePopulation(ctx, time.Now())
	require.NoError(t, err)
	assert.Empty(t, after)
}

func TestBiometricStoreLifecycleTransitions(t *testing.T) {
	bs := newTestBiometricStore(t)
	ctx := context.Background()

	rec, err := bs.Insert(ctx, suspectParams("CR-3001", []float32{1, 0, 0, 0}))
	require.NoError(t, err)

	require.NoError(t, bs.Archive(ctx, rec.ID))
	require.NoError(t, bs.MarkPendingDeletion(ctx, rec.ID))
	require.NoError(t, bs.Purge(ctx, rec.ID, false))

	got, err := bs.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, store.LegalStatusDeleted, got.LegalStatus)
	// Tombstone: the vector is gone, the metadata survives.
	assert.Nil(t, got.Vector)
	assert.Equal(t, rec.Subject, got.Subject)
}

func TestBiometricStoreTransitionRejected(t *testing.T) {
	bs := newTestBiometricStore(t)
	ctx := context.Background()

	rec, err := bs.Insert(ctx, suspectParams("CR-3002", []float32{1, 0, 0, 0}))
	require.NoError(t, err)

	// Purge straight from active requires the override flag.
	err = bs.Purge(ctx, rec.ID, false)
	require.Error(t, err)
	assert.True(t, berterr.IsInvalidTransition(err))

	require.NoError(t, bs.Purge(ctx, rec.ID, true))

	// Deleted is terminal even under override.
	err = bs.Archive(ctx, rec.ID)
	require.Error(t, err)
	assert.True(t, berterr.IsInvalidTransition(err))

	err = bs.Archive(ctx, "no-such-id")
	require.Error(t, err)
	assert.True(t, berterr.IsNotFound(err))
}

func TestBiometricStoreConcurrentTransitionsOneWins(t *testing.T) {
	bs := newTestBiometricStore(t)
	ctx := context.Background()

	rec, err := bs.Insert(ctx, suspectParams("CR-3003", []float32{1, 0, 0, 0}))
	require.NoError(t, err)

	// An archive and an override purge race on the same record. The
	// compare-and-swap guarantees exactly one of them lands first; the
	// loser either fails the state check or finds the record already
	// purgeable, but the final state is never ambiguous.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		errs[0] = bs.Archive(ctx, rec.ID)
	}()
	go func() {
		defer wg.Done()
		errs[1] = bs.Purge(ctx, rec.ID, true)
	}()
	wg.Wait()

	got, err := bs.Get(ctx, rec.ID)
	require.NoError(t, err)

	if errs[1] == nil {
		assert.Equal(t, store.LegalStatusDeleted, got.LegalStatus)
		assert.Nil(t, got.Vector)
	} else {
		require.NoError(t, errs[0])
		assert.Equal(t, store.LegalStatusArchived, got.LegalStatus)
	}
}

func TestBiometricStoreSweepExpired(t *testing.T) {
	bs := newTestBiometricStore(t)
	ctx := context.Background()
	now := time.Now()

	fresh, err := bs.Insert(ctx, suspectParams("CR-4001", []float32{1, 0, 0, 0}))
	require.NoError(t, err)

	stale := suspectParams("CR-4002", []float32{0, 1, 0, 0})
	stale.CollectedAt = collectedLongAgo()
	staleRec, err := bs.Insert(ctx, stale)
	require.NoError(t, err)

	staleArchived := suspectParams("CR-4003", []float32{0, 0, 1, 0})
	staleArchived.CollectedAt = collectedLongAgo()
	archivedRec, err := bs.Insert(ctx, staleArchived)
	require.NoError(t, err)
	require.NoError(t, bs.Archive(ctx, archivedRec.ID))

	swept, err := bs.SweepExpired(ctx, now)
	require.NoError(t, err)
	require.Len(t, swept, 2)

	// Each transitioned record is reported with its subject so the sweep
	// can be audit-logged per record.
	byID := map[string]store.SweptRecord{}
	for _, rec := range swept {
		byID[rec.RecordID] = rec
	}
	assert.Equal(t, staleRec.Subject, byID[staleRec.ID].Subject)
	assert.Equal(t, archivedRec.Subject, byID[archivedRec.ID].Subject)

	// Idempotent: a second sweep at the same instant transitions nothing.
	swept, err = bs.SweepExpired(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, swept)

	for _, id := range []string{staleRec.ID, archivedRec.ID} {
		got, err := bs.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, store.LegalStatusPendingDeletion, got.LegalStatus)
	}

	got, err := bs.Get(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, store.LegalStatusActive, got.LegalStatus)
}

func TestBiometricStoreFindExpiring(t *testing.T) {
	bs := newTestBiometricStore(t)
	ctx := context.Background()

	soon := suspectParams("CR-5001", []float32{1, 0, 0, 0})
	soon.CollectedAt = time.Now().Add(-5*365*24*time.Hour + time.Hour)
	soonRec, err := bs.Insert(ctx, soon)
	require.NoError(t, err)

	_, err = bs.Insert(ctx, suspectParams("CR-5002", []float32{0, 1, 0, 0}))
	require.NoError(t, err)

	expiring, err := bs.FindExpiring(ctx, time.Now().Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, expiring, 1)
	assert.Equal(t, soonRec.ID, expiring[0].ID)
}
