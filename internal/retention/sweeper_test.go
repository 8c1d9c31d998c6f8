// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bertillon Contributors

package retention_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/TojoRicardo/bertillon/internal/retention"
	"github.com/TojoRicardo/bertillon/internal/store"
	berterr "github.com/TojoRicardo/bertillon/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBiometricStore stubs only the sweep path; other methods are unused here.
type fakeBiometricStore struct {
	store.BiometricStore

	swept    []store.SweptRecord
	sweepErr error
	sweeps   int
}

func (f *fakeBiometricStore) SweepExpired(_ context.Context, _ time.Time) ([]store.SweptRecord, error) {
	f.sweeps++
	return f.swept, f.sweepErr
}

func sweptSuspect(id string) store.SweptRecord {
	return store.SweptRecord{
		RecordID: "rec-" + id,
		Subject:  store.SubjectRef{Kind: store.SubjectKindCriminalRecord, ID: id},
	}
}

type fakeAuditStore struct {
	store.AuditStore

	events    []*store.AuditEvent
	appendErr error
}

func (f *fakeAuditStore) Append(_ context.Context, event *store.AuditEvent) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.events = append(f.events, event)
	return nil
}

func TestSweepOnceAppendsPerRecordEvents(t *testing.T) {
	bs := &fakeBiometricStore{swept: []store.SweptRecord{
		sweptSuspect("CR-9001"),
		sweptSuspect("CR-9002"),
	}}
	audit := &fakeAuditStore{}
	s := retention.NewSweeper(bs, audit, time.Hour, nil)

	count, err := s.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	// One record_expired event per swept record, then the summary.
	require.Len(t, audit.events, 3)
	for i, subject := range []string{"criminal_record:CR-9001", "criminal_record:CR-9002"} {
		event := audit.events[i]
		assert.Equal(t, store.EventKindRecordExpired, event.Kind)
		assert.Equal(t, retention.SweeperActor, event.Actor)
		assert.Equal(t, subject, event.Subject)
		assert.Equal(t, string(store.LegalStatusPendingDeletion), event.Outcome)
		assert.Equal(t, bs.swept[i].RecordID, event.Details["record_id"])
		assert.NotEmpty(t, event.ID)
	}

	summary := audit.events[2]
	assert.Equal(t, store.EventKindRetentionSweep, summary.Kind)
	assert.Equal(t, retention.SweeperActor, summary.Actor)
	assert.Equal(t, "transitioned=2", summary.Outcome)
	assert.NotEmpty(t, summary.ID)
}

func TestSweepOnceWithNothingExpired(t *testing.T) {
	bs := &fakeBiometricStore{}
	audit := &fakeAuditStore{}
	s := retention.NewSweeper(bs, audit, time.Hour, nil)

	count, err := s.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)

	// Only the summary event when nothing was transitioned.
	require.Len(t, audit.events, 1)
	assert.Equal(t, store.EventKindRetentionSweep, audit.events[0].Kind)
	assert.Equal(t, "transitioned=0", audit.events[0].Outcome)
}

func TestSweepOnceSurfacesStoreFailure(t *testing.T) {
	bs := &fakeBiometricStore{sweepErr: errors.New("disk full")}
	audit := &fakeAuditStore{}
	s := retention.NewSweeper(bs, audit, time.Hour, nil)

	_, err := s.SweepOnce(context.Background())
	require.Error(t, err)
	assert.True(t, berterr.HasCode(err, berterr.CodeRetentionSweepFailure))
	assert.Empty(t, audit.events)
}

func TestSweepOnceSurfacesAuditFailure(t *testing.T) {
	bs := &fakeBiometricStore{swept: []store.SweptRecord{sweptSuspect("CR-9003")}}
	audit := &fakeAuditStore{appendErr: errors.New("journal unavailable")}
	s := retention.NewSweeper(bs, audit, time.Hour, nil)

	count, err := s.SweepOnce(context.Background())
	require.Error(t, err)
	assert.True(t, berterr.HasCode(err, berterr.CodeRetentionSweepFailure))
	// The sweep itself committed before the journal failed.
	assert.Equal(t, int64(1), count)
}

func TestRunSweepsImmediatelyAndStopsOnCancel(t *testing.T) {
	bs := &fakeBiometricStore{}
	audit := &fakeAuditStore{}
	s := retention.NewSweeper(bs, audit, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	// The initial sweep runs before the first tick.
	assert.Eventually(t, func() bool { return bs.sweeps >= 1 }, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}
