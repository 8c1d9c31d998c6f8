// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bertillon Contributors

package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TojoRicardo/bertillon/internal/store"
	"github.com/TojoRicardo/bertillon/internal/store/sqlite"
)

func newTestAuditStore(t *testing.T) *sqlite.AuditStore {
	t.Helper()
	as, err := sqlite.NewAuditStore(testDBPath(t, "journal"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = as.Close() })
	return as
}

func TestAuditStoreAppendQuery(t *testing.T) {
	as := newTestAuditStore(t)
	ctx := context.Background()

	event := &store.AuditEvent{
		Timestamp:     time.Now(),
		Actor:         "examiner-17",
		Subject:       "upr:UPR-3",
		Kind:          store.EventKindMatchResolved,
		Outcome:       "matched",
		Justification: "case 2026/114 identification",
		Details:       map[string]any{"attempt_id": "a-1", "best_score": 0.91},
	}
	require.NoError(t, as.Append(ctx, event))

	got, err := as.Query(ctx, store.AuditFilter{Kind: store.EventKindMatchResolved})
	require.NoError(t, err)
	require.Len(t, got, 1)

	e := got[0]
	// Append assigns an id when the caller leaves it empty.
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, "examiner-17", e.Actor)
	assert.Equal(t, "upr:UPR-3", e.Subject)
	assert.Equal(t, "matched", e.Outcome)
	assert.Equal(t, "case 2026/114 identification", e.Justification)
	assert.Equal(t, "a-1", e.Details["attempt_id"])
}

func TestAuditStoreQueryFilters(t *testing.T) {
	as := newTestAuditStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	events := []*store.AuditEvent{
		{Timestamp: base, Actor: "retention-sweeper", Kind: store.EventKindRetentionSweep, Outcome: "transitioned=2"},
		{Timestamp: base.Add(10 * time.Minute), Actor: "examiner-17", Subject: "criminal_record:CR-9", Kind: store.EventKindRecordArchived, Outcome: "archived"},
		{Timestamp: base.Add(20 * time.Minute), Actor: "examiner-17", Subject: "criminal_record:CR-9", Kind: store.EventKindRecordPurged, Outcome: "purged"},
	}
	for _, e := range events {
		require.NoError(t, as.Append(ctx, e))
	}

	got, err := as.Query(ctx, store.AuditFilter{Actor: "examiner-17"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	// Oldest first.
	assert.Equal(t, store.EventKindRecordArchived, got[0].Kind)
	assert.Equal(t, store.EventKindRecordPurged, got[1].Kind)

	got, err = as.Query(ctx, store.AuditFilter{Subject: "criminal_record:CR-9", From: base.Add(15 * time.Minute)})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, store.EventKindRecordPurged, got[0].Kind)

	got, err = as.Query(ctx, store.AuditFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}
