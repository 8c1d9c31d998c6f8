// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bertillon Contributors

package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TojoRicardo/bertillon/internal/config"
	"github.com/TojoRicardo/bertillon/internal/store"
)

func testBureauConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DataDir: t.TempDir(),
		Storage: config.StorageConfig{Backend: "sqlite", VectorDimensions: 4},
		Match: config.MatchConfig{
			Thresholds:     map[string]float64{"upr_to_criminal": 0.6, "criminal_dedup": 0.35},
			DefaultContext: "upr_to_criminal",
			TopK:           10,
		},
		Retention: config.RetentionConfig{
			DefaultPeriod: 43800 * time.Hour,
			SweepInterval: 24 * time.Hour,
		},
	}
}

func TestWireBureau(t *testing.T) {
	cfg := testBureauConfig(t)

	bureau, err := WireBureau(cfg, nil)
	require.NoError(t, err)
	defer func() { _ = bureau.Close() }()

	assert.NotNil(t, bureau.Records)
	assert.NotNil(t, bureau.Attempts)
	assert.NotNil(t, bureau.Audit)
	assert.NotNil(t, bureau.Policy)
	assert.NotNil(t, bureau.Workflow)
	assert.NotNil(t, bureau.Sweeper)
	assert.Equal(t, cfg.DataDir, bureau.DataDir)
}

func TestWireBureau_StoresRoundTrip(t *testing.T) {
	cfg := testBureauConfig(t)

	bureau, err := WireBureau(cfg, nil)
	require.NoError(t, err)
	defer func() { _ = bureau.Close() }()

	rec, err := bureau.Records.Insert(context.Background(), store.InsertParams{
		Subject:    store.SubjectRef{Kind: store.SubjectKindCriminalRecord, ID: "CR-1"},
		RawVector:  []float32{1, 0, 0, 0},
		SourceKind: store.SourceKindPhoto,
		LegalBasis: store.LegalBasisJudicialWarrant,
	})
	require.NoError(t, err)

	got, err := bureau.Records.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "CR-1", got.Subject.ID)
}

func TestBasisPeriods(t *testing.T) {
	out := basisPeriods(map[string]time.Duration{
		"explicit_consent": 720 * time.Hour,
		"not_a_basis":      time.Hour,
	})

	require.Len(t, out, 1)
	assert.Equal(t, 720*time.Hour, out[store.LegalBasisExplicitConsent])
}
