// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bertillon Contributors

package sqlite_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/TojoRicardo/bertillon/internal/retention"
	"github.com/TojoRicardo/bertillon/internal/store"
	"github.com/TojoRicardo/bertillon/internal/store/sqlite"
	"github.com/stretchr/testify/require"
)

// testDims keeps test vectors small; the stores are dimension-agnostic.
const testDims = 4

// testDir creates a temp directory for a test and returns its path.
func testDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "bertillon-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

// testDBPath returns a temp SQLite database path.
func testDBPath(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join(testDir(t), name+".db")
}

// testPolicy is the default 5-year policy used across store tests.
func testPolicy() *retention.Policy {
	return retention.NewPolicy(0, nil)
}

// newTestBiometricStore opens a biometric store over a temp database.
func newTestBiometricStore(t *testing.T) *sqlite.BiometricStore {
	t.Helper()
	bs, err := sqlite.NewBiometricStore(testDBPath(t, "records"), testDims, testPolicy())
	require.NoError(t, err)
	t.Cleanup(func() { _ = bs.Close() })
	return bs
}

// suspectParams returns valid insert parameters for a known suspect.
func suspectParams(id string, raw []float32) store.InsertParams {
	return store.InsertParams{
		Subject:    store.SubjectRef{Kind: store.SubjectKindCriminalRecord, ID: id},
		RawVector:  raw,
		SourceKind: store.SourceKindPhoto,
		LegalBasis: store.LegalBasisJudicialWarrant,
		Confidence: 0.99,
	}
}

// collectedLongAgo backdates collection so the record is already expired
// under the default 5-year policy.
func collectedLongAgo() time.Time {
	return time.Now().Add(-6 * 365 * 24 * time.Hour)
}
