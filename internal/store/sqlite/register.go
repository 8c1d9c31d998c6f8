// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bertillon Contributors

package sqlite

import (
	"fmt"
	"path/filepath"

	"github.com/TojoRicardo/bertillon/internal/store"
)

func init() {
	store.RegisterBackend("sqlite", newStores)
}

func newStores(dataPath string, dims int, policy store.RetentionPolicy) (store.BiometricStore, store.MatchAttemptStore, store.AuditStore, error) {
	// Track opened stores for cleanup on partial failure.
	var closers []interface{ Close() error }
	cleanup := func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}

	bs, err := NewBiometricStore(filepath.Join(dataPath, "records.db"), dims, policy)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("creating biometric store: %w", err)
	}
	closers = append(closers, bs)

	as, err := NewMatchAttemptStore(filepath.Join(dataPath, "attempts.db"))
	if err != nil {
		cleanup()
		return nil, nil, nil, fmt.Errorf("creating attempt store: %w", err)
	}
	closers = append(closers, as)

	js, err := NewAuditStore(filepath.Join(dataPath, "journal.db"))
	if err != nil {
		cleanup()
		return nil, nil, nil, fmt.Errorf("creating audit store: %w", err)
	}

	return bs, as, js, nil
}
