// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bertillon Contributors

package store

import (
	"sync"
	"time"

	berterr "github.com/TojoRicardo/bertillon/pkg/errors"
)

// defaultVectorDimensions is the default embedding dimension produced by the
// face extraction model.
const defaultVectorDimensions = 512

// RetentionPolicy decides what may be collected and for how long it may be
// kept. Implemented by internal/retention; declared here so backends can
// enforce it at insert time without an import cycle.
type RetentionPolicy interface {
	IsCollectible(kind SubjectKind, consent bool, basis LegalBasis) bool
	ExpiryOf(basis LegalBasis, collectedAt time.Time) time.Time
}

// StorageConfig controls which backend the store factory uses.
type StorageConfig struct {
	Backend          string // "sqlite" is the only supported backend for now.
	VectorDimensions int    // Embedding dimensions; 0 uses the default (512).
}

// Factory creates the three stores for a data directory.
type Factory func(dataPath string, dims int, policy RetentionPolicy) (BiometricStore, MatchAttemptStore, AuditStore, error)

var (
	factories   = map[string]Factory{}
	factoriesMu sync.RWMutex
)

// RegisterBackend registers a factory function for a named storage backend.
// Backend packages call this from init(). This function is goroutine-safe.
func RegisterBackend(name string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = f
}

// resolveBackend returns the effective backend name, defaulting to "sqlite".
func resolveBackend(cfg *StorageConfig) string {
	if cfg.Backend == "" {
		return "sqlite"
	}
	return cfg.Backend
}

// NewStores creates all stores for a data directory.
// The dataPath directory is used to derive per-database file paths.
func NewStores(cfg *StorageConfig, dataPath string, policy RetentionPolicy) (BiometricStore, MatchAttemptStore, AuditStore, error) {
	backend := resolveBackend(cfg)

	factoriesMu.RLock()
	factory, ok := factories[backend]
	factoriesMu.RUnlock()
	if !ok {
		return nil, nil, nil, berterr.Errorf(berterr.CodeStoreBackendUnsupported,
			"unsupported storage backend: %q", backend)
	}

	dims := defaultVectorDimensions
	if cfg.VectorDimensions > 0 {
		dims = cfg.VectorDimensions
	}

	return factory(dataPath, dims, policy)
}
