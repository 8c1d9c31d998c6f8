// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bertillon Contributors

package main

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/TojoRicardo/bertillon/internal/config"
	"github.com/TojoRicardo/bertillon/internal/embedding"
	"github.com/TojoRicardo/bertillon/internal/match"
	"github.com/TojoRicardo/bertillon/internal/retention"
	"github.com/TojoRicardo/bertillon/internal/search"
	"github.com/TojoRicardo/bertillon/internal/store"
	_ "github.com/TojoRicardo/bertillon/internal/store/sqlite" // register sqlite backend
	berterr "github.com/TojoRicardo/bertillon/pkg/errors"
)

// Bureau holds all wired subsystems and manages their lifecycle.
type Bureau struct {
	Records  store.BiometricStore
	Attempts store.MatchAttemptStore
	Audit    store.AuditStore
	Policy   *retention.Policy
	Workflow *match.Workflow
	Sweeper  *retention.Sweeper
	DataDir  string
}

// WireBureau creates all subsystems and wires them together. The extractor
// may be nil when only pre-computed vectors are processed.
func WireBureau(cfg *config.Config, extractor embedding.Extractor) (*Bureau, error) {
	dataDir := cfg.DataDir
	if dataDir == "" {
		var err error
		dataDir, err = config.DefaultDataDir()
		if err != nil {
			return nil, err
		}
	}

	// Biometric databases must not be readable by other users.
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, berterr.Errorf(berterr.CodeCLISetupFailure, "creating data directory: %w", err)
	}

	policy := retention.NewPolicy(cfg.Retention.DefaultPeriod, basisPeriods(cfg.Retention.Periods))

	storeCfg := &store.StorageConfig{
		Backend:          cfg.Storage.Backend,
		VectorDimensions: cfg.Storage.VectorDimensions,
	}
	records, attempts, audit, err := store.NewStores(storeCfg, dataDir, policy)
	if err != nil {
		return nil, berterr.Errorf(berterr.CodeCLISetupFailure, "creating stores: %w", err)
	}
	config.WarnInsecurePermissions(filepath.Join(dataDir, "records.db"))

	workflow, err := match.NewWorkflow(match.Config{
		Records:        records,
		Attempts:       attempts,
		Audit:          audit,
		Engine:         search.NewEngine(),
		Extractor:      extractor,
		Thresholds:     match.Thresholds(cfg.Match.Thresholds),
		DefaultContext: cfg.Match.DefaultContext,
		TopK:           cfg.Match.TopK,
		Dims:           cfg.Storage.VectorDimensions,
		Logger:         slog.Default(),
	})
	if err != nil {
		closeAll(records, attempts, audit)
		return nil, err
	}

	sweeper := retention.NewSweeper(records, audit, cfg.Retention.SweepInterval, slog.Default())

	return &Bureau{
		Records:  records,
		Attempts: attempts,
		Audit:    audit,
		Policy:   policy,
		Workflow: workflow,
		Sweeper:  sweeper,
		DataDir:  dataDir,
	}, nil
}

// Close releases all resources held by the bureau.
func (b *Bureau) Close() error {
	return closeAll(b.Records, b.Attempts, b.Audit)
}

func closeAll(closers ...interface{ Close() error }) error {
	var errs []error
	for _, c := range closers {
		if c != nil {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// basisPeriods converts config retention overrides to policy keys, dropping
// unknown bases with a warning.
func basisPeriods(periods map[string]time.Duration) map[store.LegalBasis]time.Duration {
	if len(periods) == 0 {
		return nil
	}
	out := make(map[store.LegalBasis]time.Duration, len(periods))
	for name, d := range periods {
		basis := store.LegalBasis(name)
		if !basis.Valid() {
			slog.Warn("ignoring retention period for unknown legal basis", "basis", name)
			continue
		}
		out[basis] = d
	}
	return out
}
