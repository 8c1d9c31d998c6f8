// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bertillon Contributors

package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/TojoRicardo/bertillon/internal/store"
	berterr "github.com/TojoRicardo/bertillon/pkg/errors"
)

// SweeperActor is the actor recorded on audit events emitted by the sweep.
const SweeperActor = "retention-sweeper"

// Sweeper drives the store's expiration sweep on a schedule. The sweep is
// advisory batch maintenance: it runs concurrently with inserts and searches
// and never blocks them.
type Sweeper struct {
	store    store.BiometricStore
	audit    store.AuditStore
	interval time.Duration
	log      *slog.Logger
	now      func() time.Time
}

// NewSweeper creates a sweeper. A nil logger falls back to slog.Default;
// a non-positive interval defaults to one hour.
func NewSweeper(bs store.BiometricStore, audit store.AuditStore, interval time.Duration, log *slog.Logger) *Sweeper {
	if log == nil {
		log = slog.Default()
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{
		store:    bs,
		audit:    audit,
		interval: interval,
		log:      log,
		now:      time.Now,
	}
}

// SweepOnce runs one expiration sweep, appends a record_expired audit event
// for every record the sweep transitioned, and closes with a summary event.
// The sweep is idempotent: running it twice with the same clock reading
// produces the same end state.
func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	now := s.now()

	swept, err := s.store.SweepExpired(ctx, now)
	if err != nil {
		return 0, berterr.Wrap(err, berterr.CodeRetentionSweepFailure, "sweeping expired records")
	}
	count := int64(len(swept))

	// The transitions committed; from here a dropped audit event is still
	// a failure the caller must see.
	for _, rec := range swept {
		event := &store.AuditEvent{
			ID:        uuid.NewString(),
			Timestamp: now,
			Actor:     SweeperActor,
			Subject:   rec.Subject.String(),
			Kind:      store.EventKindRecordExpired,
			Outcome:   string(store.LegalStatusPendingDeletion),
			Details:   map[string]any{"record_id": rec.RecordID},
		}
		if err := s.audit.Append(ctx, event); err != nil {
			return count, berterr.Wrap(err, berterr.CodeRetentionSweepFailure, "appending record expiry audit event")
		}
	}

	event := &store.AuditEvent{
		ID:        uuid.NewString(),
		Timestamp: now,
		Actor:     SweeperActor,
		Kind:      store.EventKindRetentionSweep,
		Outcome:   fmt.Sprintf("transitioned=%d", count),
		Details:   map[string]any{"transitioned": count, "as_of": now.UTC().Format(time.RFC3339Nano)},
	}
	if err := s.audit.Append(ctx, event); err != nil {
		return count, berterr.Wrap(err, berterr.CodeRetentionSweepFailure, "appending sweep audit event")
	}

	return count, nil
}

// Run sweeps immediately and then on every interval tick until the context
// is cancelled. Sweep failures are logged and the loop continues; the next
// tick retries naturally because the sweep is idempotent.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweepAndLog(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepAndLog(ctx)
		}
	}
}

func (s *Sweeper) sweepAndLog(ctx context.Context) {
	count, err := s.SweepOnce(ctx)
	if err != nil {
		s.log.Error("retention sweep failed", "error", err)
		return
	}
	if count > 0 {
		s.log.Info("retention sweep transitioned records", "count", count)
	}
}
