// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bertillon Contributors

// Package match orchestrates the resolution of one identification request:
// normalize the query, search the active population, categorise the result,
// and journal an immutable attempt record plus an audit event. Every request
// that reaches the search stage leaves a journal entry, successful or not.
package match

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/TojoRicardo/bertillon/internal/embedding"
	"github.com/TojoRicardo/bertillon/internal/search"
	"github.com/TojoRicardo/bertillon/internal/store"
	berterr "github.com/TojoRicardo/bertillon/pkg/errors"
)

// Thresholds maps a search context name to its minimum match score.
type Thresholds map[string]float64

// Well-known search contexts.
const (
	ContextUPRToCriminal = "upr_to_criminal"
	ContextCriminalDedup = "criminal_dedup"
)

// Request is one identification request. The query embedding comes either
// from RawVector directly or from Image via the configured extractor;
// RawVector wins when both are set.
type Request struct {
	Subject       store.SubjectRef
	RawVector     []float32
	Image         []byte
	Actor         string
	Justification string
	// Context selects the threshold configuration; empty means the
	// workflow default.
	Context string
}

// Workflow wires the store, the search engine, and the journals into the
// resolution pipeline.
type Workflow struct {
	records    store.BiometricStore
	attempts   store.MatchAttemptStore
	audit      store.AuditStore
	engine     *search.Engine
	extractor  embedding.Extractor
	thresholds Thresholds
	defaultCtx string
	topK       int
	dims       int
	log        *slog.Logger
	now        func() time.Time
}

// Config carries workflow construction parameters.
type Config struct {
	Records  store.BiometricStore
	Attempts store.MatchAttemptStore
	Audit    store.AuditStore
	Engine   *search.Engine
	// Extractor may be nil when only pre-computed vectors are resolved.
	Extractor      embedding.Extractor
	Thresholds     Thresholds
	DefaultContext string
	TopK           int
	// Dims is the embedding dimensionality; zero uses the model default.
	Dims   int
	Logger *slog.Logger
}

// NewWorkflow creates a workflow. Thresholds must contain the default
// context.
func NewWorkflow(cfg Config) (*Workflow, error) {
	if cfg.Records == nil || cfg.Attempts == nil || cfg.Audit == nil || cfg.Engine == nil {
		return nil, berterr.New(berterr.CodeInternalFailure, "workflow requires records, attempts, audit, and engine")
	}
	if _, ok := cfg.Thresholds[cfg.DefaultContext]; !ok {
		return nil, berterr.Errorf(berterr.CodeConfigValidateInvalidValue,
			"no threshold configured for default context %q", cfg.DefaultContext)
	}

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	dims := cfg.Dims
	if dims <= 0 {
		dims = embedding.Dim
	}

	return &Workflow{
		records:    cfg.Records,
		attempts:   cfg.Attempts,
		audit:      cfg.Audit,
		engine:     cfg.Engine,
		extractor:  cfg.Extractor,
		thresholds: cfg.Thresholds,
		defaultCtx: cfg.DefaultContext,
		topK:       cfg.TopK,
		dims:       dims,
		log:        log,
		now:        time.Now,
	}, nil
}

// Resolve runs one identification request end to end and returns the
// journaled attempt. Requests without a justification are rejected before
// any journal entry is written; once the pipeline starts, failures are
// journaled as failed attempts and returned alongside the attempt.
func (w *Workflow) Resolve(ctx context.Context, req Request) (*store.MatchAttempt, error) {
	if req.Justification == "" {
		return nil, berterr.New(berterr.CodeMatchMissingJustification,
			"identification request requires a justification",
			berterr.FieldSubject(req.Subject.String()))
	}

	searchCtx := req.Context
	if searchCtx == "" {
		searchCtx = w.defaultCtx
	}
	threshold, ok := w.thresholds[searchCtx]
	if !ok {
		return nil, berterr.Errorf(berterr.CodeConfigValidateInvalidValue,
			"no threshold configured for context %q", searchCtx)
	}

	attempt := &store.MatchAttempt{
		ID:            uuid.NewString(),
		QuerySubject:  req.Subject,
		Justification: req.Justification,
		Context:       searchCtx,
		Timestamp:     w.now(),
		Threshold:     threshold,
	}

	query, err := w.queryVector(ctx, req)
	if err != nil {
		return w.journalFailure(ctx, req, attempt, err)
	}

	population, err := w.records.ActivePopulation(ctx, attempt.Timestamp)
	if err != nil {
		return w.journalFailure(ctx, req, attempt, err)
	}

	result, err := w.engine.Search(ctx, query, population, search.Params{Threshold: threshold, TopK: w.topK})
	if err != nil {
		return w.journalFailure(ctx, req, attempt, err)
	}

	attempt.PopulationSize = result.PopulationSize
	best := result.BestScore
	attempt.BestScore = &best
	attempt.Candidates = summarise(result.Candidates)

	switch len(result.Candidates) {
	case 0:
		attempt.Outcome = store.MatchOutcomeNoMatch
	case 1:
		attempt.Outcome = store.MatchOutcomeMatched
		matched := result.Candidates[0].Subject
		attempt.MatchedSubject = &matched
	default:
		// Multiple candidates above threshold are reported as a ranked
		// list for an examiner to adjudicate, never auto-resolved.
		attempt.Outcome = store.MatchOutcomeAmbiguous
	}

	if err := w.journal(ctx, req, attempt); err != nil {
		return nil, err
	}

	w.log.Info("match resolved",
		"attempt_id", attempt.ID,
		"subject", req.Subject.String(),
		"context", searchCtx,
		"outcome", string(attempt.Outcome),
		"population", attempt.PopulationSize,
		"best_score", best,
	)

	return attempt, nil
}

// queryVector produces the normalized query embedding for a request.
func (w *Workflow) queryVector(ctx context.Context, req Request) (embedding.Vector, error) {
	raw := req.RawVector
	if raw == nil {
		if w.extractor == nil {
			return nil, berterr.New(berterr.CodeCLIInputInvalid, "request carries neither a vector nor an image")
		}
		if len(req.Image) == 0 {
			return nil, berterr.New(berterr.CodeCLIInputInvalid, "request carries neither a vector nor an image")
		}
		extraction, err := w.extractor.ExtractEmbedding(ctx, req.Image)
		if err != nil {
			return nil, err
		}
		raw = extraction.Vector
	}
	return embedding.Normalize(raw, w.dims)
}

// journalFailure records a failed attempt and the matching audit event, then
// returns the attempt together with the original error.
func (w *Workflow) journalFailure(ctx context.Context, req Request, attempt *store.MatchAttempt, cause error) (*store.MatchAttempt, error) {
	attempt.Outcome = store.MatchOutcomeFailed
	attempt.FailureCode = string(berterr.CodeOf(cause))

	if err := w.journal(ctx, req, attempt); err != nil {
		return nil, berterr.Join(cause, err)
	}

	w.log.Warn("match attempt failed",
		"attempt_id", attempt.ID,
		"subject", req.Subject.String(),
		"failure_code", attempt.FailureCode,
	)

	return attempt, cause
}

// journal writes the attempt record and exactly one audit event. A journal
// write failure surfaces to the caller; resolution is not best-effort.
func (w *Workflow) journal(ctx context.Context, req Request, attempt *store.MatchAttempt) error {
	if err := w.attempts.Record(ctx, attempt); err != nil {
		return berterr.Wrap(err, berterr.CodeMatchAttemptRecordFailure,
			"recording match attempt", berterr.FieldAttemptID(attempt.ID))
	}

	details := map[string]any{
		"attempt_id": attempt.ID,
		"context":    attempt.Context,
		"population": attempt.PopulationSize,
	}
	if attempt.BestScore != nil {
		details["best_score"] = *attempt.BestScore
	}
	if attempt.FailureCode != "" {
		details["failure_code"] = attempt.FailureCode
	}

	event := &store.AuditEvent{
		Timestamp:     attempt.Timestamp,
		Actor:         req.Actor,
		Subject:       req.Subject.String(),
		Kind:          store.EventKindMatchResolved,
		Outcome:       string(attempt.Outcome),
		Justification: attempt.Justification,
		Details:       details,
	}
	if err := w.audit.Append(ctx, event); err != nil {
		return berterr.Wrap(err, berterr.CodeMatchAuditAppendFailure,
			"appending match audit event", berterr.FieldAttemptID(attempt.ID))
	}
	return nil
}

func summarise(candidates []search.Candidate) []store.CandidateSummary {
	if len(candidates) == 0 {
		return nil
	}
	out := make([]store.CandidateSummary, len(candidates))
	for i, c := range candidates {
		out[i] = store.CandidateSummary{Subject: c.Subject, Score: c.Score}
	}
	return out
}

// --- Backfill ---

// BackfillItem is one legacy image to enrol.
type BackfillItem struct {
	Subject         store.SubjectRef
	Image           []byte
	SourceKind      store.SourceKind
	LegalBasis      store.LegalBasis
	ConsentObtained bool
	CollectedAt     time.Time
}

// ItemResult is the per-item outcome of a backfill run.
type ItemResult struct {
	Subject  store.SubjectRef
	RecordID string
	Err      error
}

// BatchReport summarises one backfill run.
type BatchReport struct {
	Enrolled int
	Skipped  int
	Failed   int
	Results  []ItemResult
}

// Backfill extracts and enrols embeddings for a batch of legacy images.
// Items whose image contains no detectable face are skipped, not fatal;
// any other failure is reported per item and the batch continues. The
// returned error is non-nil only when the batch could not run at all.
func (w *Workflow) Backfill(ctx context.Context, items []BackfillItem) (*BatchReport, error) {
	if w.extractor == nil {
		return nil, berterr.New(berterr.CodeInternalFailure, "backfill requires an embedding extractor")
	}

	report := &BatchReport{Results: make([]ItemResult, 0, len(items))}
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return report, berterr.Wrap(err, berterr.CodeSearchCancelled, "backfill cancelled")
		}

		res := ItemResult{Subject: item.Subject}
		rec, err := w.enrolImage(ctx, item)
		switch {
		case berterr.IsNoFaceDetected(err):
			report.Skipped++
			res.Err = err
			w.log.Info("backfill skipped image without face", "subject", item.Subject.String())
		case err != nil:
			report.Failed++
			res.Err = err
			w.log.Warn("backfill item failed", "subject", item.Subject.String(), "error", fmt.Sprint(err))
		default:
			report.Enrolled++
			res.RecordID = rec.ID
		}
		report.Results = append(report.Results, res)
	}
	return report, nil
}

func (w *Workflow) enrolImage(ctx context.Context, item BackfillItem) (*store.BiometricRecord, error) {
	extraction, err := w.extractor.ExtractEmbedding(ctx, item.Image)
	if err != nil {
		return nil, err
	}

	return w.records.Insert(ctx, store.InsertParams{
		Subject:         item.Subject,
		RawVector:       extraction.Vector,
		SourceKind:      item.SourceKind,
		LegalBasis:      item.LegalBasis,
		ConsentObtained: item.ConsentObtained,
		Confidence:      extraction.Confidence,
		CollectedAt:     item.CollectedAt,
	})
}
