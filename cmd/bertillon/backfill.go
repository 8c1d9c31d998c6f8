// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bertillon Contributors

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/TojoRicardo/bertillon/internal/embedding"
	"github.com/TojoRicardo/bertillon/internal/match"
	"github.com/TojoRicardo/bertillon/internal/store"
	berterr "github.com/TojoRicardo/bertillon/pkg/errors"
)

func newBackfillCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Enrol a batch of precomputed embeddings from a manifest",
		Long: "Backfill reads a JSON manifest of precomputed embeddings and enrols\n" +
			"each one. Items without a detectable face are skipped; other failures\n" +
			"are reported per item and the batch continues.",
		RunE: runBackfill,
	}

	cmd.Flags().String("manifest", "", "path to the backfill manifest JSON (required)")
	_ = cmd.MarkFlagRequired("manifest")

	return cmd
}

// manifestItem is one entry of the backfill manifest.
type manifestItem struct {
	Subject     string    `json:"subject"`
	Vector      []float32 `json:"vector"`
	Confidence  float64   `json:"confidence"`
	SourceKind  string    `json:"source_kind"`
	LegalBasis  string    `json:"legal_basis"`
	Consent     bool      `json:"consent"`
	CollectedAt time.Time `json:"collected_at"`
}

func runBackfill(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	manifestPath, _ := cmd.Flags().GetString("manifest")
	raw, err := os.ReadFile(manifestPath)
	if err != nil {
		return berterr.Errorf(berterr.CodeCLIInputInvalid, "reading manifest: %w", err)
	}
	var manifest []manifestItem
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return berterr.Errorf(berterr.CodeCLIInputInvalid, "decoding manifest: %w", err)
	}

	items := make([]match.BackfillItem, 0, len(manifest))
	for i, m := range manifest {
		subject, err := store.ParseSubjectRef(m.Subject)
		if err != nil {
			return berterr.Errorf(berterr.CodeCLIInputInvalid, "manifest item %d: %w", i, err)
		}
		payload, err := json.Marshal(embeddingPayload{Vector: m.Vector, Confidence: m.Confidence})
		if err != nil {
			return berterr.Errorf(berterr.CodeCLIInputInvalid, "manifest item %d: %w", i, err)
		}
		items = append(items, match.BackfillItem{
			Subject:         subject,
			Image:           payload,
			SourceKind:      store.SourceKind(m.SourceKind),
			LegalBasis:      store.LegalBasis(m.LegalBasis),
			ConsentObtained: m.Consent,
			CollectedAt:     m.CollectedAt,
		})
	}

	bureau, err := WireBureau(cfg, embedding.PrecomputedExtractor{})
	if err != nil {
		return err
	}
	defer bureau.Close() //nolint:errcheck // exiting

	report, err := bureau.Workflow.Backfill(cmd.Context(), items)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, r := range report.Results {
		switch {
		case r.Err != nil && berterr.IsNoFaceDetected(r.Err):
			fmt.Fprintf(out, "skip  %s: no face detected\n", r.Subject.String())
		case r.Err != nil:
			fmt.Fprintf(out, "fail  %s: %s\n", r.Subject.String(), r.Err)
		default:
			fmt.Fprintf(out, "ok    %s: record %s\n", r.Subject.String(), r.RecordID)
		}
	}
	fmt.Fprintf(out, "enrolled %d, skipped %d, failed %d\n", report.Enrolled, report.Skipped, report.Failed)
	return nil
}

// embeddingPayload mirrors the precomputed extractor's object form.
type embeddingPayload struct {
	Vector     []float32 `json:"vector"`
	Confidence float64   `json:"confidence"`
}
