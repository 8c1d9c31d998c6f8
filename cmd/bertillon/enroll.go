// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bertillon Contributors

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/TojoRicardo/bertillon/internal/embedding"
	"github.com/TojoRicardo/bertillon/internal/store"
	berterr "github.com/TojoRicardo/bertillon/pkg/errors"
)

func newEnrollCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enroll",
		Short: "Enrol a biometric record from a precomputed embedding",
		Long:  "Enrol one embedding for a subject. The embedding file is JSON, either\na bare float array or {\"vector\": [...], \"confidence\": 0.97}.",
		RunE:  runEnroll,
	}

	cmd.Flags().String("subject", "", "subject ref, e.g. criminal_record:CR-1001 (required)")
	cmd.Flags().String("embedding", "", "path to the embedding JSON file (required)")
	cmd.Flags().String("source", "photo", "capture source: photo or video_frame")
	cmd.Flags().String("basis", "", "legal basis for collection (required)")
	cmd.Flags().Bool("consent", false, "explicit consent was obtained")
	cmd.Flags().String("collected-at", "", "collection time, RFC3339 (defaults to now)")
	cmd.Flags().String("actor", "", "operator recorded on the audit event (required)")
	cmd.Flags().String("justification", "", "justification recorded on the audit event (required)")
	_ = cmd.MarkFlagRequired("subject")
	_ = cmd.MarkFlagRequired("embedding")
	_ = cmd.MarkFlagRequired("basis")
	_ = cmd.MarkFlagRequired("actor")
	_ = cmd.MarkFlagRequired("justification")

	return cmd
}

func runEnroll(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	subjectStr, _ := cmd.Flags().GetString("subject")
	subject, err := store.ParseSubjectRef(subjectStr)
	if err != nil {
		return berterr.Errorf(berterr.CodeCLIInputInvalid, "parsing subject: %w", err)
	}

	embPath, _ := cmd.Flags().GetString("embedding")
	payload, err := os.ReadFile(embPath)
	if err != nil {
		return berterr.Errorf(berterr.CodeCLIInputInvalid, "reading embedding file: %w", err)
	}
	extraction, err := embedding.PrecomputedExtractor{}.ExtractEmbedding(cmd.Context(), payload)
	if err != nil {
		return err
	}

	sourceStr, _ := cmd.Flags().GetString("source")
	basisStr, _ := cmd.Flags().GetString("basis")
	consent, _ := cmd.Flags().GetBool("consent")

	var collectedAt time.Time
	if s, _ := cmd.Flags().GetString("collected-at"); s != "" {
		collectedAt, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return berterr.Errorf(berterr.CodeCLIInputInvalid, "parsing collected-at: %w", err)
		}
	}

	bureau, err := WireBureau(cfg, nil)
	if err != nil {
		return err
	}
	defer bureau.Close() //nolint:errcheck // exiting

	rec, err := bureau.Records.Insert(cmd.Context(), store.InsertParams{
		Subject:         subject,
		RawVector:       extraction.Vector,
		SourceKind:      store.SourceKind(sourceStr),
		LegalBasis:      store.LegalBasis(basisStr),
		ConsentObtained: consent,
		Confidence:      extraction.Confidence,
		CollectedAt:     collectedAt,
	})
	if err != nil {
		return err
	}

	actor, _ := cmd.Flags().GetString("actor")
	justification, _ := cmd.Flags().GetString("justification")
	event := &store.AuditEvent{
		Timestamp:     time.Now(),
		Actor:         actor,
		Subject:       subject.String(),
		Kind:          store.EventKindRecordInserted,
		Outcome:       "enrolled",
		Justification: justification,
		Details:       map[string]any{"record_id": rec.ID, "legal_basis": basisStr},
	}
	if err := bureau.Audit.Append(cmd.Context(), event); err != nil {
		return err
	}

	_, err = fmt.Fprintf(cmd.OutOrStdout(), "enrolled %s as record %s (expires %s)\n",
		subject.String(), rec.ID, rec.ExpiresAt.Format(time.RFC3339))
	return err
}
