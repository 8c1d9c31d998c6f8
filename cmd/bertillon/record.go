// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bertillon Contributors

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/TojoRicardo/bertillon/internal/store"
	berterr "github.com/TojoRicardo/bertillon/pkg/errors"
)

func newRecordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Inspect and transition biometric records",
	}

	cmd.AddCommand(
		newRecordShowCmd(),
		newRecordArchiveCmd(),
		newRecordPendCmd(),
		newRecordPurgeCmd(),
		newRecordExpiringCmd(),
	)

	return cmd
}

func newRecordShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <record-id>",
		Short: "Show one record, tombstones included",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBureau(cmd, func(b *Bureau) error {
				rec, err := b.Records.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				format, _ := cmd.Flags().GetString("output")
				return writeViews(cmd.OutOrStdout(), recordViewOf(rec), format)
			})
		},
	}
	cmd.Flags().StringP("output", "o", "yaml", "output format: yaml or json")
	return cmd
}

func newRecordArchiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive <record-id>",
		Short: "Archive an active record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return transitionRecord(cmd, args[0], store.EventKindRecordArchived, "archived",
				func(b *Bureau) error { return b.Records.Archive(cmd.Context(), args[0]) })
		},
	}
	addActorFlags(cmd)
	return cmd
}

func newRecordPendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pend <record-id>",
		Short: "Mark a record pending deletion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return transitionRecord(cmd, args[0], store.EventKindRecordExpired, "pending_deletion",
				func(b *Bureau) error { return b.Records.MarkPendingDeletion(cmd.Context(), args[0]) })
		},
	}
	addActorFlags(cmd)
	return cmd
}

func newRecordPurgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purge <record-id>",
		Short: "Purge a record, leaving a tombstone",
		Long: "Purge discards the embedding of a pending_deletion record and leaves\n" +
			"a tombstone. With --override the pending_deletion precondition is\n" +
			"waived; the override itself is audit-logged.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			override, _ := cmd.Flags().GetBool("override")
			return withBureau(cmd, func(b *Bureau) error {
				if err := b.Records.Purge(cmd.Context(), args[0], override); err != nil {
					return err
				}
				actor, _ := cmd.Flags().GetString("actor")
				justification, _ := cmd.Flags().GetString("justification")

				if override {
					if err := appendRecordEvent(cmd, b, args[0], store.EventKindAdminOverride, "purge_override", actor, justification); err != nil {
						return err
					}
				}
				if err := appendRecordEvent(cmd, b, args[0], store.EventKindRecordPurged, "purged", actor, justification); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "purged record %s\n", args[0])
				return err
			})
		},
	}
	cmd.Flags().Bool("override", false, "waive the pending_deletion precondition")
	addActorFlags(cmd)
	return cmd
}

func newRecordExpiringCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "expiring",
		Short: "List records whose retention lapses within a window",
		RunE: func(cmd *cobra.Command, _ []string) error {
			window, _ := cmd.Flags().GetDuration("within")
			return withBureau(cmd, func(b *Bureau) error {
				recs, err := b.Records.FindExpiring(cmd.Context(), time.Now().Add(window))
				if err != nil {
					return err
				}
				format, _ := cmd.Flags().GetString("output")
				views := make([]recordView, len(recs))
				for i, rec := range recs {
					views[i] = recordViewOf(rec)
				}
				return writeViews(cmd.OutOrStdout(), views, format)
			})
		},
	}
	cmd.Flags().Duration("within", 30*24*time.Hour, "expiry window")
	cmd.Flags().StringP("output", "o", "yaml", "output format: yaml or json")
	return cmd
}

// withBureau loads config, wires the bureau, runs fn, and closes.
func withBureau(cmd *cobra.Command, fn func(*Bureau) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	bureau, err := WireBureau(cfg, nil)
	if err != nil {
		return err
	}
	defer bureau.Close() //nolint:errcheck // exiting
	return fn(bureau)
}

func addActorFlags(cmd *cobra.Command) {
	cmd.Flags().String("actor", "", "operator recorded on the audit event (required)")
	cmd.Flags().String("justification", "", "justification recorded on the audit event (required)")
	_ = cmd.MarkFlagRequired("actor")
	_ = cmd.MarkFlagRequired("justification")
}

func transitionRecord(cmd *cobra.Command, id string, kind store.EventKind, outcome string, transition func(*Bureau) error) error {
	return withBureau(cmd, func(b *Bureau) error {
		if err := transition(b); err != nil {
			return err
		}
		actor, _ := cmd.Flags().GetString("actor")
		justification, _ := cmd.Flags().GetString("justification")
		if err := appendRecordEvent(cmd, b, id, kind, outcome, actor, justification); err != nil {
			return err
		}
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "record %s is now %s\n", id, outcome)
		return err
	})
}

func appendRecordEvent(cmd *cobra.Command, b *Bureau, recordID string, kind store.EventKind, outcome, actor, justification string) error {
	rec, err := b.Records.Get(cmd.Context(), recordID)
	if err != nil {
		return err
	}
	event := &store.AuditEvent{
		Timestamp:     time.Now(),
		Actor:         actor,
		Subject:       rec.Subject.String(),
		Kind:          kind,
		Outcome:       outcome,
		Justification: justification,
		Details:       map[string]any{"record_id": recordID},
	}
	if err := b.Audit.Append(cmd.Context(), event); err != nil {
		return berterr.Wrap(err, berterr.CodeMatchAuditAppendFailure, "appending record audit event")
	}
	return nil
}

// recordView is the CLI rendering of a biometric record. The vector itself
// is never printed, only its presence.
type recordView struct {
	ID          string `yaml:"id" json:"id"`
	Subject     string `yaml:"subject" json:"subject"`
	SourceKind  string `yaml:"source_kind" json:"source_kind"`
	LegalBasis  string `yaml:"legal_basis" json:"legal_basis"`
	Consent     bool   `yaml:"consent" json:"consent"`
	LegalStatus string `yaml:"legal_status" json:"legal_status"`
	HasVector   bool   `yaml:"has_vector" json:"has_vector"`
	CollectedAt string `yaml:"collected_at" json:"collected_at"`
	ExpiresAt   string `yaml:"expires_at" json:"expires_at"`
}

func recordViewOf(rec *store.BiometricRecord) recordView {
	return recordView{
		ID:          rec.ID,
		Subject:     rec.Subject.String(),
		SourceKind:  string(rec.SourceKind),
		LegalBasis:  string(rec.LegalBasis),
		Consent:     rec.ConsentObtained,
		LegalStatus: string(rec.LegalStatus),
		HasVector:   rec.Vector != nil,
		CollectedAt: rec.CollectedAt.Format(time.RFC3339),
		ExpiresAt:   rec.ExpiresAt.Format(time.RFC3339),
	}
}
