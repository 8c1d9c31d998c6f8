// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bertillon Contributors

package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/TojoRicardo/bertillon/internal/store"
)

func newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Query the audit journal",
		RunE:  runAudit,
	}

	cmd.Flags().String("kind", "", "filter by event kind")
	cmd.Flags().String("actor", "", "filter by actor")
	cmd.Flags().String("subject", "", "filter by subject ref")
	cmd.Flags().Int("limit", 50, "maximum events to return")
	cmd.Flags().Int("offset", 0, "events to skip")
	cmd.Flags().StringP("output", "o", "yaml", "output format: yaml or json")

	return cmd
}

// auditView is the CLI rendering of an audit event.
type auditView struct {
	ID            string         `yaml:"id" json:"id"`
	Timestamp     string         `yaml:"timestamp" json:"timestamp"`
	Actor         string         `yaml:"actor" json:"actor"`
	Subject       string         `yaml:"subject,omitempty" json:"subject,omitempty"`
	Kind          string         `yaml:"kind" json:"kind"`
	Outcome       string         `yaml:"outcome" json:"outcome"`
	Justification string         `yaml:"justification,omitempty" json:"justification,omitempty"`
	Details       map[string]any `yaml:"details,omitempty" json:"details,omitempty"`
}

func runAudit(cmd *cobra.Command, _ []string) error {
	return withBureau(cmd, func(b *Bureau) error {
		kind, _ := cmd.Flags().GetString("kind")
		actor, _ := cmd.Flags().GetString("actor")
		subject, _ := cmd.Flags().GetString("subject")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		events, err := b.Audit.Query(cmd.Context(), store.AuditFilter{
			Kind:    store.EventKind(kind),
			Actor:   actor,
			Subject: subject,
			Limit:   limit,
			Offset:  offset,
		})
		if err != nil {
			return err
		}

		views := make([]auditView, len(events))
		for i, e := range events {
			views[i] = auditView{
				ID:            e.ID,
				Timestamp:     e.Timestamp.Format(time.RFC3339),
				Actor:         e.Actor,
				Subject:       e.Subject,
				Kind:          string(e.Kind),
				Outcome:       e.Outcome,
				Justification: e.Justification,
				Details:       e.Details,
			}
		}
		format, _ := cmd.Flags().GetString("output")
		return writeViews(cmd.OutOrStdout(), views, format)
	})
}
