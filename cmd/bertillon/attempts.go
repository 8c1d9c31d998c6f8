// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bertillon Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/TojoRicardo/bertillon/internal/store"
)

func newAttemptsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "attempts",
		Short: "Query the match attempt journal",
		RunE:  runAttempts,
	}

	cmd.Flags().String("subject", "", "filter by query subject ref")
	cmd.Flags().String("context", "", "filter by search context")
	cmd.Flags().String("outcome", "", "filter by outcome: matched, ambiguous, no_match, failed")
	cmd.Flags().Int("limit", 50, "maximum attempts to return")
	cmd.Flags().Int("offset", 0, "attempts to skip")
	cmd.Flags().StringP("output", "o", "yaml", "output format: yaml or json")

	return cmd
}

func runAttempts(cmd *cobra.Command, _ []string) error {
	return withBureau(cmd, func(b *Bureau) error {
		subject, _ := cmd.Flags().GetString("subject")
		searchCtx, _ := cmd.Flags().GetString("context")
		outcome, _ := cmd.Flags().GetString("outcome")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		attempts, err := b.Attempts.Query(cmd.Context(), store.AttemptFilter{
			QuerySubject: subject,
			Context:      searchCtx,
			Outcome:      store.MatchOutcome(outcome),
			Limit:        limit,
			Offset:       offset,
		})
		if err != nil {
			return err
		}

		views := make([]attemptView, len(attempts))
		for i, a := range attempts {
			views[i] = viewOf(a)
		}
		format, _ := cmd.Flags().GetString("output")
		return writeViews(cmd.OutOrStdout(), views, format)
	})
}
