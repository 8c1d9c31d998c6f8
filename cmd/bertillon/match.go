// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bertillon Contributors

package main

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/TojoRicardo/bertillon/internal/embedding"
	"github.com/TojoRicardo/bertillon/internal/match"
	"github.com/TojoRicardo/bertillon/internal/store"
	berterr "github.com/TojoRicardo/bertillon/pkg/errors"
)

func newMatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "match",
		Short: "Resolve an identification request against the active population",
		RunE:  runMatch,
	}

	cmd.Flags().String("subject", "", "query subject ref, e.g. upr:UPR-7 (required)")
	cmd.Flags().String("embedding", "", "path to the query embedding JSON file (required)")
	cmd.Flags().String("context", "", "search context (defaults to the configured default)")
	cmd.Flags().String("actor", "", "operator recorded on the attempt (required)")
	cmd.Flags().String("justification", "", "case justification for the search (required)")
	cmd.Flags().StringP("output", "o", "yaml", "output format: yaml or json")
	_ = cmd.MarkFlagRequired("subject")
	_ = cmd.MarkFlagRequired("embedding")
	_ = cmd.MarkFlagRequired("actor")
	_ = cmd.MarkFlagRequired("justification")

	return cmd
}

func runMatch(cmd *cobra.Command, _ []string) error {
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

	bureau, err := WireBureau(cfg, nil)
	if err != nil {
		return err
	}
	defer bureau.Close() //nolint:errcheck // exiting

	searchCtx, _ := cmd.Flags().GetString("context")
	actor, _ := cmd.Flags().GetString("actor")
	justification, _ := cmd.Flags().GetString("justification")

	attempt, resolveErr := bureau.Workflow.Resolve(cmd.Context(), match.Request{
		Subject:       subject,
		RawVector:     extraction.Vector,
		Actor:         actor,
		Justification: justification,
		Context:       searchCtx,
	})
	if attempt == nil && resolveErr != nil {
		return resolveErr
	}

	format, _ := cmd.Flags().GetString("output")
	if err := writeAttempt(cmd.OutOrStdout(), attempt, format); err != nil {
		return err
	}
	// A journaled failure still exits non-zero so scripts can tell.
	return resolveErr
}

// attemptView is the CLI rendering of a match attempt.
type attemptView struct {
	ID             string          `yaml:"id" json:"id"`
	QuerySubject   string          `yaml:"query_subject" json:"query_subject"`
	Context        string          `yaml:"context" json:"context"`
	Timestamp      string          `yaml:"timestamp" json:"timestamp"`
	PopulationSize int             `yaml:"population_size" json:"population_size"`
	Threshold      float64         `yaml:"threshold" json:"threshold"`
	BestScore      *float64        `yaml:"best_score,omitempty" json:"best_score,omitempty"`
	Outcome        string          `yaml:"outcome" json:"outcome"`
	MatchedSubject string          `yaml:"matched_subject,omitempty" json:"matched_subject,omitempty"`
	Candidates     []candidateView `yaml:"candidates,omitempty" json:"candidates,omitempty"`
	FailureCode    string          `yaml:"failure_code,omitempty" json:"failure_code,omitempty"`
}

type candidateView struct {
	Subject string  `yaml:"subject" json:"subject"`
	Score   float64 `yaml:"score" json:"score"`
}

func viewOf(a *store.MatchAttempt) attemptView {
	v := attemptView{
		ID:             a.ID,
		QuerySubject:   a.QuerySubject.String(),
		Context:        a.Context,
		Timestamp:      a.Timestamp.Format(time.RFC3339),
		PopulationSize: a.PopulationSize,
		Threshold:      a.Threshold,
		BestScore:      a.BestScore,
		Outcome:        string(a.Outcome),
		FailureCode:    a.FailureCode,
	}
	if a.MatchedSubject != nil {
		v.MatchedSubject = a.MatchedSubject.String()
	}
	for _, c := range a.Candidates {
		v.Candidates = append(v.Candidates, candidateView{Subject: c.Subject.String(), Score: c.Score})
	}
	return v
}

func writeAttempt(w io.Writer, a *store.MatchAttempt, format string) error {
	return writeViews(w, viewOf(a), format)
}

func writeViews(w io.Writer, v any, format string) error {
	switch format {
	case "yaml":
		b, err := yaml.Marshal(v)
		if err != nil {
			return err
		}
		_, err = w.Write(b)
		return err
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	default:
		return berterr.Errorf(berterr.CodeCLIInputInvalid, "unknown output format %q", format)
	}
}
