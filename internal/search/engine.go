// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bertillon Contributors

// Package search implements exhaustive cosine similarity search over an
// active-population snapshot. The scan is exact: every candidate is scored,
// so recall is total and results are reproducible for a fixed population.
package search

import (
	"context"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/TojoRicardo/bertillon/internal/embedding"
	"github.com/TojoRicardo/bertillon/internal/store"
	berterr "github.com/TojoRicardo/bertillon/pkg/errors"
)

// ScoreTolerance is the band within which two scores are considered tied and
// the deterministic tie-break applies.
const ScoreTolerance = 1e-9

// cancelCheckStride bounds how many candidates are scored between context
// checks inside a shard.
const cancelCheckStride = 256

// Candidate is one scored member of the population.
type Candidate struct {
	RecordID    string
	Subject     store.SubjectRef
	Score       float64
	CollectedAt time.Time
}

// Params controls one search invocation.
type Params struct {
	// Threshold is the minimum remapped score for a candidate to rank.
	Threshold float64
	// TopK caps the ranked result; zero or negative means unbounded.
	TopK int
}

// Result is the outcome of one completed scan.
type Result struct {
	// PopulationSize is the number of candidates actually scored.
	PopulationSize int
	// BestScore is the highest score observed across the whole population,
	// including candidates below threshold.
	BestScore float64
	// Candidates holds every candidate at or above threshold, ranked by
	// score descending with deterministic tie-breaking, truncated to TopK.
	Candidates []Candidate
}

// Engine scans population snapshots. It holds no state between searches;
// a single Engine is safe for concurrent use.
type Engine struct {
	workers int
}

// NewEngine creates an engine scanning with one worker per CPU.
func NewEngine() *Engine {
	return &Engine{workers: runtime.NumCPU()}
}

// Search scores the query against every entry in the population and returns
// the ranked candidates. The population slice is only read, never retained
// or mutated. An empty population is an error so callers journal it as a
// failure rather than a silent no-match.
func (e *Engine) Search(ctx context.Context, query embedding.Vector, population []store.PopulationEntry, params Params) (*Result, error) {
	if len(population) == 0 {
		return nil, berterr.New(berterr.CodeSearchPopulationEmpty, "active population is empty")
	}

	scored := make([]Candidate, len(population))

	workers := e.workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(population) {
		workers = len(population)
	}

	g, gctx := errgroup.WithContext(ctx)
	chunk := (len(population) + workers - 1) / workers
	for start := 0; start < len(population); start += chunk {
		end := start + chunk
		if end > len(population) {
			end = len(population)
		}
		g.Go(func() error {
			for i := start; i < end; i++ {
				if (i-start)%cancelCheckStride == 0 {
					if err := gctx.Err(); err != nil {
						return berterr.Wrap(err, berterr.CodeSearchCancelled, "similarity scan cancelled")
					}
				}
				entry := population[i]
				scored[i] = Candidate{
					RecordID:    entry.RecordID,
					Subject:     entry.Subject,
					Score:       embedding.RemapScore(embedding.Cosine(query, entry.Vector)),
					CollectedAt: entry.CollectedAt,
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &Result{PopulationSize: len(population)}
	var above []Candidate
	for i, c := range scored {
		if i == 0 || c.Score > result.BestScore {
			result.BestScore = c.Score
		}
		if c.Score >= params.Threshold {
			above = append(above, c)
		}
	}

	sort.SliceStable(above, func(i, j int) bool {
		return candidateLess(above[i], above[j])
	})

	if params.TopK > 0 && len(above) > params.TopK {
		above = above[:params.TopK]
	}
	result.Candidates = above

	return result, nil
}

// candidateLess ranks a before b. Scores differing by more than
// ScoreTolerance order by score descending; within the tolerance the older
// collection wins, then the lexicographically smaller subject ref. The
// ordering is total, so equal inputs always produce equal rankings.
func candidateLess(a, b Candidate) bool {
	d := a.Score - b.Score
	if d > ScoreTolerance {
		return true
	}
	if d < -ScoreTolerance {
		return false
	}
	if !a.CollectedAt.Equal(b.CollectedAt) {
		return a.CollectedAt.Before(b.CollectedAt)
	}
	return a.Subject.String() < b.Subject.String()
}
