// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bertillon Contributors

package embedding

import (
	"math"

	berterr "github.com/TojoRicardo/bertillon/pkg/errors"
)

// Dim is the expected dimensionality of face embeddings produced by the
// extraction model.
const Dim = 512

const (
	// DegenerateEpsilon is the minimum Euclidean norm a raw vector must have.
	// A near-zero vector carries no directional information and must never
	// be compared.
	DegenerateEpsilon = 1e-8

	// UnitTolerance is the allowed deviation of a normalized vector's norm
	// from 1.0.
	UnitTolerance = 1e-5
)

// Vector is a face embedding. Stored and query vectors are always
// L2-normalized: their Euclidean norm is 1.0 within UnitTolerance.
type Vector []float32

// Normalize canonicalizes a raw embedding vector: it checks that the vector
// has exactly dim finite components, then divides every component by the
// Euclidean norm. The input is never mutated.
func Normalize(raw []float32, dim int) (Vector, error) {
	if len(raw) != dim {
		return nil, berterr.Errorf(berterr.CodeEmbeddingInvalidDimension,
			"embedding has %d components, expected %d", len(raw), dim)
	}

	var sumSquares float64
	for i, c := range raw {
		f := float64(c)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, berterr.Errorf(berterr.CodeEmbeddingInvalidDimension,
				"embedding component %d is not finite", i)
		}
		sumSquares += f * f
	}

	norm := math.Sqrt(sumSquares)
	if norm < DegenerateEpsilon {
		return nil, berterr.Errorf(berterr.CodeEmbeddingDegenerateVector,
			"embedding norm %g is below %g", norm, DegenerateEpsilon)
	}

	out := make(Vector, len(raw))
	for i, c := range raw {
		out[i] = float32(float64(c) / norm)
	}
	return out, nil
}

// Cosine returns the cosine similarity of two unit-normalized vectors, which
// is their dot product, in [-1, 1]. Both vectors must have the same length;
// callers are expected to have normalized them via Normalize.
func Cosine(a, b Vector) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// RemapScore linearly remaps a cosine similarity from [-1, 1] to the
// user-facing [0, 1] score space. All configured match thresholds are defined
// in this remapped space.
func RemapScore(cosine float64) float64 {
	return (cosine + 1) / 2
}

// Norm returns the Euclidean norm of the vector.
func (v Vector) Norm() float64 {
	var sumSquares float64
	for _, c := range v {
		sumSquares += float64(c) * float64(c)
	}
	return math.Sqrt(sumSquares)
}

// Clone returns an independent copy of the vector.
func (v Vector) Clone() Vector {
	if v == nil {
		return nil
	}
	out := make(Vector, len(v))
	copy(out, v)
	return out
}
