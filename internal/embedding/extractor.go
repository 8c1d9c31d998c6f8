// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bertillon Contributors

package embedding

import (
	"context"

	berterr "github.com/TojoRicardo/bertillon/pkg/errors"
)

// Extraction is the output of the face-embedding model for one image: the
// raw (not yet normalized) vector plus the model's detection confidence.
type Extraction struct {
	Vector     []float32
	Confidence float64
}

// Extractor is the external face-embedding model collaborator. It is treated
// as opaque, possibly slow, and possibly failing. Implementations return an
// error satisfying errors.IsNoFaceDetected when the image contains no
// detectable face; that is a first-class outcome, not a fault.
//
// An Extractor is constructed once, injected into the components that need
// it, and closed on process exit. There is no package-level shared instance.
type Extractor interface {
	ExtractEmbedding(ctx context.Context, image []byte) (*Extraction, error)
	Close() error
}

// ErrNoFace constructs the canonical no-face-detected error for extractor
// implementations.
func ErrNoFace() error {
	return berterr.New(berterr.CodeEmbeddingNoFaceDetected, "no face detected in image")
}
