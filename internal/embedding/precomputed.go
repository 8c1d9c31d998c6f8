// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bertillon Contributors

package embedding

import (
	"context"
	"encoding/json"

	berterr "github.com/TojoRicardo/bertillon/pkg/errors"
)

// PrecomputedExtractor reads embeddings that were extracted upstream. The
// payload is JSON: either an object {"vector": [...], "confidence": 0.97}
// or a bare float array. An empty vector reports no face detected, matching
// how upstream pipelines mark images the model rejected.
type PrecomputedExtractor struct{}

// precomputedPayload is the object form of a precomputed embedding.
type precomputedPayload struct {
	Vector     []float32 `json:"vector"`
	Confidence float64   `json:"confidence"`
}

// ExtractEmbedding decodes the payload. It never inspects image pixels.
func (PrecomputedExtractor) ExtractEmbedding(_ context.Context, payload []byte) (*Extraction, error) {
	var obj precomputedPayload
	if err := json.Unmarshal(payload, &obj); err != nil {
		// Fall back to the bare-array form.
		var raw []float32
		if arrErr := json.Unmarshal(payload, &raw); arrErr != nil {
			return nil, berterr.Errorf(berterr.CodeEmbeddingExtractFailure,
				"decoding precomputed embedding: %w", err)
		}
		obj = precomputedPayload{Vector: raw, Confidence: 1}
	}

	if len(obj.Vector) == 0 {
		return nil, ErrNoFace()
	}
	if obj.Confidence == 0 {
		obj.Confidence = 1
	}

	return &Extraction{Vector: obj.Vector, Confidence: obj.Confidence}, nil
}

// Close is a no-op; there is no model process to shut down.
func (PrecomputedExtractor) Close() error { return nil }
