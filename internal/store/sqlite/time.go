// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bertillon Contributors

package sqlite

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/TojoRicardo/bertillon/internal/embedding"
)

// formatTime serialises a time.Time to RFC3339 with nanosecond precision.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime deserialises a time string stored in the database.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

// deserializeVector decodes the sqlite-vec float32 blob layout: raw
// little-endian IEEE 754 components, four bytes each. Returns nil for a
// NULL blob (a purged record's tombstone).
func deserializeVector(blob []byte) embedding.Vector {
	if len(blob) == 0 {
		return nil
	}
	vec := make(embedding.Vector, len(blob)/4)
	for i := range vec {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vec[i] = math.Float32frombits(bits)
	}
	return vec
}
