// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bertillon Contributors

package store

import "errors"

// Sentinel errors for store operations.
// These errors can be checked using errors.Is() for classification; the
// wrapping layers attach machine-readable codes from pkg/errors.
var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition indicates a legal-status transition was rejected
	// because the record is not in the expected prior state.
	ErrInvalidTransition = errors.New("invalid legal status transition")

	// ErrInvalidInput indicates the input parameters are invalid or malformed.
	ErrInvalidInput = errors.New("invalid input")
)
