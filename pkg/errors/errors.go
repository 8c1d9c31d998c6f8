// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bertillon Contributors

package errors

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error.
type Code string

const (
	CodeEmbeddingInvalidDimension Code = "embedding.normalize.invalid_dimension"
	CodeEmbeddingDegenerateVector Code = "embedding.normalize.degenerate_vector"
	CodeEmbeddingNoFaceDetected   Code = "embedding.extract.no_face_detected"
	CodeEmbeddingExtractFailure   Code = "embedding.extract.failure"

	CodeStoreRecordNotFound     Code = "store.record.get.not_found"
	CodeStoreInvalidLegalBasis  Code = "store.record.insert.invalid_legal_basis"
	CodeStoreTransitionInvalid  Code = "store.record.transition.invalid"
	CodeStoreAttemptNotFound    Code = "store.attempt.get.not_found"
	CodeStoreDatabaseFailure    Code = "store.database.failure"
	CodeStoreBackendUnsupported Code = "store.backend.unsupported"
	CodeStoreInvalidInput       Code = "store.invalid_input"

	CodeSearchPopulationEmpty Code = "search.population.empty"
	CodeSearchCancelled       Code = "search.scan.cancelled"
	CodeSearchInvalidInput    Code = "search.params.invalid_input"

	CodeMatchMissingJustification Code = "match.request.missing_justification"
	CodeMatchAuditAppendFailure   Code = "match.audit.append.failure"
	CodeMatchAttemptRecordFailure Code = "match.attempt.record.failure"

	CodeRetentionSweepFailure Code = "retention.sweep.failure"

	CodeConfigLoadReadFailure      Code = "config.load.read.failure"
	CodeConfigValidateInvalidValue Code = "config.validate.invalid_value"

	CodeCLISetupFailure Code = "cli.setup.failure"
	CodeCLIInputInvalid Code = "cli.input.invalid"

	CodeInternalFailure Code = "internal.failure"
)

// Attr is a structured key/value context attached to an error.
type Attr struct {
	Key   string
	Value any
}

// Field creates a structured error field.
func Field(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

func FieldSubject(value string) Attr {
	return Field("subject_ref", value)
}

func FieldRecordID(value string) Attr {
	return Field("record_id", value)
}

func FieldAttemptID(value string) Attr {
	return Field("attempt_id", value)
}

func FieldLegalBasis(value string) Attr {
	return Field("legal_basis", value)
}

func New(code Code, msg string, fields ...Attr) error {
	return oops.Code(code).With(flatten(fields)...).New(msg)
}

func Errorf(code Code, format string, args ...any) error {
	return oops.Code(code).Errorf(format, args...)
}

func Wrap(err error, code Code, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).With(flatten(fields)...).Wrapf(err, "%s", msg)
}

func Wrapf(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).Wrapf(err, format, args...)
}

// With adds structured fields to an existing error chain.
func With(err error, fields ...Attr) error {
	if err == nil {
		return nil
	}

	code := CodeOf(err)
	if code == "" {
		code = CodeInternalFailure
	}

	return oops.Code(code).With(flatten(fields)...).Wrap(err)
}

func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}

	if code, ok := oopsErr.Code().(Code); ok {
		return code
	}

	if code, ok := oopsErr.Code().(string); ok {
		return Code(code)
	}

	return Code(fmt.Sprintf("%v", oopsErr.Code()))
}

func FieldsOf(err error) map[string]any {
	if err == nil {
		return nil
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}

	return oopsErr.Context()
}

func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

func IsNotFound(err error) bool {
	return reason(CodeOf(err)) == "not_found"
}

func IsInvalidInput(err error) bool {
	r := reason(CodeOf(err))
	return r == "invalid" || r == "invalid_input" || r == "invalid_value" ||
		r == "invalid_dimension" || r == "invalid_legal_basis"
}

// IsInvalidTransition reports a rejected lifecycle state transition. Retrying
// one usually indicates a caller logic bug, so callers surface these as-is.
func IsInvalidTransition(err error) bool {
	return HasCode(err, CodeStoreTransitionInvalid)
}

func IsDegenerateVector(err error) bool {
	return reason(CodeOf(err)) == "degenerate_vector"
}

func IsNoFaceDetected(err error) bool {
	return reason(CodeOf(err)) == "no_face_detected"
}

func IsPopulationEmpty(err error) bool {
	return HasCode(err, CodeSearchPopulationEmpty)
}

func IsCancelled(err error) bool {
	return reason(CodeOf(err)) == "cancelled"
}

func IsMissingJustification(err error) bool {
	return reason(CodeOf(err)) == "missing_justification"
}

func Join(errs ...error) error {
	return oops.Code(CodeInternalFailure).Wrap(stderrors.Join(errs...))
}

func flatten(fields []Attr) []any {
	pairs := make([]any, 0, len(fields)*2)
	for _, field := range fields {
		if field.Key == "" {
			continue
		}
		pairs = append(pairs, field.Key, field.Value)
	}
	return pairs
}

func reason(code Code) string {
	if code == "" {
		return ""
	}

	raw := string(code)
	idx := strings.LastIndex(raw, ".")
	if idx == -1 || idx == len(raw)-1 {
		return raw
	}
	return raw[idx+1:]
}
