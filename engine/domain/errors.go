package domain

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for validation and retrieval failures.
var (
	ErrEmptyDocument        = errors.New("empty document")
	ErrMissingID            = errors.New("missing document id")
	ErrEmptyQuery           = errors.New("empty query")
	ErrQueryTooShort        = errors.New("query too short")
	ErrUnknownDomain        = errors.New("unknown domain label")
	ErrDimensionMismatch    = errors.New("embedding dimension mismatch")
	ErrRetrievalUnavailable = errors.New("all namespace searches failed")
)

// Error kinds recorded in ingestion failure records.
const (
	KindEmptyDocument      = "empty_document"
	KindValidation         = "validation"
	KindTransientExhausted = "transient_exhausted"
	KindPermanent          = "permanent"
	KindCanceled           = "canceled"
)

// ValidationError wraps a sentinel with the offending field and value.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}

// TransientError marks a failure as retryable (network, timeout, rate limit).
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("%s: transient: %v", e.Op, e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientError.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Op: op, Err: err}
}

// PermanentError marks a failure that retrying cannot fix (rejected payload,
// dimension mismatch). It is surfaced immediately.
type PermanentError struct {
	Op  string
	Err error
}

func (e *PermanentError) Error() string { return fmt.Sprintf("%s: permanent: %v", e.Op, e.Err) }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err as a PermanentError.
func Permanent(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Op: op, Err: err}
}

// IsTransient reports whether err is marked retryable anywhere in its chain.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsPermanent reports whether err is marked non-retryable anywhere in its chain.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// FailureKind maps an error to the kind recorded in an ingestion report.
func FailureKind(err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	case errors.Is(err, ErrEmptyDocument):
		return KindEmptyDocument
	case IsTransient(err):
		return KindTransientExhausted
	case IsPermanent(err):
		return KindPermanent
	default:
		var ve *ValidationError
		if errors.As(err, &ve) {
			return KindValidation
		}
		return KindPermanent
	}
}
