// Package errors provides structured error types for the statsync system.
// All errors include a category, code, message, and retryable flag so callers
// can separate transient store trouble from fatal provisioning gaps and from
// benign expected conflicts.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by system component.
type ErrorCategory string

const (
	ErrCategoryValidation ErrorCategory = "VALIDATION"
	ErrCategoryStore      ErrorCategory = "STORE"
	ErrCategoryResolution ErrorCategory = "RESOLUTION"
	ErrCategoryCheckpoint ErrorCategory = "CHECKPOINT"
	ErrCategoryIngest     ErrorCategory = "INGEST"
	ErrCategoryArchive    ErrorCategory = "ARCHIVE"
	ErrCategoryInternal   ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Validation codes
	CodeInvalidMatrixID = "INVALID_MATRIX_ID"
	CodeEmptyChunk      = "EMPTY_CHUNK"
	CodeInvalidLabel    = "INVALID_LABEL"

	// Store codes
	CodeStoreUnavailable  = "STORE_UNAVAILABLE"
	CodePartitionMissing  = "PARTITION_MISSING"
	CodeDuplicateMapping  = "DUPLICATE_MAPPING"
	CodeTerritoryNotFound = "TERRITORY_NOT_FOUND"

	// Resolution codes
	CodeUnresolvableLabel = "UNRESOLVABLE_LABEL"

	// Checkpoint codes
	CodeCheckpointWrite = "CHECKPOINT_WRITE"
	CodeCheckpointRead  = "CHECKPOINT_READ"

	// Ingest codes
	CodeFetchFailed  = "FETCH_FAILED"
	CodeUpsertFailed = "UPSERT_FAILED"

	// Archive codes
	CodeArchiveWrite = "ARCHIVE_WRITE"
	CodeArchiveRead  = "ARCHIVE_READ"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// SyncError is the structured error type used throughout the system.
type SyncError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *SyncError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *SyncError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *SyncError) Is(target error) bool {
	var t *SyncError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new SyncError.
func New(category ErrorCategory, code, message string) *SyncError {
	return &SyncError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new SyncError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *SyncError {
	return &SyncError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *SyncError) WithDetails(details map[string]interface{}) *SyncError {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}

// IsPartitionMissing reports whether an error marks a missing fact partition.
// That condition is a provisioning gap: fatal for the matrix's run, not
// retried until an operator provisions the partition out of band.
func IsPartitionMissing(err error) bool {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Code == CodePartitionMissing
	}
	return false
}

// IsDuplicateMapping reports whether an error marks the benign mapping-write
// race: an equivalent LabelMapping row already exists for the key.
func IsDuplicateMapping(err error) bool {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Code == CodeDuplicateMapping
	}
	return false
}

// isRetryable determines retryability from category and code.
func isRetryable(category ErrorCategory, code string) bool {
	switch code {
	case CodePartitionMissing, CodeInvalidMatrixID, CodeInvalidLabel, CodeEmptyChunk:
		return false
	case CodeDuplicateMapping:
		// Benign conflict: nothing to retry, an equivalent row exists.
		return false
	}

	switch category {
	case ErrCategoryStore, ErrCategoryCheckpoint, ErrCategoryArchive:
		return true
	case ErrCategoryIngest:
		return code == CodeFetchFailed || code == CodeUpsertFailed
	}
	return false
}
