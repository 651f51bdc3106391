package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	err := New(ErrCategoryStore, CodeStoreUnavailable, "database unreachable")
	want := "[STORE:STORE_UNAVAILABLE] database unreachable"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	cause := errors.New("connection refused")
	wrapped := Wrap(ErrCategoryStore, CodeStoreUnavailable, "database unreachable", cause)
	want = "[STORE:STORE_UNAVAILABLE] database unreachable: connection refused"
	if wrapped.Error() != want {
		t.Errorf("Error() = %q, want %q", wrapped.Error(), want)
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(ErrCategoryCheckpoint, CodeCheckpointWrite, "save failed", cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}

	var se *SyncError
	outer := fmt.Errorf("chunk 3: %w", err)
	if !errors.As(outer, &se) {
		t.Fatal("errors.As should find SyncError through wrapping")
	}
	if se.Code != CodeCheckpointWrite {
		t.Errorf("code = %s, want %s", se.Code, CodeCheckpointWrite)
	}
}

func TestIsMatchesCategoryAndCode(t *testing.T) {
	err := New(ErrCategoryStore, CodePartitionMissing, "no partition for matrix POP107A")
	target := New(ErrCategoryStore, CodePartitionMissing, "different message")

	if !errors.Is(err, target) {
		t.Error("errors with same category and code should match")
	}

	other := New(ErrCategoryStore, CodeStoreUnavailable, "")
	if errors.Is(err, other) {
		t.Error("errors with different codes should not match")
	}
}

func TestRetryability(t *testing.T) {
	tests := []struct {
		name      string
		category  ErrorCategory
		code      string
		retryable bool
	}{
		{"missing partition is fatal", ErrCategoryStore, CodePartitionMissing, false},
		{"store unavailability retries", ErrCategoryStore, CodeStoreUnavailable, true},
		{"checkpoint write retries", ErrCategoryCheckpoint, CodeCheckpointWrite, true},
		{"duplicate mapping needs no retry", ErrCategoryStore, CodeDuplicateMapping, false},
		{"fetch failure retries", ErrCategoryIngest, CodeFetchFailed, true},
		{"invalid matrix id is fatal", ErrCategoryValidation, CodeInvalidMatrixID, false},
		{"unresolvable label is not an error to retry", ErrCategoryResolution, CodeUnresolvableLabel, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.category, tt.code, "test")
			if got := IsRetryable(err); got != tt.retryable {
				t.Errorf("IsRetryable(%s:%s) = %v, want %v", tt.category, tt.code, got, tt.retryable)
			}
		})
	}

	if IsRetryable(errors.New("plain error")) {
		t.Error("plain errors should not be retryable")
	}
}

func TestConditionHelpers(t *testing.T) {
	pm := New(ErrCategoryStore, CodePartitionMissing, "statistics_POP107A does not exist")
	if !IsPartitionMissing(pm) {
		t.Error("IsPartitionMissing should detect the code through the chain")
	}
	if !IsPartitionMissing(fmt.Errorf("upsert: %w", pm)) {
		t.Error("IsPartitionMissing should see through wrapping")
	}
	if IsPartitionMissing(New(ErrCategoryStore, CodeStoreUnavailable, "")) {
		t.Error("IsPartitionMissing should not match other codes")
	}

	dup := New(ErrCategoryStore, CodeDuplicateMapping, "mapping exists")
	if !IsDuplicateMapping(dup) {
		t.Error("IsDuplicateMapping should detect the code")
	}
}

func TestWithDetails(t *testing.T) {
	err := New(ErrCategoryIngest, CodeUpsertFailed, "batch failed")
	detailed := err.WithDetails(map[string]interface{}{"matrix_id": "POP107A", "batch": 2})

	if detailed.Details["matrix_id"] != "POP107A" {
		t.Error("details should carry matrix_id")
	}
	if err.Details != nil {
		t.Error("WithDetails should not mutate the original error")
	}
}
