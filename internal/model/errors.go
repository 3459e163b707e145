package model

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors shared across components.
var (
	ErrNotFound        = errors.New("entry not found")
	ErrNotImplemented  = errors.New("operation not implemented")
	ErrColdUnavailable = errors.New("cold storage unavailable")
)

// StorageError reports a failed backend write or delete. Read-path
// failures degrade to empty results instead and never carry this type.
type StorageError struct {
	Op      string
	EntryID string
	Time    time.Time
	Err     error
}

// NewStorageError wraps err with the operation name and entry id.
func NewStorageError(op, entryID string, err error) *StorageError {
	return &StorageError{Op: op, EntryID: entryID, Time: time.Now().UTC(), Err: err}
}

func (e *StorageError) Error() string {
	if e.EntryID != "" {
		return fmt.Sprintf("storage %s %s: %v", e.Op, e.EntryID, e.Err)
	}
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// ProcessingError reports a failed transform or tiering decision.
type ProcessingError struct {
	Op      string
	EntryID string
	Time    time.Time
	Err     error
}

// NewProcessingError wraps err with the operation name and entry id.
func NewProcessingError(op, entryID string, err error) *ProcessingError {
	return &ProcessingError{Op: op, EntryID: entryID, Time: time.Now().UTC(), Err: err}
}

func (e *ProcessingError) Error() string {
	if e.EntryID != "" {
		return fmt.Sprintf("processing %s %s: %v", e.Op, e.EntryID, e.Err)
	}
	return fmt.Sprintf("processing %s: %v", e.Op, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// ValidationError reports malformed caller input.
type ValidationError struct {
	Op      string
	EntryID string
	Time    time.Time
	Err     error
}

// NewValidationError wraps err with the operation name and entry id.
func NewValidationError(op, entryID string, err error) *ValidationError {
	return &ValidationError{Op: op, EntryID: entryID, Time: time.Now().UTC(), Err: err}
}

func (e *ValidationError) Error() string {
	if e.EntryID != "" {
		return fmt.Sprintf("validation %s %s: %v", e.Op, e.EntryID, e.Err)
	}
	return fmt.Sprintf("validation %s: %v", e.Op, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }
