package services

import (
	"errors"
	"fmt"
)

// Classified failures. Everything here is recovered at the account-service
// boundary and turned into a structured result; anything else propagates to
// the HTTP layer as a plain error.
var (
	ErrNotFound = errors.New("user not found")

	// Upload validation
	ErrNoFile          = errors.New("no file provided")
	ErrUnsupportedType = errors.New("unsupported image type")
	ErrTooLarge        = errors.New("file exceeds the maximum allowed size")
)

// DuplicateError reports a uniqueness violation on a specific field.
type DuplicateError struct {
	Field string // "username" or "email"
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s already in use", e.Field)
}

// IsDuplicate returns the DuplicateError inside err, if any.
func IsDuplicate(err error) (*DuplicateError, bool) {
	var d *DuplicateError
	if errors.As(err, &d) {
		return d, true
	}
	return nil, false
}

// ProcessingError wraps an image transform failure.
type ProcessingError struct {
	Err error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("image processing failed: %v", e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// StorageError wraps a filesystem or persistence layer failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
