package models

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks invalid settings such as chunk size <= overlap. Fatal until fixed.
	ErrConfiguration = errors.New("configuration error")
	// ErrUnsupportedFormat marks a source file the loader cannot parse. Recoverable per file.
	ErrUnsupportedFormat = errors.New("unsupported format")
	// ErrDimensionMismatch marks a vector whose length differs from the index dimension.
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrEmptyIndex is returned when querying an index with no entries.
	ErrEmptyIndex = errors.New("index is empty")
	// ErrNotReady is returned when a query arrives before the index was initialized.
	ErrNotReady = errors.New("index not ready")
	// ErrIndexNotFound is returned by the index store when no artifact exists yet.
	ErrIndexNotFound = errors.New("index not found")
	// ErrCorruptIndex is returned when a persisted artifact fails validation.
	ErrCorruptIndex = errors.New("corrupt index")
	// ErrEmptyQuestion is returned for blank questions.
	ErrEmptyQuestion = errors.New("question cannot be empty")
)

// ConfigurationError describes which setting is invalid.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// Is reports ErrConfiguration as a match.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// DimensionMismatchError carries the expected and actual vector lengths.
type DimensionMismatchError struct {
	Want int
	Got  int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Want, e.Got)
}

// Is reports ErrDimensionMismatch as a match.
func (e *DimensionMismatchError) Is(target error) bool {
	return target == ErrDimensionMismatch
}

// FileError is a per-file failure reported by indexing without aborting the batch.
type FileError struct {
	Path string
	Err  error
}

func (e FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e FileError) Unwrap() error {
	return e.Err
}
