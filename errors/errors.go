// Package errors provides error handling for attrmigrate.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - Hints and details for operators
//
// Usage:
//
//	// Wrap with context
//	if err := store.SaveEntry(ctx, entry); err != nil {
//	    return errors.Wrapf(errors.Mark(err, errors.ErrEntrySave), "save entry %d", entry.ID)
//	}
//
//	// Check errors
//	if errors.Is(err, errors.ErrPassInProgress) {
//	    // another pass holds the guard
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
	Mark         = crdb.Mark
)

// User-facing messages and details
var (
	WithHint           = crdb.WithHint
	WithHintf          = crdb.WithHintf
	WithDetail         = crdb.WithDetail
	WithDetailf        = crdb.WithDetailf
	WithSecondaryError = crdb.WithSecondaryError
)

// Error inspection
var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapAll      = crdb.UnwrapAll
	GetAllHints    = crdb.GetAllHints
	GetAllDetails  = crdb.GetAllDetails
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

// GetStack is an alias for GetReportableStackTrace for convenience.
var GetStack = crdb.GetReportableStackTrace

// Common sentinel errors.
// Use these with errors.Is() for type-safe error checking.
// Wrap or Mark these to add context while preserving the type.
var (
	// ErrNotFound indicates the requested resource does not exist
	ErrNotFound = New("not found")

	// ErrInvalidRequest indicates the request was malformed or invalid
	ErrInvalidRequest = New("invalid request")

	// ErrConflict indicates a resource conflict (e.g., duplicate key)
	ErrConflict = New("resource conflict")
)

// Conversion pass errors. None of these abort a pass; they are recorded
// at the point of occurrence and the pass moves on.
var (
	// ErrConfiguration marks malformed or empty conversion configuration
	ErrConfiguration = New("configuration error")

	// ErrTaxonomyCreation marks a storage failure creating a global taxonomy
	ErrTaxonomyCreation = New("taxonomy creation failed")

	// ErrTermCreation marks a storage failure creating a term for a value
	ErrTermCreation = New("term creation failed")

	// ErrEntryLoad marks a catalog entry that could not be read
	ErrEntryLoad = New("entry load failed")

	// ErrEntrySave marks a failure persisting an entry's attributes
	ErrEntrySave = New("entry save failed")

	// ErrPassInProgress is returned when a conversion pass is already running
	ErrPassInProgress = New("conversion pass already in progress")
)

// IsNotFoundError checks if an error is or wraps ErrNotFound.
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsInvalidRequestError checks if an error is or wraps ErrInvalidRequest
func IsInvalidRequestError(err error) bool {
	return err != nil && Is(err, ErrInvalidRequest)
}

// NewNotFoundError creates a not-found error with a formatted message
func NewNotFoundError(format string, args ...interface{}) error {
	return Wrap(ErrNotFound, Newf(format, args...).Error())
}

// NewInvalidRequestError creates an invalid-request error with a formatted message
func NewInvalidRequestError(format string, args ...interface{}) error {
	return Wrap(ErrInvalidRequest, Newf(format, args...).Error())
}

// Kind returns the name of the conversion sentinel err carries, or "unknown".
// Used as the error_type field of run log events.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case Is(err, ErrConfiguration):
		return "configuration"
	case Is(err, ErrTaxonomyCreation):
		return "taxonomy_creation"
	case Is(err, ErrTermCreation):
		return "term_creation"
	case Is(err, ErrEntryLoad):
		return "entry_load"
	case Is(err, ErrEntrySave):
		return "entry_save"
	case Is(err, ErrPassInProgress):
		return "pass_in_progress"
	default:
		return "unknown"
	}
}
