package models

import (
	"errors"

	dErrors "civic/pkg/domain-errors"
)

// Engine error taxonomy. Only ErrJurisdictionUnresolved reaches callers; the
// rest are recovered inside the engine.
var (
	// ErrProviderTimeout: a geo provider missed its deadline and was skipped.
	ErrProviderTimeout = errors.New("provider timeout")
	// ErrJurisdictionUnresolved: no candidate could be accepted for the ZIP code.
	ErrJurisdictionUnresolved = dErrors.New(dErrors.CodeUnresolved, "jurisdiction unresolved")
	// ErrQualityRejected: a record failed the quality gate and was dropped.
	ErrQualityRejected = errors.New("quality rejected")
	// ErrCacheCorrupt: a cache entry could not be decoded; treated as a miss.
	ErrCacheCorrupt = errors.New("cache entry corrupt")
)

// Unresolved wraps a cause as a JurisdictionUnresolved error.
func Unresolved(cause error) error {
	if cause == nil {
		return ErrJurisdictionUnresolved
	}
	return &unresolvedError{cause: cause}
}

type unresolvedError struct {
	cause error
}

func (e *unresolvedError) Error() string {
	return ErrJurisdictionUnresolved.Error() + ": " + e.cause.Error()
}

func (e *unresolvedError) Unwrap() []error {
	return []error{ErrJurisdictionUnresolved, e.cause}
}
