// Package services defines the business logic for recipes and imports.
// This file centralizes service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/tbourn/recipe-notebook/internal/importer"
)

// Recipe-related errors.
var (
	// ErrRecipeNotFound indicates that the requested recipe does not exist.
	ErrRecipeNotFound = errors.New("recipe not found")

	// ErrImageNotFound indicates that the requested image does not exist on
	// the given recipe.
	ErrImageNotFound = errors.New("image not found")

	// ErrValidation is wrapped by *ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrStoreUnavailable wraps unexpected persistence failures. Callers may
	// retry the operation.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// Import-related errors.
var (
	// ErrSessionNotFound indicates an unknown, expired or finished import
	// session.
	ErrSessionNotFound = errors.New("import session not found")

	// ErrPayloadTooLarge is returned when an import document exceeds the
	// configured size limit.
	ErrPayloadTooLarge = errors.New("import file too large")

	// Re-exported so handlers depend on services only.
	ErrParse             = importer.ErrParse
	ErrEmptyBatch        = importer.ErrEmptyBatch
	ErrUnresolvedInvalid = importer.ErrUnresolvedInvalid
	ErrNotDuplicate      = importer.ErrNotDuplicate
	ErrInvalidDecision   = importer.ErrInvalidDecision
	ErrIndexOutOfRange   = importer.ErrIndexOutOfRange
)

// ValidationError carries one message per invalid field.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Unwrap lets errors.Is(err, ErrValidation) succeed.
func (e *ValidationError) Unwrap() error { return ErrValidation }

func storeErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
