// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// This file centralizes symbolic error code constants that are mapped to HTTP responses
// (via the `fail()` helper in this package). These codes provide clients with a stable,
// machine-readable error taxonomy that supplements human-readable messages.
//
// Conventions:
//   - Codes are lowercase, snake_case, and domain-agnostic unless explicitly noted.
//   - Generic codes (e.g., bad_request, not_found, conflict) mirror common HTTP
//     status semantics to aid interoperability.
//   - Domain-specific codes (e.g., validation_failed, store_unavailable) carry
//     business outcomes that cannot be conveyed by status alone.
//   - All error responses must include both an HTTP status and one of these codes.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "store_unavailable",
//	  "message": "store unavailable, retry later"
//	}
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/recipe-notebook/internal/services"
)

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeTooLarge         = "payload_too_large"
	ErrCodeUnavailable      = "store_unavailable"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Domain-specific:
	ErrCodeValidation     = "validation_failed"
	ErrCodeParse          = "parse_failed"
	ErrCodeNotConfirmable = "import_not_confirmable"
	ErrCodeExportFailed   = "export_failed"
	ErrCodeImageFailed    = "image_failed"
)

// failErr maps a service error to a status and code. Unknown errors are 500.
func failErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrRecipeNotFound),
		errors.Is(err, services.ErrImageNotFound),
		errors.Is(err, services.ErrSessionNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, services.ErrValidation):
		fail(c, http.StatusUnprocessableEntity, ErrCodeValidation, err.Error())
	case errors.Is(err, services.ErrParse):
		fail(c, http.StatusBadRequest, ErrCodeParse, err.Error())
	case errors.Is(err, services.ErrPayloadTooLarge):
		fail(c, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, err.Error())
	case errors.Is(err, services.ErrEmptyBatch),
		errors.Is(err, services.ErrUnresolvedInvalid):
		fail(c, http.StatusConflict, ErrCodeNotConfirmable, err.Error())
	case errors.Is(err, services.ErrNotDuplicate),
		errors.Is(err, services.ErrInvalidDecision),
		errors.Is(err, services.ErrIndexOutOfRange):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, services.ErrStoreUnavailable):
		c.Header("Retry-After", "1")
		fail(c, http.StatusServiceUnavailable, ErrCodeUnavailable, "store unavailable, retry later")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}
