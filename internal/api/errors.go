// errors.go - Structured error handling for API responses
package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rueckwand/configurator/internal/render"
	"github.com/rueckwand/configurator/internal/session"
	"github.com/rueckwand/configurator/internal/storage"
	"github.com/rueckwand/configurator/internal/units"
	"github.com/rueckwand/configurator/internal/upload"
)

// APIError represents a structured API error response
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error constructors for consistent error handling

// NewBadRequestError creates a 400 Bad Request error
func NewBadRequestError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusBadRequest,
		Code:    "BAD_REQUEST",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewValidationError creates a 400 validation error for a specific field
func NewValidationError(field string) *APIError {
	return &APIError{
		Status:  http.StatusBadRequest,
		Code:    "VALIDATION_ERROR",
		Message: fmt.Sprintf("validation failed for field: %s", field),
	}
}

// NewNotFoundError creates a 404 Not Found error
func NewNotFoundError(resource string, id string) *APIError {
	return &APIError{
		Status:  http.StatusNotFound,
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s not found: %s", resource, id),
	}
}

// NewConflictError creates a 409 Conflict error
func NewConflictError(message string) *APIError {
	return &APIError{
		Status:  http.StatusConflict,
		Code:    "CONFLICT",
		Message: message,
	}
}

// NewUnprocessableError creates a 422 error for well-formed requests the
// current state cannot accept
func NewUnprocessableError(code, message string) *APIError {
	return &APIError{
		Status:  http.StatusUnprocessableEntity,
		Code:    code,
		Message: message,
	}
}

// NewInternalError creates a 500 Internal Server Error
func NewInternalError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusInternalServerError,
		Code:    "INTERNAL_ERROR",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewServiceUnavailableError creates a 503 Service Unavailable error
func NewServiceUnavailableError(message string) *APIError {
	return &APIError{
		Status:  http.StatusServiceUnavailable,
		Code:    "SERVICE_UNAVAILABLE",
		Message: message,
	}
}

// ErrorHandler middleware for Echo
// Usage: e.HTTPErrorHandler = api.ErrorHandler
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var apiErr *APIError

	var httpErr *echo.HTTPError
	switch {
	case errors.As(err, &apiErr):
	case errors.As(err, &httpErr):
		e := httpErr
		apiErr = &APIError{
			Status:  e.Code,
			Code:    "HTTP_ERROR",
			Message: fmt.Sprintf("%v", e.Message),
		}
	default:
		apiErr = mapError(err)
		if apiErr.Status == http.StatusInternalServerError {
			apiErr = &APIError{
				Status:  http.StatusInternalServerError,
				Code:    "UNKNOWN_ERROR",
				Message: "An unexpected error occurred",
			}
			if isDevelopment() {
				apiErr.Details = err.Error()
			}
		}
	}

	// Send JSON response
	if !c.Response().Committed {
		c.JSON(apiErr.Status, apiErr)
	}
}

var exposeErrorDetails = true

// SetErrorDetails controls whether unexpected errors include their message
// in the response body.
func SetErrorDetails(enabled bool) {
	exposeErrorDetails = enabled
}

func isDevelopment() bool {
	return exposeErrorDetails
}

// mapError turns domain errors into API errors. Unknown errors become 500s.
func mapError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var rangeErr *units.RangeError
	switch {
	case errors.As(err, &rangeErr):
		e := NewUnprocessableError("OUT_OF_RANGE", rangeErr.Error())
		e.Details = rangeErr.Bounds.Range(rangeErr.Unit)
		return e
	case errors.Is(err, units.ErrNotANumber):
		return &APIError{Status: http.StatusBadRequest, Code: "NOT_A_NUMBER", Message: err.Error()}
	case errors.Is(err, units.ErrUnknownUnit):
		return &APIError{Status: http.StatusBadRequest, Code: "UNKNOWN_UNIT", Message: err.Error()}
	case errors.Is(err, session.ErrSessionNotFound):
		return &APIError{Status: http.StatusNotFound, Code: "NOT_FOUND", Message: "session not found"}
	case errors.Is(err, session.ErrPlateNotFound):
		return &APIError{Status: http.StatusNotFound, Code: "NOT_FOUND", Message: "plate not found"}
	case errors.Is(err, storage.ErrMotifNotFound):
		return &APIError{Status: http.StatusNotFound, Code: "NOT_FOUND", Message: "motif not found"}
	case errors.Is(err, session.ErrPlateLimit):
		return &APIError{Status: http.StatusConflict, Code: "PLATE_LIMIT", Message: err.Error()}
	case errors.Is(err, session.ErrLastPlate):
		return &APIError{Status: http.StatusConflict, Code: "LAST_PLATE", Message: err.Error()}
	case errors.Is(err, session.ErrInvalidIndex), errors.Is(err, session.ErrInvalidOrder):
		return &APIError{Status: http.StatusBadRequest, Code: "INVALID_ORDER", Message: err.Error()}
	case errors.Is(err, session.ErrInvalidMotif), errors.Is(err, render.ErrUnsupportedRef):
		return &APIError{Status: http.StatusBadRequest, Code: "INVALID_MOTIF", Message: err.Error()}
	case errors.Is(err, upload.ErrTooLarge), errors.Is(err, render.ErrTooLarge):
		return &APIError{Status: http.StatusRequestEntityTooLarge, Code: "TOO_LARGE", Message: err.Error()}
	case errors.Is(err, render.ErrNotImage), errors.Is(err, render.ErrBadDataURI):
		return NewUnprocessableError("NOT_AN_IMAGE", err.Error())
	case errors.Is(err, render.ErrExportTooLarge):
		return NewUnprocessableError("EXPORT_TOO_LARGE", err.Error())
	}
	return NewInternalError("internal error", err)
}

// RespondWithError is a helper to respond with an APIError
func RespondWithError(c echo.Context, err *APIError) error {
	return c.JSON(err.Status, err)
}
