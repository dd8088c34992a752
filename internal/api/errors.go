// errors.go - Structured error handling for API responses
package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/Kotoad/APP-PyQt-sub000/internal/compiler"
	"github.com/Kotoad/APP-PyQt-sub000/internal/diagram"
	"github.com/Kotoad/APP-PyQt-sub000/internal/models"
	"github.com/Kotoad/APP-PyQt-sub000/internal/persist"
	"github.com/Kotoad/APP-PyQt-sub000/internal/storage"
	"github.com/Kotoad/APP-PyQt-sub000/internal/workspace"
	"github.com/labstack/echo/v4"
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

// NewNotFoundError creates a 404 Not Found error
func NewNotFoundError(resource string, id string) *APIError {
	return &APIError{
		Status:  http.StatusNotFound,
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s not found: %s", resource, id),
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

// domainErrors maps workspace errors to responses. Order matters: the
// first match wins.
var domainErrors = []struct {
	target error
	status int
	code   string
}{
	{workspace.ErrGateClosed, http.StatusConflict, "GATE_CLOSED"},
	{diagram.ErrNameCollision, http.StatusConflict, "NAME_COLLISION"},
	{persist.ErrCorruptProject, http.StatusUnprocessableEntity, "CORRUPT_PROJECT"},
	{storage.ErrMissingFile, http.StatusNotFound, "MISSING_FILE"},
	{compiler.ErrCompile, http.StatusUnprocessableEntity, "COMPILE_ERROR"},
	{diagram.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
	{diagram.ErrInvalidParam, http.StatusBadRequest, "INVALID_PARAM"},
	{models.ErrUnknownParam, http.StatusBadRequest, "INVALID_PARAM"},
	{diagram.ErrOffGrid, http.StatusBadRequest, "INVALID_PARAM"},
	{diagram.ErrEmptyName, http.StatusBadRequest, "INVALID_PARAM"},
	{diagram.ErrPort, http.StatusBadRequest, "INVALID_PORT"},
	{diagram.ErrBadWaypoints, http.StatusBadRequest, "INVALID_PATH"},
	{diagram.ErrPortInUse, http.StatusConflict, "PORT_IN_USE"},
	{diagram.ErrPathExists, http.StatusConflict, "PATH_EXISTS"},
	{diagram.ErrStartExists, http.StatusConflict, "START_EXISTS"},
}

// FromError converts an error returned by the workspace or its
// collaborators into an APIError.
func FromError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	for _, d := range domainErrors {
		if errors.Is(err, d.target) {
			return &APIError{Status: d.status, Code: d.code, Message: err.Error()}
		}
	}
	return NewInternalError("operation failed", err)
}

// NewErrorHandler returns an Echo error handler. Details of unexpected
// errors are included only when showDetails is set.
// Usage: e.HTTPErrorHandler = api.NewErrorHandler(debug)
func NewErrorHandler(showDetails bool) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var apiErr *APIError
		var httpErr *echo.HTTPError
		switch {
		case errors.As(err, &apiErr):
		case errors.As(err, &httpErr):
			apiErr = &APIError{
				Status:  httpErr.Code,
				Code:    "HTTP_ERROR",
				Message: fmt.Sprintf("%v", httpErr.Message),
			}
		default:
			apiErr = FromError(err)
		}

		if apiErr.Status >= http.StatusInternalServerError && !showDetails {
			apiErr = &APIError{Status: apiErr.Status, Code: apiErr.Code, Message: apiErr.Message}
		}
		if err := c.JSON(apiErr.Status, apiErr); err != nil {
			fmt.Printf("[API] Failed to write error response: %v\n", err)
		}
	}
}

// respond writes err as a structured response.
func respond(c echo.Context, err error) error {
	apiErr := FromError(err)
	if apiErr.Status >= http.StatusInternalServerError {
		fmt.Printf("[API] %s %s: %v\n", c.Request().Method, c.Path(), err)
	}
	return c.JSON(apiErr.Status, apiErr)
}
