// Package response centralizes HTTP response shapes and helpers.
// Handlers rely on it to keep controllers thin and uniform.
package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gvafram3/parcel-console/internal/repository"
	"github.com/gvafram3/parcel-console/internal/service"
)

var (
	// ErrUnauthorized means the request carried no usable bearer token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden means the caller's role may not perform the operation.
	ErrForbidden = errors.New("forbidden")
)

// ErrorPayload is the canonical error envelope returned by the API.
type ErrorPayload struct {
	Error       string               `json:"error"`
	Message     string               `json:"message,omitempty"`
	FieldErrors []service.FieldError `json:"field_errors,omitempty"`
}

// Page is the paged list envelope the console decodes.
type Page[T any] struct {
	Content       []T   `json:"content"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int   `json:"totalPages"`
	Page          int   `json:"page"`
	Size          int   `json:"size"`
}

// NewPage wraps one window of a repository result.
func NewPage[T any](res repository.PageResult[T], page, size int) Page[T] {
	items := res.Items
	if items == nil {
		items = []T{}
	}
	return Page[T]{
		Content:       items,
		TotalElements: int64(res.Total),
		TotalPages:    res.TotalPages(size),
		Page:          page,
		Size:          size,
	}
}

// MapError converts a domain / infrastructure error into an HTTP status and payload.
// Extend here as new domain error categories emerge.
func MapError(err error) (int, ErrorPayload) {
	if err == nil {
		return http.StatusOK, ErrorPayload{Error: "ok"}
	}

	if errors.Is(err, service.ErrInvalidInput) {
		return http.StatusBadRequest, ErrorPayload{
			Error:       "invalid_input",
			Message:     "one or more fields are invalid",
			FieldErrors: service.FieldErrors(err),
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, ErrorPayload{Error: "unauthorized", Message: "sign in again"}
	case errors.Is(err, repository.ErrInvalidCredentials):
		return http.StatusUnauthorized, ErrorPayload{Error: "invalid_credentials"}
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, ErrorPayload{Error: "forbidden"}
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, ErrorPayload{Error: "not_found"}
	case errors.Is(err, repository.ErrAlreadyExists):
		return http.StatusConflict, ErrorPayload{Error: "already_exists"}
	case errors.Is(err, repository.ErrConflict):
		return http.StatusConflict, ErrorPayload{Error: "conflict"}
	default:
		return http.StatusInternalServerError, ErrorPayload{Error: "internal_error"}
	}
}

// WriteError writes an error response and aborts the context.
func WriteError(c *gin.Context, err error) {
	status, payload := MapError(err)
	if status == http.StatusUnauthorized {
		c.Header("WWW-Authenticate", `Bearer realm="parcels"`)
	}
	c.AbortWithStatusJSON(status, payload)
}

// WriteData writes a successful JSON response.
func WriteData(c *gin.Context, status int, data any) {
	c.JSON(status, data)
}
