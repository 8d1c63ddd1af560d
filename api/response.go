package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorCode defines standard error codes for programmatic handling
type ErrorCode string

const (
	ErrCodeBadRequest ErrorCode = "BAD_REQUEST" // 400 - Malformed request
	ErrCodeNotFound   ErrorCode = "NOT_FOUND"   // 404 - Resource not found
	ErrCodeConflict   ErrorCode = "CONFLICT"    // 409 - Resource conflict
	ErrCodeInternal   ErrorCode = "INTERNAL_ERROR"
)

// ErrorResponse is the standard error response structure
type ErrorResponse struct {
	Error struct {
		Code    ErrorCode `json:"code"`
		Message string    `json:"message"`
	} `json:"error"`
}

// DataResponse wraps a single resource or object response
type DataResponse[T any] struct {
	Data T `json:"data"`
}

// ListResponse wraps a collection of resources
type ListResponse[T any] struct {
	Data []T `json:"data"`
}

// RespondData sends a 200 OK with a single data object
func RespondData[T any](c *gin.Context, data T) {
	c.JSON(http.StatusOK, DataResponse[T]{Data: data})
}

// RespondCreated sends a 201 Created with the created resource
func RespondCreated[T any](c *gin.Context, data T, locationPath string) {
	if locationPath != "" {
		c.Header("Location", locationPath)
	}
	c.JSON(http.StatusCreated, DataResponse[T]{Data: data})
}

// RespondList sends a 200 OK with a list of items, never null
func RespondList[T any](c *gin.Context, data []T) {
	if data == nil {
		data = []T{}
	}
	c.JSON(http.StatusOK, ListResponse[T]{Data: data})
}

// RespondNoContent sends a 204 No Content response
func RespondNoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

func respondError(c *gin.Context, status int, code ErrorCode, message string) {
	resp := ErrorResponse{}
	resp.Error.Code = code
	resp.Error.Message = message
	c.JSON(status, resp)
}

// RespondBadRequest sends a 400 Bad Request error
func RespondBadRequest(c *gin.Context, message string) {
	respondError(c, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// RespondNotFound sends a 404 Not Found error
func RespondNotFound(c *gin.Context, message string) {
	respondError(c, http.StatusNotFound, ErrCodeNotFound, message)
}

// RespondConflict sends a 409 Conflict error
func RespondConflict(c *gin.Context, message string) {
	respondError(c, http.StatusConflict, ErrCodeConflict, message)
}

// RespondInternalError sends a 500 Internal Server Error
func RespondInternalError(c *gin.Context, message string) {
	respondError(c, http.StatusInternalServerError, ErrCodeInternal, message)
}
