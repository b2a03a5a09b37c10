// Package handlers implements the chat history HTTP API: users, projects,
// chats (including fork, duplicate and description updates) and the
// streamed completion endpoint.
//
// Every failure is written as an ErrorResponse with a stable code; service
// errors are mapped to statuses in one place (failErr) by their error kind.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-chat-history/internal/http/middleware"
	"github.com/tbourn/go-chat-history/internal/llm"
	"github.com/tbourn/go-chat-history/internal/services"
)

// ErrorResponse is the error envelope returned by all endpoints.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go)
	Code string `json:"code" example:"not_found"`
	// Human-readable message
	Message string `json:"message" example:"chat not found"`
}

// fail aborts with an ErrorResponse. 5xx responses are logged with the
// request-scoped logger.
func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	})
}

// Fail is the exported form of fail for router-level fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// failErr maps a service error to its HTTP status by kind. Internal error
// text is logged but never returned to the client.
func failErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, llm.ErrInvalidAPIKey):
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid or missing API key")
	case errors.Is(err, llm.ErrNotConfigured):
		fail(c, http.StatusServiceUnavailable, ErrCodeLLMUnavailable, "completion backend is not configured")
	case errors.Is(err, services.ErrValidation):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, services.ErrNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, services.ErrConstraint):
		fail(c, http.StatusConflict, ErrCodeConflict, conflictMessage(err))
	case errors.Is(err, services.ErrStorageUnavailable):
		fail(c, http.StatusInternalServerError, ErrCodeStorageUnavailable, "chat history storage is unavailable")
	default:
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
	}
}

// conflictMessage names the conflict without exposing driver text.
func conflictMessage(err error) string {
	switch {
	case errors.Is(err, services.ErrProjectExists):
		return "project already exists"
	case errors.Is(err, services.ErrURLIDTaken):
		return "url id already in use"
	default:
		return "resource already exists"
	}
}

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
