// Package handlers provides HTTP handler implementations for the public API.
//
// This file holds the response helpers. Every error goes out as an
// ErrorResponse with a stable code from errors.go; serviceError is the single
// place where service sentinels become HTTP statuses.
//
// Example error response:
//
//	HTTP/1.1 409 Conflict
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "spk_not_reserved",
//	  "message": "this number has expired, request a new one"
//	}
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/spk-service/internal/http/middleware"
	"github.com/tbourn/spk-service/internal/services"
)

// retryAfterSeconds is advertised on retryable 503s.
const retryAfterSeconds = "1"

// ErrorResponse is the standard error envelope returned by all endpoints.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"spk_not_reserved"`
	// Human-readable message (safe to show to users)
	Message string `json:"message" example:"this number has expired, request a new one"`
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

// Fail is the exported variant of fail, used by the router fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

// serviceError maps an error from the services package to a response.
// Unknown errors become a 500 without leaking their text.
func serviceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrGenerationFailed):
		c.Header("Retry-After", retryAfterSeconds)
		fail(c, http.StatusServiceUnavailable, ErrCodeGenerationFailed, "please try again")
	case errors.Is(err, services.ErrSequenceOverflow):
		fail(c, http.StatusInternalServerError, ErrCodeSequenceOverflow, "monthly SPK sequence exhausted")
	case errors.Is(err, services.ErrVerificationUnavailable):
		c.Header("Retry-After", retryAfterSeconds)
		fail(c, http.StatusServiceUnavailable, ErrCodeVerificationUnavailable, "verification temporarily unavailable")
	case errors.Is(err, services.ErrSPKNotReserved):
		fail(c, http.StatusConflict, ErrCodeSPKNotReserved, "this number has expired, request a new one")
	case errors.Is(err, services.ErrSPKAlreadyUsed):
		fail(c, http.StatusConflict, ErrCodeConflict, "spk already used by another order")
	case errors.Is(err, services.ErrMalformed):
		fail(c, http.StatusBadRequest, ErrCodeMalformedSPK, "malformed spk")
	case errors.Is(err, services.ErrInvalidOrder):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, services.ErrCounterNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "counter not found")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		fail(c, http.StatusServiceUnavailable, ErrCodeUnavailable, "request cancelled or timed out")
	default:
		middleware.LoggerFrom(c).Error().Err(err).Msg("unexpected service error")
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
	}
}
