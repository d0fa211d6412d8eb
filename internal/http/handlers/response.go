// Package handlers implements the public API endpoints: generation submit
// and polling, song listing and streaming, publication, and credits.
//
// Every failure answers the same envelope so clients can branch on a stable
// code:
//
//	HTTP/1.1 402 Payment Required
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "insufficient_credits",
//	  "message": "no generation credits remaining"
//	}
//
// Successful responses are plain JSON bodies with the usual status codes
// (202 for accepted submissions, 204 for bodiless operations).
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-music-backend/internal/http/middleware"
)

// ErrorResponse is the error envelope shared by all endpoints. RequestID
// echoes the X-Request-ID header so a client report can be matched to server
// logs; Code is one of the errors.go constants; Message is safe to display.
type ErrorResponse struct {
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	Code      string `json:"code" example:"not_found"`
	Message   string `json:"message" example:"resource not found"`
}

// fail aborts the request with the error envelope. Server-side failures
// (>= 500) are additionally logged through the request-scoped logger; client
// errors are left to the access log.
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

// Fail is the exported variant of fail for router-level fallbacks (NoRoute,
// NoMethod) that live outside this package.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
