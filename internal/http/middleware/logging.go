// Package middleware contains shared Gin middleware used by the HTTP layer:
// correlation IDs, structured access logging with PII redaction, panic
// recovery, Prometheus metrics, token-bucket rate limiting, identity
// resolution, and security headers.
//
// Recommended order: RequestID, then RedactingLogger (or Logger), then
// Recovery, so panics and error responses carry the correlation ID.
package middleware

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// requestIDKey is the Gin context key holding the correlation ID.
	requestIDKey = "requestID"
	// ctxKeyLogger is the Gin context key holding the request-scoped logger.
	ctxKeyLogger = "logger"
	// requestIDHeader propagates the correlation ID to clients.
	requestIDHeader = "X-Request-ID"
	// maxQueryLogLength caps logged query-string bytes.
	maxQueryLogLength = 2048
)

// RequestID reuses the incoming X-Request-ID when present, or mints a UUIDv4.
// The ID is stored in the Gin context and echoed on the response header.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

// Logger emits one structured access-log line per request and stores a
// request-scoped zerolog.Logger in the Gin context for handlers to enrich.
//
// Level follows the outcome: error for 5xx or collected Gin errors, warn for
// 4xx, info otherwise. Prompts and lyrics travel in request bodies and are
// never logged here; only metadata (method, route, sizes, latency) is.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		rid, _ := c.Get(requestIDKey)
		uid, _ := c.Get(ctxKeyUserID)
		route := c.FullPath()
		if route == "" {
			// Unmatched route (404): fall back to the raw path.
			route = c.Request.URL.Path
		}

		l := log.With().
			Str("request_id", ctxString(rid)).
			Str("user_id", ctxString(uid)).
			Str("method", c.Request.Method).
			Str("path", route).
			Str("remote_ip", c.ClientIP()).
			Str("user_agent", c.Request.UserAgent()).
			Str("referer", c.Request.Referer()).
			Str("query", clip(c.Request.URL.RawQuery, maxQueryLogLength)).
			Int64("bytes_in", c.Request.ContentLength).
			Logger()

		c.Set(ctxKeyLogger, &l)

		c.Next()

		out := l.With().
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Int("bytes_out", c.Writer.Size()).
			Logger()

		switch status := c.Writer.Status(); {
		case len(c.Errors) > 0:
			out.Error().Str("errors", c.Errors.String()).Msg("request")
		case status >= 500:
			out.Error().Msg("request")
		case status >= 400:
			out.Warn().Msg("request")
		default:
			out.Info().Msg("request")
		}
	}
}

// Recovery converts panics into JSON 500 responses, logging the stack trace
// with the correlation ID. If the handler already wrote a response only the
// status is forced.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				rid, _ := c.Get(requestIDKey)
				log.Error().
					Interface("panic", rec).
					Bytes("stack", debug.Stack()).
					Str("request_id", ctxString(rid)).
					Msg("panic recovered")

				if !c.Writer.Written() {
					c.Header("Content-Type", "application/json")
					c.Header(requestIDHeader, ctxString(rid))
					c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
						"request_id": ctxString(rid),
						"code":       "internal_error",
						"message":    "internal server error",
					})
					return
				}
				c.AbortWithStatus(http.StatusInternalServerError)
			}
		}()
		c.Next()
	}
}

// LoggerFrom returns the request-scoped zerolog.Logger, or a field-less
// fallback when none was attached. Never nil.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(ctxKeyLogger); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	l := log.With().Logger()
	return &l
}

// ctxString unwraps a Gin context value as a string, empty when absent or of
// another type.
func ctxString(v any) string {
	s, _ := v.(string)
	return s
}

// clip bounds s to max bytes, appending an ellipsis when cut. max <= 0
// disables clipping. Byte-level slicing is fine for log output.
func clip(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
