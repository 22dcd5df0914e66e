package auditlog

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"customllm/internal/core"
)

// Middleware records an audit event for every request to an audited path.
// Handlers fill in request details through EventFromContext.
func Middleware(logger *Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if logger == nil || !IsAuditedPath(c.Request().URL.Path) {
				return next(c)
			}

			start := time.Now()
			req := c.Request()

			event := &Event{
				ID:        uuid.NewString(),
				Timestamp: start,
				RequestID: c.Response().Header().Get(echo.HeaderXRequestID),
				ClientIP:  c.RealIP(),
				UserAgent: req.UserAgent(),
				Method:    req.Method,
				Path:      req.URL.Path,
			}
			if authHeader := req.Header.Get(echo.HeaderAuthorization); authHeader != "" {
				event.APIKeyHash = hashAPIKey(authHeader)
			}

			c.Set(string(EventKey), event)

			err := next(c)

			event.DurationMs = time.Since(start).Milliseconds()
			event.StatusCode = c.Response().Status
			if err != nil {
				event.StatusCode, event.ErrorCode = errorStatus(err)
			}

			logger.Write(event)
			return err
		}
	}
}

// EventFromContext returns the in-flight event, or nil when the request is not audited.
func EventFromContext(c echo.Context) *Event {
	event, _ := c.Get(string(EventKey)).(*Event)
	return event
}

// errorStatus maps an error the error handler has yet to render.
func errorStatus(err error) (int, string) {
	var gwErr *core.GatewayError
	if errors.As(err, &gwErr) {
		return gwErr.HTTPStatusCode(), gwErr.Code
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, ""
	}
	return http.StatusInternalServerError, core.CodeInternalError
}

// hashAPIKey identifies a bearer token without storing it.
func hashAPIKey(authHeader string) string {
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return ""
	}

	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])[:APIKeyHashPrefixLength]
}
