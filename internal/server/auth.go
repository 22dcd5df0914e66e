package server

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"customllm/internal/core"
)

// maxLoggedKeyPrefix bounds how much of a rejected key reaches the logs
const maxLoggedKeyPrefix = 10

// AuthMiddleware validates the bearer key if one is configured.
// If apiKey is empty, no authentication is required.
func AuthMiddleware(apiKey string, logger *slog.Logger) echo.MiddlewareFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if apiKey == "" {
				return next(c)
			}

			authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
			if authHeader == "" {
				logger.Warn("API request rejected: missing Authorization header", "path", c.Path())
				return reject(c, core.CodeMissingAuthorization,
					"Missing Authorization header. Please provide API key in Authorization: Bearer <key> format.")
			}

			const prefix = "Bearer "
			if !strings.HasPrefix(authHeader, prefix) {
				logger.Warn("API request rejected: invalid Authorization header format", "path", c.Path())
				return reject(c, core.CodeInvalidAuthorizationFormat,
					"Invalid Authorization header format. Expected: Bearer <key>")
			}

			token := strings.TrimPrefix(authHeader, prefix)
			if subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) != 1 {
				logger.Warn("API request rejected: invalid API key", "path", c.Path(), "attempted", keyPrefix(token)+"...")
				return reject(c, core.CodeInvalidAPIKey, "Invalid API key")
			}

			logger.Debug("API request authenticated", "path", c.Path())
			return next(c)
		}
	}
}

func reject(c echo.Context, code, message string) error {
	return c.JSON(http.StatusUnauthorized, core.NewAuthenticationError(code, message).ToJSON())
}

func keyPrefix(key string) string {
	r := []rune(key)
	if len(r) > maxLoggedKeyPrefix {
		r = r[:maxLoggedKeyPrefix]
	}
	return string(r)
}
