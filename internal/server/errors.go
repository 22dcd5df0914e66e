package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"customllm/internal/core"
)

const internalErrorMessage = "Internal server error"

// Plain envelopes for router-level failures
var (
	notFoundBody         = map[string]string{"error": "Endpoint not found"}
	methodNotAllowedBody = map[string]string{"error": "Method not allowed"}
)

// errorHandler renders errors that escaped the handlers: router misses, body
// limit violations and recovered panics.
func errorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, body := renderError(logger, err)
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, body)
		}
		if err != nil {
			logger.Error("failed to write error response", "error", err)
		}
	}
}

func renderError(logger *slog.Logger, err error) (int, any) {
	var gwErr *core.GatewayError
	if errors.As(err, &gwErr) && isClientError(gwErr) {
		return gwErr.HTTPStatusCode(), gwErr.ToJSON()
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		switch {
		case he.Code == http.StatusNotFound:
			return http.StatusNotFound, notFoundBody
		case he.Code == http.StatusMethodNotAllowed:
			return http.StatusMethodNotAllowed, methodNotAllowedBody
		case he.Code == http.StatusRequestEntityTooLarge:
			return he.Code, core.NewInvalidRequestErrorWithStatus(he.Code, core.CodeRequestTooLarge,
				"Request body too large", err).ToJSON()
		case he.Code < http.StatusInternalServerError:
			return he.Code, core.NewInvalidRequestErrorWithStatus(he.Code, "", http.StatusText(he.Code), err).ToJSON()
		}
	}

	logger.Error("unhandled error", "error", err)
	return http.StatusInternalServerError, core.NewServerError(internalErrorMessage, err).ToJSON()
}

// isClientError reports whether err may be shown to the caller as-is.
// Failures of an upstream provider, including its own 4xx answers, are ours.
func isClientError(err *core.GatewayError) bool {
	return err.Type != core.ErrorTypeServer && err.Provider == ""
}

// handleError writes err in the OpenAI error envelope. Server-side failures
// are logged and replaced with a generic message.
func (h *Handler) handleError(c echo.Context, err error) error {
	var gwErr *core.GatewayError
	if errors.As(err, &gwErr) && isClientError(gwErr) {
		return c.JSON(gwErr.HTTPStatusCode(), gwErr.ToJSON())
	}
	if tooLarge(err) {
		return err
	}

	h.logServerError(c, err)
	return c.JSON(http.StatusInternalServerError, core.NewServerError(internalErrorMessage, err).ToJSON())
}

// handleVapiError writes err in the plain {"error": "..."} envelope.
func (h *Handler) handleVapiError(c echo.Context, err error) error {
	var gwErr *core.GatewayError
	if errors.As(err, &gwErr) && isClientError(gwErr) {
		return c.JSON(gwErr.HTTPStatusCode(), gwErr.ToVapiJSON())
	}
	if tooLarge(err) {
		return err
	}

	h.logServerError(c, err)
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": internalErrorMessage})
}

func (h *Handler) logServerError(c echo.Context, err error) {
	if errors.Is(err, context.Canceled) {
		h.logger.Info("client disconnected", "path", c.Path(), "request_id", core.GetRequestID(c.Request().Context()))
		return
	}
	h.logger.Error("request failed",
		"path", c.Path(),
		"request_id", core.GetRequestID(c.Request().Context()),
		"error", err,
	)
}

func tooLarge(err error) bool {
	var he *echo.HTTPError
	return errors.As(err, &he) && he.Code == http.StatusRequestEntityTooLarge
}
