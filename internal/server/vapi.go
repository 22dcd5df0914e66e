package server

import (
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"customllm/internal/auditlog"
	"customllm/internal/chat"
	"customllm/internal/core"
)

// VapiCustomLLM handles POST /vapi/custom-llm.
// The reply is always a single JSON object; a stream flag is ignored.
func (h *Handler) VapiCustomLLM(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return h.handleVapiError(c, err)
	}

	req, err := chat.ParseVapiRequest(body, h.cfg.ModelName)
	if err != nil {
		return h.handleVapiError(c, err)
	}
	event := auditlog.EventFromContext(c)
	h.describe(event, req)

	h.logger.Info("vapi request",
		"request_id", core.GetRequestID(c.Request().Context()),
		"model", req.Model,
		"messages", len(req.Messages),
		"temperature", req.Temperature,
	)

	reply, err := h.provider.Generate(c.Request().Context(), req)
	if err != nil {
		return h.handleVapiError(c, err)
	}

	recordUsage(event, chat.BuildUsage(req.Messages, reply))
	return c.JSON(http.StatusOK, chat.BuildVapiResponse(req, reply, time.Now()))
}
