package server

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"customllm/internal/auditlog"
	"customllm/internal/chat"
	"customllm/internal/core"
	"customllm/internal/observability"
	"customllm/internal/version"
)

// Handler holds the HTTP handlers
type Handler struct {
	provider core.Provider
	cfg      *Config
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewHandler creates a new handler with the given provider
func NewHandler(provider core.Provider, cfg *Config) *Handler {
	cfg = cfg.withDefaults()
	return &Handler{
		provider: provider,
		cfg:      cfg,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
	}
}

// Root handles GET /
func (h *Handler) Root(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Health handles GET /health
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, core.HealthResponse{
		Status:  "healthy",
		Service: h.cfg.ServiceName,
		Version: version.Version,
	})
}

// ListModels handles GET /v1/models
func (h *Handler) ListModels(c echo.Context) error {
	return c.JSON(http.StatusOK, core.ModelsResponse{
		Object: core.ObjectList,
		Data: []core.Model{{
			ID:      h.cfg.ModelName,
			Object:  core.ObjectModel,
			Created: h.cfg.StartedAt.Unix(),
			OwnedBy: h.cfg.OwnedBy,
		}},
	})
}

// ChatCompletion handles POST /v1/chat/completions
func (h *Handler) ChatCompletion(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return h.handleError(c, err)
	}

	req, err := chat.ParseChatRequest(body, h.cfg.ModelName)
	if err != nil {
		return h.handleError(c, err)
	}
	event := auditlog.EventFromContext(c)
	h.describe(event, req)

	h.logger.Info("chat completion",
		"request_id", core.GetRequestID(c.Request().Context()),
		"model", req.Model,
		"messages", len(req.Messages),
		"temperature", req.Temperature,
		"stream", req.Stream,
	)

	if req.Stream {
		return h.streamCompletion(c, req, event)
	}

	reply, err := h.provider.Generate(c.Request().Context(), req)
	if err != nil {
		return h.handleError(c, err)
	}

	resp := chat.BuildResponse(req, reply, time.Now())
	recordUsage(event, resp.Usage)
	return c.JSON(http.StatusOK, resp)
}

// streamCompletion answers with one SSE chunk per fragment, a final chunk
// carrying finish_reason and the [DONE] sentinel.
func (h *Handler) streamCompletion(c echo.Context, req *core.ChatRequest, event *auditlog.Event) error {
	ctx := c.Request().Context()

	// Opened before any header is written so a failure can still be a JSON error
	stream, err := h.provider.Stream(ctx, req)
	if err != nil {
		return h.handleError(c, err)
	}
	defer func() {
		_ = stream.Close() //nolint:errcheck
	}()

	if h.metrics != nil {
		defer h.metrics.StreamStarted()()
	}

	sse := newSSEWriter(c.Response())
	chunks := chat.NewChunkBuilder(req.Model, time.Now())

	var reply []byte
	for {
		fragment, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// Headers are gone; the client sees a stream without [DONE]
			h.logServerError(c, err)
			if event != nil {
				event.ErrorCode = core.CodeInternalError
			}
			return nil
		}
		reply = append(reply, fragment...)
		if err := sse.WriteJSON(chunks.Delta(fragment)); err != nil {
			h.logger.Info("stream write failed", "request_id", core.GetRequestID(ctx), "error", err)
			return nil
		}
	}

	if err := sse.WriteJSON(chunks.Final()); err != nil {
		return nil
	}
	if err := sse.WriteDone(); err != nil {
		return nil
	}

	recordUsage(event, chat.BuildUsage(req.Messages, string(reply)))
	return nil
}

func (h *Handler) describe(event *auditlog.Event, req *core.ChatRequest) {
	if event == nil {
		return
	}
	temperature := req.Temperature
	event.Model = req.Model
	event.Provider = h.provider.Name()
	event.Stream = req.Stream
	event.Temperature = &temperature
	event.MessageCount = len(req.Messages)
}

func recordUsage(event *auditlog.Event, usage core.Usage) {
	if event == nil {
		return
	}
	event.PromptTokens = usage.PromptTokens
	event.CompletionTokens = usage.CompletionTokens
	event.TotalTokens = usage.TotalTokens
}
