// Package server provides the HTTP surface: routing, middleware and error rendering.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"customllm/config"
	"customllm/internal/auditlog"
	"customllm/internal/core"
	"customllm/internal/observability"
)

// Server wraps the Echo server
type Server struct {
	echo    *echo.Echo
	handler *Handler
}

// Config holds server configuration options
type Config struct {
	APIKey           string   // Optional: bearer secret for the chat routes
	ModelName        string   // Default model, also the only listed model
	OwnedBy          string   // owned_by of the listed model
	ServiceName      string   // Reported by /health
	BodySizeLimit    string   // Max request body size, e.g. "10M"
	CORSAllowOrigins []string // Defaults to every origin
	Debug            bool

	Metrics         *observability.Metrics // nil disables metrics
	MetricsEndpoint string                 // HTTP path for metrics (default: /metrics)
	AuditLogger     *auditlog.Logger       // nil disables audit events

	Logger    *slog.Logger
	StartedAt time.Time // Reported as the model's created timestamp
}

func (c *Config) withDefaults() *Config {
	out := Config{}
	if c != nil {
		out = *c
	}
	if out.ModelName == "" {
		out.ModelName = "custom-llm"
	}
	if out.OwnedBy == "" {
		out.OwnedBy = "custom-llm"
	}
	if out.ServiceName == "" {
		out.ServiceName = config.DefaultServiceName
	}
	if out.BodySizeLimit == "" {
		out.BodySizeLimit = config.DefaultBodySizeLimit
	}
	if len(out.CORSAllowOrigins) == 0 {
		out.CORSAllowOrigins = []string{"*"}
	}
	if out.MetricsEndpoint == "" {
		out.MetricsEndpoint = "/metrics"
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	if out.StartedAt.IsZero() {
		out.StartedAt = time.Now()
	}
	return &out
}

// New creates a new HTTP server around provider
func New(provider core.Provider, cfg *Config) *Server {
	cfg = cfg.withDefaults()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Debug = cfg.Debug
	e.HTTPErrorHandler = errorHandler(cfg.Logger)

	handler := NewHandler(provider, cfg)

	// Global middleware stack (order matters)
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
		RequestIDHandler: func(c echo.Context, id string) {
			req := c.Request()
			c.SetRequest(req.WithContext(core.WithRequestID(req.Context(), id)))
		},
	}))
	e.Use(requestLogger(cfg.Logger))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.CORSAllowOrigins,
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	if cfg.Metrics != nil {
		e.Use(cfg.Metrics.Middleware())
	}
	e.Use(middleware.BodyLimit(cfg.BodySizeLimit))
	e.Use(auditlog.Middleware(cfg.AuditLogger))

	auth := AuthMiddleware(cfg.APIKey, cfg.Logger)

	// Public routes
	e.GET("/", handler.Root)
	e.GET("/health", handler.Health)
	e.GET("/v1/models", handler.ListModels)
	if cfg.Metrics != nil {
		e.GET(path.Clean("/"+strings.TrimPrefix(cfg.MetricsEndpoint, "/")), echo.WrapHandler(cfg.Metrics.Handler()))
	}

	// Authenticated routes
	e.POST("/v1/chat/completions", handler.ChatCompletion, auth)
	e.POST("/vapi/custom-llm", handler.VapiCustomLLM, auth)

	return &Server{
		echo:    e,
		handler: handler,
	}
}

// Start starts the HTTP server on the given address
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the HTTP server.
// In-flight streams end when their request context is cancelled.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// ServeHTTP implements the http.Handler interface, allowing Server to be used with httptest
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

func requestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogRemoteIP:  true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"request_id", v.RequestID,
				"remote_ip", v.RemoteIP,
			}
			if v.Error != nil {
				logger.Warn("request failed", append(attrs, "error", v.Error)...)
				return nil
			}
			logger.Info("request", attrs...)
			return nil
		},
	})
}
