// Package app provides the main application struct for centralized dependency management
// and lifecycle control of the custom LLM server.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"customllm/config"
	"customllm/internal/auditlog"
	"customllm/internal/core"
	"customllm/internal/httpclient"
	"customllm/internal/observability"
	"customllm/internal/providers"
	"customllm/internal/server"
)

// App represents the main application with all its dependencies.
// It provides centralized lifecycle management for all components.
type App struct {
	config   *config.Config
	provider core.Provider
	metrics  *observability.Metrics
	audit    *auditlog.Logger
	server   *server.Server

	shutdownMu sync.Mutex
	shutdown   bool
}

// Options holds optional dependencies, mostly for tests.
type Options struct {
	// Logger defaults to slog.Default()
	Logger *slog.Logger
	// AuditEmitter replaces the emitters built from configuration
	AuditEmitter auditlog.Emitter
}

// New creates a new App with all dependencies initialized.
// The caller must call Shutdown to release resources.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app config is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	app := &App{config: cfg}

	if cfg.Metrics.Enabled {
		app.metrics = observability.NewMetrics()
	}

	clientCfg := httpclient.FromConfig(cfg.HTTP)
	provider, err := providers.Create(providers.Options{
		Config:       cfg.Providers.Selected(),
		DefaultModel: cfg.Model.Name,
		StreamDelay:  cfg.Server.StreamDelay,
		HTTPClient:   httpclient.NewHTTPClient(&clientCfg),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize provider: %w", err)
	}
	if app.metrics != nil {
		provider = providers.Instrument(provider, app.metrics)
	}
	app.provider = provider

	if cfg.Audit.Enabled {
		emitter := opts.AuditEmitter
		if emitter == nil {
			emitter, err = buildAuditEmitter(ctx, cfg.Audit, logger)
			if err != nil {
				closeErr := closeProvider(app.provider)
				if closeErr != nil {
					return nil, fmt.Errorf("failed to initialize audit logging: %w (also: provider close error: %v)", err, closeErr)
				}
				return nil, fmt.Errorf("failed to initialize audit logging: %w", err)
			}
		}
		app.audit = auditlog.NewLogger(emitter, auditlog.DefaultConfig())
	}

	app.logStartupInfo(logger)

	app.server = server.New(app.provider, &server.Config{
		APIKey:           cfg.Server.APIKey,
		ModelName:        cfg.Model.Name,
		OwnedBy:          cfg.Model.OwnedBy,
		ServiceName:      cfg.Model.ServiceName,
		BodySizeLimit:    cfg.Server.BodySizeLimit,
		CORSAllowOrigins: cfg.Server.CORSAllowOrigins,
		Debug:            cfg.Server.Debug,
		Metrics:          app.metrics,
		MetricsEndpoint:  cfg.Metrics.Endpoint,
		AuditLogger:      app.audit,
		Logger:           logger,
		StartedAt:        time.Now(),
	})

	return app, nil
}

// buildAuditEmitter always logs events and additionally publishes them to
// Pub/Sub when a topic is configured.
func buildAuditEmitter(ctx context.Context, cfg config.AuditConfig, logger *slog.Logger) (auditlog.Emitter, error) {
	logEmitter := auditlog.NewLogEmitter(logger)
	if cfg.PubSubProject == "" {
		return logEmitter, nil
	}

	pubsub, err := auditlog.NewPubSubEmitter(ctx, cfg.PubSubProject, cfg.PubSubTopic)
	if err != nil {
		return nil, err
	}
	return auditlog.NewMultiEmitter(logEmitter, pubsub), nil
}

// Provider returns the provider serving chat requests.
func (a *App) Provider() core.Provider {
	return a.provider
}

// Handler returns the HTTP handler, for tests and embedding.
func (a *App) Handler() http.Handler {
	return a.server
}

// Start starts the HTTP server on the given address.
// This is a blocking call that returns when the server stops.
func (a *App) Start(addr string) error {
	if a.server == nil {
		return fmt.Errorf("server is not initialized")
	}
	slog.Info("starting server", "address", addr)
	if err := a.server.Start(addr); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			slog.Info("server stopped gracefully")
			return nil
		}
		return fmt.Errorf("server failed to start: %w", err)
	}
	return nil
}

// Shutdown gracefully tears down app components in dependency order:
// the HTTP server first, then the provider, then the audit logger so that
// events of the last requests are still emitted.
//
// Shutdown is idempotent. It attempts every step and returns the joined errors.
func (a *App) Shutdown(ctx context.Context) error {
	a.shutdownMu.Lock()
	if a.shutdown {
		a.shutdownMu.Unlock()
		return nil
	}
	a.shutdown = true
	a.shutdownMu.Unlock()

	slog.Info("shutting down application...")

	var errs []error

	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			slog.Error("server shutdown error", "error", err)
			errs = append(errs, fmt.Errorf("server shutdown: %w", err))
		}
	}

	if err := closeProvider(a.provider); err != nil {
		slog.Error("provider close error", "error", err)
		errs = append(errs, fmt.Errorf("provider close: %w", err))
	}

	if a.audit != nil {
		if err := a.audit.Close(); err != nil {
			slog.Error("audit logger close error", "error", err)
			errs = append(errs, fmt.Errorf("audit close: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}

	slog.Info("application shutdown complete")
	return nil
}

func closeProvider(p core.Provider) error {
	if c, ok := p.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// logStartupInfo logs the application configuration on startup.
func (a *App) logStartupInfo(logger *slog.Logger) {
	cfg := a.config

	// Security warnings
	if cfg.Server.APIKey == "" {
		logger.Warn("SECURITY WARNING: API_KEY not set - chat endpoints accept unauthenticated requests",
			"recommendation", "set the API_KEY environment variable")
	} else {
		logger.Info("authentication enabled", "mode", "bearer")
	}

	logger.Info("provider configured",
		"provider", a.provider.Name(),
		"model", cfg.Model.Name,
	)

	if cfg.Metrics.Enabled {
		logger.Info("prometheus metrics enabled", "endpoint", cfg.Metrics.Endpoint)
	} else {
		logger.Info("prometheus metrics disabled")
	}

	if cfg.Audit.Enabled {
		logger.Info("audit logging enabled", "pubsub_topic", cfg.Audit.PubSubTopic)
	} else {
		logger.Info("audit logging disabled")
	}
}
