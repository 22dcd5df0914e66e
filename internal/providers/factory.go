// Package providers selects and builds the text provider behind the HTTP layer.
package providers

import (
	"fmt"
	"net/http"
	"sort"
	"time"

	"customllm/config"
	"customllm/internal/core"
)

// Options carries everything a provider builder may need
type Options struct {
	Config config.ProviderConfig
	// DefaultModel is the model advertised by the server
	DefaultModel string
	// StreamDelay paces placeholder streaming
	StreamDelay time.Duration
	// HTTPClient is shared by the HTTP-based providers
	HTTPClient *http.Client
}

// Builder creates a provider instance from options
type Builder func(opts Options) (core.Provider, error)

// registry holds all registered provider builders
var registry = make(map[string]Builder)

// Register allows provider packages to register themselves.
// This should be called from init() functions in provider packages.
func Register(providerType string, builder Builder) {
	registry[providerType] = builder
}

// Create instantiates the provider named by opts.Config.Type
func Create(opts Options) (core.Provider, error) {
	builder, ok := registry[opts.Config.Type]
	if !ok {
		return nil, fmt.Errorf("unknown provider type: %s", opts.Config.Type)
	}
	return builder(opts)
}

// ListRegistered returns the registered provider types, sorted
func ListRegistered() []string {
	types := make([]string, 0, len(registry))
	for t := range registry {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// UpstreamModel returns the model name to send upstream: the configured
// override when present, otherwise the model of the request.
func UpstreamModel(cfg config.ProviderConfig, req *core.ChatRequest) string {
	if cfg.Model != "" {
		return cfg.Model
	}
	return req.Model
}
