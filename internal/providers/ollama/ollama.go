// Package ollama forwards chat requests to a local Ollama server.
package ollama

import (
	"context"
	"encoding/json"
	"net/http"

	"customllm/config"
	"customllm/internal/core"
	"customllm/internal/pkg/llmclient"
	"customllm/internal/providers"
)

const defaultBaseURL = "http://localhost:11434"

func init() {
	providers.Register(config.ProviderOllama, func(opts providers.Options) (core.Provider, error) {
		return New(opts.Config, opts.HTTPClient), nil
	})
}

// Provider implements core.Provider for Ollama's native chat API
type Provider struct {
	client *llmclient.Client
	cfg    config.ProviderConfig
}

// New creates a provider. An empty BaseURL targets localhost:11434.
func New(cfg config.ProviderConfig, httpClient *http.Client) *Provider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Provider{
		cfg:    cfg,
		client: llmclient.New(httpClient, llmclient.Config{ProviderName: config.ProviderOllama, BaseURL: baseURL}, nil),
	}
}

// Name returns the provider type
func (p *Provider) Name() string {
	return config.ProviderOllama
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []core.Message `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  chatOptions    `json:"options"`
}

type chatOptions struct {
	Temperature float64 `json:"temperature"`
}

// chatResponse is both the non-streaming body and each streamed line
type chatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done  bool   `json:"done"`
	Error string `json:"error,omitempty"`
}

func (p *Provider) buildRequest(req *core.ChatRequest, stream bool) *chatRequest {
	return &chatRequest{
		Model:    providers.UpstreamModel(p.cfg, req),
		Messages: req.Messages,
		Stream:   stream,
		Options:  chatOptions{Temperature: req.Temperature},
	}
}

// Generate returns the assistant message of a non-streaming /api/chat call
func (p *Provider) Generate(ctx context.Context, req *core.ChatRequest) (string, error) {
	var resp chatResponse
	err := p.client.Do(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/api/chat",
		Body:     p.buildRequest(req, false),
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.Error != "" {
		return "", core.NewProviderError(config.ProviderOllama, resp.Error, nil)
	}
	return resp.Message.Content, nil
}

// Stream reads the newline-delimited JSON stream of /api/chat
func (p *Provider) Stream(ctx context.Context, req *core.ChatRequest) (core.TokenStream, error) {
	body, err := p.client.DoStream(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/api/chat",
		Body:     p.buildRequest(req, true),
	})
	if err != nil {
		return nil, err
	}
	reader := llmclient.NewLineReader(body)
	return providers.NewEventStream(config.ProviderOllama, body, reader.Next, parseLine), nil
}

func parseLine(line []byte) (string, bool, error) {
	var chunk chatResponse
	if err := json.Unmarshal(line, &chunk); err != nil {
		return "", false, core.NewProviderError(config.ProviderOllama, "invalid stream line: "+err.Error(), err)
	}
	if chunk.Error != "" {
		return "", false, core.NewProviderError(config.ProviderOllama, chunk.Error, nil)
	}
	return chunk.Message.Content, chunk.Done, nil
}
