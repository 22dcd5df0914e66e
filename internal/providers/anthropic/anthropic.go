// Package anthropic forwards chat requests to the Anthropic Messages API.
package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"customllm/config"
	"customllm/internal/core"
	"customllm/internal/pkg/llmclient"
	"customllm/internal/providers"
)

const (
	defaultBaseURL      = "https://api.anthropic.com/v1"
	anthropicAPIVersion = "2023-06-01"
	defaultMaxTokens    = 1024
)

func init() {
	providers.Register(config.ProviderAnthropic, func(opts providers.Options) (core.Provider, error) {
		return New(opts.Config, opts.HTTPClient), nil
	})
}

// Provider implements core.Provider for Anthropic
type Provider struct {
	client *llmclient.Client
	cfg    config.ProviderConfig
}

// New creates a provider. An empty BaseURL targets api.anthropic.com.
func New(cfg config.ProviderConfig, httpClient *http.Client) *Provider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	p := &Provider{cfg: cfg}
	p.client = llmclient.New(httpClient, llmclient.Config{ProviderName: config.ProviderAnthropic, BaseURL: baseURL}, p.setHeaders)
	return p
}

// Name returns the provider type
func (p *Provider) Name() string {
	return config.ProviderAnthropic
}

func (p *Provider) setHeaders(req *http.Request) {
	req.Header.Set("x-api-key", p.cfg.APIKey)
	req.Header.Set("anthropic-version", anthropicAPIVersion)
}

// anthropicRequest represents the Anthropic API request format
type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	System      string             `json:"system,omitempty"`
	Stream      bool               `json:"stream,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []anthropicContent `json:"content"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Delta *struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta,omitempty"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// convertRequest folds system messages into the top-level system field.
// Anthropic caps temperature at 1.0.
func (p *Provider) convertRequest(req *core.ChatRequest, stream bool) *anthropicRequest {
	out := &anthropicRequest{
		Model:       providers.UpstreamModel(p.cfg, req),
		MaxTokens:   defaultMaxTokens,
		Temperature: min(req.Temperature, 1.0),
		Stream:      stream,
	}
	var system []string
	for _, m := range req.Messages {
		if m.Role == core.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		out.Messages = append(out.Messages, anthropicMessage{Role: m.Role, Content: m.Content})
	}
	out.System = strings.Join(system, "\n\n")
	return out
}

// Generate returns the concatenated text blocks of the reply
func (p *Provider) Generate(ctx context.Context, req *core.ChatRequest) (string, error) {
	var resp anthropicResponse
	err := p.client.Do(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/messages",
		Body:     p.convertRequest(req, false),
	}, &resp)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}

// Stream forwards text deltas as they arrive
func (p *Provider) Stream(ctx context.Context, req *core.ChatRequest) (core.TokenStream, error) {
	body, err := p.client.DoStream(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/messages",
		Body:     p.convertRequest(req, true),
	})
	if err != nil {
		return nil, err
	}
	reader := llmclient.NewSSEReader(body)
	return providers.NewEventStream(config.ProviderAnthropic, body, reader.Next, parseEvent), nil
}

func parseEvent(data []byte) (string, bool, error) {
	var event anthropicStreamEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return "", false, core.NewProviderError(config.ProviderAnthropic, "invalid stream event: "+err.Error(), err)
	}
	switch event.Type {
	case "content_block_delta":
		if event.Delta != nil && event.Delta.Type == "text_delta" {
			return event.Delta.Text, false, nil
		}
	case "message_stop":
		return "", true, nil
	case "error":
		msg := "stream error"
		if event.Error != nil {
			msg = event.Error.Message
		}
		return "", false, core.NewProviderError(config.ProviderAnthropic, msg, nil)
	}
	return "", false, nil
}
