// Package openai forwards chat requests to an OpenAI-compatible chat completions API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"customllm/config"
	"customllm/internal/core"
	"customllm/internal/pkg/llmclient"
	"customllm/internal/providers"
)

const defaultBaseURL = "https://api.openai.com/v1"

func init() {
	providers.Register(config.ProviderOpenAI, func(opts providers.Options) (core.Provider, error) {
		return New(opts.Config, opts.HTTPClient), nil
	})
}

// Provider implements core.Provider for OpenAI-compatible servers
type Provider struct {
	client *llmclient.Client
	cfg    config.ProviderConfig
}

// New creates a provider. An empty BaseURL targets api.openai.com.
func New(cfg config.ProviderConfig, httpClient *http.Client) *Provider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	p := &Provider{cfg: cfg}
	p.client = llmclient.New(httpClient, llmclient.Config{ProviderName: config.ProviderOpenAI, BaseURL: baseURL}, p.setHeaders)
	return p
}

// Name returns the provider type
func (p *Provider) Name() string {
	return config.ProviderOpenAI
}

func (p *Provider) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	// OpenAI accepts ASCII-only ids of at most 512 bytes and rejects anything else with a 400
	if requestID := core.GetRequestID(req.Context()); requestID != "" && isValidClientRequestID(requestID) {
		req.Header.Set("X-Client-Request-Id", requestID)
	}
}

func isValidClientRequestID(id string) bool {
	if len(id) > 512 {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] > 127 {
			return false
		}
	}
	return true
}

type chatRequest struct {
	Model       string         `json:"model"`
	Messages    []core.Message `json:"messages"`
	Temperature float64        `json:"temperature"`
	Stream      bool           `json:"stream,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

func (p *Provider) buildRequest(req *core.ChatRequest, stream bool) *chatRequest {
	return &chatRequest{
		Model:       providers.UpstreamModel(p.cfg, req),
		Messages:    req.Messages,
		Temperature: req.Temperature,
		Stream:      stream,
	}
}

// Generate sends a non-streaming chat completion and returns the first choice's content
func (p *Provider) Generate(ctx context.Context, req *core.ChatRequest) (string, error) {
	var resp chatResponse
	err := p.client.Do(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/chat/completions",
		Body:     p.buildRequest(req, false),
	}, &resp)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", core.NewProviderError(config.ProviderOpenAI, "response contained no choices", nil)
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream forwards upstream deltas as they arrive
func (p *Provider) Stream(ctx context.Context, req *core.ChatRequest) (core.TokenStream, error) {
	body, err := p.client.DoStream(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/chat/completions",
		Body:     p.buildRequest(req, true),
	})
	if err != nil {
		return nil, err
	}
	reader := llmclient.NewSSEReader(body)
	next := func() ([]byte, error) {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) && reader.Done() {
			return doneMarker, nil
		}
		return event, err
	}
	return providers.NewEventStream(config.ProviderOpenAI, body, next, parseChunk), nil
}

// doneMarker stands for the "data: [DONE]" line the SSE reader consumes
var doneMarker = []byte("[DONE]")

func parseChunk(event []byte) (string, bool, error) {
	if bytes.Equal(event, doneMarker) {
		return "", true, nil
	}
	var chunk streamChunk
	if err := json.Unmarshal(event, &chunk); err != nil {
		return "", false, core.NewProviderError(config.ProviderOpenAI, "invalid stream chunk: "+err.Error(), err)
	}
	if len(chunk.Choices) == 0 {
		return "", false, nil
	}
	choice := chunk.Choices[0]
	return choice.Delta.Content, choice.FinishReason != nil && *choice.FinishReason != "", nil
}
