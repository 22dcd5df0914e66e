// Package client talks to a running custom LLM server. The CLI uses it for
// the chat, models and health commands.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"customllm/internal/core"
	"customllm/internal/pkg/llmclient"
)

// Client represents a custom LLM server client
type Client struct {
	http *llmclient.Client
}

// New creates a client for the server at baseURL. apiKey may be empty when
// the server runs without authentication.
func New(baseURL, apiKey string, httpClient *http.Client) *Client {
	return &Client{
		http: llmclient.New(httpClient, llmclient.Config{
			ProviderName: "customllm",
			BaseURL:      baseURL,
		}, func(req *http.Request) {
			if apiKey != "" {
				req.Header.Set("Authorization", "Bearer "+apiKey)
			}
		}),
	}
}

// Health calls GET /health
func (c *Client) Health(ctx context.Context) (*core.HealthResponse, error) {
	var resp core.HealthResponse
	if err := c.http.Do(ctx, llmclient.Request{Method: http.MethodGet, Endpoint: "/health"}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Models calls GET /v1/models
func (c *Client) Models(ctx context.Context) (*core.ModelsResponse, error) {
	var resp core.ModelsResponse
	if err := c.http.Do(ctx, llmclient.Request{Method: http.MethodGet, Endpoint: "/v1/models"}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Chat sends a non-streaming chat completion request
func (c *Client) Chat(ctx context.Context, req core.ChatRequest) (*core.ChatResponse, error) {
	req.Stream = false
	var resp core.ChatResponse
	err := c.http.Do(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/v1/chat/completions",
		Body:     req,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Vapi sends a request to the Vapi custom-llm endpoint
func (c *Client) Vapi(ctx context.Context, req core.ChatRequest) (*core.VapiResponse, error) {
	req.Stream = false
	var resp core.VapiResponse
	err := c.http.Do(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/vapi/custom-llm",
		Body:     req,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// StreamChat sends a streaming request and calls onContent for every
// fragment. It returns the assembled reply once [DONE] arrives.
func (c *Client) StreamChat(ctx context.Context, req core.ChatRequest, onContent func(string)) (string, error) {
	req.Stream = true
	body, err := c.http.DoStream(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/v1/chat/completions",
		Body:     req,
	})
	if err != nil {
		return "", err
	}
	defer func() {
		_ = body.Close()
	}()

	var reply []byte
	reader := llmclient.NewSSEReader(body)
	done := false
	for {
		data, err := reader.Next()
		if errors.Is(err, io.EOF) {
			done = reader.Done()
			break
		}
		if err != nil {
			return string(reply), fmt.Errorf("failed to read stream: %w", err)
		}

		var chunk core.StreamChunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			return string(reply), fmt.Errorf("failed to unmarshal chunk: %w", err)
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}
		reply = append(reply, chunk.Choices[0].Delta.Content...)
		if onContent != nil {
			onContent(chunk.Choices[0].Delta.Content)
		}
	}

	if !done {
		return string(reply), fmt.Errorf("stream ended without [DONE]")
	}
	return string(reply), nil
}
