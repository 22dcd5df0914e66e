package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"customllm/config"
	"customllm/internal/core"
)

func testRequest() *core.ChatRequest {
	return &core.ChatRequest{
		Model:       "custom-llm",
		Temperature: 1.5,
		Messages: []core.Message{
			{Role: core.RoleSystem, Content: "You are terse."},
			{Role: core.RoleUser, Content: "Hello"},
			{Role: core.RoleAssistant, Content: "Hi"},
			{Role: core.RoleSystem, Content: "Answer in French."},
			{Role: core.RoleUser, Content: "Bye"},
		},
	}
}

func TestConvertRequest(t *testing.T) {
	p := New(config.ProviderConfig{Model: "claude-3-opus-20240229"}, nil)
	out := p.convertRequest(testRequest(), true)

	assert.Equal(t, "claude-3-opus-20240229", out.Model)
	assert.Equal(t, defaultMaxTokens, out.MaxTokens)
	assert.Equal(t, 1.0, out.Temperature)
	assert.True(t, out.Stream)
	assert.Equal(t, "You are terse.\n\nAnswer in French.", out.System)
	assert.Equal(t, []anthropicMessage{
		{Role: "user", Content: "Hello"},
		{Role: "assistant", Content: "Hi"},
		{Role: "user", Content: "Bye"},
	}, out.Messages)
}

func TestProvider_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "sk-ant", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicAPIVersion, r.Header.Get("anthropic-version"))

		var body anthropicRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "custom-llm", body.Model)

		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"Au "},{"type":"tool_use"},{"type":"text","text":"revoir"}]}`))
	}))
	defer server.Close()

	p := New(config.ProviderConfig{APIKey: "sk-ant", BaseURL: server.URL}, server.Client())
	text, err := p.Generate(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "Au revoir", text)
}

func TestProvider_Stream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "event: message_start\ndata: {\"type\":\"message_start\"}\n\n")
		_, _ = io.WriteString(w, "event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"Au \"}}\n\n")
		_, _ = io.WriteString(w, "event: ping\ndata: {\"type\":\"ping\"}\n\n")
		_, _ = io.WriteString(w, "event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"revoir\"}}\n\n")
		_, _ = io.WriteString(w, "event: message_stop\ndata: {\"type\":\"message_stop\"}\n\n")
	}))
	defer server.Close()

	stream, err := New(config.ProviderConfig{BaseURL: server.URL}, server.Client()).Stream(context.Background(), testRequest())
	require.NoError(t, err)
	defer func() { _ = stream.Close() }()

	var parts []string
	for {
		text, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		parts = append(parts, text)
	}
	assert.Equal(t, []string{"Au ", "revoir"}, parts)
}

func TestParseEvent_Error(t *testing.T) {
	_, _, err := parseEvent([]byte(`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`))
	var gwErr *core.GatewayError
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, "Overloaded", gwErr.Message)
}

func TestProvider_StreamCutOff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"Au \"}}\n\n")
	}))
	defer server.Close()

	stream, err := New(config.ProviderConfig{BaseURL: server.URL}, server.Client()).Stream(context.Background(), testRequest())
	require.NoError(t, err)
	defer func() { _ = stream.Close() }()

	text, err := stream.Next()
	require.NoError(t, err)
	assert.Equal(t, "Au ", text)

	_, err = stream.Next()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF, "a stream without message_stop is incomplete")
}
