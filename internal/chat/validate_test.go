package chat

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"customllm/internal/core"
)

const testDefaultModel = "custom-llm"

func requireCode(t *testing.T, err error, code string) *core.GatewayError {
	t.Helper()
	require.Error(t, err)
	var gwErr *core.GatewayError
	require.True(t, errors.As(err, &gwErr), "expected *core.GatewayError, got %T", err)
	assert.Equal(t, code, gwErr.Code)
	assert.Equal(t, core.ErrorTypeInvalidRequest, gwErr.Type)
	assert.Equal(t, http.StatusBadRequest, gwErr.HTTPStatusCode())
	return gwErr
}

func TestParseChatRequest_Defaults(t *testing.T) {
	req, err := ParseChatRequest([]byte(`{"messages":[{"role":"user","content":"Hello"}]}`), testDefaultModel)
	require.NoError(t, err)

	assert.Equal(t, testDefaultModel, req.Model)
	assert.Equal(t, DefaultTemperature, req.Temperature)
	assert.False(t, req.Stream)
	assert.Equal(t, []core.Message{{Role: "user", Content: "Hello"}}, req.Messages)
}

func TestParseChatRequest_ExplicitFields(t *testing.T) {
	body := `{
		"model": "custom-llm-v1",
		"messages": [
			{"role": "system", "content": "You are helpful."},
			{"role": "user", "content": "Hi"},
			{"role": "assistant", "content": "Hello!"},
			{"role": "user", "content": "How are you?"}
		],
		"temperature": 1.5,
		"stream": true
	}`

	req, err := ParseChatRequest([]byte(body), testDefaultModel)
	require.NoError(t, err)

	assert.Equal(t, "custom-llm-v1", req.Model)
	assert.Equal(t, 1.5, req.Temperature)
	assert.True(t, req.Stream)
	require.Len(t, req.Messages, 4)
	assert.Equal(t, "assistant", req.Messages[2].Role)
	assert.Equal(t, "How are you?", req.LastUserMessage())
}

func TestParseChatRequest_Errors(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantCode    string
		wantMessage string
	}{
		{name: "empty body", body: ``, wantCode: core.CodeMissingJSON, wantMessage: "No JSON data provided"},
		{name: "malformed json", body: `{"messages": [`, wantCode: core.CodeMissingJSON},
		{name: "array body", body: `[{"role":"user","content":"hi"}]`, wantCode: core.CodeMissingJSON},
		{name: "string body", body: `"hello"`, wantCode: core.CodeMissingJSON},
		{name: "empty object", body: `{}`, wantCode: core.CodeMissingJSON},
		{name: "missing messages", body: `{"model":"x"}`, wantCode: core.CodeMissingMessages},
		{name: "empty messages", body: `{"messages":[]}`, wantCode: core.CodeMissingMessages,
			wantMessage: "No messages provided. Messages must be a non-empty array."},
		{name: "null messages", body: `{"messages":null}`, wantCode: core.CodeMissingMessages},
		{name: "temperature too high", body: `{"messages":[{"role":"user","content":"hi"}],"temperature":3.0}`,
			wantCode: core.CodeInvalidTemperature, wantMessage: "Temperature must be between 0.0 and 2.0, got 3.0"},
		{name: "temperature negative", body: `{"messages":[{"role":"user","content":"hi"}],"temperature":-0.1}`,
			wantCode: core.CodeInvalidTemperature},
		{name: "temperature not numeric", body: `{"messages":[{"role":"user","content":"hi"}],"temperature":"hot"}`,
			wantCode: core.CodeInvalidTemperature, wantMessage: "Invalid temperature value: hot"},
		{name: "temperature boolean", body: `{"messages":[{"role":"user","content":"hi"}],"temperature":true}`,
			wantCode: core.CodeInvalidTemperature},
		{name: "temperature NaN string", body: `{"messages":[{"role":"user","content":"hi"}],"temperature":"NaN"}`,
			wantCode: core.CodeInvalidTemperature},
		{name: "temperature checked before message shape", body: `{"messages":[{"role":"robot"}],"temperature":5}`,
			wantCode: core.CodeInvalidTemperature},
		{name: "messages not a list", body: `{"messages":"hello"}`, wantCode: core.CodeInvalidMessages,
			wantMessage: "Messages must be a non-empty list"},
		{name: "message not an object", body: `{"messages":["hello"]}`, wantCode: core.CodeInvalidMessages,
			wantMessage: "Message 0 must be a dictionary"},
		{name: "message missing content", body: `{"messages":[{"role":"user","content":"a"},{"role":"user"}]}`,
			wantCode: core.CodeInvalidMessages, wantMessage: "Message 1 must have 'role' and 'content' fields"},
		{name: "message missing role", body: `{"messages":[{"content":"a"}]}`, wantCode: core.CodeInvalidMessages},
		{name: "invalid role", body: `{"messages":[{"role":"tool","content":"a"}]}`, wantCode: core.CodeInvalidMessages,
			wantMessage: "Message 0 has invalid role: tool. Must be 'user', 'system', or 'assistant'"},
		{name: "non-string content", body: `{"messages":[{"role":"user","content":42}]}`, wantCode: core.CodeInvalidMessages},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := ParseChatRequest([]byte(tt.body), testDefaultModel)
			assert.Nil(t, req)
			gwErr := requireCode(t, err, tt.wantCode)
			if tt.wantMessage != "" {
				assert.Equal(t, tt.wantMessage, gwErr.Message)
			}
		})
	}
}

func TestParseChatRequest_TemperatureForms(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want float64
	}{
		{"null uses default", `null`, DefaultTemperature},
		{"lower bound", `0`, 0},
		{"upper bound", `2`, 2},
		{"numeric string", `"0.25"`, 0.25},
		{"numeric string with spaces", `" 1.2 "`, 1.2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := `{"messages":[{"role":"user","content":"hi"}],"temperature":` + tt.raw + `}`
			req, err := ParseChatRequest([]byte(body), testDefaultModel)
			require.NoError(t, err)
			assert.Equal(t, tt.want, req.Temperature)
		})
	}
}

func TestParseChatRequest_StreamAndModelCoercion(t *testing.T) {
	req, err := ParseChatRequest([]byte(`{"messages":[{"role":"user","content":"hi"}],"stream":"yes","model":""}`), testDefaultModel)
	require.NoError(t, err)
	assert.False(t, req.Stream, "only JSON true enables streaming")
	assert.Equal(t, testDefaultModel, req.Model, "empty model falls back to the default")

	req, err = ParseChatRequest([]byte(`{"messages":[{"role":"user","content":"hi"}],"model":42}`), testDefaultModel)
	require.NoError(t, err)
	assert.Equal(t, testDefaultModel, req.Model)
}

func TestParseVapiRequest(t *testing.T) {
	t.Run("messages key", func(t *testing.T) {
		req, err := ParseVapiRequest([]byte(`{"messages":[{"role":"user","content":"hi"}],"model":"vapi-model"}`), testDefaultModel)
		require.NoError(t, err)
		assert.Equal(t, "vapi-model", req.Model)
		assert.Equal(t, DefaultTemperature, req.Temperature)
		assert.False(t, req.Stream)
	})

	t.Run("conversation alias", func(t *testing.T) {
		req, err := ParseVapiRequest([]byte(`{"conversation":[{"role":"user","content":"from conversation"}]}`), testDefaultModel)
		require.NoError(t, err)
		assert.Equal(t, "from conversation", req.LastUserMessage())
		assert.Equal(t, testDefaultModel, req.Model)
	})

	t.Run("empty messages fall back to conversation", func(t *testing.T) {
		req, err := ParseVapiRequest([]byte(`{"messages":[],"conversation":[{"role":"user","content":"alias"}]}`), testDefaultModel)
		require.NoError(t, err)
		assert.Equal(t, "alias", req.LastUserMessage())
	})

	t.Run("stream flag ignored", func(t *testing.T) {
		req, err := ParseVapiRequest([]byte(`{"messages":[{"role":"user","content":"hi"}],"stream":true}`), testDefaultModel)
		require.NoError(t, err)
		assert.False(t, req.Stream)
	})

	temperatureTests := []struct {
		name string
		raw  string
		want float64
	}{
		{"clamped high", `5`, 2.0},
		{"clamped low", `-1`, 0.0},
		{"in range", `1.1`, 1.1},
		{"numeric string", `"0.3"`, 0.3},
		{"non numeric falls back", `"warm"`, DefaultTemperature},
		{"object falls back", `{}`, DefaultTemperature},
		{"boolean falls back", `true`, DefaultTemperature},
	}
	for _, tt := range temperatureTests {
		t.Run("temperature "+tt.name, func(t *testing.T) {
			body := `{"messages":[{"role":"user","content":"hi"}],"temperature":` + tt.raw + `}`
			req, err := ParseVapiRequest([]byte(body), testDefaultModel)
			require.NoError(t, err)
			assert.Equal(t, tt.want, req.Temperature)
		})
	}

	errorTests := []struct {
		name        string
		body        string
		wantCode    string
		wantMessage string
	}{
		{"no json", `not json`, core.CodeMissingJSON, "No JSON data provided"},
		{"no messages", `{"model":"x"}`, core.CodeMissingMessages, "No messages or conversation found"},
		{"bad role", `{"conversation":[{"role":"bot","content":"x"}]}`, core.CodeInvalidMessages,
			"Message 0 has invalid role: bot. Must be 'user', 'system', or 'assistant'"},
	}
	for _, tt := range errorTests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseVapiRequest([]byte(tt.body), testDefaultModel)
			gwErr := requireCode(t, err, tt.wantCode)
			assert.Equal(t, tt.wantMessage, gwErr.Message)
		})
	}
}

func TestClampTemperature(t *testing.T) {
	assert.Equal(t, 0.0, ClampTemperature(-3))
	assert.Equal(t, 2.0, ClampTemperature(9))
	assert.Equal(t, 0.9, ClampTemperature(0.9))
}

func TestParseChatRequest_DuplicateKeys(t *testing.T) {
	t.Run("last messages wins", func(t *testing.T) {
		body := `{"messages":[],"messages":[{"role":"user","content":"hi"}]}`
		req, err := ParseChatRequest([]byte(body), testDefaultModel)
		require.NoError(t, err)
		assert.Equal(t, []core.Message{{Role: "user", Content: "hi"}}, req.Messages)
	})

	t.Run("last empty messages wins", func(t *testing.T) {
		body := `{"messages":[{"role":"user","content":"hi"}],"messages":[]}`
		_, err := ParseChatRequest([]byte(body), testDefaultModel)
		requireCode(t, err, core.CodeMissingMessages)
	})

	t.Run("last temperature and message field win", func(t *testing.T) {
		body := `{"temperature":5,"temperature":0.2,` +
			`"messages":[{"role":"robot","role":"user","content":"a","content":"b"}]}`
		req, err := ParseChatRequest([]byte(body), testDefaultModel)
		require.NoError(t, err)
		assert.Equal(t, 0.2, req.Temperature)
		assert.Equal(t, []core.Message{{Role: "user", Content: "b"}}, req.Messages)
	})

	t.Run("vapi conversation", func(t *testing.T) {
		body := `{"conversation":[],"conversation":[{"role":"user","content":"hi"}]}`
		req, err := ParseVapiRequest([]byte(body), testDefaultModel)
		require.NoError(t, err)
		require.Len(t, req.Messages, 1)
	})
}
