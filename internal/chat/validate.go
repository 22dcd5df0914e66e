// Package chat validates incoming chat requests and formats completion responses.
package chat

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"customllm/internal/core"
)

const (
	// DefaultTemperature is used when a request omits temperature
	DefaultTemperature = 0.7
	// MinTemperature and MaxTemperature bound the accepted temperature range
	MinTemperature = 0.0
	MaxTemperature = 2.0
)

// ParseChatRequest validates the raw body of POST /v1/chat/completions and returns
// the normalized request. defaultModel is used when the body carries no model.
//
// Checks run in a fixed order (body, messages presence, temperature, message shape)
// so that each failure maps to exactly one error code.
func ParseChatRequest(body []byte, defaultModel string) (*core.ChatRequest, error) {
	root, err := parseRoot(body)
	if err != nil {
		return nil, err
	}

	messages := field(root, "messages")
	if isEmpty(messages) {
		return nil, core.NewInvalidRequestError(core.CodeMissingMessages,
			"No messages provided. Messages must be a non-empty array.", nil)
	}

	temperature, err := parseTemperature(field(root, "temperature"))
	if err != nil {
		return nil, err
	}

	msgs, err := parseMessages(messages)
	if err != nil {
		return nil, err
	}

	return &core.ChatRequest{
		Model:       resolveModel(field(root, "model"), defaultModel),
		Messages:    msgs,
		Temperature: temperature,
		Stream:      field(root, "stream").Type == gjson.True,
	}, nil
}

// ParseVapiRequest validates the raw body of POST /vapi/custom-llm. The conversation
// may be sent under "messages" or "conversation"; temperature is clamped instead of
// rejected and falls back to the default when it is not numeric. Streaming is never
// requested on this endpoint.
func ParseVapiRequest(body []byte, defaultModel string) (*core.ChatRequest, error) {
	root, err := parseRoot(body)
	if err != nil {
		return nil, err
	}

	messages := field(root, "messages")
	if isEmpty(messages) {
		messages = field(root, "conversation")
	}
	if isEmpty(messages) {
		return nil, core.NewInvalidRequestError(core.CodeMissingMessages, "No messages or conversation found", nil)
	}

	temperature := DefaultTemperature
	if t, ok := numericValue(field(root, "temperature")); ok && !math.IsNaN(t) {
		temperature = ClampTemperature(t)
	}

	msgs, err := parseMessages(messages)
	if err != nil {
		return nil, err
	}

	return &core.ChatRequest{
		Model:       resolveModel(field(root, "model"), defaultModel),
		Messages:    msgs,
		Temperature: temperature,
	}, nil
}

// ClampTemperature bounds t to [MinTemperature, MaxTemperature].
func ClampTemperature(t float64) float64 {
	return math.Max(MinTemperature, math.Min(MaxTemperature, t))
}

func parseRoot(body []byte) (gjson.Result, error) {
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, core.NewInvalidRequestError(core.CodeMissingJSON, "No JSON data provided", nil)
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() || len(root.Map()) == 0 {
		return gjson.Result{}, core.NewInvalidRequestError(core.CodeMissingJSON, "No JSON data provided", nil)
	}
	return root, nil
}

func parseTemperature(v gjson.Result) (float64, error) {
	if !v.Exists() || v.Type == gjson.Null {
		return DefaultTemperature, nil
	}

	t, ok := numericValue(v)
	if !ok {
		return 0, core.NewInvalidRequestError(core.CodeInvalidTemperature,
			fmt.Sprintf("Invalid temperature value: %s", v.String()), nil)
	}
	// NaN fails both comparisons
	if !(t >= MinTemperature && t <= MaxTemperature) {
		return 0, core.NewInvalidRequestError(core.CodeInvalidTemperature,
			fmt.Sprintf("Temperature must be between 0.0 and 2.0, got %s", FormatTemperature(t)), nil)
	}
	return t, nil
}

// numericValue accepts JSON numbers and numeric strings.
func numericValue(v gjson.Result) (float64, bool) {
	switch v.Type {
	case gjson.Number:
		return v.Float(), true
	case gjson.String:
		t, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil {
			return 0, false
		}
		return t, true
	default:
		return 0, false
	}
}

func parseMessages(v gjson.Result) ([]core.Message, error) {
	if !v.IsArray() {
		return nil, invalidMessages("Messages must be a non-empty list")
	}

	items := v.Array()
	msgs := make([]core.Message, 0, len(items))
	for i, item := range items {
		if !item.IsObject() {
			return nil, invalidMessages(fmt.Sprintf("Message %d must be a dictionary", i))
		}
		role := field(item, "role")
		content := field(item, "content")
		if !role.Exists() || !content.Exists() {
			return nil, invalidMessages(fmt.Sprintf("Message %d must have 'role' and 'content' fields", i))
		}
		if role.Type != gjson.String || !core.ValidRole(role.Str) {
			return nil, invalidMessages(fmt.Sprintf(
				"Message %d has invalid role: %s. Must be 'user', 'system', or 'assistant'", i, role.String()))
		}
		if content.Type != gjson.String {
			return nil, invalidMessages(fmt.Sprintf("Message %d content must be a string", i))
		}
		msgs = append(msgs, core.Message{Role: role.Str, Content: content.Str})
	}
	return msgs, nil
}

func invalidMessages(message string) error {
	return core.NewInvalidRequestError(core.CodeInvalidMessages, message, nil)
}

// field returns the value of key in obj. A repeated key resolves to its last
// occurrence, the way standard JSON decoders read it; gjson's Get returns the first.
func field(obj gjson.Result, key string) gjson.Result {
	var out gjson.Result
	obj.ForEach(func(k, v gjson.Result) bool {
		if k.Str == key {
			out = v
		}
		return true
	})
	return out
}

func resolveModel(v gjson.Result, defaultModel string) string {
	if v.Type == gjson.String && v.Str != "" {
		return v.Str
	}
	return defaultModel
}

// isEmpty reports whether v is absent or an empty/zero JSON value.
func isEmpty(v gjson.Result) bool {
	switch v.Type {
	case gjson.Null, gjson.False:
		return true
	case gjson.String:
		return v.Str == ""
	case gjson.Number:
		return v.Num == 0
	case gjson.JSON:
		if v.IsArray() {
			return len(v.Array()) == 0
		}
		return len(v.Map()) == 0
	}
	return false
}
