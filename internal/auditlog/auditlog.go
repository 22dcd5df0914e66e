// Package auditlog emits one audit event per chat request. Events are handed
// to an Emitter asynchronously and never affect the response.
package auditlog

import (
	"time"
)

// Event describes one completed chat request.
type Event struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	DurationMs int64     `json:"duration_ms"`

	// Identity
	RequestID  string `json:"request_id,omitempty"`
	ClientIP   string `json:"client_ip,omitempty"`
	UserAgent  string `json:"user_agent,omitempty"`
	APIKeyHash string `json:"api_key_hash,omitempty"`

	// Request
	Method       string   `json:"method"`
	Path         string   `json:"path"`
	Model        string   `json:"model,omitempty"`
	Provider     string   `json:"provider,omitempty"`
	Stream       bool     `json:"stream"`
	Temperature  *float64 `json:"temperature,omitempty"`
	MessageCount int      `json:"message_count,omitempty"`

	// Response
	StatusCode       int    `json:"status_code"`
	PromptTokens     int    `json:"prompt_tokens,omitempty"`
	CompletionTokens int    `json:"completion_tokens,omitempty"`
	TotalTokens      int    `json:"total_tokens,omitempty"`
	ErrorCode        string `json:"error_code,omitempty"`
}

// Config holds audit logging configuration
type Config struct {
	// BufferSize is the number of events held before new ones are dropped
	BufferSize int

	// FlushInterval is how often buffered events are emitted
	FlushInterval time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		BufferSize:    1000,
		FlushInterval: 5 * time.Second,
	}
}

// auditedPaths are the routes that produce events.
var auditedPaths = map[string]bool{
	"/v1/chat/completions": true,
	"/vapi/custom-llm":     true,
}

// IsAuditedPath reports whether requests to path produce an audit event.
func IsAuditedPath(path string) bool {
	return auditedPaths[path]
}
