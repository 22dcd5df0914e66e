// Package core defines the core interfaces and types for the custom LLM server.
package core

//go:generate mockgen -source=interfaces.go -destination=mocks/mock_provider.go -package=mocks

import (
	"context"
)

// Provider generates assistant text for a validated chat request.
// The placeholder generator is the default implementation; external
// inference backends implement the same interface.
type Provider interface {
	// Name returns the provider type used in logs and metrics
	Name() string

	// Generate returns the complete assistant reply
	Generate(ctx context.Context, req *ChatRequest) (string, error)

	// Stream returns the assistant reply as a sequence of text fragments (caller must close)
	Stream(ctx context.Context, req *ChatRequest) (TokenStream, error)
}

// TokenStream yields text fragments of a streamed reply.
// Next returns io.EOF once the reply is complete.
type TokenStream interface {
	Next() (string, error)
	Close() error
}
