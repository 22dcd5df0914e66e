// Package placeholder provides the default text generator: a templated reply
// that echoes the request instead of running a model.
package placeholder

import (
	"context"
	"fmt"
	"time"

	"customllm/config"
	"customllm/internal/chat"
	"customllm/internal/core"
	"customllm/internal/providers"
)

func init() {
	providers.Register(config.ProviderPlaceholder, func(opts providers.Options) (core.Provider, error) {
		return New(opts.StreamDelay), nil
	})
}

// Provider implements core.Provider without any upstream call
type Provider struct {
	delay time.Duration
}

// New returns a placeholder provider that paces streamed words by delay.
func New(delay time.Duration) *Provider {
	return &Provider{delay: delay}
}

// Name returns the provider type
func (p *Provider) Name() string {
	return config.ProviderPlaceholder
}

// Generate returns the templated reply for req
func (p *Provider) Generate(_ context.Context, req *core.ChatRequest) (string, error) {
	return Reply(req), nil
}

// Stream yields the templated reply word by word. The pause between words ends
// early when ctx is cancelled.
func (p *Provider) Stream(ctx context.Context, req *core.ChatRequest) (core.TokenStream, error) {
	return chat.NewWordStream(ctx, Reply(req), p.delay), nil
}

// Reply renders the placeholder text for req.
func Reply(req *core.ChatRequest) string {
	return fmt.Sprintf("هذه استجابة تجريبية من Custom LLM (Model: %s, Temperature: %s). الرسالة المستلمة: %s",
		req.Model, chat.FormatTemperature(req.Temperature), req.LastUserMessage())
}
