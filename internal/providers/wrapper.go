package providers

import (
	"context"
	"errors"
	"io"

	"customllm/internal/core"
)

// Hooks receives provider call outcomes. observability.Metrics implements it.
type Hooks interface {
	ProviderRequest(provider, status string)
	StreamChunk(provider string)
}

// Provider call outcomes reported to Hooks
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

type providerWrapper struct {
	inner core.Provider
	hooks Hooks
}

// Instrument reports every call made through p to hooks. A nil hooks returns p unchanged.
func Instrument(p core.Provider, hooks Hooks) core.Provider {
	if hooks == nil {
		return p
	}
	return &providerWrapper{inner: p, hooks: hooks}
}

func (w *providerWrapper) Name() string {
	return w.inner.Name()
}

func (w *providerWrapper) Generate(ctx context.Context, req *core.ChatRequest) (string, error) {
	text, err := w.inner.Generate(ctx, req)
	w.hooks.ProviderRequest(w.inner.Name(), outcome(err))
	return text, err
}

func (w *providerWrapper) Stream(ctx context.Context, req *core.ChatRequest) (core.TokenStream, error) {
	stream, err := w.inner.Stream(ctx, req)
	if err != nil {
		w.hooks.ProviderRequest(w.inner.Name(), StatusError)
		return nil, err
	}
	return &streamWrapper{inner: stream, name: w.inner.Name(), hooks: w.hooks}, nil
}

// Close releases the wrapped provider's resources if it holds any.
func (w *providerWrapper) Close() error {
	if c, ok := w.inner.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

type streamWrapper struct {
	inner    core.TokenStream
	name     string
	hooks    Hooks
	reported bool
}

func (s *streamWrapper) Next() (string, error) {
	text, err := s.inner.Next()
	switch {
	case err == nil:
		s.hooks.StreamChunk(s.name)
	case errors.Is(err, io.EOF):
		s.report(StatusSuccess)
	default:
		s.report(StatusError)
	}
	return text, err
}

func (s *streamWrapper) Close() error {
	// A stream closed before EOF was abandoned by the client
	s.report(StatusError)
	return s.inner.Close()
}

func (s *streamWrapper) report(status string) {
	if s.reported {
		return
	}
	s.reported = true
	s.hooks.ProviderRequest(s.name, status)
}

func outcome(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusSuccess
}
