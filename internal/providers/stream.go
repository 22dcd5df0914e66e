package providers

import (
	"errors"
	"io"

	"customllm/internal/core"
)

// ParseFunc extracts the text carried by one upstream stream event. done
// reports that the reply is complete.
type ParseFunc func(event []byte) (text string, done bool, err error)

type eventStream struct {
	provider string
	body     io.Closer
	next     func() ([]byte, error)
	parse    ParseFunc
	done     bool
}

// NewEventStream adapts an upstream event stream to core.TokenStream. next
// returns raw events (io.EOF at the end) and parse turns each into text.
// Events that carry no text are skipped. An input that ends before parse has
// reported done is a provider error, not the end of the reply.
func NewEventStream(provider string, body io.Closer, next func() ([]byte, error), parse ParseFunc) core.TokenStream {
	return &eventStream{provider: provider, body: body, next: next, parse: parse}
}

func (s *eventStream) Next() (string, error) {
	for !s.done {
		event, err := s.next()
		if errors.Is(err, io.EOF) {
			return "", core.NewProviderError(s.provider, "stream ended unexpectedly", io.ErrUnexpectedEOF)
		}
		if err != nil {
			return "", err
		}
		text, done, err := s.parse(event)
		if err != nil {
			return "", err
		}
		s.done = done
		if text != "" {
			return text, nil
		}
	}
	return "", io.EOF
}

func (s *eventStream) Close() error {
	s.done = true
	return s.body.Close()
}
