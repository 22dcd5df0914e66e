package auditlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"cloud.google.com/go/pubsub"
)

// Emitter delivers batches of audit events.
// Implementations must be safe for concurrent use.
type Emitter interface {
	Emit(ctx context.Context, events []*Event) error
	Close() error
}

// LogEmitter writes each event as a structured log line.
type LogEmitter struct {
	logger *slog.Logger
}

// NewLogEmitter returns an emitter writing to logger, or slog.Default() when nil.
func NewLogEmitter(logger *slog.Logger) *LogEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEmitter{logger: logger}
}

// Emit logs every event at info level
func (e *LogEmitter) Emit(ctx context.Context, events []*Event) error {
	for _, ev := range events {
		e.logger.InfoContext(ctx, "audit event",
			"id", ev.ID,
			"request_id", ev.RequestID,
			"path", ev.Path,
			"status", ev.StatusCode,
			"model", ev.Model,
			"provider", ev.Provider,
			"stream", ev.Stream,
			"messages", ev.MessageCount,
			"total_tokens", ev.TotalTokens,
			"duration_ms", ev.DurationMs,
			"api_key_hash", ev.APIKeyHash,
			"error_code", ev.ErrorCode,
		)
	}
	return nil
}

// Close is a no-op
func (e *LogEmitter) Close() error {
	return nil
}

// PubSubEmitter publishes each event as a JSON message to a Pub/Sub topic.
type PubSubEmitter struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// NewPubSubEmitter connects to projectID and publishes to topicID.
func NewPubSubEmitter(ctx context.Context, projectID, topicID string) (*PubSubEmitter, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	return &PubSubEmitter{client: client, topic: client.Topic(topicID)}, nil
}

// Emit publishes the batch and waits for every result
func (e *PubSubEmitter) Emit(ctx context.Context, events []*Event) error {
	results := make([]*pubsub.PublishResult, 0, len(events))
	var errs []error
	for _, ev := range events {
		msg, err := newMessage(ev)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		results = append(results, e.topic.Publish(ctx, msg))
	}
	for _, res := range results {
		if _, err := res.Get(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close flushes pending publishes and closes the client
func (e *PubSubEmitter) Close() error {
	e.topic.Stop()
	return e.client.Close()
}

func newMessage(ev *Event) (*pubsub.Message, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshaling audit event: %w", err)
	}
	return &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"path":   ev.Path,
			"status": fmt.Sprint(ev.StatusCode),
		},
	}, nil
}

// MultiEmitter fans events out to several emitters.
type MultiEmitter struct {
	emitters []Emitter
}

// NewMultiEmitter combines emitters. Every emitter sees every batch.
func NewMultiEmitter(emitters ...Emitter) *MultiEmitter {
	return &MultiEmitter{emitters: emitters}
}

// Emit forwards the batch to every emitter and joins their errors
func (m *MultiEmitter) Emit(ctx context.Context, events []*Event) error {
	var errs []error
	for _, e := range m.emitters {
		if err := e.Emit(ctx, events); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every emitter
func (m *MultiEmitter) Close() error {
	var errs []error
	for _, e := range m.emitters {
		if err := e.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
