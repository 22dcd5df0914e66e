package chat

import (
	"context"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"customllm/internal/core"
)

// DefaultStreamDelay is the pause between two streamed words.
const DefaultStreamDelay = 50 * time.Millisecond

// NewCompletionID returns a unique chat completion identifier.
func NewCompletionID() string {
	return "chatcmpl-" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// FormatTemperature renders t the way it is echoed back to clients: shortest
// representation, always with a fractional part ("1.0", "0.7"), switching to
// exponent form below 1e-4 or from 1e16 ("1e-05").
func FormatTemperature(t float64) string {
	if abs := math.Abs(t); math.IsNaN(t) || math.IsInf(t, 0) || (abs != 0 && (abs < 1e-4 || abs >= 1e16)) {
		return strconv.FormatFloat(t, 'g', -1, 64)
	}
	s := strconv.FormatFloat(t, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// CountTokens is a naive token count: the number of whitespace-separated words.
func CountTokens(text string) int {
	return len(strings.Fields(text))
}

// CountPromptTokens sums CountTokens over every message rendered as
// {'role': '<role>', 'content': '<content>'}.
func CountPromptTokens(messages []core.Message) int {
	total := 0
	for _, m := range messages {
		total += CountTokens(fmt.Sprintf("{'role': '%s', 'content': '%s'}", m.Role, m.Content))
	}
	return total
}

// BuildUsage computes the usage block for a reply to messages.
func BuildUsage(messages []core.Message, reply string) core.Usage {
	prompt := CountPromptTokens(messages)
	completion := CountTokens(reply)
	return core.Usage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
	}
}

// BuildResponse wraps reply in a complete non-streaming chat completion envelope.
func BuildResponse(req *core.ChatRequest, reply string, created time.Time) *core.ChatResponse {
	return &core.ChatResponse{
		ID:      NewCompletionID(),
		Object:  core.ObjectChatCompletion,
		Created: created.Unix(),
		Model:   req.Model,
		Choices: []core.Choice{
			{
				Index:        0,
				Message:      core.Message{Role: core.RoleAssistant, Content: reply},
				FinishReason: core.FinishReasonStop,
			},
		},
		Usage: BuildUsage(req.Messages, reply),
	}
}

// BuildVapiResponse wraps reply in the Vapi custom-llm envelope.
func BuildVapiResponse(req *core.ChatRequest, reply string, now time.Time) *core.VapiResponse {
	return &core.VapiResponse{
		Response:    reply,
		Model:       req.Model,
		Temperature: req.Temperature,
		Timestamp:   now.Unix(),
	}
}

// ChunkBuilder produces the chunks of one streamed completion. All chunks share
// the same id, created timestamp and model.
type ChunkBuilder struct {
	id      string
	created int64
	model   string
}

// NewChunkBuilder starts a new streamed completion for model.
func NewChunkBuilder(model string, created time.Time) *ChunkBuilder {
	return &ChunkBuilder{
		id:      NewCompletionID(),
		created: created.Unix(),
		model:   model,
	}
}

// ID returns the completion id shared by all chunks.
func (b *ChunkBuilder) ID() string {
	return b.id
}

// Delta returns a partial chunk carrying content.
func (b *ChunkBuilder) Delta(content string) *core.StreamChunk {
	return b.chunk(core.StreamChoice{Delta: core.Delta{Content: content}})
}

// Final returns the terminal chunk with an empty delta and finish_reason "stop".
func (b *ChunkBuilder) Final() *core.StreamChunk {
	stop := core.FinishReasonStop
	return b.chunk(core.StreamChoice{FinishReason: &stop})
}

func (b *ChunkBuilder) chunk(choice core.StreamChoice) *core.StreamChunk {
	return &core.StreamChunk{
		ID:      b.id,
		Object:  core.ObjectChatCompletionChunk,
		Created: b.created,
		Model:   b.model,
		Choices: []core.StreamChoice{choice},
	}
}

// WordStream emits text one whitespace-separated word at a time, each followed by
// a single space, pausing delay after every word. It implements core.TokenStream.
type WordStream struct {
	ctx   context.Context
	words []string
	delay time.Duration
	next  int
	timer *time.Timer
}

// NewWordStream splits text on whitespace. The pause between words is aborted
// when ctx is cancelled, which happens when the client goes away.
func NewWordStream(ctx context.Context, text string, delay time.Duration) *WordStream {
	return &WordStream{
		ctx:   ctx,
		words: strings.Fields(text),
		delay: delay,
	}
}

// Next returns the next word, or io.EOF after the last one.
func (s *WordStream) Next() (string, error) {
	if s.next > 0 {
		if err := s.pause(); err != nil {
			return "", err
		}
	}
	if s.next >= len(s.words) {
		s.next = len(s.words) + 1
		return "", io.EOF
	}
	word := s.words[s.next]
	s.next++
	return word + " ", nil
}

// Close stops any pending pause.
func (s *WordStream) Close() error {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.next = len(s.words) + 1
	return nil
}

func (s *WordStream) pause() error {
	if s.next > len(s.words) || s.delay <= 0 {
		return nil
	}
	if s.timer == nil {
		s.timer = time.NewTimer(s.delay)
	} else {
		s.timer.Reset(s.delay)
	}
	select {
	case <-s.ctx.Done():
		s.timer.Stop()
		return s.ctx.Err()
	case <-s.timer.C:
		return nil
	}
}
