// Package gemini forwards chat requests to Google Gemini through the genai SDK.
package gemini

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"customllm/config"
	"customllm/internal/core"
	"customllm/internal/providers"
)

const roleModel = "model"

func init() {
	providers.Register(config.ProviderGemini, func(opts providers.Options) (core.Provider, error) {
		return New(context.Background(), opts.Config)
	})
}

// Provider implements core.Provider on top of a genai chat session
type Provider struct {
	client *genai.Client
	cfg    config.ProviderConfig
}

// New creates the genai client. BaseURL, when set, replaces the API endpoint.
func New(ctx context.Context, cfg config.ProviderConfig) (*Provider, error) {
	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(cfg.BaseURL))
	}
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, core.NewProviderError(config.ProviderGemini, "failed to create client: "+err.Error(), err)
	}
	return &Provider{client: client, cfg: cfg}, nil
}

// Name returns the provider type
func (p *Provider) Name() string {
	return config.ProviderGemini
}

// Close releases the underlying client connection
func (p *Provider) Close() error {
	return p.client.Close()
}

// Generate sends the last message of the conversation with the rest as history
func (p *Provider) Generate(ctx context.Context, req *core.ChatRequest) (string, error) {
	session, prompt := p.startChat(req)
	resp, err := session.SendMessage(ctx, genai.Text(prompt))
	if err != nil {
		return "", wrapError(err)
	}
	return responseText(resp), nil
}

// Stream forwards the text of each streamed response as it arrives
func (p *Provider) Stream(ctx context.Context, req *core.ChatRequest) (core.TokenStream, error) {
	ctx, cancel := context.WithCancel(ctx)
	session, prompt := p.startChat(req)
	return &tokenStream{iter: session.SendMessageStream(ctx, genai.Text(prompt)), cancel: cancel}, nil
}

func (p *Provider) startChat(req *core.ChatRequest) (*genai.ChatSession, string) {
	model := p.client.GenerativeModel(providers.UpstreamModel(p.cfg, req))
	model.SetTemperature(float32(req.Temperature))
	if system := req.SystemPrompt(); system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}

	session := model.StartChat()
	history, prompt := buildHistory(req.Messages)
	session.History = history
	return session, prompt
}

// buildHistory splits the conversation into prior turns and the message to
// send. System messages are carried by SystemInstruction instead.
func buildHistory(messages []core.Message) ([]*genai.Content, string) {
	var turns []core.Message
	for _, m := range messages {
		if m.Role != core.RoleSystem {
			turns = append(turns, m)
		}
	}
	if len(turns) == 0 {
		return nil, ""
	}

	history := make([]*genai.Content, 0, len(turns)-1)
	for _, m := range turns[:len(turns)-1] {
		role := m.Role
		if role == core.RoleAssistant {
			role = roleModel
		}
		history = append(history, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(m.Content)}})
	}
	return history, turns[len(turns)-1].Content
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
	}
	return sb.String()
}

func wrapError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return core.NewProviderError(config.ProviderGemini, err.Error(), err)
}

type responseIterator interface {
	Next() (*genai.GenerateContentResponse, error)
}

type tokenStream struct {
	iter   responseIterator
	cancel context.CancelFunc
}

func (s *tokenStream) Next() (string, error) {
	for {
		resp, err := s.iter.Next()
		if errors.Is(err, iterator.Done) {
			return "", io.EOF
		}
		if err != nil {
			return "", wrapError(err)
		}
		if text := responseText(resp); text != "" {
			return text, nil
		}
	}
}

func (s *tokenStream) Close() error {
	s.cancel()
	return nil
}
