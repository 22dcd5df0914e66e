package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"customllm/internal/client"
	"customllm/internal/core"
	"customllm/internal/httpclient"
)

const defaultServerURL = "http://localhost:8000"

// clientSettings resolves --url and --api-key, falling back to
// CUSTOMLLM_URL and API_KEY (including values from .env).
func clientSettings(cmd *cobra.Command) (*viper.Viper, error) {
	_ = godotenv.Load() //nolint:errcheck

	v := viper.New()
	v.SetDefault("url", defaultServerURL)
	if err := v.BindEnv("url", "CUSTOMLLM_URL"); err != nil {
		return nil, err
	}
	if err := v.BindEnv("api-key", "API_KEY"); err != nil {
		return nil, err
	}
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, err
	}
	return v, nil
}

func addClientFlags(cmd *cobra.Command) {
	cmd.Flags().String("url", defaultServerURL, "server base URL (env: CUSTOMLLM_URL)")
	cmd.Flags().String("api-key", "", "bearer key for the chat endpoints (env: API_KEY)")
	cmd.Flags().Duration("timeout", 2*time.Minute, "request timeout")
}

func newClient(cmd *cobra.Command) (*client.Client, *viper.Viper, error) {
	v, err := clientSettings(cmd)
	if err != nil {
		return nil, nil, err
	}
	cc := httpclient.DefaultConfig()
	cc.Timeout = v.GetDuration("timeout")
	return client.New(v.GetString("url"), v.GetString("api-key"), httpclient.NewHTTPClient(&cc)), v, nil
}

func newHealthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, _, err := newClient(cmd)
			if err != nil {
				return err
			}
			resp, err := c.Health(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
	addClientFlags(cmd)
	return cmd
}

func newModelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the models of a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, _, err := newClient(cmd)
			if err != nil {
				return err
			}
			resp, err := c.Models(cmd.Context())
			if err != nil {
				return err
			}
			for _, m := range resp.Data {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", m.ID, m.OwnedBy)
			}
			return nil
		},
	}
	addClientFlags(cmd)
	return cmd
}

func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat [message...]",
		Short: "Send a chat message to a running server",
		Long: "Send a chat message to a running server. Without a message, an " +
			"interactive session reads lines from stdin until 'exit'.",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, v, err := newClient(cmd)
			if err != nil {
				return err
			}
			s := &chatSession{
				client:      c,
				out:         cmd.OutOrStdout(),
				model:       v.GetString("model"),
				temperature: v.GetFloat64("temperature"),
				stream:      v.GetBool("stream"),
				vapi:        v.GetBool("vapi"),
			}
			if system := v.GetString("system"); system != "" {
				s.history = append(s.history, core.Message{Role: core.RoleSystem, Content: system})
			}

			if len(args) > 0 {
				_, err := s.send(cmd.Context(), strings.Join(args, " "))
				return err
			}
			return s.interactive(cmd.Context(), cmd.InOrStdin())
		},
	}
	addClientFlags(cmd)
	cmd.Flags().String("model", "", "model name (default: the server's model)")
	cmd.Flags().Float64("temperature", 0.7, "sampling temperature")
	cmd.Flags().String("system", "", "system message for the session")
	cmd.Flags().Bool("stream", false, "stream the reply")
	cmd.Flags().Bool("vapi", false, "use the Vapi endpoint instead of /v1/chat/completions")
	return cmd
}

type chatSession struct {
	client      *client.Client
	out         io.Writer
	model       string
	temperature float64
	stream      bool
	vapi        bool
	history     []core.Message
}

// send posts message with the session history and prints the reply.
func (s *chatSession) send(ctx context.Context, message string) (string, error) {
	messages := append(append([]core.Message(nil), s.history...), core.Message{Role: core.RoleUser, Content: message})
	req := core.ChatRequest{
		Model:       s.model,
		Messages:    messages,
		Temperature: s.temperature,
	}

	var reply string
	switch {
	case s.vapi:
		resp, err := s.client.Vapi(ctx, req)
		if err != nil {
			return "", err
		}
		reply = resp.Response
		fmt.Fprintln(s.out, reply)
	case s.stream:
		var err error
		reply, err = s.client.StreamChat(ctx, req, func(fragment string) {
			fmt.Fprint(s.out, fragment)
		})
		fmt.Fprintln(s.out)
		if err != nil {
			return reply, err
		}
	default:
		resp, err := s.client.Chat(ctx, req)
		if err != nil {
			return "", err
		}
		if len(resp.Choices) > 0 {
			reply = resp.Choices[0].Message.Content
		}
		fmt.Fprintln(s.out, reply)
	}

	s.history = append(messages, core.Message{Role: core.RoleAssistant, Content: reply})
	return reply, nil
}

func (s *chatSession) interactive(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprintln(s.out, "Starting chat session (type 'exit' to quit)")
	for {
		fmt.Fprint(s.out, "\nYou: ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" {
			return nil
		}

		fmt.Fprint(s.out, "\nAssistant: ")
		if _, err := s.send(ctx, input); err != nil {
			fmt.Fprintf(s.out, "\nError: %v\n", err)
		}
	}
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
