package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"customllm/internal/providers/placeholder"
	"customllm/internal/server"
	"customllm/internal/version"
)

const testKey = "cli-secret"

func startServer(t *testing.T) string {
	t.Helper()
	srv := server.New(placeholder.New(0), &server.Config{
		APIKey:    testKey,
		ModelName: "custom-llm",
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return ts.URL
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("CUSTOMLLM_URL", "")
	t.Setenv("API_KEY", "")

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, version.Info()+"\n", out)
}

func TestHealthCommand(t *testing.T) {
	url := startServer(t)

	out, err := run(t, "", "health", "--url", url)
	require.NoError(t, err)
	assert.Contains(t, out, `"status": "healthy"`)
}

func TestModelsCommand(t *testing.T) {
	url := startServer(t)

	out, err := run(t, "", "models", "--url", url)
	require.NoError(t, err)
	assert.Equal(t, "custom-llm\tcustom-llm\n", out)
}

func TestChatCommand(t *testing.T) {
	url := startServer(t)

	tests := []struct {
		name string
		args []string
	}{
		{"plain", nil},
		{"stream", []string{"--stream"}},
		{"vapi", []string{"--vapi"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"chat", "--url", url, "--api-key", testKey, "--temperature", "1.2"}, tt.args...)
			out, err := run(t, "", append(args, "Hello", "world")...)

			require.NoError(t, err)
			assert.Contains(t, out, "Hello world")
			assert.Contains(t, out, "Temperature: 1.2")
		})
	}
}

func TestChatCommand_MissingAPIKey(t *testing.T) {
	url := startServer(t)

	_, err := run(t, "", "chat", "--url", url, "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Missing Authorization header")
}

func TestChatCommand_Interactive(t *testing.T) {
	url := startServer(t)

	out, err := run(t, "first question\n\nsecond question\nexit\nnever sent\n",
		"chat", "--url", url, "--api-key", testKey, "--system", "be brief")

	require.NoError(t, err)
	assert.Contains(t, out, "Starting chat session")
	assert.Contains(t, out, "first question")
	assert.Contains(t, out, "second question")
	assert.NotContains(t, out, "never sent")
	assert.Equal(t, 4, strings.Count(out, "You: "))
}
