package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Options{Format: "json"})

	logger.Info("server started", "port", "8000")
	logger.Debug("hidden")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "server started", entry["msg"])
	assert.Equal(t, "8000", entry["port"])
	assert.Equal(t, "INFO", entry["level"])
	assert.NotContains(t, buf.String(), "hidden")
}

func TestNew_AutoIsJSONWhenNotATerminal(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, Options{Format: "auto"}).Info("hello")
	assert.True(t, json.Valid(bytes.TrimSpace(buf.Bytes())))
}

func TestNew_TextWithoutColor(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Options{Format: "text", Debug: true})

	logger.Debug("request received", "path", "/health")

	out := buf.String()
	assert.Contains(t, out, "DBG")
	assert.Contains(t, out, "request received")
	assert.Contains(t, out, "path=/health")
	assert.NotContains(t, out, "\033[")
}
