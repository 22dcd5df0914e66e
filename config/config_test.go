package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:8000", cfg.Server.Address())
	assert.False(t, cfg.Server.Debug)
	assert.Empty(t, cfg.Server.APIKey)
	assert.Equal(t, DefaultBodySizeLimit, cfg.Server.BodySizeLimit)
	assert.Equal(t, 50*time.Millisecond, cfg.Server.StreamDelay)
	assert.Equal(t, "custom-llm", cfg.Model.Name)
	assert.Equal(t, DefaultServiceName, cfg.Model.ServiceName)
	assert.Equal(t, ProviderPlaceholder, cfg.Providers.Active)
	assert.Equal(t, LogFormatAuto, cfg.Logging.Format)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/metrics", cfg.Metrics.Endpoint)
	assert.False(t, cfg.Audit.Enabled)
}

func TestLoad_FromEnvironment(t *testing.T) {
	isolate(t)
	t.Setenv("PORT", "9090")
	t.Setenv("API_KEY", "env-key")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "env-key", cfg.Server.APIKey)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := isolate(t)
	writeFile(t, dir, ".env", "API_KEY=from-dotenv\nMODEL_NAME=dotenv-model\n")
	t.Setenv("MODEL_NAME", "from-process")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "from-dotenv", cfg.Server.APIKey)
	assert.Equal(t, "from-process", cfg.Model.Name, "process environment wins over .env")
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := isolate(t)
	writeFile(t, dir, DefaultConfigFile, `
server:
  port: "7000"
  stream_delay: 5ms
model:
  name: yaml-model
providers:
  active: ollama
  ollama:
    model: phi3
`)
	t.Setenv("OLLAMA_MODEL", "llama3")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "7000", cfg.Server.Port)
	assert.Equal(t, 5*time.Millisecond, cfg.Server.StreamDelay)
	assert.Equal(t, "yaml-model", cfg.Model.Name)
	assert.Equal(t, ProviderOllama, cfg.Providers.Active)
	assert.Equal(t, "llama3", cfg.Providers.Ollama.Model, "environment wins over yaml")
	assert.Equal(t, "http://localhost:11434", cfg.Providers.Ollama.BaseURL, "unset yaml keys keep defaults")
}

func TestLoad_ConfigFileEnv(t *testing.T) {
	dir := isolate(t)
	path := writeFile(t, dir, "custom.yaml", "model:\n  name: from-custom\n")
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-custom", cfg.Model.Name)
}

func TestLoad_MissingExplicitConfigFile(t *testing.T) {
	isolate(t)
	t.Setenv("CONFIG_FILE", "does-not-exist.yaml")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does-not-exist.yaml")
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := isolate(t)
	writeFile(t, dir, DefaultConfigFile, "server: [unclosed")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_ValidationFailure(t *testing.T) {
	isolate(t)
	t.Setenv("LLM_PROVIDER", "openai")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires an API key")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = "http" }, "invalid port"},
		{"port out of range", func(c *Config) { c.Server.Port = "70000" }, "invalid port"},
		{"bad body limit", func(c *Config) { c.Server.BodySizeLimit = "lots" }, "body size limit"},
		{"negative delay", func(c *Config) { c.Server.StreamDelay = -time.Second }, "stream delay"},
		{"empty model", func(c *Config) { c.Model.Name = " " }, "model name"},
		{"unknown provider", func(c *Config) { c.Providers.Active = "cohere" }, "unknown provider"},
		{"gemini without key", func(c *Config) { c.Providers.Active = ProviderGemini }, "requires an API key"},
		{"gemini with key", func(c *Config) {
			c.Providers.Active = ProviderGemini
			c.Providers.Gemini.APIKey = "g"
		}, ""},
		{"ollama needs no key", func(c *Config) { c.Providers.Active = ProviderOllama }, ""},
		{"unknown log format", func(c *Config) { c.Logging.Format = "xml" }, "log format"},
		{"audit topic without project", func(c *Config) {
			c.Audit.Enabled = true
			c.Audit.PubSubTopic = "audit"
		}, "project and topic"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := buildDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
