package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_WithDefaults(t *testing.T) {
	const configContent = `
server:
  port: "${TEST_PORT_DEFAULTS:-9999}"
providers:
  active: openai
  openai:
    api_key: "${TEST_KEY_DEFAULTS:-default-key}"
`

	t.Run("UseDefaultValue", func(t *testing.T) {
		dir := isolate(t)
		writeFile(t, dir, DefaultConfigFile, configContent)

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "9999", cfg.Server.Port)
		assert.Equal(t, "default-key", cfg.Providers.Selected().APIKey)
	})

	t.Run("OverrideDefaultValue", func(t *testing.T) {
		dir := isolate(t)
		writeFile(t, dir, DefaultConfigFile, configContent)
		t.Setenv("TEST_PORT_DEFAULTS", "1111")
		t.Setenv("TEST_KEY_DEFAULTS", "real-key")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "1111", cfg.Server.Port)
		assert.Equal(t, "real-key", cfg.Providers.Selected().APIKey)
	})
}
