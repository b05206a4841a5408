package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crowdcanvas/crowdcanvas/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const minimalConfig = `
telegram:
  enabled: false
gemini:
  api_key: "test-key"
`

func TestLoadConfig_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadConfig(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.True(t, cfg.Logger.JSON)
	assert.False(t, cfg.Telegram.Enabled)
	assert.Equal(t, "gemini-2.0-flash", cfg.Gemini.TextModel)
	assert.Equal(t, 3, cfg.Gemini.MaxRetries)
	assert.Equal(t, time.Minute, cfg.Gemini.MixTimeout)
	assert.Equal(t, "crowdcanvas.db", cfg.Database.Path)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 5, cfg.Batch.Size)
	assert.Equal(t, 100, cfg.Batch.MixedTextMaxLen)
	assert.Equal(t, 500, cfg.Batch.PromptMaxLen)
	assert.Equal(t, time.Hour, cfg.Batch.CleanupMaxAge)

	require.Contains(t, cfg.Scheduler.Tasks, "batch_cleanup")
	assert.True(t, cfg.Scheduler.Tasks["batch_cleanup"].Enabled)
	require.Contains(t, cfg.Scheduler.Tasks, "batch_create")
	assert.False(t, cfg.Scheduler.Tasks["batch_create"].Enabled)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
log:
  level: debug
  json: false
telegram:
  enabled: true
  token: "123:abc"
  admin_id: 99
gemini:
  api_key: "test-key"
  generate_timeout: 2m
batch:
  size: 10
server:
  addr: ":9999"
`)

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.False(t, cfg.Logger.JSON)
	assert.True(t, cfg.Telegram.Enabled)
	assert.Equal(t, int64(99), cfg.Telegram.AdminID)
	assert.Equal(t, 2*time.Minute, cfg.Gemini.GenerateTimeout)
	assert.Equal(t, 10, cfg.Batch.Size)
	assert.Equal(t, ":9999", cfg.Server.Addr)
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("BOT_TELEGRAM_ENABLED", "false")
	t.Setenv("BOT_GEMINI_API_KEY", "env-key")

	cfg, err := config.LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.Gemini.APIKey)
	assert.False(t, cfg.Telegram.Enabled)
}

func TestLoadConfig_ValidationFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
	}{
		{
			name: "missing gemini api key",
			content: `
telegram:
  enabled: false
`,
		},
		{
			name: "telegram enabled without token",
			content: `
telegram:
  enabled: true
gemini:
  api_key: "test-key"
`,
		},
		{
			name: "bad log level",
			content: minimalConfig + `
log:
  level: loud
`,
		},
		{
			name: "batch size out of range",
			content: minimalConfig + `
batch:
  size: 0
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := config.LoadConfig(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_MalformedYAML(t *testing.T) {
	t.Parallel()

	_, err := config.LoadConfig(writeConfig(t, "telegram: ["))
	assert.Error(t, err)
}
