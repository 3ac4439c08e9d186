package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 4003, cfg.Server.HTTPPort)
	assert.Equal(t, 9091, cfg.Server.MetricsPort)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.ExtractionModel)
	assert.Equal(t, 5, cfg.KB.TopK)
	assert.Equal(t, 5*time.Second, cfg.KB.Timeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Pipeline.GreetingSettleDelay)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `
server:
  http_port: 9090
media:
  url: https://media.example.com
  api_key: key1
  api_secret: secret1
chat:
  url: https://chat.example.com
  internal_token: tok
kb:
  url: https://kb.example.com
  top_k: 3
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.HTTPPort)
	assert.Equal(t, "https://media.example.com", cfg.Media.URL)
	assert.Equal(t, "tok", cfg.Chat.InternalToken)
	assert.Equal(t, 3, cfg.KB.TopK)
	// YAML 未覆盖的字段保持默认值
	assert.Equal(t, "postgres", cfg.Database.Driver)
}

func TestEnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  http_port: 9090\n"), 0o600))

	t.Setenv("VOICEFLOW_SERVER_HTTP_PORT", "8081")
	t.Setenv("VOICEFLOW_LLM_API_KEY", "env-key")
	t.Setenv("VOICEFLOW_KB_TIMEOUT", "3s")
	t.Setenv("VOICEFLOW_PIPELINE_TURN_DETECTOR", "false")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.Server.HTTPPort)
	assert.Equal(t, "env-key", cfg.LLM.APIKey)
	assert.Equal(t, 3*time.Second, cfg.KB.Timeout)
	assert.False(t, cfg.Pipeline.TurnDetector)
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/nonexistent/config.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Server.HTTPPort, cfg.Server.HTTPPort)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		wantOK bool
	}{
		{"defaults", func(c *Config) {}, true},
		{"bad port", func(c *Config) { c.Server.HTTPPort = -1 }, false},
		{"bad driver", func(c *Config) { c.Database.Driver = "oracle" }, false},
		{"zero topk", func(c *Config) { c.KB.TopK = 0 }, false},
		{"bad sample rate", func(c *Config) { c.Telemetry.SampleRate = 1.5 }, false},
		{"sqlite ok", func(c *Config) { c.Database.Driver = "sqlite"; c.Database.Name = "file.db" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantOK {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestDatabaseDSN(t *testing.T) {
	d := DefaultDatabaseConfig()
	d.Password = "pw"
	assert.Contains(t, d.DSN(), "host=localhost")
	assert.Contains(t, d.DSN(), "dbname=voiceflow")

	d.Driver = "sqlite"
	d.Name = "/tmp/voiceflow.db"
	assert.Equal(t, "/tmp/voiceflow.db", d.DSN())
}

func TestWithValidator(t *testing.T) {
	_, err := NewLoader().WithValidator(func(c *Config) error {
		if c.Media.APIKey == "" {
			return assert.AnError
		}
		return nil
	}).Load()
	assert.Error(t, err)
}
