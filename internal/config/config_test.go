// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, defaults, env expansion and overrides, and validation

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_YAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
server:
  http_addr: "127.0.0.1:9090"
database:
  path: "./ava.db"
events:
  bus_capacity: 64
  keepalive_interval: "5s"
  format: "json"
media:
  backend: "s3"
  s3:
    bucket: "ava-artifacts"
    region: "us-east-1"
    path_style: true
openai:
  chat_model: "gpt-4o-mini"
  request_timeout: "30s"
assistant:
  locale: "de"
  invocation_timeout: "90s"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9090", cfg.Server.HTTPAddr)
	assert.Equal(t, "./ava.db", cfg.Database.Path)
	assert.Equal(t, 64, cfg.Events.BusCapacity)
	assert.Equal(t, 5*time.Second, cfg.Events.KeepAliveInterval)
	assert.Equal(t, "json", cfg.Events.Format)
	assert.Equal(t, "s3", cfg.Media.Backend)
	assert.Equal(t, "ava-artifacts", cfg.Media.S3.Bucket)
	assert.True(t, cfg.Media.S3.PathStyle)
	assert.Equal(t, "gpt-4o-mini", cfg.OpenAI.ChatModel)
	assert.Equal(t, 30*time.Second, cfg.OpenAI.RequestTimeout)
	assert.Equal(t, "de", cfg.Assistant.Locale)
	assert.Equal(t, 90*time.Second, cfg.Assistant.InvocationTimeout)

	// Unset fields keep their defaults.
	assert.Equal(t, "whisper-1", cfg.OpenAI.TranscriptionModel)
	assert.Equal(t, "alloy", cfg.OpenAI.Voice)
	assert.Equal(t, "device_id", cfg.Device.CookieName)
	assert.Equal(t, 30*time.Minute, cfg.Events.IdleTimeout)
}

func TestLoad_TOML(t *testing.T) {
	path := writeConfig(t, "config.toml", `
[server]
http_addr = ":7070"

[events]
keepalive_interval = "2s"

[openai]
voice = "nova"

[tailscale]
enabled = true
hostname = "ava"
funnel = true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.HTTPAddr)
	assert.Equal(t, 2*time.Second, cfg.Events.KeepAliveInterval)
	assert.Equal(t, "nova", cfg.OpenAI.Voice)
	assert.True(t, cfg.Tailscale.Enabled)
	assert.True(t, cfg.Tailscale.Funnel)
	assert.Equal(t, "gpt-4o", cfg.OpenAI.ChatModel)
}

func TestDefaults(t *testing.T) {
	cfg, err := finish(Defaults())
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.HTTPAddr)
	assert.Equal(t, "./.certs", cfg.TLS.CertDir)
	assert.Equal(t, filepath.Join(".certs", "cert.pem"), cfg.TLS.CertFile())
	assert.Equal(t, filepath.Join(".certs", "key.pem"), cfg.TLS.KeyFile())
	assert.Equal(t, "/tmp/ava-bot", cfg.Media.Dir)
	assert.Equal(t, 128, cfg.Events.BusCapacity)
	assert.Equal(t, time.Second, cfg.Events.KeepAliveInterval)
	assert.Equal(t, "en", cfg.Assistant.Locale)
	assert.Equal(t, "dall-e-3", cfg.OpenAI.ImageModel)
	assert.Equal(t, "tts-1", cfg.OpenAI.SpeechModel)
	assert.Equal(t, 8760*time.Hour, cfg.Device.CookieMaxAge)
	assert.Empty(t, cfg.Database.Path)
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_AVA_SECRET", "s3cret")
	path := writeConfig(t, "config.yaml", `
device:
  secret: "${TEST_AVA_SECRET}"
openai:
  base_url: "${TEST_AVA_UNSET}"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Device.Secret)
	assert.Empty(t, cfg.OpenAI.BaseURL)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("AVA_HTTP_ADDR", ":1234")
	t.Setenv("AVA_MEDIA_DIR", "/srv/media")
	t.Setenv("AVA_LOG_LEVEL", "debug")
	t.Setenv("AVA_DB_PATH", "/var/lib/ava.db")
	t.Setenv("OPENAI_API_KEY", "sk-generic")
	t.Setenv("AVA_OPENAI_API_KEY", "sk-specific")

	path := writeConfig(t, "config.yaml", `
server:
  http_addr: ":8080"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":1234", cfg.Server.HTTPAddr)
	assert.Equal(t, "/srv/media", cfg.Media.Dir)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "/var/lib/ava.db", cfg.Database.Path)
	assert.Equal(t, "sk-specific", cfg.OpenAI.APIKey)
}

func TestLoad_OpenAIKeyFallback(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-generic")

	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "sk-generic", cfg.OpenAI.APIKey)
}

func TestLoad_FileKeyWinsOverGenericEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-generic")
	path := writeConfig(t, "config.yaml", `
openai:
  api_key: "sk-file"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-file", cfg.OpenAI.APIKey)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
events:
  keepalive_interval: "soon"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "events.keepalive_interval")
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", "server: [unclosed")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing addr",
			mutate:  func(c *Config) { c.Server.HTTPAddr = "" },
			wantErr: "server.http_addr",
		},
		{
			name: "tailscale without addr is fine",
			mutate: func(c *Config) {
				c.Server.HTTPAddr = ""
				c.Tailscale.Enabled = true
				c.Tailscale.Hostname = "ava"
			},
		},
		{
			name:    "tailscale without hostname",
			mutate:  func(c *Config) { c.Tailscale.Enabled = true },
			wantErr: "tailscale.hostname",
		},
		{
			name:    "zero bus capacity",
			mutate:  func(c *Config) { c.Events.BusCapacity = 0 },
			wantErr: "events.bus_capacity",
		},
		{
			name:    "zero keepalive",
			mutate:  func(c *Config) { c.Events.KeepAliveInterval = 0 },
			wantErr: "events.keepalive_interval",
		},
		{
			name:    "unknown event format",
			mutate:  func(c *Config) { c.Events.Format = "xml" },
			wantErr: "events.format",
		},
		{
			name:    "unknown media backend",
			mutate:  func(c *Config) { c.Media.Backend = "gcs" },
			wantErr: "media.backend",
		},
		{
			name:    "s3 without bucket",
			mutate:  func(c *Config) { c.Media.Backend = "s3" },
			wantErr: "media.s3.bucket",
		},
		{
			name:    "unknown log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "logging.format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			require.NoError(t, parseDurations(cfg))
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
