// ABOUTME: Configuration loading and parsing for ava-gateway
// ABOUTME: Supports YAML or TOML files with env var expansion, env overrides, and duration parsing

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config represents the complete ava-gateway configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	TLS       TLSConfig       `yaml:"tls" toml:"tls"`
	Tailscale TailscaleConfig `yaml:"tailscale" toml:"tailscale"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Device    DeviceConfig    `yaml:"device" toml:"device"`
	Events    EventsConfig    `yaml:"events" toml:"events"`
	Media     MediaConfig     `yaml:"media" toml:"media"`
	OpenAI    OpenAIConfig    `yaml:"openai" toml:"openai"`
	Assistant AssistantConfig `yaml:"assistant" toml:"assistant"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
}

// ServerConfig holds the HTTP listener configuration
type ServerConfig struct {
	HTTPAddr       string `yaml:"http_addr" toml:"http_addr"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes" toml:"max_upload_bytes"`
}

// TLSConfig serves HTTPS from cert.pem and key.pem in CertDir
type TLSConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	CertDir string `yaml:"cert_dir" toml:"cert_dir"`
}

// CertFile returns the path of the certificate.
func (t TLSConfig) CertFile() string { return filepath.Join(t.CertDir, "cert.pem") }

// KeyFile returns the path of the private key.
func (t TLSConfig) KeyFile() string { return filepath.Join(t.CertDir, "key.pem") }

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
	HTTPS     bool   `yaml:"https" toml:"https"`   // Serve HTTPS on :443 with tailnet certificates
	Funnel    bool   `yaml:"funnel" toml:"funnel"` // Enable public Funnel (implies HTTPS)
}

// DatabaseConfig holds the invocation ledger location. An empty path disables it.
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// DeviceConfig holds device cookie configuration
type DeviceConfig struct {
	CookieName   string        `yaml:"cookie_name" toml:"cookie_name"`
	Secret       string        `yaml:"secret" toml:"secret"`
	CookieMaxAge time.Duration `yaml:"-" toml:"-"`

	CookieMaxAgeRaw string `yaml:"cookie_max_age" toml:"cookie_max_age"`
}

// EventsConfig holds event bus and stream configuration
type EventsConfig struct {
	BusCapacity       int           `yaml:"bus_capacity" toml:"bus_capacity"`
	Shards            int           `yaml:"shards" toml:"shards"`
	MaxDevices        int           `yaml:"max_devices" toml:"max_devices"`
	Format            string        `yaml:"format" toml:"format"` // html or json
	IdleTimeout       time.Duration `yaml:"-" toml:"-"`
	KeepAliveInterval time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	IdleTimeoutRaw       string `yaml:"idle_timeout" toml:"idle_timeout"`
	KeepAliveIntervalRaw string `yaml:"keepalive_interval" toml:"keepalive_interval"`
}

// MediaConfig selects where generated artifacts are stored
type MediaConfig struct {
	Backend string   `yaml:"backend" toml:"backend"` // local or s3
	Dir     string   `yaml:"dir" toml:"dir"`
	S3      S3Config `yaml:"s3" toml:"s3"`
}

// S3Config holds the S3 artifact bucket configuration
type S3Config struct {
	Bucket          string `yaml:"bucket" toml:"bucket"`
	Prefix          string `yaml:"prefix" toml:"prefix"`
	Region          string `yaml:"region" toml:"region"`
	Endpoint        string `yaml:"endpoint" toml:"endpoint"`
	PathStyle       bool   `yaml:"path_style" toml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id" toml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key" toml:"secret_access_key"`
}

// OpenAIConfig holds the AI service endpoint and models
type OpenAIConfig struct {
	APIKey             string        `yaml:"api_key" toml:"api_key"`
	BaseURL            string        `yaml:"base_url" toml:"base_url"`
	TranscriptionModel string        `yaml:"transcription_model" toml:"transcription_model"`
	ChatModel          string        `yaml:"chat_model" toml:"chat_model"`
	SpeechModel        string        `yaml:"speech_model" toml:"speech_model"`
	Voice              string        `yaml:"voice" toml:"voice"`
	ImageModel         string        `yaml:"image_model" toml:"image_model"`
	ImageSize          string        `yaml:"image_size" toml:"image_size"`
	MaxRetries         int           `yaml:"max_retries" toml:"max_retries"`
	RequestTimeout     time.Duration `yaml:"-" toml:"-"`

	RequestTimeoutRaw string `yaml:"request_timeout" toml:"request_timeout"`
}

// AssistantConfig tunes invocations
type AssistantConfig struct {
	Locale            string        `yaml:"locale" toml:"locale"`
	HighlightStyle    string        `yaml:"highlight_style" toml:"highlight_style"`
	InvocationTimeout time.Duration `yaml:"-" toml:"-"`

	InvocationTimeoutRaw string `yaml:"invocation_timeout" toml:"invocation_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"` // text, json, or otel
}

// envOverrides are read from the process environment after the file is parsed.
type envOverrides struct {
	HTTPAddr     string `env:"AVA_HTTP_ADDR"`
	MediaDir     string `env:"AVA_MEDIA_DIR"`
	DeviceSecret string `env:"AVA_DEVICE_SECRET"`
	LogLevel     string `env:"AVA_LOG_LEVEL"`
	DBPath       string `env:"AVA_DB_PATH"`
	APIKey       string `env:"AVA_OPENAI_API_KEY"`
	OpenAIKey    string `env:"OPENAI_API_KEY"`
	TSAuthKey    string `env:"TS_AUTHKEY"`
}

// Defaults returns a configuration that runs locally with only an API key added.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr:       ":8080",
			MaxUploadBytes: 25 << 20,
		},
		TLS: TLSConfig{CertDir: "./.certs"},
		Device: DeviceConfig{
			CookieName:      "device_id",
			CookieMaxAgeRaw: "8760h",
		},
		Events: EventsConfig{
			BusCapacity:          128,
			Shards:               16,
			MaxDevices:           10000,
			Format:               "html",
			IdleTimeoutRaw:       "30m",
			KeepAliveIntervalRaw: "1s",
		},
		Media: MediaConfig{
			Backend: "local",
			Dir:     "/tmp/ava-bot",
		},
		OpenAI: OpenAIConfig{
			TranscriptionModel: "whisper-1",
			ChatModel:          "gpt-4o",
			SpeechModel:        "tts-1",
			Voice:              "alloy",
			ImageModel:         "dall-e-3",
			ImageSize:          "1024x1024",
			MaxRetries:         2,
			RequestTimeoutRaw:  "60s",
		},
		Assistant: AssistantConfig{
			Locale:               "en",
			HighlightStyle:       "monokai",
			InvocationTimeoutRaw: "3m",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are parsed as TOML, anything else as YAML. Values the
// file leaves out keep their Defaults. Environment variables in the format
// ${VAR_NAME} are expanded, then AVA_* overrides are applied.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	cfg := Defaults()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	return finish(cfg)
}

// LoadOrDefault loads path, falling back to Defaults when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return finish(Defaults())
	}
	return cfg, err
}

func finish(cfg *Config) (*Config, error) {
	if err := applyEnv(cfg); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func applyEnv(cfg *Config) error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return err
	}

	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.Server.HTTPAddr, o.HTTPAddr)
	set(&cfg.Media.Dir, o.MediaDir)
	set(&cfg.Device.Secret, o.DeviceSecret)
	set(&cfg.Logging.Level, o.LogLevel)
	set(&cfg.Database.Path, o.DBPath)
	set(&cfg.Tailscale.AuthKey, o.TSAuthKey)
	if cfg.OpenAI.APIKey == "" {
		set(&cfg.OpenAI.APIKey, o.OpenAIKey)
	}
	set(&cfg.OpenAI.APIKey, o.APIKey)
	return nil
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	// Server address is required unless Tailscale is enabled
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	// Tailscale requires a hostname
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if c.TLS.Enabled && c.TLS.CertDir == "" {
		return fmt.Errorf("tls.cert_dir is required when tls is enabled")
	}

	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("server.max_upload_bytes must be positive")
	}

	if c.Events.BusCapacity <= 0 {
		return fmt.Errorf("events.bus_capacity must be positive")
	}

	if c.Events.KeepAliveInterval <= 0 {
		return fmt.Errorf("events.keepalive_interval must be positive")
	}

	switch c.Events.Format {
	case "html", "json":
	default:
		return fmt.Errorf("events.format must be html or json, got %q", c.Events.Format)
	}

	switch c.Media.Backend {
	case "local":
		if c.Media.Dir == "" {
			return fmt.Errorf("media.dir is required for the local backend")
		}
	case "s3":
		if c.Media.S3.Bucket == "" {
			return fmt.Errorf("media.s3.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("media.backend must be local or s3, got %q", c.Media.Backend)
	}

	switch c.Logging.Format {
	case "text", "json", "otel":
	default:
		return fmt.Errorf("logging.format must be text, json, or otel, got %q", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"device.cookie_max_age", cfg.Device.CookieMaxAgeRaw, &cfg.Device.CookieMaxAge},
		{"events.idle_timeout", cfg.Events.IdleTimeoutRaw, &cfg.Events.IdleTimeout},
		{"events.keepalive_interval", cfg.Events.KeepAliveIntervalRaw, &cfg.Events.KeepAliveInterval},
		{"openai.request_timeout", cfg.OpenAI.RequestTimeoutRaw, &cfg.OpenAI.RequestTimeout},
		{"assistant.invocation_timeout", cfg.Assistant.InvocationTimeoutRaw, &cfg.Assistant.InvocationTimeout},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
