// Package config handles configuration loading for ava-gateway.
//
// # Overview
//
// Configuration is loaded from a YAML or TOML file (chosen by the .toml
// extension) layered over Defaults, with environment variable expansion and
// a small set of environment overrides. Every field has a working default;
// a missing config file at the default location runs on Defaults alone.
//
// # Configuration File
//
// Locations (in order):
//
//  1. The --config flag
//  2. Path from AVA_CONFIG environment variable
//  3. $XDG_CONFIG_HOME/ava/gateway.yaml (~/.config/ava/gateway.yaml)
//
// # Environment Variables
//
// Configuration values can reference environment variables:
//
//	openai:
//	  api_key: "${OPENAI_API_KEY}"
//
// After parsing, these override the file:
//
//	AVA_HTTP_ADDR, AVA_MEDIA_DIR, AVA_DEVICE_SECRET, AVA_LOG_LEVEL,
//	AVA_DB_PATH, AVA_OPENAI_API_KEY (or OPENAI_API_KEY), TS_AUTHKEY
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	events:
//	  keepalive_interval: "1s"
//	  idle_timeout: "30m"
//	assistant:
//	  invocation_timeout: "3m"
//
// # Configuration Sections
//
//	server:
//	  http_addr: ":8080"
//	  max_upload_bytes: 26214400
//	tls:
//	  enabled: false
//	  cert_dir: "./.certs"        # cert.pem and key.pem
//	tailscale:
//	  enabled: false
//	  hostname: "ava"
//	  https: true
//	  funnel: false
//	database:
//	  path: ""                    # empty disables the invocation ledger
//	device:
//	  cookie_name: "device_id"
//	  secret: ""                  # set to sign device cookies
//	events:
//	  bus_capacity: 128
//	  format: "html"              # html or json
//	media:
//	  backend: "local"            # local or s3
//	  dir: "/tmp/ava-bot"
//	openai:
//	  chat_model: "gpt-4o"
//	  voice: "alloy"
//	assistant:
//	  locale: "en"
//	  highlight_style: "monokai"
//	logging:
//	  level: "info"               # debug, info, warn, error
//	  format: "text"              # text, json, otel
//
// # Validation
//
// Load() rejects the first invalid field it finds: a missing address without
// Tailscale, a Tailscale setup without hostname, non-positive bus capacity or
// keep-alive, an unknown media backend, an s3 backend without bucket, and
// unknown event or log formats.
package config
