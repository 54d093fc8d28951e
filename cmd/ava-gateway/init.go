// ABOUTME: Interactive "init" command that writes a gateway config file
// ABOUTME: Prompts for listener, media, ledger, tailscale, and logging settings

package main

import (
	"bufio"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a new config file interactively",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runInit(cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

// initAnswers are the values collected by runInit.
type initAnswers struct {
	HTTPAddr     string
	MediaBackend string
	MediaDir     string
	S3Bucket     string
	S3Region     string
	DBPath       string
	DeviceSecret string
	Locale       string
	Tailscale    bool
	TSHostname   string
	TSAuthKey    string
	TSEphemeral  bool
	TSFunnel     bool
	LogLevel     string
	LogFormat    string
}

func yes(s string) bool {
	s = strings.ToLower(s)
	return s == "yes" || s == "y"
}

// newDeviceSecret returns a random secret for signing device cookies.
func newDeviceSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating device secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func runInit(in io.Reader, out io.Writer) error {
	reader := bufio.NewReader(in)

	fmt.Fprintln(out, "ava-gateway configuration setup")
	fmt.Fprintln(out, "===============================")
	fmt.Fprintln(out)

	// Default paths
	defaultConfigPath := getConfigPath()
	defaultDataPath := getDataPath()

	// Output filename
	outputFile := prompt(reader, out, "Config file path", defaultConfigPath)

	// Check if file exists
	if _, err := os.Stat(outputFile); err == nil {
		if !yes(prompt(reader, out, "File exists. Overwrite?", "no")) {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	var a initAnswers

	fmt.Fprintln(out, "\n--- Server Configuration ---")
	a.HTTPAddr = prompt(reader, out, "HTTP address", "localhost:8080")
	a.Locale = prompt(reader, out, "Transcription language hint", "en")

	fmt.Fprintln(out, "\n--- Media Configuration ---")
	a.MediaBackend = prompt(reader, out, "Artifact backend (local/s3)", "local")
	if a.MediaBackend == "s3" {
		a.S3Bucket = prompt(reader, out, "S3 bucket", "")
		a.S3Region = prompt(reader, out, "S3 region", "us-east-1")
	} else {
		a.MediaDir = prompt(reader, out, "Artifact directory", filepath.Join(defaultDataPath, "media"))
	}

	fmt.Fprintln(out, "\n--- Ledger Configuration ---")
	a.DBPath = prompt(reader, out, "SQLite database path (empty to disable)", filepath.Join(defaultDataPath, "gateway.db"))

	fmt.Fprintln(out, "\n--- Device Identity ---")
	if yes(prompt(reader, out, "Sign device cookies?", "yes")) {
		secret, err := newDeviceSecret()
		if err != nil {
			return err
		}
		a.DeviceSecret = secret
	}

	fmt.Fprintln(out, "\n--- Tailscale Configuration ---")
	a.Tailscale = yes(prompt(reader, out, "Enable Tailscale?", "no"))
	if a.Tailscale {
		a.TSHostname = prompt(reader, out, "Tailscale hostname", "ava")
		a.TSAuthKey = prompt(reader, out, "Tailscale auth key (leave empty to use TS_AUTHKEY)", "")
		a.TSEphemeral = yes(prompt(reader, out, "Ephemeral node?", "no"))
		a.TSFunnel = yes(prompt(reader, out, "Enable Funnel (public HTTPS)?", "no"))
	}

	fmt.Fprintln(out, "\n--- Logging Configuration ---")
	a.LogLevel = prompt(reader, out, "Log level (debug/info/warn/error)", "info")
	a.LogFormat = prompt(reader, out, "Log format (text/json/otel)", "text")

	// Ensure config directory exists
	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// The file can hold the device secret and auth key
	if err := os.WriteFile(outputFile, []byte(renderConfig(a)), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Fprintf(out, "\nConfig written to %s\n", outputFile)
	fmt.Fprintln(out, "\nSet your OpenAI key and start the server:")
	fmt.Fprintln(out, "  export AVA_OPENAI_API_KEY=sk-...")
	fmt.Fprintln(out, "  ava-gateway serve")

	return nil
}

// renderConfig writes the answers as a YAML config file.
func renderConfig(a initAnswers) string {
	var cfg strings.Builder
	cfg.WriteString("# ava-gateway configuration\n")
	cfg.WriteString("# Generated by ava-gateway init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: %q\n", a.HTTPAddr))
	cfg.WriteString("\n")

	cfg.WriteString("media:\n")
	cfg.WriteString(fmt.Sprintf("  backend: %q\n", a.MediaBackend))
	if a.MediaBackend == "s3" {
		cfg.WriteString("  s3:\n")
		cfg.WriteString(fmt.Sprintf("    bucket: %q\n", a.S3Bucket))
		cfg.WriteString(fmt.Sprintf("    region: %q\n", a.S3Region))
	} else {
		cfg.WriteString(fmt.Sprintf("  dir: %q\n", a.MediaDir))
	}
	cfg.WriteString("\n")

	cfg.WriteString("database:\n")
	cfg.WriteString(fmt.Sprintf("  path: %q\n", a.DBPath))
	cfg.WriteString("\n")

	if a.DeviceSecret != "" {
		cfg.WriteString("device:\n")
		cfg.WriteString(fmt.Sprintf("  secret: %q\n", a.DeviceSecret))
		cfg.WriteString("\n")
	}

	cfg.WriteString("openai:\n")
	cfg.WriteString("  api_key: \"${AVA_OPENAI_API_KEY}\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("assistant:\n")
	cfg.WriteString(fmt.Sprintf("  locale: %q\n", a.Locale))
	cfg.WriteString("\n")

	cfg.WriteString("tailscale:\n")
	cfg.WriteString(fmt.Sprintf("  enabled: %t\n", a.Tailscale))
	if a.Tailscale {
		cfg.WriteString(fmt.Sprintf("  hostname: %q\n", a.TSHostname))
		if a.TSAuthKey != "" {
			cfg.WriteString(fmt.Sprintf("  auth_key: %q\n", a.TSAuthKey))
		}
		cfg.WriteString(fmt.Sprintf("  ephemeral: %t\n", a.TSEphemeral))
		cfg.WriteString(fmt.Sprintf("  funnel: %t\n", a.TSFunnel))
	}
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: %q\n", a.LogLevel))
	cfg.WriteString(fmt.Sprintf("  format: %q\n", a.LogFormat))

	return cfg.String()
}

func prompt(reader *bufio.Reader, out io.Writer, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Fprintf(out, "%s [%s]: ", question, defaultVal)
	} else {
		fmt.Fprintf(out, "%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		// On EOF or error, return default
		fmt.Fprintln(out)
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
