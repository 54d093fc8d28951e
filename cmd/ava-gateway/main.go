// ABOUTME: Entry point for ava-gateway, the voice assistant server
// ABOUTME: Defines the cobra command tree: serve, init, health, ready, and version

package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/ava-gateway/internal/config"
	"github.com/2389/ava-gateway/internal/gateway"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                                           _
   __ ___   ____ _        __ _  __ _| |_ _____      ____ _ _   _
  / _' \ \ / / _' |_____ / _' |/ _' | __/ _ \ \ /\ / / _' | | | |
 | (_| |\ V / (_| |_____| (_| | (_| | ||  __/\ V  V / (_| | |_| |
  \__,_| \_/ \__,_|      \__, |\__,_|\__\___| \_/\_/ \__,_|\__, |
                         |___/                             |___/
`

var configFlag string

var rootCmd = &cobra.Command{
	Use:           "ava-gateway",
	Short:         "Voice assistant gateway",
	Long:          "ava-gateway accepts push-to-talk audio, runs it through transcription, tool selection, and generation, and streams the results to every viewer of the device.",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway server",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check gateway liveness",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return probe(cmd.Context(), "/health", "healthy")
	},
}

var readyCmd = &cobra.Command{
	Use:   "ready",
	Short: "Check gateway readiness",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return probe(cmd.Context(), "/health/ready", "")
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "config file (default: $AVA_CONFIG or $XDG_CONFIG_HOME/ava/gateway.yaml)")
	rootCmd.AddCommand(serveCmd, initCmd, healthCmd, readyCmd, versionCmd)
}

// getConfigPath returns the path to the gateway config file.
// Priority: --config flag > AVA_CONFIG env var > XDG_CONFIG_HOME/ava/gateway.yaml > ~/.config/ava/gateway.yaml
func getConfigPath() string {
	if configFlag != "" {
		return configFlag
	}
	if envPath := os.Getenv("AVA_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "ava", "gateway.yaml")
}

// getDataPath returns the path to the ava data directory.
// Priority: XDG_DATA_HOME/ava > ~/.local/share/ava
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "ava")
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	// A missing config file means defaults plus environment overrides
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	// Startup info
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	if !cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		scheme := "http"
		if cfg.TLS.Enabled {
			scheme = "https"
		}
		fmt.Printf("HTTP:      %s://%s\n", scheme, cfg.Server.HTTPAddr)
	}
	green.Print("    ▶ ")
	fmt.Printf("Media:     %s", cfg.Media.Backend)
	if cfg.Media.Backend == "s3" {
		gray.Printf(" (s3://%s/%s)\n", cfg.Media.S3.Bucket, cfg.Media.S3.Prefix)
	} else {
		gray.Printf(" (%s)\n", cfg.Media.Dir)
	}
	green.Print("    ▶ ")
	fmt.Printf("Ledger:    ")
	if cfg.Database.Path != "" {
		fmt.Println(cfg.Database.Path)
	} else {
		gray.Println("disabled")
	}

	// Tailscale status
	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Funnel {
			yellow.Print(" [funnel]")
		}
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	}

	if cfg.OpenAI.APIKey == "" {
		yellow.Println("    ! OpenAI API key not set (AVA_OPENAI_API_KEY); invocations will fail")
	}

	fmt.Println()

	logger.Info("starting ava-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"events_format", cfg.Events.Format,
	)

	// Create and run gateway
	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(cmd.Context())
}

// probeURL builds the URL of a gateway endpoint from the configured address.
func probeURL(cfg *config.Config, path string) string {
	scheme := "http"
	if cfg.TLS.Enabled {
		scheme = "https"
	}
	addr := cfg.Server.HTTPAddr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return fmt.Sprintf("%s://%s%s", scheme, addr, path)
}

// probe GETs a health endpoint. It prints want on success, or the response body when want is empty.
func probe(ctx context.Context, path, want string) error {
	cfg, err := config.LoadOrDefault(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, probeURL(cfg, path), nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if want == "" {
		want = string(body)
	}
	fmt.Println(want)
	return nil
}
