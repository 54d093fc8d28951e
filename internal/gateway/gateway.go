// ABOUTME: Gateway orchestrator that wires the pipeline, event buses, and HTTP server
// ABOUTME: Manages listeners (TCP, TLS, tailscale), health endpoints, and shutdown order

package gateway

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/2389/ava-gateway/internal/ai"
	"github.com/2389/ava-gateway/internal/assets"
	"github.com/2389/ava-gateway/internal/auth"
	"github.com/2389/ava-gateway/internal/bus"
	"github.com/2389/ava-gateway/internal/config"
	"github.com/2389/ava-gateway/internal/events"
	"github.com/2389/ava-gateway/internal/markdown"
	"github.com/2389/ava-gateway/internal/media"
	"github.com/2389/ava-gateway/internal/pipeline"
	"github.com/2389/ava-gateway/internal/store"
)

// runner executes one assistant invocation. *pipeline.Orchestrator implements it.
type runner interface {
	Run(ctx context.Context, req pipeline.Request) pipeline.Outcome
}

// Gateway orchestrates the ava-gateway server components.
type Gateway struct {
	config      *config.Config
	registry    *bus.Registry[events.Event]
	devices     *auth.DeviceIdentity
	renderer    events.Renderer
	media       *media.Store
	markdown    *markdown.Renderer
	runner      runner
	httpServer  *http.Server
	tsnetServer *tsnet.Server
	logger      *slog.Logger

	// store is nil when the invocation ledger is disabled
	store store.Store

	shutdownOnce sync.Once
	shutdownErr  error
}

// initStore opens the invocation ledger, or returns nil when database.path is empty.
func initStore(cfg *config.Config) (store.Store, error) {
	if cfg.Database.Path == "" {
		return nil, nil
	}
	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// initMedia builds the artifact store for the configured backend.
func initMedia(cfg config.MediaConfig, logger *slog.Logger) (*media.Store, error) {
	switch cfg.Backend {
	case "", "local":
		return media.NewStore(media.NewLocalStore(cfg.Dir), logger), nil
	case "s3":
		client := media.NewS3Client(media.S3Options{
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			PathStyle:       cfg.S3.PathStyle,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		})
		return media.NewStore(media.NewS3Store(client, cfg.S3.Bucket, cfg.S3.Prefix), logger), nil
	default:
		return nil, fmt.Errorf("unknown media backend %q", cfg.Backend)
	}
}

// secureCookies reports whether the page is only ever served over HTTPS.
func secureCookies(cfg *config.Config) bool {
	if cfg.Tailscale.Enabled {
		return cfg.Tailscale.HTTPS || cfg.Tailscale.Funnel
	}
	return cfg.TLS.Enabled
}

// New creates a new Gateway instance with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	renderer, err := events.NewRenderer(cfg.Events.Format)
	if err != nil {
		return nil, err
	}

	mediaStore, err := initMedia(cfg.Media, logger.With("component", "media"))
	if err != nil {
		return nil, err
	}

	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	md := markdown.New(cfg.Assistant.HighlightStyle)

	aiClient := ai.NewClient(ai.Config{
		APIKey:             cfg.OpenAI.APIKey,
		BaseURL:            cfg.OpenAI.BaseURL,
		TranscriptionModel: cfg.OpenAI.TranscriptionModel,
		ChatModel:          cfg.OpenAI.ChatModel,
		SpeechModel:        cfg.OpenAI.SpeechModel,
		Voice:              cfg.OpenAI.Voice,
		ImageModel:         cfg.OpenAI.ImageModel,
		ImageSize:          cfg.OpenAI.ImageSize,
		RequestTimeout:     cfg.OpenAI.RequestTimeout,
		MaxRetries:         cfg.OpenAI.MaxRetries,
	}, logger.With("component", "ai"))

	deps := pipeline.Deps{
		AI:        aiClient,
		Artifacts: mediaStore,
		Markdown:  md,
		Logger:    logger,
	}
	if s != nil {
		deps.Recorder = s
	}
	orchestrator, err := pipeline.New(pipeline.Config{
		Locale:            cfg.Assistant.Locale,
		InvocationTimeout: cfg.Assistant.InvocationTimeout,
	}, deps)
	if err != nil {
		if s != nil {
			_ = s.Close()
		}
		return nil, err
	}

	registry := bus.NewRegistry[events.Event](bus.RegistryConfig{
		Shards:      cfg.Events.Shards,
		MaxDevices:  cfg.Events.MaxDevices,
		IdleTimeout: cfg.Events.IdleTimeout,
		BusCapacity: cfg.Events.BusCapacity,
		Logger:      logger.With("component", "registry"),
	})

	gw := &Gateway{
		config:   cfg,
		registry: registry,
		devices: auth.NewDeviceIdentity(auth.DeviceConfig{
			CookieName: cfg.Device.CookieName,
			MaxAge:     cfg.Device.CookieMaxAge,
			Secret:     []byte(cfg.Device.Secret),
			Secure:     secureCookies(cfg),
			Logger:     logger.With("component", "device"),
		}),
		renderer: renderer,
		media:    mediaStore,
		markdown: md,
		runner:   orchestrator,
		store:    s,
		logger:   logger.With("component", "gateway"),
	}

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           otelhttp.NewHandler(gw.routes(), "ava-gateway"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// routes builds the HTTP mux.
func (g *Gateway) routes() *http.ServeMux {
	mux := http.NewServeMux()

	// Health endpoints - no device required
	mux.HandleFunc("/health", g.handleHealth)
	mux.HandleFunc("/health/ready", g.handleReady)

	// Page and event streams mint a device cookie on first visit
	mux.Handle("/", g.devices.EnsureDevice(http.HandlerFunc(g.handleIndex)))
	mux.Handle("/events", g.devices.EnsureDevice(http.HandlerFunc(g.handleEvents)))
	mux.Handle("/events/ws", g.devices.EnsureDevice(http.HandlerFunc(g.handleEventsWS)))

	// Uploads must come from a known device
	mux.Handle("/assistant", g.devices.RequireDevice(http.HandlerFunc(g.handleAssistant)))
	mux.Handle("/api/stats/usage", g.devices.RequireDevice(http.HandlerFunc(g.handleUsageStats)))
	mux.Handle("/api/invocations", g.devices.RequireDevice(http.HandlerFunc(g.handleListInvocations)))

	mux.Handle(media.URLPrefix+"/", http.StripPrefix(media.URLPrefix, g.media.Handler()))
	mux.HandleFunc("/static/highlight.css", g.handleHighlightCSS)
	mux.Handle("/static/", http.StripPrefix("/static/", assets.FileServer()))

	return mux
}

// setupTCPListener creates the HTTP listener, wrapped in TLS when tls.enabled is set.
func (g *Gateway) setupTCPListener() (net.Listener, error) {
	g.logger.Info("starting gateway",
		"http_addr", g.config.Server.HTTPAddr,
		"tls", g.config.TLS.Enabled,
	)

	var tlsCfg *tls.Config
	if g.config.TLS.Enabled {
		cert, err := tls.LoadX509KeyPair(g.config.TLS.CertFile(), g.config.TLS.KeyFile())
		if err != nil {
			return nil, fmt.Errorf("loading TLS certificate from %s: %w", g.config.TLS.CertDir, err)
		}
		tlsCfg = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
	}

	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	if tlsCfg != nil {
		return tls.NewListener(ln, tlsCfg), nil
	}
	return ln, nil
}

// warnIgnoredAddresses logs a warning if local listener settings are configured but Tailscale is enabled.
func (g *Gateway) warnIgnoredAddresses() {
	if g.config.Server.HTTPAddr != "" || g.config.TLS.Enabled {
		g.logger.Warn("server.http_addr and tls are ignored when tailscale is enabled",
			"http_addr", g.config.Server.HTTPAddr,
			"tls", g.config.TLS.Enabled,
		)
	}
}

// setupListener creates the listener based on configuration (Tailscale or TCP).
func (g *Gateway) setupListener(ctx context.Context) (net.Listener, error) {
	if g.config.Tailscale.Enabled {
		g.warnIgnoredAddresses()
		return g.setupTailscaleListener(ctx)
	}
	return g.setupTCPListener()
}

// startServer starts the HTTP server in a goroutine, returning its error channel.
func (g *Gateway) startServer(ln net.Listener) chan error {
	errCh := make(chan error, 1)

	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	return errCh
}

// waitForShutdownSignal waits for context cancellation or server error.
func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		return err
	}
}

// Run starts the HTTP server and blocks until the context is canceled.
// Returns nil on graceful shutdown (context canceled), or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := g.setupListener(ctx)
	if err != nil {
		return err
	}

	errCh := g.startServer(ln)
	serverErr := g.waitForShutdownSignal(ctx, errCh)

	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "ava-gateway", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set auth_key in config or TS_AUTHKEY environment variable (get one at https://login.tailscale.com/admin/settings/keys)")
	}
	return authKey, nil
}

// setupTailscaleListener creates a tsnet server and returns the HTTP listener on the tailnet.
func (g *Gateway) setupTailscaleListener(ctx context.Context) (net.Listener, error) {
	tsCfg := g.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, err
	}

	g.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	g.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := g.tsnetServer.Up(ctx)
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("starting tailscale: %w", err)
	}

	g.logTailscaleStatus(tsCfg.Hostname, status)

	return g.createTailscaleHTTPListener(tsCfg)
}

// logTailscaleStatus logs info about the tailscale node status.
func (g *Gateway) logTailscaleStatus(hostname string, status *ipnstate.Status) {
	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		g.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = status.Self.DNSName
	}
	g.logger.Info("tailscale node ready", "hostname", hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)
}

// createTailscaleHTTPListener creates the appropriate HTTP listener based on config.
func (g *Gateway) createTailscaleHTTPListener(tsCfg config.TailscaleConfig) (net.Listener, error) {
	switch {
	case tsCfg.Funnel:
		g.logger.Info("enabling tailscale funnel (public HTTPS) on :443")
		ln, err := g.tsnetServer.ListenFunnel("tcp", ":443")
		if err != nil {
			_ = g.tsnetServer.Close()
			return nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
		}
		return ln, nil
	case tsCfg.HTTPS:
		return g.createTailscaleTLSListener()
	default:
		ln, err := g.tsnetServer.Listen("tcp", ":80")
		if err != nil {
			_ = g.tsnetServer.Close()
			return nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
		}
		return ln, nil
	}
}

// createTailscaleTLSListener creates a TLS listener using Tailscale's auto-provisioned certs.
func (g *Gateway) createTailscaleTLSListener() (net.Listener, error) {
	g.logger.Info("enabling HTTPS with Tailscale certs on :443")
	ln, err := g.tsnetServer.Listen("tcp", ":443")
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("listening on tailscale HTTPS port: %w", err)
	}
	lc, err := g.tsnetServer.LocalClient()
	if err != nil {
		_ = ln.Close()
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("getting tailscale local client: %w", err)
	}
	return tls.NewListener(ln, &tls.Config{
		GetCertificate: lc.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}), nil
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops the gateway and releases resources. Safe to call more than once.
//
// The registry closes first: every open event stream then sees its buses
// close and returns, so the HTTP shutdown does not wait on idle viewers.
// Invocations still running publish into closed buses, which is a no-op.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.shutdownOnce.Do(func() {
		g.logger.Info("shutting down gateway")

		g.registry.Close()

		var errs []error
		errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))

		if g.tsnetServer != nil {
			errs = appendCloseError(errs, "tailscale shutdown", g.tsnetServer.Close())
		}
		if g.store != nil {
			errs = appendCloseError(errs, "store close", g.store.Close())
		}

		if len(errs) > 0 {
			g.shutdownErr = fmt.Errorf("shutdown errors: %v", errs)
		}
	})
	return g.shutdownErr
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK while the event registry accepts subscribers.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	if g.registry.Closed() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("shutting down"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d devices)", g.registry.Devices())
}
