package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alxayo/streamhub/internal/config"
	"github.com/alxayo/streamhub/internal/httpflv"
	"github.com/alxayo/streamhub/internal/hub"
	"github.com/alxayo/streamhub/internal/logger"
	"github.com/alxayo/streamhub/internal/rtmp/relay"
	srv "github.com/alxayo/streamhub/internal/rtmp/server"
	"github.com/alxayo/streamhub/internal/webrtc"
)

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		// flag package already printed usage/error
		os.Exit(2)
	}
	if cfg.showVersion {
		fmt.Println(version)
		return
	}

	// Initialize global logger and set level based on flag
	logger.Init()
	if err := logger.SetLevel(cfg.logLevel); err != nil {
		fmt.Printf("Warning: invalid log level %q, using default\n", cfg.logLevel)
	}
	log := logger.Logger().With("component", "cli")

	if cfg.configFile != "" {
		applyConfigFile(cfg, log)
	}

	serverCfg := srv.Config{
		ListenAddr:        cfg.listenAddr,
		ChunkSize:         uint32(cfg.chunkSize),
		WindowAckSize:     2_500_000, // matches control burst constant
		LogLevel:          cfg.logLevel,
		RelayDestinations: cfg.relayDestinations,
		RelayPullSources:  toRelayPullSources(cfg.relayPullSources),
		HookScripts:       cfg.hookScripts,
		HookWebhooks:      cfg.hookWebhooks,
		HookStdioFormat:   cfg.hookStdioFormat,
		HookTimeout:       cfg.hookTimeout,
		HookConcurrency:   cfg.hookConcurrency,
	}
	server := srv.New(serverCfg)

	if cfg.configFile != "" {
		watchConfigFile(cfg.configFile, log)
	}

	if cfg.metricsAddr != "" {
		startMetricsServer(cfg.metricsAddr, server.Metrics(), log)
	}

	if cfg.httpFlvAddr != "" {
		startHTTPFLVServer(cfg.httpFlvAddr, server.Hub(), log)
	}

	if cfg.webrtcAddr != "" {
		startWebRTCServer(cfg.webrtcAddr, server.Hub(), log)
	}

	if err := server.Start(); err != nil {
		log.Error("failed to start server", "error", err)
		os.Exit(1)
	}

	log.Info("server started", "addr", server.Addr().String(), "version", version)

	// Set up signal handling for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Perform shutdown in a separate goroutine in case it blocks; we just wait or force exit on timeout.
	done := make(chan struct{})
	go func() {
		if err := server.Stop(); err != nil {
			log.Error("server stop error", "error", err)
		}
		close(done)
	}()

	select {
	case <-done:
		log.Info("server stopped cleanly")
	case <-shutdownCtx.Done():
		log.Error("forced exit after timeout")
	}
}

// toRelayPullSources adapts the config file's YAML-shaped pull sources
// into the relay package's type, keeping internal/config free of any
// dependency on the RTMP relay implementation.
func toRelayPullSources(sources []config.PullSource) []relay.PullSource {
	out := make([]relay.PullSource, len(sources))
	for i, s := range sources {
		out[i] = relay.PullSource{App: s.App, Name: s.Name, URL: s.URL}
	}
	return out
}

// applyConfigFile lets a YAML config file supply values a caller didn't
// already set on the command line; flags always win.
func applyConfigFile(cfg *cliConfig, log *slog.Logger) {
	f, err := config.Load(cfg.configFile)
	if err != nil {
		log.Error("config load failed, continuing with flags only", "error", err)
		return
	}
	if cfg.listenAddr == ":1935" && f.ListenAddr != "" {
		cfg.listenAddr = f.ListenAddr
	}
	if cfg.metricsAddr == "" {
		cfg.metricsAddr = f.MetricsAddr
	}
	if len(cfg.relayDestinations) == 0 {
		cfg.relayDestinations = f.RelayDestinations
	}
	if len(cfg.relayPullSources) == 0 {
		cfg.relayPullSources = f.RelayPullSources
	}
	if len(cfg.hookScripts) == 0 {
		cfg.hookScripts = f.Hooks.Scripts
	}
	if len(cfg.hookWebhooks) == 0 {
		cfg.hookWebhooks = f.Hooks.Webhooks
	}
}

// watchConfigFile hot-reloads the log level from an edited config file.
// Relay destinations and hooks are wired once at startup into the
// DestinationManager/HookManager; reconfiguring those live is out of
// scope here, matching the Hub's own bind-at-publish-time lifecycle.
func watchConfigFile(path string, log *slog.Logger) {
	_, err := config.Watch(path, log, func(f *config.File) {
		if f.LogLevel != "" {
			if err := logger.SetLevel(f.LogLevel); err != nil {
				log.Error("config reload: invalid log level", "level", f.LogLevel, "error", err)
			}
		}
	})
	if err != nil {
		log.Error("config watch failed", "path", path, "error", err)
	}
}

// startMetricsServer registers the Hub's collector with a dedicated
// registry and serves it on /metrics. Separate from the default
// registry so a test process embedding the Server never collides with
// another instance's collectors.
func startMetricsServer(addr string, metrics *hub.Metrics, log *slog.Logger) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(metrics)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	go func() {
		log.Info("metrics server listening", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Error("metrics server stopped", "error", err)
		}
	}()
}

// startHTTPFLVServer serves every published RTMP stream over HTTP-FLV at
// /<app>/<name>.flv, reusing the Hub the RTMP front end already populates.
func startHTTPFLVServer(addr string, h *hub.Hub, log *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/", httpflv.Handler(h, log))

	go func() {
		log.Info("http-flv server listening", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Error("http-flv server stopped", "error", err)
		}
	}()
}

// startWebRTCServer serves WHIP publish and WHEP subscribe over HTTP
// against the same Hub the RTMP front end populates.
func startWebRTCServer(addr string, h *hub.Hub, log *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/whip/", webrtc.NewWhipHandler(h, log))
	mux.Handle("/whep/", webrtc.NewWhepHandler(h, log))

	go func() {
		log.Info("webrtc server listening", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Error("webrtc server stopped", "error", err)
		}
	}()
}
