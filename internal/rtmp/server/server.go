package server

// RTMP Server Listener (Task T051)
// --------------------------------
// Provides a minimal TCP listener + connection manager integrating the
// existing handshake + control burst + connection lifecycle implemented in
// the conn package; each accepted connection gets its command dispatcher
// from attachCommandHandling. This covers:
//   * Listen on configured address (default :1935)
//   * Accept loop spawning a goroutine per connection (via conn.Accept)
//   * Track active connections in a concurrent-safe map
//   * Graceful shutdown: stop accepting, close all connections, wait
//   * Configuration options (listen address, relay, hooks; chunk/window
//     sizes are defaulted but not applied to connections)
//   * Exposed methods for tests: Start, Stop, Addr, ConnectionCount

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/alxayo/streamhub/internal/hub"
	"github.com/alxayo/streamhub/internal/logger"
	iconn "github.com/alxayo/streamhub/internal/rtmp/conn"
	"github.com/alxayo/streamhub/internal/rtmp/client"
	"github.com/alxayo/streamhub/internal/rtmp/relay"
	"github.com/alxayo/streamhub/internal/rtmp/server/hooks"
)

// Config holds server configuration knobs. Future tasks may extend with
// validation / functional options. For now we keep a plain struct.
type Config struct {
	ListenAddr        string
	ChunkSize         uint32   // not applied: the control burst always advertises its own 4096
	WindowAckSize     uint32   // not applied: the control burst always advertises its own 2500000
	LogLevel          string
	RelayDestinations []string          // rtmp:// URLs every published stream is pushed to
	RelayPullSources  []relay.PullSource // app/name -> upstream URL to pull when nothing is live locally
	// Hook configuration (all optional for backward compatibility)
	HookScripts     []string // event_type=script_path pairs
	HookWebhooks    []string // event_type=webhook_url pairs
	HookStdioFormat string   // "json", "env", or "" (disabled)
	HookTimeout     string   // timeout duration
	HookConcurrency int      // max concurrent hook executions
}

// applyDefaults fills zero values with sensible defaults.
func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":1935"
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = 4096
	} // matches control burst constant
	if c.WindowAckSize == 0 {
		c.WindowAckSize = 2_500_000
	} // matches control burst
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Server encapsulates listener + active connection tracking. Stream
// lifetime and fan-out is delegated entirely to the Hub; the server's own
// job is limited to the TCP accept loop, RTMP handshake/dispatch wiring,
// and bridging Hub lifecycle signals out to the hook manager.
type Server struct {
	cfg         Config
	l           net.Listener
	log         *slog.Logger
	hub         *hub.Hub
	metrics     *hub.Metrics
	hookManager *hooks.HookManager
	pusher      *relay.Pusher
	puller      *relay.Puller

	mu          sync.RWMutex
	conns       map[string]*iconn.Connection
	acceptingWg sync.WaitGroup // waits for accept loop exit
	hookWg      sync.WaitGroup // waits for the hub->hooks bridge goroutine
	closing     bool
}

// New creates a new, unstarted Server instance.
func New(cfg Config) *Server {
	cfg.applyDefaults()

	log := logger.Logger().With("component", "rtmp_server")
	hookMgr := initializeHookManager(cfg, logger.Logger())
	metrics := hub.NewMetrics("streamhub", "hub")
	h := hub.New(log, metrics)

	s := &Server{
		cfg:         cfg,
		hub:         h,
		metrics:     metrics,
		conns:       make(map[string]*iconn.Connection),
		log:         log,
		hookManager: hookMgr,
		pusher:      newRelayPusher(cfg.RelayDestinations, h, log),
		puller:      newRelayPuller(cfg.RelayPullSources, h, log),
	}
	return s
}

// Metrics returns the Hub's prometheus.Collector so a caller can register
// it with its own registry (or the default one via promauto-style usage).
func (s *Server) Metrics() *hub.Metrics { return s.metrics }

// Hub exposes the Server's Hub so other front ends (HTTP-FLV, WebRTC) can
// subscribe to the same stream registry an RTMP publisher populates.
func (s *Server) Hub() *hub.Hub { return s.hub }

// newRelayPusher wires every configured relay destination URL to a
// DestinationManager backed by the real RTMP client, then lets a Pusher
// track Hub publish/unpublish lifecycle to push each stream downstream.
// Returns a Pusher whose Start/Close are safe no-ops when destURLs is
// empty, so callers don't need a nil check.
func newRelayPusher(destURLs []string, h *hub.Hub, log *slog.Logger) *relay.Pusher {
	if len(destURLs) == 0 {
		return relay.NewPusher(h, nil, log)
	}
	clientFactory := func(url string) (relay.RTMPClient, error) { return client.New(url) }
	mgr, err := relay.NewDestinationManager(destURLs, log, clientFactory)
	if err != nil {
		log.Error("relay destination manager init failed", "error", err)
		return relay.NewPusher(h, nil, log)
	}
	return relay.NewPusher(h, mgr, log)
}

// newRelayPuller wires every configured pull source to a real RTMP client
// factory and lets a Puller react to Hub subscribe-miss events by pulling
// that stream in and republishing it locally. Returns a Puller whose
// Start/Close are safe no-ops when sources is empty.
func newRelayPuller(sources []relay.PullSource, h *hub.Hub, log *slog.Logger) *relay.Puller {
	factory := func(url string) (relay.PullClient, error) { return client.New(url) }
	return relay.NewPuller(h, sources, factory, log)
}

// Start begins listening and launches the accept loop. It's safe to call
// only once; repeated calls return an error.
func (s *Server) Start() error {
	if s == nil {
		return errors.New("nil server")
	}
	s.mu.Lock()
	if s.l != nil {
		s.mu.Unlock()
		return errors.New("server already started")
	}
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("listen %s: %w", s.cfg.ListenAddr, err)
	}
	s.l = ln
	s.mu.Unlock()

	go s.hub.Run()
	s.hookWg.Add(1)
	go s.bridgeHubEventsToHooks()
	s.pusher.Start()
	s.puller.Start()

	s.log.Info("RTMP server listening", "addr", ln.Addr().String())
	s.acceptingWg.Add(1)
	go s.acceptLoop()
	return nil
}

// bridgeHubEventsToHooks translates Hub lifecycle broadcasts into hook
// events, so shell/webhook subscribers learn about streams without the
// Hub itself knowing hooks exist.
func (s *Server) bridgeHubEventsToHooks() {
	defer s.hookWg.Done()
	listener := s.hub.Subscribe()
	defer s.hub.Unsubscribe(listener)

	for ev := range listener.Events() {
		var eventType hooks.EventType
		switch ev.Kind {
		case hub.BroadcastPublish:
			eventType = hooks.EventPublishStart
		case hub.BroadcastUnPublish:
			eventType = hooks.EventPublishStop
		case hub.BroadcastSubscribe:
			eventType = hooks.EventPlayStart
		case hub.BroadcastUnSubscribe:
			eventType = hooks.EventPlayStop
		default:
			continue
		}
		s.triggerHookEvent(eventType, "", ev.Identifier.String(), nil)
	}
}

// acceptLoop runs until listener close. Each successful accept performs the
// RTMP handshake via conn.Accept which internally sends the control burst.
func (s *Server) acceptLoop() {
	defer s.acceptingWg.Done()
	for {
		s.mu.RLock()
		l := s.l
		s.mu.RUnlock()
		if l == nil {
			return
		}
		raw, err := l.Accept()
		if err != nil {
			// If we are shutting down, Accept will return an error (use closing flag to suppress noise).
			s.mu.RLock()
			closing := s.closing
			s.mu.RUnlock()
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if closing || errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warn("accept error", "error", err)
			return
		}
		// Handshake + control burst integration lives in conn.Accept.
		// We temporarily wrap the raw listener to reuse existing function.
		// Trick: create a one-off fake listener returning this raw conn.
		single := &singleConnListener{conn: raw}
		c, err := iconn.Accept(single)
		if err != nil { // handshake failure already logged; continue accepting.
			continue
		}
		s.mu.Lock()
		s.conns[c.ID()] = c
		s.mu.Unlock()
		s.log.Info("connection registered", "conn_id", c.ID(), "remote", raw.RemoteAddr().String())

		// Trigger connection accept hook event
		clientAddr := raw.RemoteAddr().(*net.TCPAddr)
		serverAddr := s.l.Addr().(*net.TCPAddr)
		s.triggerHookEvent(hooks.EventConnectionAccept, c.ID(), "", map[string]interface{}{
			"client_ip":   clientAddr.IP.String(),
			"client_port": clientAddr.Port,
			"server_ip":   serverAddr.IP.String(),
			"server_port": serverAddr.Port,
		})

		// Wire command handling so real clients (OBS/ffmpeg) can complete
		// connect/createStream/publish against the Hub.
		attachCommandHandling(c, s.hub, &s.cfg, s.log, s)
		// Start readLoop AFTER message handler is attached to avoid race condition
		c.Start()
	}
}

// Stop gracefully shuts down the server: stops accepting new connections,
// closes all active ones, waits for accept loop completion.
func (s *Server) Stop() error {
	if s == nil {
		return errors.New("nil server")
	}
	s.mu.Lock()
	if s.l == nil {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	l := s.l
	s.l = nil
	s.mu.Unlock()
	_ = l.Close()

	// Close all connections.
	s.mu.RLock()
	for id, c := range s.conns {
		// Trigger connection close event before closing
		s.triggerHookEvent(hooks.EventConnectionClose, c.ID(), "", map[string]interface{}{
			"reason": "server_shutdown",
		})
		_ = c.Close()
		delete(s.conns, id)
	}
	s.mu.RUnlock()

	// Tear down the Hub: this closes every live Transmitter and unblocks
	// bridgeHubEventsToHooks by closing its BroadcastListener.
	s.hub.Stop()
	<-s.hub.Done()
	s.hookWg.Wait()
	s.pusher.Close()
	s.puller.Close()

	// Close hook manager
	if s.hookManager != nil {
		if err := s.hookManager.Close(); err != nil {
			s.log.Error("Error closing hook manager", "error", err)
		}
	}

	s.acceptingWg.Wait()
	s.log.Info("RTMP server stopped")
	return nil
}

// Addr returns the bound listener address (nil if not started).
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.l == nil {
		return nil
	}
	return s.l.Addr()
}

// ConnectionCount returns current number of tracked active connections.
func (s *Server) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

// singleConnListener is a tiny adapter implementing net.Listener for a single
// pre-accepted net.Conn. It returns the conn once then permanently errors.
type singleConnListener struct{ conn net.Conn }

func (s *singleConnListener) Accept() (net.Conn, error) {
	if s.conn == nil {
		return nil, errors.New("no conn")
	}
	c := s.conn
	s.conn = nil
	return c, nil
}
func (s *singleConnListener) Close() error {
	if s.conn != nil {
		_ = s.conn.Close()
	}
	return nil
}
func (s *singleConnListener) Addr() net.Addr {
	if s.conn != nil {
		return s.conn.LocalAddr()
	}
	return &net.TCPAddr{}
}

// initializeHookManager creates and configures the hook manager based on server config
func initializeHookManager(cfg Config, logger *slog.Logger) *hooks.HookManager {
	// Create hook config from server config
	hookConfig := hooks.HookConfig{
		Timeout:     cfg.HookTimeout,
		Concurrency: cfg.HookConcurrency,
		StdioFormat: cfg.HookStdioFormat,
	}

	// Apply defaults if not specified
	if hookConfig.Timeout == "" {
		hookConfig.Timeout = "30s"
	}
	if hookConfig.Concurrency == 0 {
		hookConfig.Concurrency = 10
	}

	// Create hook manager
	hookManager := hooks.NewHookManager(hookConfig, logger)

	// Register shell hooks from configuration
	if err := registerShellHooks(hookManager, cfg.HookScripts, logger); err != nil {
		logger.Error("Failed to register shell hooks", "error", err)
	}

	// Register webhook hooks from configuration
	if err := registerWebhookHooks(hookManager, cfg.HookWebhooks, logger); err != nil {
		logger.Error("Failed to register webhook hooks", "error", err)
	}

	return hookManager
}

// triggerHookEvent is a helper method to trigger hook events safely
func (s *Server) triggerHookEvent(eventType hooks.EventType, connID, streamKey string, data map[string]interface{}) {
	if s == nil || s.hookManager == nil {
		return // Hooks disabled or server not initialized
	}

	event := hooks.NewEvent(eventType).
		WithConnID(connID).
		WithStreamKey(streamKey)

	// Add data fields if provided
	for key, value := range data {
		event.WithData(key, value)
	}

	s.hookManager.TriggerEvent(context.Background(), *event)
}

// registerShellHooks parses and registers shell hooks from configuration
func registerShellHooks(hookManager *hooks.HookManager, scripts []string, logger *slog.Logger) error {
	for i, script := range scripts {
		parts := strings.SplitN(script, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid shell hook format: %s", script)
		}

		eventType := hooks.EventType(parts[0])
		scriptPath := parts[1]

		// Create shell hook with a fixed timeout; HookConfig.Timeout is not applied to it
		shellHook := hooks.NewShellHook(
			fmt.Sprintf("shell_%d", i),
			scriptPath,
			30*time.Second, // fixed timeout
		)

		if err := hookManager.RegisterHook(eventType, shellHook); err != nil {
			return fmt.Errorf("failed to register shell hook %s: %w", script, err)
		}

		logger.Info("Registered shell hook", "event_type", eventType, "script_path", scriptPath)
	}

	return nil
}

// registerWebhookHooks parses and registers webhook hooks from configuration
func registerWebhookHooks(hookManager *hooks.HookManager, webhooks []string, logger *slog.Logger) error {
	for i, webhook := range webhooks {
		parts := strings.SplitN(webhook, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid webhook hook format: %s", webhook)
		}

		eventType := hooks.EventType(parts[0])
		webhookURL := parts[1]

		// Create webhook hook with default timeout
		webhookHook := hooks.NewWebhookHook(
			fmt.Sprintf("webhook_%d", i),
			webhookURL,
			30*time.Second, // Default timeout
		)

		if err := hookManager.RegisterHook(eventType, webhookHook); err != nil {
			return fmt.Errorf("failed to register webhook hook %s: %w", webhook, err)
		}

		logger.Info("Registered webhook hook", "event_type", eventType, "webhook_url", webhookURL)
	}

	return nil
}
