package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/hovavo/pxt-states/internal/bridge"
	"github.com/hovavo/pxt-states/internal/history"
	"github.com/hovavo/pxt-states/internal/infrastructure/config"
	"github.com/hovavo/pxt-states/internal/infrastructure/logging"
	"github.com/hovavo/pxt-states/internal/states"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HistoryReader serves the transition history endpoint. Satisfied by
// *history.Repository.
type HistoryReader interface {
	GetHistory(ctx context.Context, machine string, limit int) ([]history.Entry, error)
}

// HealthChecker is a named dependency probed by /health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// BridgeMetricsProvider reports MQTT bridge counters. Satisfied by
// *bridge.Bridge.
type BridgeMetricsProvider interface {
	GetMetrics() bridge.Metrics
}

// TelemetryStats reports telemetry pipeline counters. Satisfied by
// *telemetry.Pipeline.
type TelemetryStats interface {
	Delivered() uint64
	Dropped() uint64
}

// ConnectionState reports broker connectivity. Satisfied by *mqtt.Client.
type ConnectionState interface {
	IsConnected() bool
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Registry *states.Registry

	// Optional collaborators. A nil History disables the history endpoint.
	History   HistoryReader
	Checks    map[string]HealthChecker
	Bridge    BridgeMetricsProvider
	Telemetry TelemetryStats
	MQTT      ConnectionState

	// Panel, if set, is served at the root path outside /api/v1.
	Panel http.Handler

	// Hub, if set, is used instead of a hub created by Start. Pass one when
	// the telemetry pipeline needs to broadcast before the server starts.
	Hub *Hub

	Version string
}

// Server is the HTTP API server for statesd.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	secCfg    config.SecurityConfig
	logger    *logging.Logger
	registry  *states.Registry
	history   HistoryReader
	checks    map[string]HealthChecker
	bridge    BridgeMetricsProvider
	telemetry TelemetryStats
	mqtt      ConnectionState
	panel     http.Handler
	version   string
	startTime time.Time

	hub     *Hub
	tickets *ticketStore

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	cancel   context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (logger, registry) plus optional ones
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("state registry is required")
	}

	hub := deps.Hub
	if hub == nil {
		hub = NewHub(deps.WS, deps.Logger)
	}

	return &Server{
		cfg:       deps.Config,
		secCfg:    deps.Security,
		logger:    deps.Logger,
		registry:  deps.Registry,
		history:   deps.History,
		checks:    deps.Checks,
		bridge:    deps.Bridge,
		telemetry: deps.Telemetry,
		mqtt:      deps.MQTT,
		panel:     deps.Panel,
		version:   deps.Version,
		startTime: time.Now(),
		hub:       hub,
		tickets:   newTicketStore(),
	}, nil
}

// Hub returns the WebSocket hub, for registering it as a broadcast sink.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the fully wired router. Start serves it; tests can drive
// it through httptest.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start begins listening for HTTP connections.
//
// It binds the listener synchronously so that a port conflict is reported
// to the caller, then serves in a background goroutine. The server can be
// stopped with Close().
//
// Parameters:
//   - ctx: Parent of the server's background goroutines (hub, ticket cleanup)
//
// Returns:
//   - error: If the listener cannot be bound
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return fmt.Errorf("api server already started")
	}

	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)
	go s.cleanTicketsLoop(srvCtx)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	srv := s.server
	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS", "address", ln.Addr().String(), "cert", s.cfg.TLS.CertFile)
			err = srv.ServeTLS(ln, s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", ln.Addr().String())
			err = srv.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	s.mu.Lock()
	srv, cancel := s.server, s.cancel
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	cancel()

	ctx, done := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer done()

	s.logger.Info("API server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
