// Package ws serves the streaming protocol over websocket. Each accepted
// connection gets its own session stack: a read loop feeding a dispatcher,
// an outbound stream mux writing binary frames, a job pool, and an
// animation controller. Connections share nothing but the registry and
// the snapshot store.
package ws

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/c360/cubestream/animation"
	"github.com/c360/cubestream/dispatch"
	"github.com/c360/cubestream/errors"
	"github.com/c360/cubestream/health"
	"github.com/c360/cubestream/metric"
	"github.com/c360/cubestream/pkg/security"
	"github.com/c360/cubestream/pkg/tlsutil"
	"github.com/c360/cubestream/session"
	"github.com/c360/cubestream/streammux"
)

// Config defines the websocket listener.
type Config struct {
	ListenAddr     string
	Path           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxMessageSize int64
	AllowedOrigins []string
	TLS            security.ServerTLSConfig
}

func (c Config) withDefaults() Config {
	if c.Path == "" {
		c.Path = "/"
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 5 * time.Minute
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 64 * 1024 * 1024
	}
	return c
}

// Deps are the shared collaborators handed to every connection.
type Deps struct {
	Registry    *session.Registry
	Store       dispatch.SnapshotStore
	Opener      session.SourceOpener
	Stream      streammux.Config
	JobWorkers  int
	JobQueue    int
	Animation   animation.Config
	Logger      *slog.Logger
	Metrics     *metric.Metrics
	Health      *health.Monitor
}

// Server accepts websocket connections and runs one session per
// connection.
type Server struct {
	cfg      Config
	deps     Deps
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu       sync.Mutex
	listener net.Listener
	httpSrv  *http.Server
	started  bool
	stopped  bool
	conns    map[*websocket.Conn]struct{}
	wg       sync.WaitGroup
}

// NewServer creates a server; Start begins accepting.
func NewServer(cfg Config, deps Deps) (*Server, error) {
	if deps.Registry == nil {
		return nil, errors.WrapInvalid(nil, "Server", "NewServer", "registry is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Health == nil {
		deps.Health = health.NewMonitor()
	}
	cfg = cfg.withDefaults()

	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: deps.Logger,
		conns:  make(map[*websocket.Conn]struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  64 * 1024,
		WriteBufferSize: 64 * 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s, nil
}

// Handler returns the HTTP handler serving the websocket endpoint, for
// embedding in an existing server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.Path, s.serveWS)
	if s.cfg.Path != "/healthz" {
		mux.HandleFunc("/healthz", s.serveHealth)
	}
	return mux
}

// Start listens on the configured address and accepts connections until
// Stop.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "Server", "Start", "already started")
	}

	listener, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return errors.WrapTransient(err, "Server", "Start", "listen")
	}
	if s.cfg.TLS.Enabled {
		tlsCfg, err := tlsutil.LoadServerTLSConfigWithMTLS(s.cfg.TLS, s.cfg.TLS.MTLS)
		if err != nil {
			_ = listener.Close()
			return errors.WrapFatal(err, "Server", "Start", "load TLS config")
		}
		listener = tls.NewListener(listener, tlsCfg)
	}
	s.listener = listener
	s.httpSrv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       s.cfg.IdleTimeout,
	}
	s.started = true

	go func() {
		if err := s.httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("websocket server failed", "error", err)
		}
	}()

	s.deps.Health.UpdateHealthy("websocket", "accepting connections")
	s.logger.Info("websocket server listening",
		"addr", listener.Addr().String(), "path", s.cfg.Path)
	return nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop closes the listener and all connections, waiting up to timeout for
// session teardown to finish.
func (s *Server) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.deps.Health.UpdateUnhealthy("websocket", "shutting down")
	httpSrv := s.httpSrv
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		s.logger.Warn("http shutdown", "error", err)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.WrapTransient(ctx.Err(), "Server", "Stop", "session teardown timed out")
	}
}

// checkOrigin allows any origin when no allowlist is configured,
// otherwise requires an exact host match.
func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if u.Host == allowed || origin == allowed {
			return true
		}
	}
	return false
}

// serveHealth reports aggregated subsystem health. Unhealthy aggregates
// answer 503 so load balancers stop routing new viewers here.
func (s *Server) serveHealth(w http.ResponseWriter, _ *http.Request) {
	status := s.deps.Health.AggregateHealth("cubestream")
	code := http.StatusOK
	if status.IsUnhealthy() {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(status)
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed",
			"remote", r.RemoteAddr, "error", err)
		return
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.conns, conn)
			s.mu.Unlock()
		}()
		s.runConnection(conn)
	}()
}
