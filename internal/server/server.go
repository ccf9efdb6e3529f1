// Package server exposes the broadcast engine over HTTP: the WebSocket
// session route, health probes and the Prometheus scrape endpoint.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"time"

	"github.com/MrWong99/radiomirchi/internal/game"
	"github.com/MrWong99/radiomirchi/internal/health"
	"github.com/MrWong99/radiomirchi/internal/observe"
	"github.com/MrWong99/radiomirchi/internal/protocol"
	"github.com/MrWong99/radiomirchi/internal/transport"
	"github.com/MrWong99/radiomirchi/pkg/mission"
)

// SessionRoute is the WebSocket route pattern. The path value names the
// mission, which is also the session key.
const SessionRoute = "GET /api/v1/ws/{mission_id}"

const (
	readHeaderTimeout = 10 * time.Second
	rejectTimeout     = 5 * time.Second
)

// Sessions starts a session for an accepted connection. [*game.Registry]
// implements it.
type Sessions interface {
	Register(ctx context.Context, sessionID string, t game.Transport) (*game.Session, error)
}

var _ Sessions = (*game.Registry)(nil)

// Config holds the listener settings.
type Config struct {
	// Addr is the TCP listen address, e.g. ":8000".
	Addr string

	// CertFile and KeyFile enable TLS when both are set.
	CertFile string
	KeyFile  string

	// AllowedOrigins lists extra host patterns allowed to open a WebSocket.
	// "*" disables the origin check.
	AllowedOrigins []string
}

// Option configures a [Server].
type Option func(*Server)

// WithHealth mounts /healthz and /readyz from h.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetricsHandler mounts h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithMiddleware wraps the whole mux with mw, e.g. [observe.Middleware].
func WithMiddleware(mw func(http.Handler) http.Handler) Option {
	return func(s *Server) { s.middleware = append(s.middleware, mw) }
}

// WithLogger sets the server logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// Server is the HTTP front of the engine.
type Server struct {
	cfg        Config
	sessions   Sessions
	health     *health.Handler
	metrics    http.Handler
	middleware []func(http.Handler) http.Handler
	log        *slog.Logger

	handler http.Handler
	http    *http.Server
}

// New builds the server and its routes.
func New(cfg Config, sessions Sessions, opts ...Option) *Server {
	s := &Server{cfg: cfg, sessions: sessions, log: slog.Default()}
	for _, o := range opts {
		o(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(SessionRoute, s.handleSession)
	if s.health != nil {
		s.health.Register(mux)
	}
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}

	var h http.Handler = mux
	for _, mw := range slices.Backward(s.middleware) {
		h = mw(h)
	}
	s.handler = h
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           h,
		ReadHeaderTimeout: readHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(s.log.Handler(), slog.LevelWarn),
	}
	return s
}

// Handler returns the routed handler, including middleware.
func (s *Server) Handler() http.Handler { return s.handler }

// Serve accepts connections on ln until [Server.Shutdown]. It returns nil
// after a graceful shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.log.Info("http server listening", "addr", ln.Addr().String(), "tls", s.tls())
	var err error
	if s.tls() {
		err = s.http.ServeTLS(ln, s.cfg.CertFile, s.cfg.KeyFile)
	} else {
		err = s.http.Serve(ln)
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return fmt.Errorf("server: serve: %w", err)
}

// ListenAndServe listens on the configured address and calls [Server.Serve].
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ln)
}

// Shutdown stops accepting connections and waits for in-flight plain HTTP
// requests. Hijacked WebSocket connections are not tracked by net/http and
// must be closed through the session registry.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

func (s *Server) tls() bool { return s.cfg.CertFile != "" && s.cfg.KeyFile != "" }

func (s *Server) acceptOptions() transport.Options {
	if slices.Contains(s.cfg.AllowedOrigins, "*") {
		return transport.Options{InsecureSkipVerify: true}
	}
	return transport.Options{OriginPatterns: s.cfg.AllowedOrigins}
}

// handleSession upgrades the request and runs one session on it. The handler
// returns once the session has ended.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	missionID := r.PathValue("mission_id")
	log := observe.WithTrace(s.log, r.Context()).With("mission_id", missionID, "remote_addr", r.RemoteAddr)

	conn, err := transport.Accept(w, r, s.acceptOptions())
	if err != nil {
		// Accept has already written the HTTP error response.
		log.Warn("websocket upgrade failed", "err", err)
		return
	}

	sess, err := s.sessions.Register(r.Context(), missionID, conn)
	if err != nil {
		code := RejectCode(err)
		log.Info("session rejected", "code", code, "err", err)
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), rejectTimeout)
		defer cancel()
		if rerr := conn.Reject(ctx, code); rerr != nil {
			log.Debug("reject failed", "err", rerr)
		}
		return
	}
	<-sess.Done()
}

// RejectCode maps a session start error to the code sent to the client.
func RejectCode(err error) string {
	switch {
	case errors.Is(err, game.ErrDuplicateSession):
		return protocol.CodeSessionActive
	case errors.Is(err, mission.ErrNotFound):
		return protocol.CodeMissionNotFound
	case errors.Is(err, mission.ErrNotReady):
		return protocol.CodeMissionNotReady
	default:
		return protocol.CodeInternal
	}
}
