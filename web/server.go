// ABOUTME: kodejam HTTP server: chat, build, screenshot, and thread endpoints behind a single chi router.
// ABOUTME: Streaming endpoints run one agent process per request and push frames over SSE or WebSocket.
package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/2389-research/kodejam/agent"
	"github.com/2389-research/kodejam/capture"
	"github.com/2389-research/kodejam/store"
	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
)

// Defaults applied by NewServer for zero config fields.
const (
	DefaultAddr          = "127.0.0.1:3001"
	DefaultDrainTimeout  = 2 * time.Second
	DefaultBuildMaxTurns = 50
)

// Config holds the server's tunables.
type Config struct {
	Addr string
	// AuthToken protects /api routes when non-empty.
	AuthToken string
	// TurnTimeout terminates an agent turn that runs longer. Zero means no limit.
	TurnTimeout time.Duration
	// DrainTimeout bounds how long output is read after the agent exits.
	DrainTimeout time.Duration
	// MaxLineBytes caps one agent output record.
	MaxLineBytes int
	// BuildMaxTurns is passed to the agent for execute runs.
	BuildMaxTurns int
	// BrowseRoot, when set, confines every repoPath to that directory.
	BrowseRoot string
	// AllowedOrigins lists WebSocket origins accepted besides same-host.
	AllowedOrigins []string
}

// Deps are the collaborators the server drives.
type Deps struct {
	Store    *store.SQLite
	Launcher *agent.Launcher
	// Pipeline may be nil, which disables screenshot features.
	Pipeline *capture.Pipeline
	Logger   *log.Logger
	Metrics  *Metrics
}

// Server is the kodejam HTTP server.
type Server struct {
	store     *store.SQLite
	persister *store.Persister
	launcher  *agent.Launcher
	pipeline  *capture.Pipeline
	metrics   *Metrics
	logger    *log.Logger
	cfg       Config
	upgrader  websocket.Upgrader
	router    chi.Router
}

// NewServer wires a Server from cfg and deps, filling in defaults.
func NewServer(cfg Config, deps Deps) (*Server, error) {
	if deps.Store == nil {
		return nil, errors.New("web: store is required")
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = DefaultDrainTimeout
	}
	if cfg.BuildMaxTurns <= 0 {
		cfg.BuildMaxTurns = DefaultBuildMaxTurns
	}

	s := &Server{
		store:     deps.Store,
		persister: store.NewPersister(deps.Store),
		launcher:  deps.Launcher,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		cfg:       cfg,
	}
	if s.launcher == nil {
		s.launcher = &agent.Launcher{}
	}
	if s.metrics == nil {
		s.metrics = NewMetrics()
	}
	if s.logger == nil {
		s.logger = log.Default()
	}
	if deps.Pipeline != nil {
		p := *deps.Pipeline
		if p.Recorder == nil {
			p.Recorder = s.metrics
		}
		if p.Logger == nil {
			p.Logger = s.logger.With("component", "capture")
		}
		s.pipeline = &p
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}

	s.router = s.buildRouter()
	return s, nil
}

// Metrics returns the server's collectors.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// ServeHTTP delegates to the chi router, satisfying http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
// Streaming responses have no write timeout; agent turns can run for minutes.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       2 * time.Minute,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("kodejam listening", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// buildRouter constructs the chi router with all routes and middleware.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.logger))
	r.Use(AuthMiddleware(s.cfg.AuthToken))

	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Post("/chat", s.handleChat)
		r.Get("/chat/ws", s.handleChatWS)
		r.Get("/chat/threads", s.handleLatestThread)
		r.Get("/chat/threads/{threadID}", s.handleGetThread)
		r.Get("/chat/threads/{threadID}/export", s.handleExportThread)

		r.Post("/build/plan", s.handleBuildPlan)
		r.Post("/build/execute", s.handleBuildExecute)
		r.Get("/build/{buildID}", s.handleGetBuild)

		r.Post("/screenshot", s.handleScreenshot)
		r.Post("/screenshot/batch", s.handleScreenshotBatch)
		r.Get("/screenshots/{filename}", s.handleScreenshotFile)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{"status": "ok", "screenshots": s.pipeline != nil}
	if err := s.store.Ping(r.Context()); err != nil {
		status["status"] = "degraded"
		status["store"] = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// checkOrigin accepts requests without an Origin header, same-host origins,
// and the configured allow-list.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if u.Host == r.Host {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}
