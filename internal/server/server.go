package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/gosuda/warden/internal/api/ws"
	"github.com/gosuda/warden/internal/config"
	"github.com/gosuda/warden/internal/domain"
	"github.com/gosuda/warden/internal/enforce"
	"github.com/gosuda/warden/internal/intent"
	"github.com/gosuda/warden/internal/server/middleware"
	"github.com/gosuda/warden/internal/sim"
)

// Server is the HTTP server that wires the governance API and middleware.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	cfg        *config.Config
}

// Deps bundles the wired components the routes need.
type Deps struct {
	Tokens   *intent.Service
	Enforcer *enforce.Enforcer
	Cluster  *sim.Cluster
	Ledger   domain.Ledger
	Streams  ws.Subscriber // nil disables the live audit stream
}

// New creates a Server with all routes wired. ctx bounds the background
// goroutines started by middleware (rate-limiter cleanup).
func New(ctx context.Context, cfg *config.Config, deps Deps) *Server {
	router := chi.NewRouter()

	// Global middleware stack.
	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(chimw.Logger)
	router.Use(chimw.Recoverer)
	router.Use(cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler)

	s := &Server{
		router: router,
		cfg:    cfg,
		httpServer: &http.Server{
			Addr:         cfg.Server.Addr,
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}

	// Every API route requires an authenticated principal: the gateway has
	// no anonymous mutating surface, and even sensing is scoped to known
	// callers.
	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.IdP.Secret))
		r.Use(middleware.RateLimit(ctx, 100, 200))

		apiConfig := huma.DefaultConfig("Warden API", "1.0.0")
		apiConfig.Servers = []*huma.Server{
			{URL: "/api/v1"},
		}
		api := humachi.New(r, apiConfig)
		registerAPIRoutes(api, deps)
	})

	// WebSocket audit stream.
	if deps.Streams != nil {
		hub := ws.NewHub(deps.Streams)
		router.Route("/ws", func(r chi.Router) {
			r.Use(middleware.Auth(cfg.IdP.Secret))
			registerWSRoutes(r, hub)
		})
	}

	// Health check (unauthenticated).
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	return s
}

// Start begins listening for HTTP requests.
func (s *Server) Start(_ context.Context) error {
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.Start: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}
