package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nvakili/kashef/api/config"
	"github.com/nvakili/kashef/api/server/handlers"
	"github.com/nvakili/kashef/discovery"
	"github.com/nvakili/kashef/pkg/otel"
)

const ReadTimeout = 30 * time.Second

type Server struct {
	cfg    *config.Config
	router *chi.Mux
	server *http.Server
	hub    *Hub
}

// Dependencies carries the collaborators the router wires up. Hub is
// optional; callers that register a turn listener before constructing the
// server pass their own.
type Dependencies struct {
	Coordinator *discovery.Coordinator
	States      *discovery.StateStore
	DBPing      func(context.Context) error
	Hub         *Hub
}

func New(cfg *config.Config, deps Dependencies) *Server {
	hub := deps.Hub
	if hub == nil {
		hub = NewHub()
	}
	router := chi.NewRouter()

	router.Use(otel.Middleware("kashef-api"))
	router.Use(Recovery)
	router.Use(Logger)
	router.Use(CORS(cfg.Server.AllowedOrigins))

	healthH := handlers.NewHealthHandler(deps.DBPing)
	router.Get("/health", healthH.Readiness)
	router.Get("/health/ready", healthH.Readiness)
	router.Get("/health/live", healthH.Liveness)
	router.Get("/health/full", healthH.Health)

	router.Handle("/metrics", promhttp.Handler())

	wsHandler := NewWSHandler(hub, cfg.Server.AllowedOrigins)
	router.Get("/api/v1/ws", wsHandler.ServeHTTP)

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(RateLimit(cfg.Server.RateLimit, cfg.Server.RateBurst))

		convH := handlers.NewConversationHandler(deps.States)
		r.Post("/conversations", convH.Create)
		r.Get("/conversations/{id}", convH.Get)
		r.Delete("/conversations/{id}", convH.Delete)

		turnH := handlers.NewTurnHandler(deps.Coordinator)
		r.Post("/conversations/{id}/turns", turnH.Create)
	})

	return &Server{
		cfg:    cfg,
		router: router,
		hub:    hub,
	}
}

func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.server = &http.Server{
		Addr:        addr,
		Handler:     s.router,
		ReadTimeout: ReadTimeout,
	}
	return s.server.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}
