// Package server exposes the advisor's state over a small HTTP API.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/athang/pixiu/internal/config"
	"github.com/athang/pixiu/internal/database"
	"github.com/athang/pixiu/internal/events"
	"github.com/athang/pixiu/internal/knowledge"
	"github.com/athang/pixiu/internal/portfolio"
	"github.com/athang/pixiu/internal/queue"
)

// Config holds everything the HTTP layer needs.
type Config struct {
	Log       zerolog.Logger
	DB        *database.DB
	Cfg       *config.Config
	Book      *portfolio.Repo
	Knowledge *knowledge.Store
	Queue     *queue.Manager
	Bus       *events.Bus
	Port      int
	Dev       bool
}

// Server is the HTTP server for the advisor.
type Server struct {
	router    *chi.Mux
	server    *http.Server
	log       zerolog.Logger
	db        *database.DB
	cfg       *config.Config
	book      *portfolio.Repo
	knowledge *knowledge.Store
	queue     *queue.Manager
	bus       *events.Bus
}

// New builds the router and wires all routes.
func New(cfg Config) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		log:       cfg.Log.With().Str("component", "server").Logger(),
		db:        cfg.DB,
		cfg:       cfg.Cfg,
		book:      cfg.Book,
		knowledge: cfg.Knowledge,
		queue:     cfg.Queue,
		bus:       cfg.Bus,
	}

	s.setupMiddleware(cfg.Dev)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

func (s *Server) setupMiddleware(dev bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if !dev {
		s.router.Use(middleware.Compress(5))
	}
}

func (s *Server) setupRoutes() {
	s.router.Route("/api", func(r chi.Router) {
		// WebSocket stream needs the raw connection, keep it outside
		// the timeout middleware applied below.
		r.Get("/events", s.handleEvents)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))

			r.Get("/health", s.handleHealth)
			r.Get("/portfolio", s.handlePortfolio)
			r.Get("/signals", s.handleSignals)
			r.Get("/recommendations", s.handleRecommendations)
			r.Get("/knowledge", s.handleKnowledge)
			r.Get("/jobs", s.handleJobList)
			r.Post("/jobs", s.handleJobEnqueue)
			r.Post("/trades", s.handleRecordTrade)
		})
	})
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start blocks serving HTTP until the listener fails or is shut down.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP 服务启动")
	return s.server.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("HTTP 服务关闭中")
	return s.server.Shutdown(ctx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
