// Package server exposes the course tree over a local HTTP API: tree
// queries, assignment details, refresh commands, change events and metrics.
package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/RunningKuma/matrix-on-vscode/errors"
	"github.com/RunningKuma/matrix-on-vscode/site"
	"github.com/RunningKuma/matrix-on-vscode/tree"
)

// Detailer fetches a single assignment.
type Detailer interface {
	FetchAssignmentDetail(ctx context.Context, courseID, assignmentID int) (site.AssignmentDetail, error)
}

type Config struct {
	Address         string
	AllowedOrigins  []string
	ShutdownTimeout time.Duration
}

type Server struct {
	cfg     Config
	tree    *tree.Controller
	detail  Detailer
	log     zerolog.Logger
	reg     *prometheus.Registry
	metrics *httpMetrics
	router  *chi.Mux
}

// New builds the server. Collectors are registered with reg, which is also
// what /metrics exposes.
func New(cfg Config, ctl *tree.Controller, detail Detailer, reg *prometheus.Registry, log zerolog.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		tree:    ctl,
		detail:  detail,
		log:     log.With().Str("component", "server").Logger(),
		reg:     reg,
		metrics: newHTTPMetrics(reg),
		router:  chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.StripSlashes)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(requestLogger(s.log))
	r.Use(s.metrics.middleware)
	r.Use(recovery(s.log))

	r.Get("/health", s.health)
	r.Handle("/metrics", promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/tree", s.rootItems)
		r.Get("/tree/{nodeID}/children", s.childItems)
		r.Post("/refresh", s.refresh)
		r.Post("/courses/refresh", s.refreshAllAssignments)
		r.Post("/courses/{courseID}/refresh", s.refreshAssignments)
		r.Get("/courses/{courseID}/assignments/{assignmentID}", s.assignmentDetail)
		r.Get("/events", s.events)
	})
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Address,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info().Str("address", srv.Addr).Msg("Starting server")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.NewError("server.Run", "server stopped", err)
	case <-ctx.Done():
	}

	s.log.Info().Msg("Shutting down server")
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	sctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return errors.NewError("server.Run", "shutdown failed", err)
	}
	return nil
}
