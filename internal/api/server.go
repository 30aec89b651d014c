// Package api serves the ManyChat webhook and the analytics, scheduling and review endpoints.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/BTreeMap/Shanbot/internal/analytics"
	"github.com/BTreeMap/Shanbot/internal/bot"
	"github.com/BTreeMap/Shanbot/internal/scheduler"
	"github.com/BTreeMap/Shanbot/internal/store"
)

// DefaultAddr is the listen address when none is configured.
const DefaultAddr = ":8080"

// maxBodyBytes caps request bodies; ManyChat conversations are a few KB at most.
const maxBodyBytes = 1 << 20

// Server holds the handler dependencies.
type Server struct {
	engine      *bot.Engine
	tracker     *analytics.Tracker
	st          store.Store
	planner     *scheduler.Planner
	addr        string
	corsOrigins []string
	version     string
	startedAt   time.Time
	export      func() error
}

// Option configures a Server.
type Option func(*Server)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(s *Server) {
		if addr != "" {
			s.addr = addr
		}
	}
}

// WithCORSOrigins allows browser dashboards on these origins.
func WithCORSOrigins(origins []string) Option { return func(s *Server) { s.corsOrigins = origins } }

// WithExporter sets how POST /analytics/export writes the analytics file. The function
// should hold the cross-process export lock and return *lockfile.LockError when another
// process holds it. Without it the tracker saves directly.
func WithExporter(fn func() error) Option { return func(s *Server) { s.export = fn } }

// WithVersion sets the version reported by /health.
func WithVersion(v string) Option { return func(s *Server) { s.version = v } }

// NewServer creates a Server. The tracker is taken from the engine.
func NewServer(engine *bot.Engine, st store.Store, planner *scheduler.Planner, opts ...Option) *Server {
	s := &Server{
		engine:    engine,
		tracker:   engine.Tracker(),
		st:        st,
		planner:   planner,
		addr:      DefaultAddr,
		version:   "dev",
		startedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.export == nil {
		s.export = s.tracker.Save
	}
	return s
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if len(s.corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.corsOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", s.healthHandler)
	r.Post("/webhook/manychat", s.webhookHandler)

	r.Route("/analytics", func(r chi.Router) {
		r.Get("/global", s.globalAnalyticsHandler)
		r.Get("/conversations", s.listConversationsHandler)
		r.Get("/conversation/{id}", s.conversationHandler)
		r.Get("/engagement/{id}", s.engagementHandler)
		r.Post("/export", s.exportHandler)
	})

	r.Route("/scheduled", func(r chi.Router) {
		r.Get("/", s.listScheduledHandler)
		r.Get("/{id}", s.getScheduledHandler)
		r.Post("/{id}/requeue", s.requeueHandler)
	})

	r.Route("/reviews", func(r chi.Router) {
		r.Get("/", s.listReviewsHandler)
		r.Get("/{id}", s.getReviewHandler)
		r.Post("/{id}/approve", s.approveReviewHandler)
		r.Post("/{id}/reject", s.rejectReviewHandler)
	})

	r.Get("/users/{id}", s.userHandler)
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		slog.Error("Server.Run: listener failed", "error", err)
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	slog.Info("Server.Run: shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server.Run: shutdown failed", "error", err)
		return err
	}
	return nil
}
