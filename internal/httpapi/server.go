// Package httpapi exposes a [studio.Session] over JSON HTTP for a browser
// front-end.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/calvinalkan/nexus-studio/internal/studio"
)

const shutdownTimeout = 5 * time.Second

// Server serves one session.
type Server struct {
	session *studio.Session
	notes   *studio.Recorder
	origins []string
	logger  *slog.Logger
	router  chi.Router
}

// Option configures a [Server].
type Option func(*Server)

// WithAllowedOrigins enables CORS for the given browser origins.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) { s.origins = origins }
}

// WithNotifications exposes rec under GET /api/notifications.
func WithNotifications(rec *studio.Recorder) Option {
	return func(s *Server) { s.notes = rec }
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New builds the router for session.
func New(session *studio.Session, opts ...Option) *Server {
	s := &Server{session: session, logger: slog.Default()}

	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	if len(s.origins) > 0 {
		r.Use(cors.New(cors.Options{
			AllowedOrigins: s.origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type"},
		}).Handler)
	}

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/projects", s.handleListProjects)
		r.Post("/projects", s.handleAddProject)
		r.Get("/projects/recent", s.handleRecentProjects)
		r.Post("/projects/save", s.handleSaveProject)
		r.Get("/projects/{id}", s.handleGetProject)
		r.Post("/projects/{id}/open", s.handleOpenProject)

		r.Get("/media", s.handleGetMedia)
		r.Post("/media", s.handleImportMedia)

		r.Get("/filters", s.handleGetFilters)
		r.Put("/filters", s.handleSetFilters)

		r.Get("/history", s.handleHistory)
		r.Post("/history", s.handleRecord)
		r.Post("/history/undo", s.handleUndo)
		r.Post("/history/reset", s.handleReset)

		r.Get("/tools", s.handleListTools)
		r.Post("/tools/{name}", s.handleRunTool)

		r.Get("/tasks", s.handleListTasks)
		r.Get("/tasks/{id}", s.handleGetTask)
		r.Delete("/tasks/{id}", s.handleCancelTask)

		r.Get("/notifications", s.handleNotifications)
	})

	s.router = r

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully and cancels running tools. ready, if non-nil, receives the bound
// address.
func (s *Server) ListenAndServe(ctx context.Context, addr string, ready func(net.Addr)) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	if ready != nil {
		ready(ln.Addr())
	}

	s.logger.Info("http server listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)

	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	s.session.Close()

	err = srv.Shutdown(shutdownCtx)
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	s.logger.Info("http server stopped")

	return nil
}
