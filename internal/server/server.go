// Package server provides the HTTP reading surface of the library.
//
// Endpoints:
//   - /health                        - Health check
//   - /metrics                       - Prometheus metrics
//   - /api/books                     - Catalog listing (?q= filters) and import
//   - /api/books/{id}                - Book details, edits and deletion
//   - /api/books/{id}/progress       - Reading progress
//   - /api/books/{id}/reading        - Chapter list with titles and content URLs
//   - /api/books/{id}/cover          - Cover thumbnail
//   - /books/{id}/content/*          - Files of the extracted book
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/yuanying/epubshelf/internal/library"
	"github.com/yuanying/epubshelf/internal/metrics"
)

// Library is the catalog served over HTTP.
type Library interface {
	List(ctx context.Context, query string) ([]library.Book, error)
	Get(ctx context.Context, id string) (*library.Book, error)
	Update(ctx context.Context, id string, u library.BookUpdate) (*library.Book, error)
	SetProgress(ctx context.Context, id string, index, page int) error
	Delete(ctx context.Context, id string) error
	Import(ctx context.Context, paths []string) []library.ImportResult
	OpenReading(ctx context.Context, id string) (*library.Reading, error)
	Extract(ctx context.Context, id string) (string, error)
	CoverPath(b *library.Book) string
}

// Server serves a Library.
type Server struct {
	lib    Library
	logger *slog.Logger
	http   *http.Server
}

// New creates a Server for lib.
func New(lib Library, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Server{lib: lib, logger: logger}
	s.http = &http.Server{
		Handler:      s.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Router returns the HTTP handler with every route mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(RequestIDMiddleware)
	r.Use(s.LoggerMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api/books", func(r chi.Router) {
		r.Get("/", s.handleList)
		r.Post("/import", s.handleImport)
		r.Get("/{id}", s.handleGet)
		r.Patch("/{id}", s.handleUpdate)
		r.Delete("/{id}", s.handleDelete)
		r.Put("/{id}/progress", s.handleProgress)
		r.Get("/{id}/reading", s.handleReading)
		r.Get("/{id}/cover", s.handleCover)
	})
	r.Get("/books/{id}/content/*", s.handleContent)

	return r
}

// Start serves on listen until Shutdown is called.
func (s *Server) Start(listen string) error {
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", listen, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown is called. It returns nil
// after a shutdown, including one that happened before Serve was called.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("starting server", "listen", ln.Addr().String())

	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
