// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the wiring layer. It decides which URL patterns map to
// which handler functions, what middleware runs on which routes, and how
// the server starts and stops.
//
// DEPENDENCY INJECTION FLOW:
//
//	main.go:  config → repository → service.Open → server.New
//	server:   service → SnippetHandler / TaxonomyHandler / TransferHandler
//
// Handlers never touch the store or the repository directly. The service
// never touches HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/snippet-organizer/internal/auth"
	"github.com/sakif/snippet-organizer/internal/handler"
	"github.com/sakif/snippet-organizer/internal/middleware"
	"github.com/sakif/snippet-organizer/internal/service"
)

type Config struct {
	Port int
	// StatePath is only logged.
	StatePath string
	// Tokens enables bearer auth on /api. Nil leaves the API open.
	Tokens *auth.TokenService
}

// Server owns the service: Start closes it after the HTTP server stops, so
// the final autosave flush happens after the last request finished.
type Server struct {
	router *chi.Mux
	config Config
	svc    *service.Service
	logger *slog.Logger
}

func New(cfg Config, svc *service.Service, logger *slog.Logger) *Server {
	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		svc:    svc,
		logger: logger,
	}
	s.setupRoutes()
	return s
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	GET    /healthz
//	GET    /api/snippets                  ?hidden=true
//	POST   /api/snippets
//	GET    /api/snippets/search           ?q=
//	GET    /api/snippets/{id}
//	PATCH  /api/snippets/{id}
//	DELETE /api/snippets/{id}
//	POST   /api/snippets/{id}/instantiate
//	GET    /api/templates
//	GET    /api/categories
//	POST   /api/categories
//	PATCH  /api/categories/{id}
//	DELETE /api/categories/{id}           ?reassign=
//	GET    /api/categories/{id}/snippets
//	GET    /api/tags
//	POST   /api/tags
//	PATCH  /api/tags/{id}
//	DELETE /api/tags/{id}
//	GET    /api/tags/{id}/snippets
//	POST   /api/bulk
//	GET    /api/export                    ?format=
//	POST   /api/import                    ?format=
//	POST   /api/save
//
// MIDDLEWARE ORDER MATTERS:
// RequestID runs first so the logger can report it; Recoverer sits inside
// the logger so a recovered panic is still logged as a 500.
func (s *Server) setupRoutes() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	snippets := handler.NewSnippetHandler(s.svc, s.logger)
	taxonomy := handler.NewTaxonomyHandler(s.svc, s.logger)
	transfer := handler.NewTransferHandler(s.svc, s.logger)

	s.router.Route("/api", func(r chi.Router) {
		if s.config.Tokens != nil {
			r.Use(auth.RequireBearer(s.config.Tokens, s.logger))
		}

		r.Get("/snippets", snippets.HandleList)
		r.Post("/snippets", snippets.HandleCreate)
		r.Get("/snippets/search", snippets.HandleSearch)
		r.Get("/snippets/{id}", snippets.HandleGet)
		r.Patch("/snippets/{id}", snippets.HandleUpdate)
		r.Delete("/snippets/{id}", snippets.HandleDelete)
		r.Post("/snippets/{id}/instantiate", snippets.HandleInstantiate)
		r.Get("/templates", snippets.HandleTemplates)

		r.Get("/categories", taxonomy.HandleListCategories)
		r.Post("/categories", taxonomy.HandleCreateCategory)
		r.Patch("/categories/{id}", taxonomy.HandleUpdateCategory)
		r.Delete("/categories/{id}", taxonomy.HandleDeleteCategory)
		r.Get("/categories/{id}/snippets", taxonomy.HandleCategorySnippets)

		r.Get("/tags", taxonomy.HandleListTags)
		r.Post("/tags", taxonomy.HandleCreateTag)
		r.Patch("/tags/{id}", taxonomy.HandleRenameTag)
		r.Delete("/tags/{id}", taxonomy.HandleDeleteTag)
		r.Get("/tags/{id}/snippets", taxonomy.HandleTagSnippets)

		r.Post("/bulk", transfer.HandleBulk)
		r.Get("/export", transfer.HandleExport)
		r.Post("/import", transfer.HandleImport)
		r.Post("/save", transfer.HandleSave)
	})
}

// Start serves until SIGINT/SIGTERM or ctx is cancelled, then shuts down.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new connections
//  2. Wait for in-flight requests (30s timeout)
//  3. Close the service, which writes any unsaved changes
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("state", s.config.StatePath),
			slog.Bool("auth", s.config.Tokens != nil),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	var serveErr error
	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("server error: %w", err)
		}

	case <-ctx.Done():
		s.logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			serveErr = fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.svc.Close(closeCtx); err != nil {
		return errors.Join(serveErr, fmt.Errorf("closing service: %w", err))
	}
	if serveErr == nil {
		s.logger.Info("server stopped gracefully")
	}
	return serveErr
}
