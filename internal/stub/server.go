// Package stub implements a development stand-in for both external
// collaborators of the signing client: the remote signing server and the
// local signing agent. It lets the client run end-to-end with deterministic
// fake data, no real signing server and no hardware token.
package stub

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/esign-networks/invoice-signer/app/internal/config"
)

type Server struct {
	config *config.StubEnvironment
	logger *slog.Logger
	router *chi.Mux
	store  *memoryStore
}

func NewServer(cfg *config.StubEnvironment, logger *slog.Logger) *Server {
	server := &Server{
		config: cfg,
		logger: logger,
		router: chi.NewRouter(),
		store:  newMemoryStore(),
	}

	server.setupMiddleware()
	server.registerRoutes()

	return server
}

// Router exposes the handler tree (used by tests).
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))
	s.router.Use(RequestLogging(s.logger))
	s.router.Use(RequestSizeLimit(s.config.MaxRequestBytes))
	s.router.Use(SecurityHeaders(s.config.Environment))
}

func (s *Server) registerRoutes() {
	s.router.Get("/health", s.handleHealth)

	// remote signing server surface
	s.router.Post("/api/sign/{documentIdentifier}/accept", s.handleAccept)
	s.router.Post("/api/sign/{documentIdentifier}/prepare", s.handlePrepare)
	s.router.Post("/api/sign/{documentIdentifier}/complete", s.handleComplete)
	s.router.Get("/sign/{documentIdentifier}/invoices/{invoiceId}/pdf", s.handleInvoicePDF)

	// local agent surface
	s.router.Get("/api/certificates", s.handleCertificates)
	s.router.Post("/api/certificates/signe", s.handleSign)
}

func (s *Server) Start(ctx context.Context) error {
	serverAddr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	httpServer := &http.Server{
		Addr:         serverAddr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("stub listening",
			slog.String("environment", s.config.Environment),
			slog.String("address", serverAddr))

		err := httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			serverErrors <- fmt.Errorf("server failed to start: %w", err)
		}
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), s.config.ServerShutdownTimeout)
	defer shutdownCancel()

	err := httpServer.Shutdown(shutdownCtx)
	if err != nil {
		s.logger.Warn("HTTP server shutdown error",
			slog.String("error", err.Error()))
		return fmt.Errorf("HTTP server shutdown failed: %w", err)
	}

	s.logger.Info("HTTP server shutdown complete")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}
