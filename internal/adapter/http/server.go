package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/couchcryptid/town-data-etl/internal/domain"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// TownReader looks up the latest snapshot of a town.
type TownReader interface {
	GetLatest(ctx context.Context, nameLower string) (*domain.Town, error)
}

// Server exposes health, readiness, metrics, and town lookup endpoints.
type Server struct {
	httpServer *http.Server
	towns      TownReader
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics, and
// /towns/{name} routes.
func NewServer(addr string, ready sharedobs.ReadinessChecker, towns TownReader, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		towns:  towns,
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /towns/{name}", s.handleTown)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleTown(w http.ResponseWriter, r *http.Request) {
	name := domain.NormalizeKey(r.PathValue("name"))
	if name == "" {
		sharedobs.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "town name is required"})
		return
	}

	town, err := s.towns.GetLatest(r.Context(), name)
	if err != nil {
		s.logger.Error("town lookup failed", "town", name, "error", err)
		sharedobs.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "lookup failed"})
		return
	}
	if town == nil {
		sharedobs.WriteJSON(w, http.StatusNotFound, map[string]string{"error": "town not found"})
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, town)
}
