package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hearthdata/market-engine/internal/dataset"
	"github.com/hearthdata/market-engine/internal/domain"
	"github.com/hearthdata/market-engine/internal/query"
)

// MarketLooker answers address queries. Implemented by query.Service.
type MarketLooker interface {
	Lookup(ctx context.Context, req query.LookupRequest) (*query.LookupResult, error)
}

// Refresher re-checks every dataset family for new data. Implemented by
// dataset.Store.
type Refresher interface {
	Refresh(ctx context.Context) (*dataset.Report, error)
}

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// Server exposes the market query API plus health, readiness, and metrics
// endpoints.
type Server struct {
	httpServer *http.Server
	lookups    MarketLooker
	refresher  Refresher
	logger     *slog.Logger
}

// NewServer wires all routes onto a fresh mux.
func NewServer(addr string, lookups MarketLooker, refresher Refresher, ready ReadinessChecker, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		lookups:   lookups,
		refresher: refresher,
		logger:    logger,
	}

	mux.HandleFunc("GET /api/market", s.handleMarket)
	mux.HandleFunc("POST /api/refresh", s.handleRefresh)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

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

// handleMarket serves GET /api/market?address=...&region=...&fields=a,b.
// A query that matched no region returns 200 with unavailable=true; only a
// malformed request or an unloadable primary dataset is an error status.
func (s *Server) handleMarket(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := query.LookupRequest{
		Address: q.Get("address"),
		Region:  q.Get("region"),
	}
	if raw := q.Get("fields"); raw != "" {
		req.Fields = strings.Split(raw, ",")
	}

	result, err := s.lookups.Lookup(r.Context(), req)
	if err != nil {
		if errors.Is(err, domain.ErrEmptyAddress) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "address or region query parameter is required",
			})
			return
		}
		s.logger.Error("market lookup failed", "address", req.Address, "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "market data is temporarily unavailable",
		})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleRefresh serves POST /api/refresh. Concurrent calls are coalesced by
// the store; every caller receives the shared report.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	report, err := s.refresher.Refresh(r.Context())
	if err != nil {
		s.logger.Error("dataset refresh failed", "error", err)
		if report != nil {
			// Partial outcome: auxiliary families may still have succeeded.
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"error":  err.Error(),
				"report": report,
			})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response write
}
