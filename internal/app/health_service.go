package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/vanviegen/lightlynx-sub001/internal/config"
	"github.com/vanviegen/lightlynx-sub001/internal/engine"
	"github.com/vanviegen/lightlynx-sub001/internal/ledger"
)

const defaultLedgerLimit = 50

// StatusFunc returns a snapshot of the automation engine.
type StatusFunc func(ctx context.Context) (engine.Status, error)

// HealthService provides HTTP health and introspection endpoints.
type HealthService struct {
	cfg    *config.Config
	ready  func() bool
	status StatusFunc
	ledger *ledger.Ledger // nil when disabled
	server *http.Server
}

// NewHealthService creates a new HealthService. l may be nil.
func NewHealthService(cfg *config.Config, ready func() bool, status StatusFunc, l *ledger.Ledger) *HealthService {
	return &HealthService{
		cfg:    cfg,
		ready:  ready,
		status: status,
		ledger: l,
	}
}

// Start begins the health check server if enabled.
func (s *HealthService) Start(ctx context.Context) {
	if !s.cfg.Healthcheck.Enabled {
		return
	}

	go s.run(ctx)
}

// Handler builds the HTTP routes.
func (s *HealthService) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})
	r.Get("/ready", s.handleReady)
	r.Get("/status", s.handleStatus)
	r.Get("/ledger", s.handleLedger)
	return r
}

func (s *HealthService) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil && !s.ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *HealthService) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.status == nil {
		writeError(w, http.StatusServiceUnavailable, "engine not started")
		return
	}
	status, err := s.status(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *HealthService) handleLedger(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		writeError(w, http.StatusNotFound, "ledger disabled")
		return
	}

	eventType := ledger.EventType(r.URL.Query().Get("type"))
	if eventType == "" {
		eventType = ledger.EventCommandSent
	}
	limit := defaultLedgerLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := s.ledger.GetByType(r.Context(), eventType, limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to query ledger")
		writeError(w, http.StatusInternalServerError, "ledger query failed")
		return
	}
	if entries == nil {
		entries = []*ledger.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *HealthService) run(ctx context.Context) {
	addr := fmt.Sprintf("%s:%d", s.cfg.Healthcheck.Host, s.cfg.Healthcheck.Port)

	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	log.Info().Str("addr", addr).Msg("Starting health check server")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Duration())
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Health check server shutdown error")
		}
	}()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("Health check server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
