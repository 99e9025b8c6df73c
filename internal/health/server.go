package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"basis-alerts/internal/bus"
)

// Server exposes the health snapshot and bus statistics over HTTP.
type Server struct {
	monitor *Monitor
	bus     *bus.Bus
	logger  zerolog.Logger
	srv     *http.Server
}

// NewServer wires the status endpoints onto the given listen address.
func NewServer(addr string, monitor *Monitor, b *bus.Bus, logger zerolog.Logger) *Server {
	s := &Server{
		monitor: monitor,
		bus:     b,
		logger:  logger.With().Str("component", "health_server").Logger(),
	}

	mux := http.NewServeMux()
	mux.Handle("/healthz", http.HandlerFunc(s.handleHealthz))
	mux.Handle("/status", http.HandlerFunc(s.handleStatus))
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start serves in the background until Shutdown.
func (s *Server) Start() {
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("status server failed")
		}
	}()
	s.logger.Info().Str("addr", s.srv.Addr).Msg("status server listening")
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	snap := s.monitor.Snapshot()
	body := map[string]any{
		"started_at":     snap.StartedAt,
		"uptime_seconds": snap.Uptime.Seconds(),
		"sources":        snap.Sources,
	}
	if s.bus != nil {
		body["bus"] = s.bus.Stats()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error().Err(err).Msg("encode status response")
	}
}
