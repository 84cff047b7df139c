package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/elefantsql/elefant/internal/config"
	"github.com/elefantsql/elefant/internal/pgmetrics"
)

// Server is the HTTP status dashboard and metrics endpoint for a copy
// run, adapted from the teacher's internal/api.Server: same mux route
// table shape (status/config/metrics/dashboard), retargeted from tenant
// pool state to copy-run state.
type Server struct {
	tracker    atomic.Pointer[Tracker]
	collector  *pgmetrics.Collector
	cfg        config.Config
	httpServer *http.Server
	startTime  time.Time
}

// NewServer creates a Server reporting on tracker's progress and
// collector's metrics, describing the run configured by cfg.
func NewServer(tracker *Tracker, collector *pgmetrics.Collector, cfg config.Config) *Server {
	s := &Server{
		collector: collector,
		cfg:       cfg,
		startTime: time.Now(),
	}
	s.tracker.Store(tracker)
	return s
}

// Start begins serving on port in the background. It returns once the
// listener is registered with net/http, not once a connection arrives.
func (s *Server) Start(port int) error {
	r := mux.NewRouter()

	r.HandleFunc("/api/progress", s.statusHandler).Methods("GET")
	r.HandleFunc("/api/config", s.configHandler).Methods("GET")
	r.HandleFunc("/healthz", s.healthHandler).Methods("GET")

	if s.collector != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.collector.Registry, promhttp.HandlerOpts{}))
	}

	// Dashboard last, catch-all for "/".
	r.HandleFunc("/", s.dashboardHandler).Methods("GET")

	addr := fmt.Sprintf("0.0.0.0:%d", port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	log.Printf("[progress] dashboard listening on %s", addr)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[progress] server error: %v", err)
		}
	}()

	return nil
}

// SetTracker swaps the Tracker the dashboard reports on, for callers
// that start a fresh Tracker per run (e.g. cmd/elefantctl's --watch
// mode re-running the copy job on every config change).
func (s *Server) SetTracker(t *Tracker) {
	s.tracker.Store(t)
}

// Stop gracefully shuts the dashboard server down.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.tracker.Load().Snapshot())
}

func (s *Server) configHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"source":      s.cfg.Source.Redacted(),
		"destination": s.cfg.Destination.Redacted(),
	})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Load().Snapshot()
	if snap.Phase == PhaseFailed {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) dashboardHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderDashboard(w, s.tracker.Load().Snapshot(), s.cfg)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
