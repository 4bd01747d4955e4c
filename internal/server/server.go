package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"labmonitor/internal/history"
	"labmonitor/internal/metrics"
	"labmonitor/internal/monitor"
	"labmonitor/pkg/logger"
)

const defaultHistoryLimit = 50

// Server wraps HTTP serving of the monitoring API.
type Server struct {
	httpServer *http.Server
	monitor    *monitor.Monitor
	relay      *Relay
	rec        *metrics.Recorder
	log        logger.Logger
}

// New creates a configured HTTP server for the monitor.
func New(addr string, mon *monitor.Monitor, relay *Relay, rec *metrics.Recorder, log logger.Logger) *Server {
	mux := http.NewServeMux()
	s := &Server{
		httpServer: &http.Server{Addr: addr, Handler: mux},
		monitor:    mon,
		relay:      relay,
		rec:        rec,
		log:        log,
	}
	s.registerRoutes(mux)
	return s
}

// Handler exposes the route table, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run blocks and serves HTTP traffic.
func (s *Server) Run() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts the server down.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/status", s.handleStatusAll)
	mux.HandleFunc("/api/status/", s.handleStatusOne)
	mux.HandleFunc("/api/history", s.handleHistoryAll)
	mux.HandleFunc("/api/history/", s.handleHistoryOne)
	mux.HandleFunc("/api/uptime", s.handleUptime)
	mux.HandleFunc("/api/summary", s.handleSummary)
	mux.HandleFunc("/api/check/", s.handleForceCheck)
	mux.HandleFunc("/api/services", s.handleServices)
	mux.HandleFunc("/api/events", s.handleEvents)
	if s.relay != nil {
		mux.Handle("/api/health-proxy", s.relay)
	}
	if s.rec != nil {
		mux.Handle("/metrics", s.rec.Handler())
	}
}

func (s *Server) handleStatusAll(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.CurrentAll())
}

func (s *Server) handleStatusOne(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/status/")
	result, ok := s.monitor.Current(id)
	if !ok {
		http.Error(w, "no data for service", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHistoryAll(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, defaultHistoryLimit)
	runs := s.monitor.Histories()
	for id, run := range runs {
		if len(run) > limit {
			runs[id] = run[len(run)-limit:]
		}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleHistoryOne(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/history/")
	limit := parseLimit(r, defaultHistoryLimit)
	run := s.monitor.HistoryFor(id)
	if run == nil {
		http.Error(w, "no data for service", http.StatusNotFound)
		return
	}
	if len(run) > limit {
		run = run[len(run)-limit:]
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleUptime(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, history.ComputeServiceUptime(s.monitor.Histories()))
}

func (s *Server) handleSummary(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.Summary())
}

func (s *Server) handleServices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.Services())
}

func (s *Server) handleForceCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/check/")
	result, err := s.monitor.ForceHealthCheck(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func parseLimit(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}
