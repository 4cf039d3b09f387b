package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/rickgao/ercot-data/internal/scheduler"
	"github.com/rickgao/ercot-data/internal/version"
)

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StatusSource reports the most recent scheduled run.
type StatusSource interface {
	Last() (scheduler.RunStatus, bool)
	Next() time.Time
}

// Server exposes /health and /status.
type Server struct {
	instance string
	db       Pinger
	status   StatusSource
	logger   *slog.Logger
	started  time.Time

	router *mux.Router
	srv    *http.Server
}

// NewServer creates a Server. status may be nil when no scheduler runs.
func NewServer(instance string, db Pinger, status StatusSource, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		instance: instance,
		db:       db,
		status:   status,
		logger:   logger.With("component", "health"),
		started:  time.Now(),
	}

	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type healthResponse struct {
	Status     string            `json:"status"`
	Instance   string            `json:"instance"`
	Components map[string]string `json:"components"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := healthResponse{
		Status:     "healthy",
		Instance:   s.instance,
		Components: map[string]string{},
	}
	code := http.StatusOK

	if err := s.db.Ping(ctx); err != nil {
		s.logger.Warn("database ping failed", "error", err)
		resp.Status = "unhealthy"
		resp.Components["database"] = "disconnected: " + err.Error()
		code = http.StatusServiceUnavailable
	} else {
		resp.Components["database"] = "connected"
	}

	if s.status != nil {
		if last, ok := s.status.Last(); ok && !last.OK() && resp.Status == "healthy" {
			resp.Status = "degraded"
			resp.Components["last_run"] = "failed"
		}
	}

	writeJSON(w, code, resp)
}

type statusResponse struct {
	Instance string               `json:"instance"`
	Version  string               `json:"version"`
	Commit   string               `json:"commit"`
	Uptime   string               `json:"uptime"`
	NextRun  *time.Time           `json:"nextRun,omitempty"`
	LastRun  *scheduler.RunStatus `json:"lastRun,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{
		Instance: s.instance,
		Version:  version.Version,
		Commit:   version.Commit,
		Uptime:   time.Since(s.started).Round(time.Second).String(),
	}
	if s.status != nil {
		next := s.status.Next()
		resp.NextRun = &next
		if last, ok := s.status.Last(); ok {
			resp.LastRun = &last
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// Start serves on port in the background until Shutdown.
func (s *Server) Start(port int) {
	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		s.logger.Info("starting status server", "port", port)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("status server error", "error", err)
		}
	}()
}

// Shutdown stops a server started with Start.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
