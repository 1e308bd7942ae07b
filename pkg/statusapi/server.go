// Package statusapi exposes the current sync session snapshot over a
// small local HTTP endpoint, for widgets and shell tooling that want to
// watch a running sync without attaching to its process.
package statusapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	stdsync "sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ripixel/fitglue-sync/pkg/sync"
	"github.com/ripixel/fitglue-sync/pkg/types"
)

// snapshot is the JSON shape served to clients.
type snapshot struct {
	SessionID   string             `json:"session_id,omitempty"`
	Source      string             `json:"source,omitempty"`
	State       types.SessionState `json:"state"`
	Step        string             `json:"step,omitempty"`
	Processed   int                `json:"processed_count"`
	Total       int                `json:"total_count"`
	Percentage  float64            `json:"progress_percentage"`
	CurrentItem string             `json:"current_item,omitempty"`
	Result      *types.SyncResult  `json:"result,omitempty"`
	Error       string             `json:"error,omitempty"`
}

// Server holds the latest published update. It is fed by whoever consumes
// the orchestrator's update channel; the channel itself stays
// single-consumer.
type Server struct {
	logger *slog.Logger

	mu     stdsync.RWMutex
	latest snapshot
	srv    *http.Server
}

func NewServer(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		logger: logger.With("component", "statusapi"),
		latest: snapshot{State: types.StateIdle},
	}
}

// Publish records an update as the latest snapshot.
func (s *Server) Publish(u sync.Update) {
	snap := snapshot{
		SessionID:   u.SessionID,
		Source:      string(u.Source),
		State:       u.State,
		Step:        u.Step,
		Processed:   u.Progress.Processed,
		Total:       u.Progress.Total,
		Percentage:  u.Progress.Percentage,
		CurrentItem: u.Progress.CurrentItem,
		Result:      u.Result,
	}
	if u.Err != nil {
		snap.Error = u.Err.Error()
	}

	s.mu.Lock()
	s.latest = snap
	s.mu.Unlock()
}

// Handler returns the HTTP handler serving GET /status.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/status", s.handleStatus)
	return r
}

func (s *Server) handleStatus(w http.ResponseWriter, req *http.Request) {
	s.mu.RLock()
	snap := s.latest
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		s.logger.Error("Failed to encode status", "error", err)
	}
}

// ListenAndServe serves the status endpoint until Shutdown is called or
// the listener fails. Meant to run in its own goroutine; errors are
// logged, not fatal to the sync itself.
func (s *Server) ListenAndServe(addr string) {
	srv := &http.Server{Addr: addr, Handler: s.Handler()}
	s.mu.Lock()
	s.srv = srv
	s.mu.Unlock()

	s.logger.Info("Status endpoint listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("Status endpoint stopped", "error", err)
	}
}

// Shutdown gracefully stops the status endpoint. A no-op when the
// endpoint was never started.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
