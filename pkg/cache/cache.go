// Package cache maintains the local unified activity cache: a JSON file
// of synchronized activities fetched from the backend. Refresh is the
// reconciliation step the orchestrator runs after a completed session.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ripixel/fitglue-sync/pkg/integrations/fitglue"
)

// ActivityLister is the slice of the backend client the cache needs.
type ActivityLister interface {
	ListActivities(ctx context.Context, since time.Time) ([]fitglue.Activity, error)
}

// File is the on-disk cache format.
type File struct {
	RefreshedAt time.Time          `json:"refreshed_at"`
	Activities  []fitglue.Activity `json:"activities"`
}

// Refresher implements the reconciliation port by re-fetching the
// activity list and rewriting the cache file.
type Refresher struct {
	path   string
	window time.Duration // how far back to fetch on each refresh
	api    ActivityLister
	logger *slog.Logger
}

func NewRefresher(path string, window time.Duration, api ActivityLister, logger *slog.Logger) *Refresher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresher{
		path:   path,
		window: window,
		api:    api,
		logger: logger.With("component", "cache"),
	}
}

// Refresh re-fetches activities for the window and atomically replaces the
// cache file. Called exactly once per completed sync session.
func (r *Refresher) Refresh(ctx context.Context) error {
	since := time.Time{}
	if r.window > 0 {
		since = time.Now().UTC().Add(-r.window)
	}

	activities, err := r.api.ListActivities(ctx, since)
	if err != nil {
		return fmt.Errorf("fetch activities: %w", err)
	}

	file := File{
		RefreshedAt: time.Now().UTC(),
		Activities:  activities,
	}
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache: %w", err)
	}

	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write cache: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("replace cache: %w", err)
	}

	r.logger.Info("Activity cache refreshed", "activities", len(activities), "path", r.path)
	return nil
}

// Load reads the cache file. A missing file returns an empty cache rather
// than an error; the first refresh creates it.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &File{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cache: %w", err)
	}

	var file File
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse cache: %w", err)
	}
	return &file, nil
}
