// Package fitdir reads local workouts from a directory of FIT files,
// one workout per file. It is the WorkoutSource behind the direct-upload
// sync strategy.
package fitdir

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	shared "github.com/ripixel/fitglue-sync/pkg"
	"github.com/ripixel/fitglue-sync/pkg/types"
)

// ErrAccessDenied means the workout directory exists but cannot be read.
// Fatal to a sync session; there is no point retrying per item.
var ErrAccessDenied = errors.New("workout directory access denied")

// Source enumerates FIT files under a directory.
type Source struct {
	dir    string
	fanOut int
	logger *slog.Logger
}

// NewSource creates a Source over dir. fanOut bounds the number of files
// decoded concurrently; <= 0 uses the shared default.
func NewSource(dir string, fanOut int, logger *slog.Logger) *Source {
	if fanOut <= 0 {
		fanOut = shared.DefaultSourceFanOut
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		dir:    dir,
		fanOut: fanOut,
		logger: logger.With("component", "fitdir"),
	}
}

// ListWorkouts decodes every .fit file under the directory and returns the
// workouts whose start time falls inside [from, to), sorted by start time.
// Decoding fans out across a bounded worker group and joins before any
// result is returned, so callers see a single consistent slice.
//
// Files that fail to decode are skipped with a warning rather than failing
// the listing; a directory that cannot be read at all is fatal.
func (s *Source) ListWorkouts(ctx context.Context, from, to time.Time) ([]*types.Workout, error) {
	var paths []string
	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsPermission(err) {
				return fmt.Errorf("%w: %s", ErrAccessDenied, path)
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ".fit") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		if os.IsPermission(err) {
			return nil, fmt.Errorf("%w: %s", ErrAccessDenied, s.dir)
		}
		return nil, fmt.Errorf("walk workout directory: %w", err)
	}

	var mu sync.Mutex
	var workouts []*types.Workout

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.fanOut)

	for _, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			w, err := s.decodeFile(path)
			if err != nil {
				s.logger.Warn("Skipping unreadable FIT file", "file", path, "error", err)
				return nil
			}
			if w.StartTime.Before(from) || !w.StartTime.Before(to) {
				return nil
			}

			mu.Lock()
			workouts = append(workouts, w)
			mu.Unlock()
			return nil
		})
	}

	// Join before recording results; the caller is the single writer of
	// session state.
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(workouts, func(i, j int) bool {
		return workouts[i].StartTime.Before(workouts[j].StartTime)
	})
	return workouts, nil
}
