package shared

import (
	"context"
	"time"

	"github.com/ripixel/fitglue-sync/pkg/types"
)

// --- Backend Interfaces ---

// JobStatusClient talks to the server-side historical-import job. Status
// reads are idempotent and safe to call repeatedly; neither operation
// retries on its own.
type JobStatusClient interface {
	// TriggerHistoricalImport asks the server to start a new import job
	// covering the last daysBack days. A *types.TriggerError with the
	// conflict code means a job is already running.
	TriggerHistoricalImport(ctx context.Context, daysBack int) (*types.JobAccepted, error)

	GetImportStatus(ctx context.Context) (*types.ImportStatus, error)
}

// ItemUploadClient uploads one local workout per call. No batching
// semantics are assumed by the sync core.
type ItemUploadClient interface {
	UploadWorkout(ctx context.Context, w *types.Workout) error
}

// --- Local Data Interfaces ---

// WorkoutSource enumerates local workout records inside a date window.
type WorkoutSource interface {
	ListWorkouts(ctx context.Context, from, to time.Time) ([]*types.Workout, error)
}

// Reconciler refreshes locally cached derived data after a sync session's
// authoritative source has finished. The sync core only calls it.
type Reconciler interface {
	Refresh(ctx context.Context) error
}
