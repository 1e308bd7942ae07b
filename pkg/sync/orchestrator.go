// Package sync implements the client-side orchestration of historical
// activity imports: trigger-then-poll against the backend's import job, or
// the synchronous per-workout upload path for sources without one.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	stdsync "sync"

	shared "github.com/ripixel/fitglue-sync/pkg"
	sentryutil "github.com/ripixel/fitglue-sync/pkg/infrastructure/sentry"
	"github.com/ripixel/fitglue-sync/pkg/types"
)

var (
	// ErrNoWorkoutsInRange means the direct-upload path found zero local
	// records in the requested window. Distinct from an upload failure.
	ErrNoWorkoutsInRange = errors.New("no workouts found in the requested range")

	// ErrAllUploadsFailed means every item of the direct-upload path
	// failed; the session has nothing to show for itself.
	ErrAllUploadsFailed = errors.New("all workout uploads failed")
)

// Config holds the orchestrator's knobs. Zero values fall back to the
// shared defaults.
type Config struct {
	// DaysBack is the size of the historical window, for both the remote
	// job trigger and the direct-upload enumeration.
	DaysBack int

	Poller PollerConfig
}

func (c Config) withDefaults() Config {
	if c.DaysBack <= 0 {
		c.DaysBack = shared.DefaultDaysBack
	}
	return c
}

// Orchestrator drives one sync session at a time. It chooses a strategy
// per data source, guarantees no duplicate remote job is ever triggered
// for the same logical request, and reconciles the local cache exactly
// once on completion.
//
// All session state is published through the Updates channel by a single
// writer goroutine; consumers subscribe rather than read shared fields.
type Orchestrator struct {
	jobs       shared.JobStatusClient
	uploads    shared.ItemUploadClient
	source     shared.WorkoutSource
	reconciler shared.Reconciler
	cfg        Config
	logger     *slog.Logger

	// startMu serializes the whole cancel-await-install sequence of Start
	// (and Close), so two Starts can never observe the same predecessor and
	// both spawn a session. mu alone guards the fields for short reads.
	startMu stdsync.Mutex

	mu      stdsync.Mutex
	active  *session
	closed  bool
	updates chan Update
}

// NewOrchestrator wires the orchestrator's collaborators explicitly; there
// is no service-locator fallback. source may be nil if the direct-upload
// strategy is never used, and vice versa for jobs.
func NewOrchestrator(
	jobs shared.JobStatusClient,
	uploads shared.ItemUploadClient,
	source shared.WorkoutSource,
	reconciler shared.Reconciler,
	cfg Config,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		jobs:       jobs,
		uploads:    uploads,
		source:     source,
		reconciler: reconciler,
		cfg:        cfg.withDefaults(),
		logger:     logger.With("component", "orchestrator"),
		updates:    make(chan Update, 16),
	}
}

// Updates is the serialized channel of session snapshots. The terminal
// update of a session is always the last one published for it.
func (o *Orchestrator) Updates() <-chan Update {
	return o.updates
}

// Start begins a new session for the given data source. If a session is
// already active it is cancelled and awaited first (cancel-then-restart),
// so there is never more than one writer publishing updates.
func (o *Orchestrator) Start(source types.DataSource) error {
	switch source {
	case types.SourceRemoteJob, types.SourceDirectUpload:
	default:
		return fmt.Errorf("unknown data source %q", source)
	}

	o.startMu.Lock()
	defer o.startMu.Unlock()

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return errors.New("orchestrator is closed")
	}
	prev := o.active
	o.mu.Unlock()

	if prev != nil {
		o.logger.Info("Cancelling active session before restart", "session_id", prev.id)
		prev.cancel()
		<-prev.done
	}

	ctx, cancel := context.WithCancel(context.Background())
	sess := newSession(source, cancel)

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		cancel()
		close(sess.done)
		return errors.New("orchestrator is closed")
	}
	o.active = sess
	o.mu.Unlock()

	o.logger.Info("Sync session started", "session_id", sess.id, "source", string(source))
	go o.run(ctx, sess)
	return nil
}

// Cancel requests cooperative cancellation of the active session, if any.
// The session observes it at its next check point; no further network
// calls are made after that.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	sess := o.active
	o.mu.Unlock()
	if sess != nil {
		sess.cancel()
	}
}

// Close cancels any active session, waits for it to finish, and releases
// the updates channel.
func (o *Orchestrator) Close() {
	o.startMu.Lock()
	defer o.startMu.Unlock()

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	sess := o.active
	o.mu.Unlock()

	if sess != nil {
		sess.cancel()
		<-sess.done
	}
	close(o.updates)
}

// run executes one session to its terminal state. It is the only writer
// of updates while it lives.
func (o *Orchestrator) run(ctx context.Context, s *session) {
	defer close(s.done)
	defer s.cancel()

	logger := o.logger.With("session_id", s.id)

	var result *types.SyncResult
	var err error
	var progress types.ProgressState

	switch s.source {
	case types.SourceRemoteJob:
		result, progress, err = o.runRemoteJob(ctx, s, logger)
	case types.SourceDirectUpload:
		result, progress, err = o.runDirectUpload(ctx, s, logger)
	}

	switch {
	case err != nil && (errors.Is(err, context.Canceled) || ctx.Err() != nil):
		// Cancellation is not an error: no payload, no reconciliation.
		s.transition(types.StateCancelled)
		logger.Info("Sync session cancelled")
		o.publish(Update{SessionID: s.id, Source: s.source, State: s.state, Step: "Cancelled", Progress: progress})

	case err != nil:
		o.fail(s, progress, err, logger)

	default:
		// Reconciliation runs after the terminal status is known and
		// before completed becomes observable.
		if rerr := o.reconciler.Refresh(ctx); rerr != nil {
			if ctx.Err() != nil {
				s.transition(types.StateCancelled)
				logger.Info("Sync session cancelled during reconciliation")
				o.publish(Update{SessionID: s.id, Source: s.source, State: s.state, Step: "Cancelled", Progress: progress})
				return
			}
			o.fail(s, progress, fmt.Errorf("refresh activity cache: %w", rerr), logger)
			return
		}
		s.transition(types.StateCompleted)
		logger.Info("Sync session completed",
			"processed", result.Processed, "errored", result.Errored, "total", result.TotalFiles)
		o.publish(Update{
			SessionID: s.id,
			Source:    s.source,
			State:     s.state,
			Step:      "Completed",
			Progress:  progress,
			Result:    result,
		})
	}
}

func (o *Orchestrator) fail(s *session, progress types.ProgressState, err error, logger *slog.Logger) {
	s.transition(types.StateFailed)
	logger.Error("Sync session failed", "error", err)
	sentryutil.CaptureException(err, map[string]interface{}{
		"session_id": s.id,
		"source":     string(s.source),
	}, logger)
	o.publish(Update{SessionID: s.id, Source: s.source, State: s.state, Step: "Failed", Progress: progress, Err: err})
}

// runRemoteJob is the trigger-then-poll strategy. The status check comes
// first so a job already running (previous session, another device, a
// retry) is attached to rather than duplicated. A conflict on trigger is
// the same situation arriving late and also falls through to polling.
func (o *Orchestrator) runRemoteJob(ctx context.Context, s *session, logger *slog.Logger) (*types.SyncResult, types.ProgressState, error) {
	var progress types.ProgressState

	o.setState(s, types.StateCheckingStatus, "Checking import status", progress)
	status, err := o.jobs.GetImportStatus(ctx)
	if err != nil {
		return nil, progress, fmt.Errorf("check import status: %w", err)
	}

	if status.Job.InProgress {
		logger.Info("Import job already running, attaching")
	} else {
		o.setState(s, types.StateTriggering, "Starting historical import", progress)
		accepted, terr := o.jobs.TriggerHistoricalImport(ctx, o.cfg.DaysBack)
		if terr != nil {
			var trigger *types.TriggerError
			if errors.As(terr, &trigger) && trigger.IsConflict() {
				// A concurrent trigger won the race between our status
				// check and the trigger call. Observe the winning job
				// instead of failing the session.
				logger.Info("Trigger conflict, attaching to running job")
			} else {
				return nil, progress, fmt.Errorf("trigger historical import: %w", terr)
			}
		} else if accepted.EstimatedDuration > 0 {
			logger.Info("Import job accepted", "estimated_duration", accepted.EstimatedDuration.String())
		}
	}

	o.setState(s, types.StatePolling, "Importing activities", progress)
	poller := NewStatusPoller(o.jobs, o.cfg.Poller, logger)
	result, err := poller.Run(ctx, func(p types.ProgressState) {
		progress = p
		o.publishProgress(s, p)
	})
	if err != nil {
		return nil, progress, err
	}
	return result, progress, nil
}

// runDirectUpload enumerates local workouts for the window and uploads
// them one by one, continuing past individual failures.
func (o *Orchestrator) runDirectUpload(ctx context.Context, s *session, logger *slog.Logger) (*types.SyncResult, types.ProgressState, error) {
	var progress types.ProgressState

	o.setState(s, types.StateUploading, "Reading local workouts", progress)

	to := time.Now().UTC()
	from := to.AddDate(0, 0, -o.cfg.DaysBack)
	workouts, err := o.source.ListWorkouts(ctx, from, to)
	if err != nil {
		return nil, progress, fmt.Errorf("list local workouts: %w", err)
	}
	if len(workouts) == 0 {
		return nil, progress, ErrNoWorkoutsInRange
	}

	total := len(workouts)
	processed, errored := 0, 0

	for _, w := range workouts {
		// Cooperative check point before each upload call.
		if cerr := ctx.Err(); cerr != nil {
			return nil, progress, cerr
		}

		progress = types.ProgressState{
			Processed:   processed + errored,
			Total:       total,
			Percentage:  float64(processed+errored) / float64(total) * 100,
			CurrentItem: w.Name,
		}
		o.publishProgress(s, progress)

		if uerr := o.uploads.UploadWorkout(ctx, w); uerr != nil {
			if ctx.Err() != nil {
				return nil, progress, ctx.Err()
			}
			errored++
			logger.Warn("Workout upload failed", "workout", w.Name, "file", w.SourceFile, "error", uerr)
			continue
		}
		processed++
	}

	progress = types.ProgressState{
		Processed:  processed + errored,
		Total:      total,
		Percentage: 100,
	}
	o.publishProgress(s, progress)

	if processed == 0 {
		return nil, progress, fmt.Errorf("%w: %d of %d", ErrAllUploadsFailed, errored, total)
	}
	return &types.SyncResult{Processed: processed, Errored: errored, TotalFiles: total}, progress, nil
}

func (o *Orchestrator) setState(s *session, next types.SessionState, step string, progress types.ProgressState) {
	if !s.transition(next) {
		return
	}
	o.publish(Update{SessionID: s.id, Source: s.source, State: s.state, Step: step, Progress: progress})
}

func (o *Orchestrator) publishProgress(s *session, p types.ProgressState) {
	step := "Importing activities"
	if s.source == types.SourceDirectUpload {
		step = "Uploading workouts"
	}
	o.publish(Update{SessionID: s.id, Source: s.source, State: s.state, Step: step, Progress: p})
}

// publish never blocks the session goroutine: when the buffer is full the
// oldest update is dropped, so a slow consumer sees a gappy but ordered
// stream and the terminal update is always the newest element.
func (o *Orchestrator) publish(u Update) {
	for {
		select {
		case o.updates <- u:
			return
		default:
			select {
			case <-o.updates:
			default:
			}
		}
	}
}
