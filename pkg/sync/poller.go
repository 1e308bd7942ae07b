package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	shared "github.com/ripixel/fitglue-sync/pkg"
	"github.com/ripixel/fitglue-sync/pkg/types"
)

// PollerConfig controls the status poll loop. The zero value gives the
// baseline behavior: a fixed 5 second interval with no backoff and a bound
// of 12 consecutive transport failures.
type PollerConfig struct {
	// Interval is the wait between status calls.
	Interval time.Duration

	// MaxConsecutiveFailures is the number of back-to-back transport
	// failures tolerated before the poll fails the session. A successful
	// status read resets the count.
	MaxConsecutiveFailures int

	// BackoffOnFailure stretches the wait exponentially after each
	// transport failure, capped at MaxBackoffInterval. The interval
	// returns to Interval on the next successful read.
	BackoffOnFailure   bool
	MaxBackoffInterval time.Duration
}

func (c PollerConfig) withDefaults() PollerConfig {
	if c.Interval <= 0 {
		c.Interval = shared.DefaultPollInterval
	}
	if c.MaxConsecutiveFailures <= 0 {
		c.MaxConsecutiveFailures = shared.DefaultMaxPollFailures
	}
	if c.MaxBackoffInterval <= 0 {
		c.MaxBackoffInterval = time.Minute
	}
	return c
}

// StatusPoller turns repeated GetImportStatus calls into intermediate
// ProgressState emissions and a terminal SyncResult. It owns the only
// sleep in the sync core.
type StatusPoller struct {
	client shared.JobStatusClient
	cfg    PollerConfig
	logger *slog.Logger

	maxPct float64
}

func NewStatusPoller(client shared.JobStatusClient, cfg PollerConfig, logger *slog.Logger) *StatusPoller {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusPoller{
		client: client,
		cfg:    cfg.withDefaults(),
		logger: logger.With("component", "poller"),
	}
}

// Run polls until the job reports in_progress=false, the context is
// cancelled, or the transport failure bound is exceeded. emit receives a
// ProgressState after every successful status read, terminal one included.
//
// Cancellation has priority over issuing another network call: it is
// checked before every sleep and again after the timer fires.
func (p *StatusPoller) Run(ctx context.Context, emit func(types.ProgressState)) (*types.SyncResult, error) {
	var bo *backoff.ExponentialBackOff
	if p.cfg.BackoffOnFailure {
		bo = backoff.NewExponentialBackOff()
		bo.InitialInterval = p.cfg.Interval
		bo.MaxInterval = p.cfg.MaxBackoffInterval
	}

	wait := p.cfg.Interval
	failures := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		// A cancel that raced the timer still wins over the network call.
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		status, err := p.client.GetImportStatus(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			failures++
			if failures >= p.cfg.MaxConsecutiveFailures {
				return nil, fmt.Errorf("import status unavailable after %d attempts: %w", failures, err)
			}
			p.logger.Warn("Status poll failed, retrying", "error", err, "attempt", failures)
			if bo != nil {
				wait = bo.NextBackOff()
			}
			continue
		}

		failures = 0
		if bo != nil {
			bo.Reset()
			wait = p.cfg.Interval
		}

		progress := p.observe(status.Job)
		emit(progress)

		if !status.Job.InProgress {
			return terminalResult(status), nil
		}
	}
}

// observe maps a raw job status into a ProgressState, clamping the
// percentage to the session's running maximum so a server that reports
// regressed progress never moves the bar backwards.
func (p *StatusPoller) observe(job types.JobStatus) types.ProgressState {
	progress := types.ProgressState{CurrentItem: job.CurrentItem}
	if job.ProcessedCount != nil {
		progress.Processed = *job.ProcessedCount
	}
	if job.TotalCount != nil {
		progress.Total = *job.TotalCount
	}

	pct := 0.0
	switch {
	case job.ProgressPercentage != nil:
		pct = *job.ProgressPercentage
	case progress.Total > 0:
		pct = float64(progress.Processed) / float64(progress.Total) * 100
	}
	if pct < p.maxPct {
		pct = p.maxPct
	}
	p.maxPct = pct
	progress.Percentage = pct

	return progress
}

// terminalResult builds the final SyncResult from the richest source
// available: the server's per-run summary when present, otherwise the raw
// status counts. The protocol does not report per-item errors mid-poll,
// so the fallback carries zero errors.
func terminalResult(status *types.ImportStatus) *types.SyncResult {
	if s := status.LastSummary; s != nil {
		return &types.SyncResult{
			Processed:  s.Processed,
			Errored:    s.Errored,
			TotalFiles: s.TotalFiles,
		}
	}

	total := 0
	if status.Job.TotalCount != nil {
		total = *status.Job.TotalCount
	}
	processed := total
	if status.Job.ProcessedCount != nil {
		processed = *status.Job.ProcessedCount
	}
	return &types.SyncResult{Processed: processed, Errored: 0, TotalFiles: total}
}
