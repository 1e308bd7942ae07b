// fitsync runs one historical sync session against the FitGlue backend:
// either triggering/attaching to the server-side import job, or uploading
// local FIT files one by one. Ctrl-C cancels cooperatively.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ripixel/fitglue-sync/pkg/bootstrap"
	sentryutil "github.com/ripixel/fitglue-sync/pkg/infrastructure/sentry"
	"github.com/ripixel/fitglue-sync/pkg/statusapi"
	syncpkg "github.com/ripixel/fitglue-sync/pkg/sync"
	"github.com/ripixel/fitglue-sync/pkg/types"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file (optional)")
	source := flag.String("source", "remote_job", "Data source: remote_job or direct_upload")
	days := flag.Int("days", 0, "Days of history to import (overrides config)")
	flag.Parse()

	logger := bootstrap.NewLogger("fitsync")

	cfg, err := bootstrap.LoadConfig(*configPath)
	if err != nil {
		logger.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if *days > 0 {
		cfg.DaysBack = *days
	}

	ctx := context.Background()
	svc, err := bootstrap.NewService(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize service", "error", err)
		os.Exit(1)
	}
	defer sentryutil.Flush(2 * time.Second)

	dataSource := types.DataSource(*source)
	if dataSource == types.SourceDirectUpload && svc.Source == nil {
		logger.Error("direct_upload requires FITGLUE_WORKOUT_DIR")
		os.Exit(1)
	}

	orch := syncpkg.NewOrchestrator(svc.API, svc.API, svc.Source, svc.Reconciler, syncpkg.Config{
		DaysBack: cfg.DaysBack,
		Poller: syncpkg.PollerConfig{
			Interval:               cfg.PollInterval(),
			MaxConsecutiveFailures: cfg.MaxPollFailures,
			BackoffOnFailure:       cfg.PollBackoff,
		},
	}, logger)

	api := statusapi.NewServer(logger)
	if cfg.ListenAddr != "" {
		go api.ListenAndServe(cfg.ListenAddr)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		logger.Info("Interrupt received, cancelling sync")
		orch.Cancel()
	}()

	if err := orch.Start(dataSource); err != nil {
		logger.Error("Failed to start sync", "error", err)
		os.Exit(1)
	}

	exitCode := 0
	for u := range orch.Updates() {
		api.Publish(u)

		switch {
		case u.State == types.StateCompleted:
			r := u.Result
			logger.Info("Sync completed", "processed", r.Processed, "errored", r.Errored, "total", r.TotalFiles)
			if r.Errored > 0 {
				fmt.Printf("Synced %d of %d workouts (%d failed)\n", r.Processed, r.TotalFiles, r.Errored)
			} else {
				fmt.Printf("Synced %d workouts\n", r.Processed)
			}
			orch.Close()
		case u.State == types.StateFailed:
			logger.Error("Sync failed", "error", u.Err)
			exitCode = 1
			orch.Close()
		case u.State == types.StateCancelled:
			logger.Info("Sync cancelled")
			exitCode = 130
			orch.Close()
		default:
			logger.Info(u.Step,
				"state", string(u.State),
				"processed", u.Progress.Processed,
				"total", u.Progress.Total,
				"percent", fmt.Sprintf("%.0f", u.Progress.Percentage),
				"current_item", u.Progress.CurrentItem)
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(ctx, 2*time.Second)
	if err := api.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Status endpoint shutdown failed", "error", err)
	}
	cancelShutdown()

	os.Exit(exitCode)
}
