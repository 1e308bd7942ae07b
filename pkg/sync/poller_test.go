package sync_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ripixel/fitglue-sync/pkg/testing/mocks"
	"github.com/ripixel/fitglue-sync/pkg/types"

	syncpkg "github.com/ripixel/fitglue-sync/pkg/sync"
)

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }

func inProgress(pct *float64) types.JobStatus {
	return types.JobStatus{InProgress: true, ProgressPercentage: pct}
}

// fastPoller returns a poller config that keeps tests quick.
func fastPoller() syncpkg.PollerConfig {
	return syncpkg.PollerConfig{Interval: time.Millisecond}
}

func TestPoller_CompletesOnTerminalStatus(t *testing.T) {
	calls := 0
	client := &mocks.MockJobStatusClient{
		GetImportStatusFunc: func(ctx context.Context) (*types.ImportStatus, error) {
			calls++
			if calls < 3 {
				return &types.ImportStatus{Job: types.JobStatus{
					InProgress:     true,
					ProcessedCount: intPtr(calls * 10),
					TotalCount:     intPtr(30),
				}}, nil
			}
			return &types.ImportStatus{
				Job:         types.JobStatus{InProgress: false},
				LastSummary: &types.JobSummary{Processed: 28, Errored: 2, TotalFiles: 30},
			}, nil
		},
	}

	poller := syncpkg.NewStatusPoller(client, fastPoller(), nil)
	result, err := poller.Run(context.Background(), func(types.ProgressState) {})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.Processed != 28 || result.Errored != 2 || result.TotalFiles != 30 {
		t.Errorf("Expected summary result {28 2 30}, got %+v", result)
	}
}

func TestPoller_ProgressMonotonicity(t *testing.T) {
	// Server reports regressed progress: 40, 35, 60.
	percentages := []*float64{floatPtr(40), floatPtr(35), floatPtr(60)}
	calls := 0
	client := &mocks.MockJobStatusClient{
		GetImportStatusFunc: func(ctx context.Context) (*types.ImportStatus, error) {
			if calls < len(percentages) {
				status := &types.ImportStatus{Job: inProgress(percentages[calls])}
				calls++
				return status, nil
			}
			return &types.ImportStatus{Job: types.JobStatus{InProgress: false}}, nil
		},
	}

	var emitted []float64
	poller := syncpkg.NewStatusPoller(client, fastPoller(), nil)
	if _, err := poller.Run(context.Background(), func(p types.ProgressState) {
		emitted = append(emitted, p.Percentage)
	}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(emitted) < 3 {
		t.Fatalf("Expected at least 3 emissions, got %d", len(emitted))
	}
	want := []float64{40, 40, 60}
	for i, w := range want {
		if emitted[i] != w {
			t.Errorf("Emission %d: expected %.0f, got %.0f", i, w, emitted[i])
		}
	}
	for i := 1; i < len(emitted); i++ {
		if emitted[i] < emitted[i-1] {
			t.Errorf("Progress regressed at emission %d: %.0f -> %.0f", i, emitted[i-1], emitted[i])
		}
	}
}

func TestPoller_DerivesPercentageFromCounts(t *testing.T) {
	calls := 0
	client := &mocks.MockJobStatusClient{
		GetImportStatusFunc: func(ctx context.Context) (*types.ImportStatus, error) {
			calls++
			if calls == 1 {
				return &types.ImportStatus{Job: types.JobStatus{
					InProgress:     true,
					ProcessedCount: intPtr(25),
					TotalCount:     intPtr(50),
				}}, nil
			}
			return &types.ImportStatus{Job: types.JobStatus{InProgress: false}}, nil
		},
	}

	var first types.ProgressState
	poller := syncpkg.NewStatusPoller(client, fastPoller(), nil)
	done := false
	if _, err := poller.Run(context.Background(), func(p types.ProgressState) {
		if !done {
			first = p
			done = true
		}
	}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if first.Percentage != 50 {
		t.Errorf("Expected derived percentage 50, got %.0f", first.Percentage)
	}
}

func TestPoller_CancellationPrecedesNetworkCall(t *testing.T) {
	var calls atomic.Int32
	client := &mocks.MockJobStatusClient{
		GetImportStatusFunc: func(ctx context.Context) (*types.ImportStatus, error) {
			calls.Add(1)
			return &types.ImportStatus{Job: types.JobStatus{InProgress: true}}, nil
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancelled before the first scheduled tick

	poller := syncpkg.NewStatusPoller(client, syncpkg.PollerConfig{Interval: 50 * time.Millisecond}, nil)
	_, err := poller.Run(ctx, func(types.ProgressState) {})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if calls.Load() != 0 {
		t.Errorf("Expected no status calls after cancellation, got %d", calls.Load())
	}
}

func TestPoller_RetriesTransientErrors(t *testing.T) {
	calls := 0
	client := &mocks.MockJobStatusClient{
		GetImportStatusFunc: func(ctx context.Context) (*types.ImportStatus, error) {
			calls++
			if calls <= 2 {
				return nil, errors.New("connection reset")
			}
			return &types.ImportStatus{
				Job: types.JobStatus{InProgress: false, ProcessedCount: intPtr(5), TotalCount: intPtr(5)},
			}, nil
		},
	}

	poller := syncpkg.NewStatusPoller(client, fastPoller(), nil)
	result, err := poller.Run(context.Background(), func(types.ProgressState) {})
	if err != nil {
		t.Fatalf("Expected recovery after transient errors, got %v", err)
	}
	if result.Processed != 5 {
		t.Errorf("Expected 5 processed, got %d", result.Processed)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
}

func TestPoller_FailsAfterConsecutiveErrors(t *testing.T) {
	calls := 0
	client := &mocks.MockJobStatusClient{
		GetImportStatusFunc: func(ctx context.Context) (*types.ImportStatus, error) {
			calls++
			return nil, errors.New("gateway timeout")
		},
	}

	cfg := syncpkg.PollerConfig{Interval: time.Millisecond, MaxConsecutiveFailures: 3}
	poller := syncpkg.NewStatusPoller(client, cfg, nil)
	_, err := poller.Run(context.Background(), func(types.ProgressState) {})
	if err == nil {
		t.Fatal("Expected error after exceeding failure bound")
	}
	if calls != 3 {
		t.Errorf("Expected exactly 3 attempts, got %d", calls)
	}
}

func TestPoller_FallbackResultWithoutSummary(t *testing.T) {
	tests := []struct {
		name   string
		status types.JobStatus
		want   types.SyncResult
	}{
		{
			name:   "no counts at all",
			status: types.JobStatus{InProgress: false},
			want:   types.SyncResult{Processed: 0, Errored: 0, TotalFiles: 0},
		},
		{
			name:   "total only",
			status: types.JobStatus{InProgress: false, TotalCount: intPtr(7)},
			want:   types.SyncResult{Processed: 7, Errored: 0, TotalFiles: 7},
		},
		{
			name:   "processed and total",
			status: types.JobStatus{InProgress: false, ProcessedCount: intPtr(6), TotalCount: intPtr(7)},
			want:   types.SyncResult{Processed: 6, Errored: 0, TotalFiles: 7},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &mocks.MockJobStatusClient{
				GetImportStatusFunc: func(ctx context.Context) (*types.ImportStatus, error) {
					return &types.ImportStatus{Job: tt.status}, nil
				},
			}
			poller := syncpkg.NewStatusPoller(client, fastPoller(), nil)
			result, err := poller.Run(context.Background(), func(types.ProgressState) {})
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if *result != tt.want {
				t.Errorf("Expected %+v, got %+v", tt.want, *result)
			}
		})
	}
}
