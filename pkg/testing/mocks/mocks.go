// Package mocks provides hand-rolled test doubles for the sync core's
// collaborator interfaces.
package mocks

import (
	"context"
	"time"

	"github.com/ripixel/fitglue-sync/pkg/types"
)

// --- Mock Job Status Client ---
type MockJobStatusClient struct {
	TriggerHistoricalImportFunc func(ctx context.Context, daysBack int) (*types.JobAccepted, error)
	GetImportStatusFunc         func(ctx context.Context) (*types.ImportStatus, error)
}

func (m *MockJobStatusClient) TriggerHistoricalImport(ctx context.Context, daysBack int) (*types.JobAccepted, error) {
	if m.TriggerHistoricalImportFunc != nil {
		return m.TriggerHistoricalImportFunc(ctx, daysBack)
	}
	return &types.JobAccepted{EstimatedDuration: time.Minute}, nil
}

func (m *MockJobStatusClient) GetImportStatus(ctx context.Context) (*types.ImportStatus, error) {
	if m.GetImportStatusFunc != nil {
		return m.GetImportStatusFunc(ctx)
	}
	return &types.ImportStatus{}, nil
}

// --- Mock Item Upload Client ---
type MockItemUploadClient struct {
	UploadWorkoutFunc func(ctx context.Context, w *types.Workout) error
}

func (m *MockItemUploadClient) UploadWorkout(ctx context.Context, w *types.Workout) error {
	if m.UploadWorkoutFunc != nil {
		return m.UploadWorkoutFunc(ctx, w)
	}
	return nil
}

// --- Mock Workout Source ---
type MockWorkoutSource struct {
	ListWorkoutsFunc func(ctx context.Context, from, to time.Time) ([]*types.Workout, error)
}

func (m *MockWorkoutSource) ListWorkouts(ctx context.Context, from, to time.Time) ([]*types.Workout, error) {
	if m.ListWorkoutsFunc != nil {
		return m.ListWorkoutsFunc(ctx, from, to)
	}
	return nil, nil
}

// --- Mock Reconciler ---
type MockReconciler struct {
	RefreshFunc func(ctx context.Context) error
}

func (m *MockReconciler) Refresh(ctx context.Context) error {
	if m.RefreshFunc != nil {
		return m.RefreshFunc(ctx)
	}
	return nil
}
