// Package types defines the domain value types shared between the sync
// core, the backend API client, and local workout sources.
package types

import (
	"fmt"
	"time"
)

// DataSource identifies which import strategy a sync session uses.
type DataSource string

const (
	// SourceRemoteJob delegates the whole import to a server-side
	// historical-import job which the client triggers and observes.
	SourceRemoteJob DataSource = "remote_job"

	// SourceDirectUpload iterates local workout records and uploads them
	// one by one; there is no server-side job for this source.
	SourceDirectUpload DataSource = "direct_upload"
)

// SessionState is the lifecycle state of a sync session.
// Transitions are monotonic; a session never returns to idle.
type SessionState string

const (
	StateIdle           SessionState = "idle"
	StateCheckingStatus SessionState = "checking_status"
	StateTriggering     SessionState = "triggering"
	StatePolling        SessionState = "polling"
	StateUploading      SessionState = "uploading"
	StateCompleted      SessionState = "completed"
	StateFailed         SessionState = "failed"
	StateCancelled      SessionState = "cancelled"
)

// Terminal reports whether no further transitions can occur from s.
func (s SessionState) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	}
	return false
}

// JobAccepted is the server's acknowledgement of a newly triggered
// historical-import job.
type JobAccepted struct {
	EstimatedDuration time.Duration
}

// JobStatus is the processing_status block of the status endpoint.
// The server may omit any of the optional fields while a job is
// initializing, so they are pointers.
type JobStatus struct {
	InProgress         bool
	ProcessedCount     *int
	TotalCount         *int
	ProgressPercentage *float64
	CurrentItem        string
}

// JobSummary is the per-run summary the server attaches to recent_results
// once a job has finished.
type JobSummary struct {
	Processed  int
	Errored    int
	TotalFiles int
}

// ImportStatus bundles the live job status with the most recent completed
// run's summary, when the server reports one.
type ImportStatus struct {
	Job         JobStatus
	LastSummary *JobSummary
}

// ProgressState is a snapshot of sync progress handed to consumers by
// value. Percentage is non-decreasing across successive snapshots within
// a session.
type ProgressState struct {
	Processed   int
	Total       int
	Percentage  float64
	CurrentItem string
}

// SyncResult is the terminal summary of a session.
// Processed + Errored <= TotalFiles always; on the direct-upload path the
// two sides are equal because every item is accounted for.
type SyncResult struct {
	Processed  int
	Errored    int
	TotalFiles int
}

// Workout is one local activity record, shaped for the backend's
// /workouts upload endpoint.
type Workout struct {
	ID                 string    `json:"id,omitempty"`
	Name               string    `json:"name"`
	Sport              string    `json:"sport"`
	StartTime          time.Time `json:"start_time"`
	ElapsedTimeSeconds int       `json:"elapsed_time,omitempty"`
	DistanceMeters     float64   `json:"distance,omitempty"`
	Calories           int       `json:"calories,omitempty"`
	AvgHeartRate       int       `json:"average_hr,omitempty"`
	MaxHeartRate       int       `json:"max_hr,omitempty"`
	SourceFile         string    `json:"-"`
}

// TriggerErrorCode classifies why a trigger call was rejected.
type TriggerErrorCode int

const (
	// TriggerOther covers every rejection that is not a conflict.
	TriggerOther TriggerErrorCode = iota

	// TriggerConflict means a job is already running server-side; the
	// caller should attach to it instead of failing.
	TriggerConflict
)

// TriggerError is a structured rejection from the trigger endpoint. The
// conflict distinction is decided at the transport-mapping boundary, never
// by inspecting message text upstream.
type TriggerError struct {
	Code       TriggerErrorCode
	StatusCode int
	Message    string
}

func (e *TriggerError) Error() string {
	if e.Code == TriggerConflict {
		return fmt.Sprintf("import job already in progress (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		return fmt.Sprintf("trigger rejected (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("trigger rejected (status %d)", e.StatusCode)
}

// IsConflict reports whether err is a TriggerError carrying the
// already-in-progress code.
func (e *TriggerError) IsConflict() bool {
	return e != nil && e.Code == TriggerConflict
}
