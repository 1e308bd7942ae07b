// Package fitglue is the API client for the FitGlue backend. It maps the
// wire protocol into domain types; retry and poll policy live with the
// callers in pkg/sync.
package fitglue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	shared "github.com/ripixel/fitglue-sync/pkg"
	httputil "github.com/ripixel/fitglue-sync/pkg/infrastructure/http"
	"github.com/ripixel/fitglue-sync/pkg/types"
)

// HTTPDoer is the subset of *http.Client the client needs; tests inject
// their own.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is an API client for the FitGlue backend
type Client struct {
	baseURL string
	client  HTTPDoer
}

// NewClient creates a new backend API client. A nil httpClient gets a
// default with a 30 second timeout; pass an oauth.Transport-backed client
// for authenticated use.
func NewClient(baseURL string, httpClient HTTPDoer) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: shared.DefaultHTTPTimeout}
	}
	return &Client{
		baseURL: baseURL,
		client:  httpClient,
	}
}

// triggerRequest is the body of POST /jobs/historical
type triggerRequest struct {
	DaysBack int `json:"days_back"`
}

// triggerResponse is the 202 Accepted body
type triggerResponse struct {
	EstimatedDuration int `json:"estimated_duration"` // seconds
}

// statusResponse is the body of GET /jobs/historical/status
type statusResponse struct {
	ProcessingStatus struct {
		InProgress         bool     `json:"in_progress"`
		ProcessedCount     *int     `json:"processed_count,omitempty"`
		TotalCount         *int     `json:"total_count,omitempty"`
		ProgressPercentage *float64 `json:"progress_percentage,omitempty"`
		CurrentItem        string   `json:"current_item,omitempty"`
	} `json:"processing_status"`
	RecentResults []struct {
		Summary *struct {
			ProcessedCount int `json:"processed_count"`
			ErrorCount     int `json:"error_count"`
			TotalFiles     int `json:"total_files"`
		} `json:"summary,omitempty"`
	} `json:"recent_results,omitempty"`
}

// Activity is a synchronized activity as returned by GET /activities,
// consumed by the local cache refresher.
type Activity struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Sport          string    `json:"sport"`
	StartTime      time.Time `json:"start_time"`
	ElapsedTime    int       `json:"elapsed_time,omitempty"`
	DistanceMeters float64   `json:"distance,omitempty"`
	Source         string    `json:"source,omitempty"`
}

// doRequest performs an HTTP request and maps 4xx/5xx into httputil errors
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var reqBody *bytes.Buffer
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	} else {
		reqBody = &bytes.Buffer{}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}

	if err := httputil.ParseErrorResponse(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}

	return resp, nil
}

// TriggerHistoricalImport asks the backend to start a historical import
// covering the last daysBack days. A 409 or 429 response becomes a
// *types.TriggerError with the conflict code; callers must never infer the
// conflict from message text.
func (c *Client) TriggerHistoricalImport(ctx context.Context, daysBack int) (*types.JobAccepted, error) {
	if daysBack <= 0 {
		return nil, fmt.Errorf("daysBack must be positive, got %d", daysBack)
	}

	resp, err := c.doRequest(ctx, "POST", "/jobs/historical", triggerRequest{DaysBack: daysBack})
	if err != nil {
		if code := httputil.StatusCode(err); code != 0 {
			terr := &types.TriggerError{Code: types.TriggerOther, StatusCode: code, Message: err.Error()}
			if code == http.StatusConflict || code == http.StatusTooManyRequests {
				terr.Code = types.TriggerConflict
			}
			return nil, terr
		}
		return nil, fmt.Errorf("trigger historical import: %w", err)
	}
	defer resp.Body.Close()

	var body triggerResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &types.JobAccepted{
		EstimatedDuration: time.Duration(body.EstimatedDuration) * time.Second,
	}, nil
}

// GetImportStatus reads the historical job's processing status. Safe to
// call repeatedly; the endpoint has no side effects.
func (c *Client) GetImportStatus(ctx context.Context) (*types.ImportStatus, error) {
	resp, err := c.doRequest(ctx, "GET", "/jobs/historical/status", nil)
	if err != nil {
		return nil, fmt.Errorf("get import status: %w", err)
	}
	defer resp.Body.Close()

	var body statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	status := &types.ImportStatus{
		Job: types.JobStatus{
			InProgress:         body.ProcessingStatus.InProgress,
			ProcessedCount:     body.ProcessingStatus.ProcessedCount,
			TotalCount:         body.ProcessingStatus.TotalCount,
			ProgressPercentage: body.ProcessingStatus.ProgressPercentage,
			CurrentItem:        body.ProcessingStatus.CurrentItem,
		},
	}

	// The newest run is first; older entries may predate the summary field.
	for _, r := range body.RecentResults {
		if r.Summary != nil {
			status.LastSummary = &types.JobSummary{
				Processed:  r.Summary.ProcessedCount,
				Errored:    r.Summary.ErrorCount,
				TotalFiles: r.Summary.TotalFiles,
			}
			break
		}
	}

	return status, nil
}

// UploadWorkout uploads a single local workout record
func (c *Client) UploadWorkout(ctx context.Context, w *types.Workout) error {
	resp, err := c.doRequest(ctx, "POST", "/workouts", w)
	if err != nil {
		return fmt.Errorf("upload workout: %w", err)
	}
	resp.Body.Close()
	return nil
}

// ListActivities retrieves synchronized activities starting after since,
// used by the reconciliation cache refresh.
func (c *Client) ListActivities(ctx context.Context, since time.Time) ([]Activity, error) {
	path := "/activities"
	if !since.IsZero() {
		path += "?since=" + url.QueryEscape(since.UTC().Format(time.RFC3339))
	}

	resp, err := c.doRequest(ctx, "GET", path, nil)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	defer resp.Body.Close()

	var activities []Activity
	if err := json.NewDecoder(resp.Body).Decode(&activities); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return activities, nil
}
