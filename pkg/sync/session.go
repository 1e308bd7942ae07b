package sync

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ripixel/fitglue-sync/pkg/types"
)

// session is one run of the orchestrator for one data source. It is owned
// exclusively by the orchestrator goroutine that runs it; a cancelled or
// failed session is never resumed.
type session struct {
	id        string
	source    types.DataSource
	startedAt time.Time

	state types.SessionState

	cancel context.CancelFunc
	done   chan struct{}
}

func newSession(source types.DataSource, cancel context.CancelFunc) *session {
	return &session{
		id:        uuid.NewString(),
		source:    source,
		startedAt: time.Now().UTC(),
		state:     types.StateIdle,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// transition moves the session forward. Terminal states are sticky and
// the session never returns to idle.
func (s *session) transition(next types.SessionState) bool {
	if s.state.Terminal() || next == types.StateIdle {
		return false
	}
	s.state = next
	return true
}

// Update is a snapshot of session state published to consumers. Handed
// over by value; the orchestrator never mutates a published update.
type Update struct {
	SessionID string
	Source    types.DataSource
	State     types.SessionState
	Step      string
	Progress  types.ProgressState
	Result    *types.SyncResult
	Err       error
}

// IsProcessing reports whether the session is still doing work.
func (u Update) IsProcessing() bool {
	return u.State != types.StateIdle && !u.State.Terminal()
}

// IsCompleted reports whether the session finished successfully,
// reconciliation included.
func (u Update) IsCompleted() bool {
	return u.State == types.StateCompleted
}

// HasError reports whether the session failed. Cancellation carries no
// error payload and returns false here.
func (u Update) HasError() bool {
	return u.State == types.StateFailed
}
