// Package progress reports generation job status updates to an external
// listener. Reporting is always best-effort: a sink failure never fails
// the generation job it is describing.
package progress

import (
	"context"
	"time"

	"github.com/ferg-cod3s/docuforge/internal/docgen/model"
)

// Update is a single status push, shaped after the orchestrator's
// contractual progress anchors.
type Update struct {
	RepoID                 string          `json:"repo_id,omitempty"`
	RepoURL                string          `json:"repo_url,omitempty"`
	Type                   model.SourceType `json:"type"`
	Status                 model.JobStatus `json:"status"`
	Progress               int             `json:"progress"`
	CurrentStep            string          `json:"current_step"`
	TotalSteps             int             `json:"total_steps"`
	CompletedSteps         int             `json:"completed_steps"`
	RepoInfo               *model.RepoInfo `json:"repo_info,omitempty"`
	EstimatedTimeRemaining *int            `json:"estimated_time_remaining,omitempty"`
	Error                  string          `json:"error,omitempty"`
}

// Sink receives progress updates. Implementations must not block the
// caller for longer than a short, bounded timeout.
type Sink interface {
	Report(ctx context.Context, update Update)
}

// MemorySink records every update it receives, for tests and for local
// single-process deployments that expose progress via an in-memory status
// endpoint rather than pushing to an external backend.
type MemorySink struct {
	Updates []Update
}

// NewMemorySink constructs an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Report appends update to the in-memory log.
func (s *MemorySink) Report(_ context.Context, update Update) {
	s.Updates = append(s.Updates, update)
}

// Last returns the most recently reported update, or the zero value if
// none has been reported yet.
func (s *MemorySink) Last() Update {
	if len(s.Updates) == 0 {
		return Update{}
	}
	return s.Updates[len(s.Updates)-1]
}

// JobUpdate translates a GenerationJob's current state into a progress
// Update.
func JobUpdate(job model.GenerationJob) Update {
	return Update{
		RepoID:         job.RepoID,
		RepoURL:        job.RepoURL,
		Type:           job.Type,
		Status:         job.Status,
		Progress:       job.Progress,
		CurrentStep:    job.CurrentStep,
		TotalSteps:     job.TotalSteps,
		CompletedSteps: job.CompletedSteps,
		RepoInfo:       job.Artifacts.RepoInfo,
		Error:          job.Error,
	}
}

// reportTimeout bounds how long a single push may take; status reporting
// must never become the slowest part of a generation job.
const reportTimeout = 5 * time.Second
