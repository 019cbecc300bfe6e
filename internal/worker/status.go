package worker

import (
	"sync"
	"time"

	"outreach-pipeline/internal/models"
)

const idleMessage = "No email job has been triggered yet. Use POST /trigger-emails to start."

// StatusTracker owns the single job status record. The lock is held only for
// the duration of one mutation or copy, never across I/O.
type StatusTracker struct {
	mu     sync.Mutex
	status models.JobStatus
}

func NewStatusTracker() *StatusTracker {
	return &StatusTracker{status: models.JobStatus{
		Status:  models.StatusIdle,
		Message: idleMessage,
	}}
}

// TrySetRunning starts a new run unless one is already running. Counters from
// the previous run are cleared.
func (t *StatusTracker) TrySetRunning(now time.Time, jobID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status.Status == models.StatusRunning {
		return false
	}
	started := now.UTC()
	t.status = models.JobStatus{
		JobID:         jobID,
		Status:        models.StatusRunning,
		Phase:         models.PhaseStarting,
		StartedAt:     &started,
		Message:       "Email job started.",
		FailedDetails: []models.SendFailure{},
	}
	return true
}

// Snapshot returns a deep copy safe to hand to other goroutines.
func (t *StatusTracker) Snapshot() models.JobStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return cloneStatus(t.status)
}

// Update applies fn under the lock.
func (t *StatusTracker) Update(fn func(*models.JobStatus)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(&t.status)
}

// Advance moves the phase forward. Moving backwards or sideways is a no-op.
func (t *StatusTracker) Advance(p models.Phase) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.status.Phase.Before(p) {
		return false
	}
	t.status.Phase = p
	return true
}

func cloneStatus(s models.JobStatus) models.JobStatus {
	out := s
	if s.StartedAt != nil {
		v := *s.StartedAt
		out.StartedAt = &v
	}
	if s.FinishedAt != nil {
		v := *s.FinishedAt
		out.FinishedAt = &v
	}
	out.FailedDetails = append([]models.SendFailure{}, s.FailedDetails...)
	return out
}
