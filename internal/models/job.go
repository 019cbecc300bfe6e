package models

import (
	"time"
)

// JobState enumerates lifecycle states of the background email job.
type JobState string

const (
	StatusIdle      JobState = "idle"
	StatusRunning   JobState = "running"
	StatusCompleted JobState = "completed"
	StatusFailed    JobState = "failed"
)

// Phase is a named sub-stage of a running job, reported for progress polling.
type Phase string

const (
	PhaseNone       Phase = ""
	PhaseStarting   Phase = "starting"
	PhaseReading    Phase = "reading_posts"
	PhaseExtracting Phase = "extracting_emails"
	PhaseDedup      Phase = "deduplicating"
	PhaseSending    Phase = "sending"
	PhaseDone       Phase = "done"
)

var phaseOrder = map[Phase]int{
	PhaseNone:       0,
	PhaseStarting:   1,
	PhaseReading:    2,
	PhaseExtracting: 3,
	PhaseDedup:      4,
	PhaseSending:    5,
	PhaseDone:       6,
}

// Before reports whether p comes strictly earlier than other in a run.
func (p Phase) Before(other Phase) bool {
	return phaseOrder[p] < phaseOrder[other]
}

// SendFailure is one recipient that could not be delivered.
type SendFailure struct {
	Email string `json:"email"`
	Error string `json:"error"`
}

// JobStatus is the live (or last known) state of the email job.
type JobStatus struct {
	JobID                 string        `json:"job_id,omitempty"`
	Status                JobState      `json:"status"`
	Phase                 Phase         `json:"phase"`
	StartedAt             *time.Time    `json:"started_at"`
	FinishedAt            *time.Time    `json:"finished_at"`
	Message               string        `json:"message"`
	TotalEmailsFound      int           `json:"total_emails_found"`
	TotalToSend           int           `json:"total_to_send"`
	DuplicatesSkipped     int           `json:"duplicates_skipped"`
	CompanyMatchesSkipped int           `json:"company_matches_skipped"`
	Sent                  int           `json:"sent"`
	Failed                int           `json:"failed"`
	FailedDetails         []SendFailure `json:"failed_details"`
	Current               int           `json:"current"`
	CurrentEmail          string        `json:"current_email"`
}
