package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"outreach-pipeline/internal/dedup"
	"outreach-pipeline/internal/mailer"
	"outreach-pipeline/internal/models"
	"outreach-pipeline/internal/store"
	"outreach-pipeline/internal/telemetry"
)

// ErrJobRunning is returned by Trigger while a run is in progress.
var ErrJobRunning = errors.New("an email job is already running; check GET /email-job-status for progress")

// EmailJob runs at most one background mail-out at a time over every address
// found in stored posts.
type EmailJob struct {
	backends   *store.Backends
	mail       mailer.Config
	dispatcher *Dispatcher
	tracker    *StatusTracker
	now        func() time.Time
	wg         sync.WaitGroup
}

func NewEmailJob(backends *store.Backends, mail mailer.Config, dispatcher *Dispatcher) *EmailJob {
	return &EmailJob{
		backends:   backends,
		mail:       mail,
		dispatcher: dispatcher,
		tracker:    NewStatusTracker(),
		now:        time.Now,
	}
}

// Trigger checks configuration, marks the job running and starts it in the
// background. It returns as soon as the run has been accepted.
func (j *EmailJob) Trigger(ctx context.Context) (models.JobStatus, error) {
	if err := j.mail.Validate(); err != nil {
		return models.JobStatus{}, err
	}
	if !j.backends.Any() {
		return models.JobStatus{}, store.ErrNoStorage
	}
	jobID := uuid.NewString()
	if !j.tracker.TrySetRunning(j.now(), jobID) {
		return models.JobStatus{}, ErrJobRunning
	}

	telemetry.JobRunning.Set(1)
	j.wg.Add(1)
	// the run outlives the request that triggered it
	go j.run(context.WithoutCancel(ctx), jobID)
	return j.tracker.Snapshot(), nil
}

// Status returns a copy of the current or last run's status.
func (j *EmailJob) Status() models.JobStatus {
	return j.tracker.Snapshot()
}

// Wait blocks until the in-flight run, if any, has finished.
func (j *EmailJob) Wait() {
	j.wg.Wait()
}

func (j *EmailJob) run(ctx context.Context, jobID string) {
	log := zap.L().With(zap.String("job_id", jobID))
	defer j.wg.Done()
	defer telemetry.JobRunning.Set(0)
	defer func() {
		if r := recover(); r != nil {
			log.Error("email job panicked", zap.Any("panic", r))
			j.finish(models.StatusFailed, fmt.Sprintf("Unexpected error: %v", r))
		}
	}()

	j.tracker.Advance(models.PhaseReading)
	posts, err := j.backends.ListPosts(ctx)
	if err != nil {
		log.Error("read posts", zap.Error(err))
		j.finish(models.StatusFailed, fmt.Sprintf("Could not read stored posts: %v", err))
		return
	}
	log.Info("posts loaded", zap.Int("posts", len(posts)))
	if len(posts) == 0 {
		j.finish(models.StatusCompleted, "No posts found in storage. Scrape some LinkedIn posts first.")
		return
	}

	j.tracker.Advance(models.PhaseExtracting)
	recipients := ExtractRecipients(posts)
	j.tracker.Update(func(s *models.JobStatus) { s.TotalEmailsFound = len(recipients) })
	if len(recipients) == 0 {
		j.finish(models.StatusCompleted, "No emails found in stored posts.")
		return
	}

	j.tracker.Advance(models.PhaseDedup)
	sent, err := j.backends.SentRecipients(ctx)
	if err != nil {
		log.Error("read sent-log", zap.Error(err))
		j.finish(models.StatusFailed, fmt.Sprintf("Could not read sent-log: %v", err))
		return
	}
	part := dedup.Partition(emailsOf(recipients), sent)
	toSend := keepClean(recipients, part.Clean)
	telemetry.EmailsSkipped.WithLabelValues(telemetry.SkipExact).Add(float64(len(part.ExactDuplicates)))
	telemetry.EmailsSkipped.WithLabelValues(telemetry.SkipCompany).Add(float64(len(part.CompanyMatches)))
	j.tracker.Update(func(s *models.JobStatus) {
		s.DuplicatesSkipped = len(part.ExactDuplicates)
		s.CompanyMatchesSkipped = len(part.CompanyMatches)
		s.TotalToSend = len(toSend)
	})
	log.Info("recipients partitioned",
		zap.Int("to_send", len(toSend)),
		zap.Int("duplicates", len(part.ExactDuplicates)),
		zap.Int("company_matches", len(part.CompanyMatches)))
	if len(toSend) == 0 {
		j.finish(models.StatusCompleted, "All emails already sent. No new recipients.")
		return
	}

	j.tracker.Advance(models.PhaseSending)
	out, err := j.dispatcher.Dispatch(ctx, toSend, Progress{
		Before: func(index int, email string) {
			j.tracker.Update(func(s *models.JobStatus) {
				s.Current = index
				s.CurrentEmail = email
			})
		},
		After: func(email string, err error) {
			j.tracker.Update(func(s *models.JobStatus) {
				if err != nil {
					s.Failed++
					s.FailedDetails = append(s.FailedDetails, models.SendFailure{Email: email, Error: err.Error()})
					return
				}
				s.Sent++
			})
		},
	})
	switch {
	case errors.Is(err, mailer.ErrTemplateUnavailable):
		j.finish(models.StatusFailed, fmt.Sprintf("Could not read email template: %v", err))
	case err != nil:
		log.Error("email job aborted", zap.Error(err))
		j.finish(models.StatusFailed, err.Error())
	default:
		log.Info("email job complete", zap.Int("sent", out.Sent), zap.Int("failed", len(out.Failures)))
		j.finish(models.StatusCompleted, fmt.Sprintf("Job complete. Sent %d email(s), %d failed.", out.Sent, len(out.Failures)))
	}
}

func (j *EmailJob) finish(state models.JobState, msg string) {
	finished := j.now().UTC()
	j.tracker.Update(func(s *models.JobStatus) {
		s.Status = state
		s.Phase = models.PhaseDone
		s.FinishedAt = &finished
		s.Message = msg
	})
}
