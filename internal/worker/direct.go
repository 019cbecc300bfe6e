package worker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"outreach-pipeline/internal/dedup"
	"outreach-pipeline/internal/mailer"
	"outreach-pipeline/internal/models"
	"outreach-pipeline/internal/store"
	"outreach-pipeline/internal/telemetry"
)

// DirectRequest sends the template to an explicit address list.
type DirectRequest struct {
	Emails         []string
	SkipDuplicates bool
	Post           models.PostMeta
}

// DirectResult mirrors the job counters for a synchronous send.
type DirectResult struct {
	Message               string
	Sent                  int
	Failed                int
	FailedDetails         []models.SendFailure
	DuplicatesSkipped     int
	CompanyMatchesSkipped int
}

// DirectSender serves one-off sends outside the background job. It shares
// the dispatcher, and therefore the sent-log, with the job.
type DirectSender struct {
	backends   *store.Backends
	mail       mailer.Config
	dispatcher *Dispatcher
}

func NewDirectSender(backends *store.Backends, mail mailer.Config, dispatcher *Dispatcher) *DirectSender {
	return &DirectSender{backends: backends, mail: mail, dispatcher: dispatcher}
}

// Send blocks until every recipient has been attempted.
func (d *DirectSender) Send(ctx context.Context, req DirectRequest) (DirectResult, error) {
	if err := d.mail.Validate(); err != nil {
		return DirectResult{}, err
	}
	if len(req.Emails) == 0 {
		return DirectResult{Message: "No emails provided.", FailedDetails: []models.SendFailure{}}, nil
	}

	res := DirectResult{FailedDetails: []models.SendFailure{}}
	candidates := dedup.NormalizeList(req.Emails)
	if req.SkipDuplicates {
		// repeats stay in so Partition counts them as exact duplicates
		candidates = dedup.NormalizeValid(req.Emails)
		var sent []string
		if d.backends.Any() {
			var err error
			sent, err = d.backends.SentRecipients(ctx)
			if err != nil {
				return DirectResult{}, err
			}
		} else {
			zap.L().Warn("no storage enabled, sending without duplicate check")
		}
		part := dedup.Partition(candidates, sent)
		candidates = part.Clean
		res.DuplicatesSkipped = len(part.ExactDuplicates)
		res.CompanyMatchesSkipped = len(part.CompanyMatches)
		telemetry.EmailsSkipped.WithLabelValues(telemetry.SkipExact).Add(float64(res.DuplicatesSkipped))
		telemetry.EmailsSkipped.WithLabelValues(telemetry.SkipCompany).Add(float64(res.CompanyMatchesSkipped))
	}

	if len(candidates) == 0 {
		res.Message = "No new recipients to send to."
		return res, nil
	}

	recipients := make([]Recipient, len(candidates))
	for i, c := range candidates {
		recipients[i] = Recipient{Email: c, Post: req.Post}
	}
	out, err := d.dispatcher.Dispatch(ctx, recipients, Progress{})
	res.Sent = out.Sent
	res.Failed = len(out.Failures)
	res.FailedDetails = append(res.FailedDetails, out.Failures...)
	if err != nil {
		return res, err
	}
	res.Message = fmt.Sprintf("Successfully sent %d email(s).", out.Sent)
	return res, nil
}
