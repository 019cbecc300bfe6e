package worker

import (
	"context"

	"outreach-pipeline/internal/dedup"
)

// Plan is the selection an email job would make right now, without sending.
type Plan struct {
	PostsRead      int                  `json:"posts_read"`
	EmailsFound    int                  `json:"emails_found"`
	ToSend         []string             `json:"to_send"`
	Duplicates     []string             `json:"duplicates"`
	CompanyMatches []dedup.CompanyMatch `json:"company_matches"`
}

// Preview reads posts and the sent-log and partitions the extracted addresses
// the same way a run does. It does not touch the job status.
func (j *EmailJob) Preview(ctx context.Context) (Plan, error) {
	posts, err := j.backends.ListPosts(ctx)
	if err != nil {
		return Plan{}, err
	}
	recipients := ExtractRecipients(posts)
	plan := Plan{PostsRead: len(posts), EmailsFound: len(recipients)}
	if len(recipients) == 0 {
		return plan, nil
	}
	sent, err := j.backends.SentRecipients(ctx)
	if err != nil {
		return Plan{}, err
	}
	part := dedup.Partition(emailsOf(recipients), sent)
	plan.ToSend = part.Clean
	plan.Duplicates = part.ExactDuplicates
	plan.CompanyMatches = part.CompanyMatches
	return plan, nil
}
