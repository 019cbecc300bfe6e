package ingest

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"outreach-pipeline/internal/models"
	"outreach-pipeline/internal/store"
	"outreach-pipeline/internal/telemetry"
)

// Result summarizes one ingested batch.
type Result struct {
	TotalReceived     int `json:"total_received"`
	NewPosts          int `json:"new_posts"`
	DuplicatesSkipped int `json:"duplicates_skipped"`
}

// Orchestrator fingerprints incoming posts, drops ones already stored, and
// writes the rest to every enabled backend.
type Orchestrator struct {
	backends *store.Backends
	now      func() time.Time
}

func NewOrchestrator(backends *store.Backends) *Orchestrator {
	return &Orchestrator{backends: backends, now: time.Now}
}

// ProcessBatch ingests one batch. Only the authoritative backend is consulted
// for duplicates; a failure to load its fingerprints aborts before any write.
func (o *Orchestrator) ProcessBatch(ctx context.Context, posts []models.PostInput, batchNumber int) (Result, error) {
	res := Result{TotalReceived: len(posts)}

	authoritative, err := o.backends.Authoritative()
	if err != nil {
		return Result{}, err
	}
	if len(posts) == 0 {
		return res, nil
	}

	seen, err := authoritative.ExistingFingerprints(ctx)
	if err != nil {
		return Result{}, errors.Wrapf(err, "load fingerprints from %s", authoritative.Name())
	}

	createdAt := o.now().UTC()
	fresh := make([]models.Post, 0, len(posts))
	for _, in := range posts {
		in = in.WithDefaults()
		hash := Fingerprint(in.Author, in.Content)
		if _, dup := seen[hash]; dup {
			res.DuplicatesSkipped++
			continue
		}
		seen[hash] = struct{}{}
		fresh = append(fresh, models.Post{
			Author:         in.Author,
			Timestamp:      in.Timestamp,
			Emails:         in.Emails,
			ContactNumbers: in.ContactNumbers,
			ApplyLinks:     in.ApplyLinks,
			Content:        in.Content,
			ContentHash:    hash,
			BatchNumber:    batchNumber,
			CreatedAt:      createdAt,
		})
	}
	res.NewPosts = len(fresh)

	telemetry.PostsReceived.Add(float64(res.TotalReceived))
	telemetry.PostsDuplicate.Add(float64(res.DuplicatesSkipped))

	if len(fresh) > 0 {
		counts, err := o.backends.SaveAll(ctx, fresh)
		if err != nil {
			return Result{}, err
		}
		telemetry.PostsSaved.Add(float64(res.NewPosts))
		zap.L().Info("batch saved",
			zap.Int("batch", batchNumber),
			zap.Int("new_posts", res.NewPosts),
			zap.Int("duplicates", res.DuplicatesSkipped),
			zap.Any("per_backend", counts),
		)
	}
	return res, nil
}
