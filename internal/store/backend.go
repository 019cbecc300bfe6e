package store

import (
	"context"
	"sort"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"outreach-pipeline/internal/models"
)

var (
	// ErrNoStorage is returned when no persistence backend is enabled.
	ErrNoStorage = errors.New("no storage backend is enabled; set OUTREACH_STORE_IN_CSV and/or OUTREACH_STORE_IN_DB")
	// ErrRelationalDisabled is returned by a relational store that was never configured.
	ErrRelationalDisabled = errors.New("relational storage is disabled; set OUTREACH_STORE_IN_DB=true")
)

// Backend persists scraped posts.
type Backend interface {
	Name() string
	// ExistingFingerprints scans every stored post once.
	ExistingFingerprints(ctx context.Context) (map[string]struct{}, error)
	IsDuplicate(ctx context.Context, fingerprint string) (bool, error)
	// Save appends posts, creating the file or table on first use.
	Save(ctx context.Context, posts []models.Post) (int, error)
	ListAll(ctx context.Context) ([]models.Post, error)
}

// SentLog is the append-only record of delivered emails.
type SentLog interface {
	AppendSent(ctx context.Context, rec models.SentEmail) error
	// SentRecipients returns every recipient ever logged, in log order.
	SentRecipients(ctx context.Context) ([]string, error)
}

// Store is a backend that also carries the sent-log.
//
//go:generate mockgen -source=backend.go -destination=mock_store.go -package=store Store
type Store interface {
	Backend
	SentLog
}

// Rank orders backends for duplicate detection; lower wins.
type Rank int

const (
	// RankRelational is consistent under concurrent writers, so it is consulted first.
	RankRelational Rank = iota
	RankFlatFile
)

// Entry is one configured backend.
type Entry struct {
	Store   Store
	Rank    Rank
	Enabled bool
}

// Backends is the ranked list of configured stores. The first enabled entry is
// authoritative for reads and duplicate checks; writes go to every enabled entry.
type Backends struct {
	entries []Entry
}

// NewBackends sorts entries by rank. Disabled entries are kept so callers can
// report configuration, but they are never read from or written to.
func NewBackends(entries ...Entry) *Backends {
	sorted := append([]Entry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Rank < sorted[j].Rank })
	return &Backends{entries: sorted}
}

// Any reports whether at least one backend is enabled.
func (b *Backends) Any() bool {
	return len(b.Enabled()) > 0
}

// Enabled returns the enabled stores in rank order.
func (b *Backends) Enabled() []Store {
	var out []Store
	for _, e := range b.entries {
		if e.Enabled && e.Store != nil {
			out = append(out, e.Store)
		}
	}
	return out
}

// IsEnabled reports whether the entry with the given rank is on.
func (b *Backends) IsEnabled(rank Rank) bool {
	for _, e := range b.entries {
		if e.Rank == rank {
			return e.Enabled && e.Store != nil
		}
	}
	return false
}

// Authoritative returns the highest-ranked enabled store.
func (b *Backends) Authoritative() (Store, error) {
	enabled := b.Enabled()
	if len(enabled) == 0 {
		return nil, ErrNoStorage
	}
	return enabled[0], nil
}

// SaveAll writes posts to every enabled store in rank order and returns the
// per-store counts. There is no cross-store rollback: when a later store
// fails, earlier stores keep the rows and the error lists what was committed.
func (b *Backends) SaveAll(ctx context.Context, posts []models.Post) (map[string]int, error) {
	enabled := b.Enabled()
	if len(enabled) == 0 {
		return nil, ErrNoStorage
	}
	counts := make(map[string]int, len(enabled))
	if len(posts) == 0 {
		return counts, nil
	}
	for _, s := range enabled {
		n, err := s.Save(ctx, posts)
		if err != nil {
			if len(counts) > 0 {
				zap.L().Warn("batch partially stored", zap.String("failed", s.Name()), zap.Any("committed", counts))
			}
			return counts, errors.Wrapf(err, "save posts to %s", s.Name())
		}
		counts[s.Name()] = n
	}
	return counts, nil
}

// ListPosts reads every post from the authoritative store, falling back to
// the next enabled store when a read fails.
func (b *Backends) ListPosts(ctx context.Context) ([]models.Post, error) {
	enabled := b.Enabled()
	if len(enabled) == 0 {
		return nil, ErrNoStorage
	}
	var errs error
	for _, s := range enabled {
		posts, err := s.ListAll(ctx)
		if err == nil {
			return posts, nil
		}
		zap.L().Warn("read posts failed, trying next backend", zap.String("backend", s.Name()), zap.Error(err))
		errs = errors.CombineErrors(errs, errors.Wrapf(err, "list posts from %s", s.Name()))
	}
	return nil, errs
}

// SentRecipients reads the sent-log from the authoritative store, with the same
// fallback as ListPosts.
func (b *Backends) SentRecipients(ctx context.Context) ([]string, error) {
	enabled := b.Enabled()
	if len(enabled) == 0 {
		return nil, ErrNoStorage
	}
	var errs error
	for _, s := range enabled {
		recipients, err := s.SentRecipients(ctx)
		if err == nil {
			return recipients, nil
		}
		zap.L().Warn("read sent-log failed, trying next backend", zap.String("backend", s.Name()), zap.Error(err))
		errs = errors.CombineErrors(errs, errors.Wrapf(err, "read sent-log from %s", s.Name()))
	}
	return nil, errs
}

// AppendSent logs a delivery to every enabled store. Every store is attempted
// even if an earlier one fails.
func (b *Backends) AppendSent(ctx context.Context, rec models.SentEmail) error {
	enabled := b.Enabled()
	if len(enabled) == 0 {
		return ErrNoStorage
	}
	var errs error
	for _, s := range enabled {
		if err := s.AppendSent(ctx, rec); err != nil {
			errs = errors.CombineErrors(errs, errors.Wrapf(err, "append sent-log to %s", s.Name()))
		}
	}
	return errs
}
