package store

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"outreach-pipeline/internal/models"
)

// PostgresStore wraps pgxpool for relational persistence. The zero value is a
// disabled store whose every method returns ErrRelationalDisabled.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a pooled connection to Postgres.
func NewPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "parse postgres dsn")
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "connect postgres")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *PostgresStore) Name() string { return "postgres" }

func (s *PostgresStore) ExistingFingerprints(ctx context.Context) (map[string]struct{}, error) {
	if s.pool == nil {
		return nil, ErrRelationalDisabled
	}
	rows, err := s.pool.Query(ctx, `SELECT content_hash FROM linkedin_posts`)
	if err != nil {
		return nil, errors.Wrap(err, "query content hashes")
	}
	defer rows.Close()

	hashes := make(map[string]struct{})
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, errors.Wrap(err, "scan content hash")
		}
		hashes[h] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate content hashes")
	}
	return hashes, nil
}

func (s *PostgresStore) IsDuplicate(ctx context.Context, fingerprint string) (bool, error) {
	if s.pool == nil {
		return false, ErrRelationalDisabled
	}
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM linkedin_posts WHERE content_hash = $1)
	`, fingerprint).Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "check content hash")
	}
	return exists, nil
}

const insertPostSQL = `
	INSERT INTO linkedin_posts (author, timestamp, emails, contact_numbers, apply_links, content, content_hash, batch_number, created_at)
	VALUES (@Author, @Timestamp, @Emails, @ContactNumbers, @ApplyLinks, @Content, @ContentHash, @BatchNumber, @CreatedAt)
	ON CONFLICT (content_hash) DO NOTHING`

// Save inserts posts in one transaction. Rows whose hash already exists are
// skipped by the unique constraint and not counted.
func (s *PostgresStore) Save(ctx context.Context, posts []models.Post) (int, error) {
	if s.pool == nil {
		return 0, ErrRelationalDisabled
	}
	if len(posts) == 0 {
		return 0, nil
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback(ctx) // no-op after commit

	batch := &pgx.Batch{}
	for _, p := range posts {
		batch.Queue(insertPostSQL, pgx.NamedArgs{
			"Author":         p.Author,
			"Timestamp":      p.Timestamp,
			"Emails":         p.Emails,
			"ContactNumbers": p.ContactNumbers,
			"ApplyLinks":     p.ApplyLinks,
			"Content":        p.Content,
			"ContentHash":    p.ContentHash,
			"BatchNumber":    p.BatchNumber,
			"CreatedAt":      p.CreatedAt.UTC(),
		})
	}

	results := tx.SendBatch(ctx, batch)
	saved := 0
	for i := range posts {
		tag, err := results.Exec()
		if err != nil {
			_ = results.Close()
			return 0, errors.Wrapf(err, "insert post %d", i)
		}
		saved += int(tag.RowsAffected())
	}
	if err := results.Close(); err != nil {
		return 0, errors.Wrap(err, "close post batch")
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, errors.Wrap(err, "commit")
	}
	if skipped := len(posts) - saved; skipped > 0 {
		zap.L().Warn("posts already present in postgres", zap.Int("skipped", skipped))
	}
	return saved, nil
}

func (s *PostgresStore) ListAll(ctx context.Context) ([]models.Post, error) {
	if s.pool == nil {
		return nil, ErrRelationalDisabled
	}
	rows, err := s.pool.Query(ctx, `
		SELECT author, timestamp, emails, contact_numbers, apply_links, content, content_hash, batch_number, created_at
		FROM linkedin_posts
		ORDER BY id
	`)
	if err != nil {
		return nil, errors.Wrap(err, "list posts")
	}
	defer rows.Close()

	var posts []models.Post
	for rows.Next() {
		var p models.Post
		var batch pgtype.Int4
		var created time.Time
		if err := rows.Scan(&p.Author, &p.Timestamp, &p.Emails, &p.ContactNumbers, &p.ApplyLinks,
			&p.Content, &p.ContentHash, &batch, &created); err != nil {
			return nil, errors.Wrap(err, "scan post")
		}
		if batch.Valid {
			p.BatchNumber = int(batch.Int32)
		}
		p.CreatedAt = created.UTC()
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate posts")
	}
	return posts, nil
}

func (s *PostgresStore) AppendSent(ctx context.Context, rec models.SentEmail) error {
	if s.pool == nil {
		return ErrRelationalDisabled
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sent_emails (recipient_email, date_sent, author, contact_numbers, apply_links, content)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, rec.RecipientEmail, rec.DateSent.UTC(), rec.Author, rec.ContactNumbers, rec.ApplyLinks, rec.Content)
	if err != nil {
		return errors.Wrapf(err, "insert sent email %s", rec.RecipientEmail)
	}
	return nil
}

func (s *PostgresStore) SentRecipients(ctx context.Context) ([]string, error) {
	if s.pool == nil {
		return nil, ErrRelationalDisabled
	}
	rows, err := s.pool.Query(ctx, `SELECT recipient_email FROM sent_emails ORDER BY id`)
	if err != nil {
		return nil, errors.Wrap(err, "query sent recipients")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, errors.Wrap(err, "scan sent recipient")
		}
		out = append(out, addr)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate sent recipients")
	}
	return out, nil
}
