package store

import (
	"context"
	"encoding/csv"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"outreach-pipeline/internal/models"
)

// SentDateLayout is how send times are written to the flat-file sent-log.
const SentDateLayout = "2006-01-02 15:04:05"

var (
	postColumns = []string{
		"author", "timestamp", "emails", "contact_numbers",
		"apply_links", "content", "content_hash", "batch_number", "created_at",
	}
	sentColumns = []string{
		"recipient_email", "date_sent", "author",
		"contact_numbers", "apply_links", "content",
	}
)

// CSVStore keeps posts and the sent-log in two append-only CSV files.
// It is safe for concurrent use inside one process only.
type CSVStore struct {
	postsPath string
	sentPath  string
	mu        sync.Mutex
}

// NewCSVStore returns a store over the two files. Nothing is created until first use.
func NewCSVStore(postsPath, sentLogPath string) *CSVStore {
	return &CSVStore{postsPath: postsPath, sentPath: sentLogPath}
}

func (s *CSVStore) Name() string { return "csv" }

func (s *CSVStore) ExistingFingerprints(ctx context.Context) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hashes := make(map[string]struct{})
	err := s.scanPosts(ctx, func(row map[string]string) {
		if h := strings.TrimSpace(row["content_hash"]); h != "" {
			hashes[h] = struct{}{}
		}
	})
	if err != nil {
		return nil, err
	}
	return hashes, nil
}

func (s *CSVStore) IsDuplicate(ctx context.Context, fingerprint string) (bool, error) {
	hashes, err := s.ExistingFingerprints(ctx)
	if err != nil {
		return false, err
	}
	_, ok := hashes[fingerprint]
	return ok, nil
}

func (s *CSVStore) Save(ctx context.Context, posts []models.Post) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := make([][]string, 0, len(posts))
	for _, p := range posts {
		rows = append(rows, []string{
			p.Author, p.Timestamp, p.Emails, p.ContactNumbers, p.ApplyLinks, p.Content,
			p.ContentHash, strconv.Itoa(p.BatchNumber), p.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	if err := appendRows(s.postsPath, postColumns, rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (s *CSVStore) ListAll(ctx context.Context) ([]models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var posts []models.Post
	err := s.scanPosts(ctx, func(row map[string]string) {
		batch, _ := strconv.Atoi(strings.TrimSpace(row["batch_number"]))
		created, _ := time.Parse(time.RFC3339Nano, strings.TrimSpace(row["created_at"]))
		posts = append(posts, models.Post{
			Author:         row["author"],
			Timestamp:      row["timestamp"],
			Emails:         row["emails"],
			ContactNumbers: row["contact_numbers"],
			ApplyLinks:     row["apply_links"],
			Content:        row["content"],
			ContentHash:    row["content_hash"],
			BatchNumber:    batch,
			CreatedAt:      created,
		})
	})
	if err != nil {
		return nil, err
	}
	return posts, nil
}

func (s *CSVStore) AppendSent(ctx context.Context, rec models.SentEmail) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	row := []string{
		rec.RecipientEmail, rec.DateSent.UTC().Format(SentDateLayout), rec.Author,
		rec.ContactNumbers, rec.ApplyLinks, rec.Content,
	}
	return appendRows(s.sentPath, sentColumns, [][]string{row})
}

// SentRecipients accepts logs written without a header row.
func (s *CSVStore) SentRecipients(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.sentPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "open sent-log %s", s.sentPath)
	}
	defer f.Close()

	r := newReader(f)
	var out []string
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "read sent-log %s", s.sentPath)
		}
		if len(rec) == 0 {
			continue
		}
		addr := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(rec[0], "\ufeff")))
		if strings.Contains(addr, "@") {
			out = append(out, addr)
		}
	}
	return out, nil
}

// scanPosts calls fn with each data row keyed by header name. A missing file is empty.
func (s *CSVStore) scanPosts(ctx context.Context, fn func(row map[string]string)) error {
	f, err := os.Open(s.postsPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "open posts file %s", s.postsPath)
	}
	defer f.Close()

	r := newReader(f)
	header, err := r.Read()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "read header of %s", s.postsPath)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "read %s", s.postsPath)
		}
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = rec[i]
			}
		}
		fn(row)
	}
}

func newReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	return cr
}

// appendRows writes rows to path, creating the directory and header on first use.
func appendRows(path string, header []string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "create dir for %s", path)
	}
	writeHeader := false
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		writeHeader = true
	case err != nil:
		return errors.Wrapf(err, "stat %s", path)
	case info.Size() == 0:
		writeHeader = true
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write(header); err != nil {
			return errors.Wrapf(err, "write header to %s", path)
		}
	}
	if err := w.WriteAll(rows); err != nil {
		return errors.Wrapf(err, "append to %s", path)
	}
	return nil
}
