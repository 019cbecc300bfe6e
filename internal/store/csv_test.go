package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"outreach-pipeline/internal/models"
)

func newTestCSVStore(t *testing.T) (*CSVStore, string) {
	t.Helper()
	dir := t.TempDir()
	return NewCSVStore(filepath.Join(dir, "data", "linkedin_posts.csv"), filepath.Join(dir, "sent-mails", "sent-mails.csv")), dir
}

func samplePost(hash string) models.Post {
	return models.Post{
		Author:         "Jane Doe",
		Timestamp:      "2h",
		Emails:         "hr@acme.com, jobs@acme.com",
		ContactNumbers: "+1 555 0100",
		ApplyLinks:     "https://acme.com/careers",
		Content:        "We are hiring, \"Go\" engineers\nacross two lines",
		ContentHash:    hash,
		BatchNumber:    3,
		CreatedAt:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestCSVStore_MissingFilesAreEmpty(t *testing.T) {
	s, _ := newTestCSVStore(t)

	hashes, err := s.ExistingFingerprints(t.Context())
	require.NoError(t, err)
	assert.Empty(t, hashes)

	posts, err := s.ListAll(t.Context())
	require.NoError(t, err)
	assert.Empty(t, posts)

	sent, err := s.SentRecipients(t.Context())
	require.NoError(t, err)
	assert.Empty(t, sent)
}

func TestCSVStore_SaveCreatesHeaderOnce(t *testing.T) {
	s, dir := newTestCSVStore(t)

	n, err := s.Save(t.Context(), []models.Post{samplePost("aaa")})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = s.Save(t.Context(), []models.Post{samplePost("bbb")})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	raw, err := os.ReadFile(filepath.Join(dir, "data", "linkedin_posts.csv"))
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(raw), strings.Join(postColumns, ",")))
	assert.True(t, strings.HasPrefix(string(raw), "author,timestamp,"))
}

func TestCSVStore_RoundTrip(t *testing.T) {
	s, _ := newTestCSVStore(t)
	want := samplePost("abc123")

	_, err := s.Save(t.Context(), []models.Post{want})
	require.NoError(t, err)

	posts, err := s.ListAll(t.Context())
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, want, posts[0])

	dup, err := s.IsDuplicate(t.Context(), "abc123")
	require.NoError(t, err)
	assert.True(t, dup)
	dup, err = s.IsDuplicate(t.Context(), "other")
	require.NoError(t, err)
	assert.False(t, dup)
}

func TestCSVStore_SentLog(t *testing.T) {
	s, dir := newTestCSVStore(t)
	at := time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)

	meta := samplePost("x").Meta()
	require.NoError(t, s.AppendSent(t.Context(), models.NewSentEmail("hr@acme.com", meta, at)))
	require.NoError(t, s.AppendSent(t.Context(), models.NewSentEmail("ceo@beta.io", meta, at)))

	sent, err := s.SentRecipients(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{"hr@acme.com", "ceo@beta.io"}, sent)

	raw, err := os.ReadFile(filepath.Join(dir, "sent-mails", "sent-mails.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "hr@acme.com,2026-05-06 07:08:09,Jane Doe")
}

func TestCSVStore_SentLogWithoutHeader(t *testing.T) {
	s, dir := newTestCSVStore(t)
	path := filepath.Join(dir, "sent-mails", "sent-mails.csv")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	legacy := "\ufeffOld@Corp.com,2024-01-01 10:00:00\n  friend@gmail.com ,2024-01-02 10:00:00\nnot-an-address,x\n"
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o644))

	sent, err := s.SentRecipients(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{"old@corp.com", "friend@gmail.com"}, sent)
}
