package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"outreach-pipeline/internal/config"
	"outreach-pipeline/internal/ingest"
	"outreach-pipeline/internal/mailer"
	"outreach-pipeline/internal/models"
	"outreach-pipeline/internal/ratelimit"
	"outreach-pipeline/internal/store"
	"outreach-pipeline/internal/worker"
)

type recordingTransport struct {
	mu   sync.Mutex
	gate chan struct{}
	to   []string
}

func (t *recordingTransport) Open(context.Context) (mailer.Session, error) {
	return t, nil
}

func (t *recordingTransport) Send(_ context.Context, to string, _ []byte) error {
	if t.gate != nil {
		<-t.gate
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.to = append(t.to, to)
	return nil
}

func (t *recordingTransport) Close() error { return nil }

func (t *recordingTransport) recipients() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.to...)
}

type harness struct {
	server    *httptest.Server
	csv       *store.CSVStore
	transport *recordingTransport
}

type harnessOpts struct {
	noStorage bool
	noMail    bool
	limiter   *ratelimit.TokenBucket
	gate      chan struct{}
}

func newHarness(t *testing.T, opts harnessOpts) *harness {
	t.Helper()
	dir := t.TempDir()
	tmpl := filepath.Join(dir, "email_body.txt")
	require.NoError(t, os.WriteFile(tmpl, []byte("Subject: Application\nHello there\n"), 0o644))

	cfg := config.Defaults()
	cfg.StoreInCSV = !opts.noStorage
	cfg.CSVDir = dir
	cfg.SenderEmail = "me@example.com"
	cfg.SenderPassword = "pw"
	if opts.noMail {
		cfg.SenderPassword = ""
	}
	cfg.TemplateFile = tmpl

	csvStore := store.NewCSVStore(cfg.PostsCSVPath(), filepath.Join(dir, "sent.csv"))
	backends := store.NewBackends(
		store.Entry{Store: &store.PostgresStore{}, Rank: store.RankRelational, Enabled: false},
		store.Entry{Store: csvStore, Rank: store.RankFlatFile, Enabled: cfg.StoreInCSV},
	)
	transport := &recordingTransport{gate: opts.gate}
	mailCfg := mailer.FromConfig(cfg)
	dispatcher := worker.NewDispatcher(mailCfg, transport, mailer.NewDirSource(filepath.Join(dir, "resume")), backends, 0)

	srv := New(backends,
		ingest.NewOrchestrator(backends),
		worker.NewEmailJob(backends, mailCfg, dispatcher),
		worker.NewDirectSender(backends, mailCfg, dispatcher),
		opts.limiter,
	)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return &harness{server: ts, csv: csvStore, transport: transport}
}

func (h *harness) do(t *testing.T, method, path string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequestWithContext(t.Context(), method, h.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

type ingestBody struct {
	BatchNumber int                `json:"batch_number"`
	Posts       []models.PostInput `json:"posts"`
}

func TestIngest(t *testing.T) {
	t.Run("resubmitted batch is all duplicates", func(t *testing.T) {
		h := newHarness(t, harnessOpts{})
		body := ingestBody{BatchNumber: 1, Posts: []models.PostInput{
			{Author: "A", Content: "hiring... hr@x.com", Emails: "hr@x.com"},
		}}

		var first map[string]any
		require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/posts", body, &first))
		assert.Equal(t, "ok", first["status"])
		assert.EqualValues(t, 1, first["batch_number"])
		assert.EqualValues(t, 1, first["total_received"])
		assert.EqualValues(t, 1, first["new_posts"])
		assert.EqualValues(t, 0, first["duplicates_skipped"])

		var second map[string]any
		require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/posts", body, &second))
		assert.EqualValues(t, 0, second["new_posts"])
		assert.EqualValues(t, 1, second["duplicates_skipped"])
	})

	t.Run("empty batch", func(t *testing.T) {
		h := newHarness(t, harnessOpts{})
		var out map[string]any
		require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/posts", ingestBody{BatchNumber: 2, Posts: []models.PostInput{}}, &out))
		assert.EqualValues(t, 0, out["total_received"])
	})

	t.Run("invalid batch number", func(t *testing.T) {
		h := newHarness(t, harnessOpts{})
		var out errorResponse
		require.Equal(t, http.StatusBadRequest, h.do(t, http.MethodPost, "/posts", ingestBody{BatchNumber: 0, Posts: []models.PostInput{}}, &out))
		assert.Contains(t, out.Detail, "BatchNumber")
	})

	t.Run("no storage", func(t *testing.T) {
		h := newHarness(t, harnessOpts{noStorage: true})
		var out errorResponse
		require.Equal(t, http.StatusServiceUnavailable, h.do(t, http.MethodPost, "/posts", ingestBody{BatchNumber: 1, Posts: []models.PostInput{}}, &out))
		assert.NotEmpty(t, out.Detail)
	})

	t.Run("rate limited", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		h := newHarness(t, harnessOpts{limiter: ratelimit.NewTokenBucket(client, 1, 0.001, time.Minute)})
		body := ingestBody{BatchNumber: 1, Posts: []models.PostInput{}}

		require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/posts", body, nil))
		require.Equal(t, http.StatusTooManyRequests, h.do(t, http.MethodPost, "/posts", body, nil))
	})
}

func TestSendEmails(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	require.NoError(t, h.csv.AppendSent(t.Context(), models.SentEmail{RecipientEmail: "hr@x.com", DateSent: time.Now()}))

	var out sendEmailsResponse
	status := h.do(t, http.MethodPost, "/send-emails", map[string]any{
		"emails": []string{"hr@x.com", "sales@x.com", "random@gmail.com"},
		"author": "Jane",
	}, &out)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, out.DuplicatesSkipped)
	assert.Equal(t, 1, out.CompanyMatchesSkipped)
	assert.Equal(t, 1, out.Sent)
	assert.Equal(t, 0, out.Failed)
	assert.Equal(t, []string{"random@gmail.com"}, h.transport.recipients())
}

func TestSendEmails_NotConfigured(t *testing.T) {
	h := newHarness(t, harnessOpts{noMail: true})
	var out errorResponse
	require.Equal(t, http.StatusServiceUnavailable, h.do(t, http.MethodPost, "/send-emails", map[string]any{"emails": []string{"a@b.com"}}, &out))
	assert.Contains(t, out.Detail, "SENDER_PASSWORD")
}

func TestSendEmails_InvalidAddress(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	var out errorResponse
	status := h.do(t, http.MethodPost, "/send-emails", map[string]any{
		"emails": []string{" ok@x.com ", "hr@@x"},
	}, &out)
	require.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, out.Detail, "'email' tag")
	assert.Empty(t, h.transport.recipients())
}

func TestEmailJobEndpoints(t *testing.T) {
	t.Run("idle before first trigger", func(t *testing.T) {
		h := newHarness(t, harnessOpts{})
		var st models.JobStatus
		require.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/email-job-status", nil, &st))
		assert.Equal(t, models.StatusIdle, st.Status)
		assert.Contains(t, st.Message, "POST /trigger-emails")
	})

	t.Run("zero eligible posts completes", func(t *testing.T) {
		h := newHarness(t, harnessOpts{})
		require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/trigger-emails", nil, nil))

		var st models.JobStatus
		require.Eventually(t, func() bool {
			h.do(t, http.MethodGet, "/email-job-status", nil, &st)
			return st.Status == models.StatusCompleted
		}, 5*time.Second, 20*time.Millisecond)
		assert.Equal(t, 0, st.TotalToSend)
		assert.Equal(t, 0, st.Sent)
		assert.Equal(t, 0, st.Failed)
	})

	t.Run("conflict while running", func(t *testing.T) {
		gate := make(chan struct{})
		h := newHarness(t, harnessOpts{gate: gate})
		require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/posts", ingestBody{BatchNumber: 1, Posts: []models.PostInput{
			{Author: "A", Content: "hiring", Emails: "jobs@acme.com"},
		}}, nil))

		var ack triggerResponse
		require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/trigger-emails", nil, &ack))
		assert.NotEmpty(t, ack.JobID)

		var out errorResponse
		assert.Equal(t, http.StatusConflict, h.do(t, http.MethodPost, "/trigger-emails", nil, &out))
		assert.Contains(t, out.Detail, "already running")

		close(gate)
		var st models.JobStatus
		require.Eventually(t, func() bool {
			h.do(t, http.MethodGet, "/email-job-status", nil, &st)
			return st.Status == models.StatusCompleted
		}, 5*time.Second, 20*time.Millisecond)
		assert.Equal(t, 1, st.Sent)
		assert.Equal(t, ack.JobID, st.JobID)
	})

	t.Run("unconfigured mail", func(t *testing.T) {
		h := newHarness(t, harnessOpts{noMail: true})
		assert.Equal(t, http.StatusServiceUnavailable, h.do(t, http.MethodPost, "/trigger-emails", nil, nil))
	})
}

func TestHealth(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	var out healthResponse
	require.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/health", nil, &out))
	assert.Equal(t, "healthy", out.Status)
	assert.True(t, out.StorageCSV)
	assert.False(t, out.StorageDB)

	require.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/healthz", nil, nil))

	bare := newHarness(t, harnessOpts{noStorage: true})
	require.Equal(t, http.StatusOK, bare.do(t, http.MethodGet, "/health", nil, &out))
	assert.False(t, out.StorageCSV)
	assert.False(t, out.StorageDB)
}
