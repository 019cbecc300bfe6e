package worker

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"outreach-pipeline/internal/mailer"
	"outreach-pipeline/internal/store"
)

type fakeTransport struct {
	mu      sync.Mutex
	openErr error
	failFor map[string]error
	gate    chan struct{} // when set, every Send waits for it to close
	opens   int
	closes  int
	sent    []string
}

func (f *fakeTransport) Open(context.Context) (mailer.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.opens++
	return &fakeSession{t: f}, nil
}

func (f *fakeTransport) sentTo() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

type fakeSession struct {
	t *fakeTransport
}

func (s *fakeSession) Send(ctx context.Context, to string, msg []byte) error {
	if s.t.gate != nil {
		<-s.t.gate
	}
	s.t.mu.Lock()
	defer s.t.mu.Unlock()
	if err := s.t.failFor[to]; err != nil {
		return err
	}
	s.t.sent = append(s.t.sent, to)
	return nil
}

func (s *fakeSession) Close() error {
	s.t.mu.Lock()
	defer s.t.mu.Unlock()
	s.t.closes++
	return nil
}

type testEnv struct {
	backends  *store.Backends
	csv       *store.CSVStore
	mail      mailer.Config
	transport *fakeTransport
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	tmpl := filepath.Join(dir, "email_body.txt")
	require.NoError(t, os.WriteFile(tmpl, []byte("Subject: Go developer application\nHello,\nplease find my resume attached.\n"), 0o644))

	csvStore := store.NewCSVStore(filepath.Join(dir, "data", "posts.csv"), filepath.Join(dir, "sent", "sent.csv"))
	return &testEnv{
		backends:  store.NewBackends(store.Entry{Store: csvStore, Rank: store.RankFlatFile, Enabled: true}),
		csv:       csvStore,
		transport: &fakeTransport{failFor: map[string]error{}},
		mail: mailer.Config{
			Host:         "smtp.test",
			Port:         587,
			Sender:       "me@example.com",
			Password:     "app-password",
			TemplateFile: tmpl,
		},
	}
}

func (e *testEnv) dispatcher() *Dispatcher {
	return NewDispatcher(e.mail, e.transport, nil, e.backends, 0)
}

func (e *testEnv) job() *EmailJob {
	return NewEmailJob(e.backends, e.mail, e.dispatcher())
}
