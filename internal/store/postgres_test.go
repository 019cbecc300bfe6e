package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"outreach-pipeline/internal/models"
)

const (
	pgDb       = "outreach"
	pgUsername = "outreach"
	pgPassword = "outreach"
)

func setupPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}

	container, err := postgres.Run(t.Context(),
		"postgres:16-alpine",
		postgres.WithDatabase(pgDb),
		postgres.WithUsername(pgUsername),
		postgres.WithPassword(pgPassword),
		postgres.BasicWaitStrategies(),
		postgres.WithSQLDriver("pgx"),
	)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	testcontainers.CleanupContainer(t, container)

	connString, err := container.ConnectionString(t.Context(), "sslmode=disable")
	require.NoError(t, err)

	s, err := NewPostgres(t.Context(), connString)
	require.NoError(t, err)
	t.Cleanup(s.Close)

	require.NoError(t, s.RunMigrations(t.Context()))
	// Migrations must be re-runnable on every startup.
	require.NoError(t, s.RunMigrations(t.Context()))
	return s
}

func TestPostgresStore_PostsLifecycle(t *testing.T) {
	s := setupPostgresStore(t)
	ctx := t.Context()

	first := samplePost("hash-1")
	second := samplePost("hash-2")
	second.Author = "John Roe"

	n, err := s.Save(ctx, []models.Post{first, second})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// conflicting hash is skipped
	n, err = s.Save(ctx, []models.Post{first})
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	hashes, err := s.ExistingFingerprints(ctx)
	require.NoError(t, err)
	assert.Len(t, hashes, 2)
	assert.Contains(t, hashes, "hash-1")

	dup, err := s.IsDuplicate(ctx, "hash-2")
	require.NoError(t, err)
	assert.True(t, dup)

	posts, err := s.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, first, posts[0])
	assert.Equal(t, "John Roe", posts[1].Author)
}

func TestPostgresStore_SentLog(t *testing.T) {
	s := setupPostgresStore(t)
	ctx := t.Context()
	at := time.Now().UTC()

	require.NoError(t, s.AppendSent(ctx, models.NewSentEmail("hr@acme.com", samplePost("x").Meta(), at)))
	require.NoError(t, s.AppendSent(ctx, models.NewSentEmail("ceo@beta.io", models.PostMeta{}, at)))

	sent, err := s.SentRecipients(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"hr@acme.com", "ceo@beta.io"}, sent)
}
