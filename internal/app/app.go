// Package app assembles the pipeline components shared by the API server and
// the worker CLI.
package app

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"outreach-pipeline/internal/config"
	"outreach-pipeline/internal/ingest"
	"outreach-pipeline/internal/mailer"
	"outreach-pipeline/internal/ratelimit"
	"outreach-pipeline/internal/store"
	"outreach-pipeline/internal/worker"
)

// Components is everything a process needs to serve requests or run a job.
type Components struct {
	Backends *store.Backends
	Ingest   *ingest.Orchestrator
	Job      *worker.EmailJob
	Direct   *worker.DirectSender
	Limiter  *ratelimit.TokenBucket

	closers []func()
}

// Close releases pools and clients in reverse order of creation.
func (c *Components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

// Build wires stores, mailer and jobs from cfg. A disabled relational store is
// still registered so health reporting and ranking stay uniform.
func Build(ctx context.Context, cfg config.Config) (*Components, error) {
	c := &Components{}

	csvStore := store.NewCSVStore(cfg.PostsCSVPath(), cfg.SentLogFile)
	pg := &store.PostgresStore{}
	if cfg.StoreInDB {
		var err error
		pg, err = store.NewPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, pg.Close)
		if err := pg.RunMigrations(ctx); err != nil {
			c.Close()
			return nil, errors.Wrap(err, "migrations")
		}
	}
	c.Backends = store.NewBackends(
		store.Entry{Store: pg, Rank: store.RankRelational, Enabled: cfg.StoreInDB},
		store.Entry{Store: csvStore, Rank: store.RankFlatFile, Enabled: cfg.StoreInCSV},
	)
	if !c.Backends.Any() {
		zap.L().Warn("no storage backend enabled; ingest and email jobs will be rejected")
	}

	attachments, err := mailer.NewAttachmentSource(ctx, cfg)
	if err != nil {
		c.Close()
		return nil, err
	}
	mailCfg := mailer.FromConfig(cfg)
	if err := mailCfg.Validate(); err != nil {
		zap.L().Warn("email sending disabled", zap.Error(err))
	}
	dispatcher := worker.NewDispatcher(mailCfg, mailer.NewSMTPTransport(mailCfg), attachments, c.Backends, cfg.SendInterval)

	c.Ingest = ingest.NewOrchestrator(c.Backends)
	c.Job = worker.NewEmailJob(c.Backends, mailCfg, dispatcher)
	c.Direct = worker.NewDirectSender(c.Backends, mailCfg, dispatcher)

	if cfg.RateLimitEnabled() {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		c.closers = append(c.closers, func() { _ = client.Close() })
		c.Limiter = ratelimit.NewTokenBucket(client, cfg.RateLimitCapacity, cfg.RateLimitRefill, cfg.RateLimitTTL)
	}

	zap.L().Info("pipeline assembled",
		zap.Bool("store_csv", cfg.StoreInCSV),
		zap.Bool("store_db", cfg.StoreInDB),
		zap.Bool("rate_limit", c.Limiter != nil),
	)
	return c, nil
}
