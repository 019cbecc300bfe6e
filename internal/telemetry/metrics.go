package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Skip reasons for EmailsSkipped.
const (
	SkipExact   = "exact_duplicate"
	SkipCompany = "company_match"
)

var (
	once sync.Once

	PostsReceived    = prometheus.NewCounter(prometheus.CounterOpts{Name: "posts_received_total", Help: "Posts submitted by the extension"})
	PostsSaved       = prometheus.NewCounter(prometheus.CounterOpts{Name: "posts_saved_total", Help: "New posts persisted"})
	PostsDuplicate   = prometheus.NewCounter(prometheus.CounterOpts{Name: "posts_duplicate_total", Help: "Posts dropped as already stored"})
	EmailsSent       = prometheus.NewCounter(prometheus.CounterOpts{Name: "emails_sent_total", Help: "Emails accepted by the SMTP server"})
	EmailsFailed     = prometheus.NewCounter(prometheus.CounterOpts{Name: "emails_failed_total", Help: "Emails rejected or errored per recipient"})
	EmailsSkipped    = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "emails_skipped_total", Help: "Recipients suppressed before sending"}, []string{"reason"})
	JobRunning       = prometheus.NewGauge(prometheus.GaugeOpts{Name: "email_job_running", Help: "1 while the background email job runs"})
	RateLimitRejects = prometheus.NewCounter(prometheus.CounterOpts{Name: "ingest_rate_limit_rejects_total", Help: "Ingest requests rejected by rate limiter"})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			PostsReceived,
			PostsSaved,
			PostsDuplicate,
			EmailsSent,
			EmailsFailed,
			EmailsSkipped,
			JobRunning,
			RateLimitRejects,
		)
	})
	return promhttp.Handler()
}
