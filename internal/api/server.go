package api

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"outreach-pipeline/internal/ingest"
	"outreach-pipeline/internal/mailer"
	"outreach-pipeline/internal/models"
	"outreach-pipeline/internal/ratelimit"
	"outreach-pipeline/internal/store"
	"outreach-pipeline/internal/telemetry"
	"outreach-pipeline/internal/worker"
)

// Server wires HTTP handlers for the extension-facing API.
type Server struct {
	backends *store.Backends
	ingest   *ingest.Orchestrator
	job      *worker.EmailJob
	direct   *worker.DirectSender
	limiter  *ratelimit.TokenBucket
	validate *validator.Validate
}

// New constructs the API server. limiter may be nil.
func New(backends *store.Backends, orch *ingest.Orchestrator, job *worker.EmailJob, direct *worker.DirectSender, limiter *ratelimit.TokenBucket) *Server {
	return &Server{
		backends: backends,
		ingest:   orch,
		job:      job,
		direct:   direct,
		limiter:  limiter,
		validate: validator.New(),
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	// the extension posts from linkedin.com
	r.Use(cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}).Handler)
	r.Use(requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Mount("/metrics", telemetry.Handler())

	r.Get("/health", s.handleHealth)
	r.Post("/posts", s.handleIngest)
	r.Post("/send-emails", s.handleSendEmails)
	r.Post("/trigger-emails", s.handleTrigger)
	r.Get("/email-job-status", s.handleJobStatus)
	return r
}

type ingestRequest struct {
	BatchNumber int                `json:"batch_number" validate:"gte=1"`
	Posts       []models.PostInput `json:"posts" validate:"required"`
}

type ingestResponse struct {
	Status      string `json:"status"`
	Message     string `json:"message"`
	BatchNumber int    `json:"batch_number"`
	ingest.Result
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if !s.backends.Any() {
		writeError(w, http.StatusServiceUnavailable, store.ErrNoStorage.Error())
		return
	}
	if s.limiter != nil {
		d, err := s.limiter.Allow(r.Context(), clientFromRequest(r))
		if err != nil {
			zap.L().Error("rate limiter", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "rate limit error")
			return
		}
		if !d.Allowed {
			telemetry.RateLimitRejects.Inc()
			writeError(w, http.StatusTooManyRequests, "rate limited")
			return
		}
	}

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	res, err := s.ingest.ProcessBatch(r.Context(), req.Posts, req.BatchNumber)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	msg := fmt.Sprintf("Batch %d processed successfully.", req.BatchNumber)
	if len(req.Posts) == 0 {
		msg = "Empty batch received, nothing to process."
	}
	writeJSON(w, http.StatusOK, ingestResponse{
		Status:      "ok",
		Message:     msg,
		BatchNumber: req.BatchNumber,
		Result:      res,
	})
}

type sendEmailsRequest struct {
	Emails         []string `json:"emails" validate:"required,dive,email"`
	SkipDuplicates *bool    `json:"skip_duplicates"`
	Author         string   `json:"author"`
	Content        string   `json:"content"`
	ContactNumbers string   `json:"contact_numbers"`
	ApplyLinks     string   `json:"apply_links"`
}

type sendEmailsResponse struct {
	Status                string               `json:"status"`
	Message               string               `json:"message"`
	Sent                  int                  `json:"sent"`
	Failed                int                  `json:"failed"`
	FailedDetails         []models.SendFailure `json:"failed_details"`
	DuplicatesSkipped     int                  `json:"duplicates_skipped"`
	CompanyMatchesSkipped int                  `json:"company_matches_skipped"`
}

func (s *Server) handleSendEmails(w http.ResponseWriter, r *http.Request) {
	var req sendEmailsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	for i := range req.Emails {
		req.Emails[i] = strings.TrimSpace(req.Emails[i])
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	skip := true
	if req.SkipDuplicates != nil {
		skip = *req.SkipDuplicates
	}

	res, err := s.direct.Send(r.Context(), worker.DirectRequest{
		Emails:         req.Emails,
		SkipDuplicates: skip,
		Post: models.PostMeta{
			Author:         req.Author,
			Content:        req.Content,
			ContactNumbers: req.ContactNumbers,
			ApplyLinks:     req.ApplyLinks,
		},
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sendEmailsResponse{
		Status:                "ok",
		Message:               res.Message,
		Sent:                  res.Sent,
		Failed:                res.Failed,
		FailedDetails:         res.FailedDetails,
		DuplicatesSkipped:     res.DuplicatesSkipped,
		CompanyMatchesSkipped: res.CompanyMatchesSkipped,
	})
}

type triggerResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	JobID   string `json:"job_id"`
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	st, err := s.job.Trigger(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, triggerResponse{
		Status:  "ok",
		Message: "Email job started in background. Check GET /email-job-status for progress.",
		JobID:   st.JobID,
	})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.job.Status())
}

type healthResponse struct {
	Status     string `json:"status"`
	StorageCSV bool   `json:"storage_csv"`
	StorageDB  bool   `json:"storage_db"`
	Timestamp  string `json:"timestamp"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:     "healthy",
		StorageCSV: s.backends.IsEnabled(store.RankFlatFile),
		StorageDB:  s.backends.IsEnabled(store.RankRelational),
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// writeServiceError maps domain errors onto status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNoStorage),
		errors.Is(err, store.ErrRelationalDisabled),
		errors.Is(err, mailer.ErrNotConfigured):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, worker.ErrJobRunning):
		writeError(w, http.StatusConflict, err.Error())
	default:
		zap.L().Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("field '%s' failed on the '%s' tag", fe.Field(), fe.Tag()))
	}
	return strings.Join(msgs, "; ")
}

func clientFromRequest(r *http.Request) string {
	if v := r.Header.Get("X-Client-ID"); v != "" {
		return v
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func writeError(w http.ResponseWriter, code int, detail string) {
	writeJSON(w, code, errorResponse{Detail: detail})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
