// Package httpapi wires the producer-facing and operator-facing HTTP
// surface: job submission, status lookup, cancellation, and DLQ
// inspection/re-drive.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"batchexport/internal/admin"
	"batchexport/internal/clock"
	"batchexport/internal/pollhint"
	"batchexport/internal/ratelimit"
	"batchexport/internal/store"
	"batchexport/internal/submission"
	"batchexport/internal/telemetry"
)

// Submitter is the subset of submission.Submission used by the server.
type Submitter interface {
	Submit(ctx context.Context, req submission.Request) (jobKey string, status string, err error)
}

// Admin is the subset of admin.Admin used by the server. jobKey is the
// client-visible identifier returned by POST /jobs, not the internal job_id.
type Admin interface {
	JobStatus(ctx context.Context, jobKey string) (admin.JobStatus, error)
	Redrive(ctx context.Context, inputID string) error
	Cancel(ctx context.Context, jobKey string, now time.Time) error
	ListDLQ(ctx context.Context, limit int) ([]admin.DLQEntry, error)
}

// Server wires HTTP handlers for submission and operator routes.
type Server struct {
	submitter Submitter
	admin     Admin
	clock     clock.Clock
	limiter   *ratelimit.TokenBucket
	notifier  *pollhint.Notifier
}

// New constructs the HTTP server.
func New(submitter Submitter, a Admin, c clock.Clock, limiter *ratelimit.TokenBucket, notifier *pollhint.Notifier) *Server {
	return &Server{submitter: submitter, admin: a, clock: c, limiter: limiter, notifier: notifier}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/metrics", telemetry.Handler())

	r.Post("/jobs", s.handleSubmit)
	r.Get("/jobs/{jobId}", s.handleGetJob)
	r.Post("/jobs/{jobId}/cancel", s.handleCancel)
	r.Post("/admin/units/{inputId}/redrive", s.handleRedrive)
	r.Get("/admin/dlq", s.handleDLQ)
	return r
}

type submitItem struct {
	IndexKey      string `json:"indexKey"`
	EffectiveDate int    `json:"effectiveDate"`
	AsofIndicator string `json:"asofIndicator"`
}

type submitRequest struct {
	Items []submitItem `json:"items"`
}

// submitResponse's JobKey carries the job_key value — the only
// identifier ever handed to a client — under the wire name jobId.
type submitResponse struct {
	JobKey string `json:"jobId"`
	Status string `json:"status"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	clientID := clientFromRequest(r)
	if s.limiter != nil {
		allowed, _, err := s.limiter.Allow(r.Context(), clientID)
		if err != nil {
			http.Error(w, "rate limit error", http.StatusInternalServerError)
			return
		}
		if !allowed {
			telemetry.RateLimitRejects.Inc()
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	items := make([]submission.Item, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, submission.Item{
			IndexKey:      it.IndexKey,
			EffectiveDate: it.EffectiveDate,
			AsofIndicator: it.AsofIndicator,
		})
	}

	jobKey, status, err := s.submitter.Submit(r.Context(), submission.Request{Items: items})
	if err != nil {
		writeSubmitError(w, err)
		return
	}

	telemetry.SubmissionsTotal.Inc()
	if s.notifier != nil {
		s.notifier.Notify(r.Context())
	}
	writeJSON(w, http.StatusAccepted, submitResponse{JobKey: jobKey, Status: status})
}

func writeSubmitError(w http.ResponseWriter, err error) {
	switch err.(type) {
	case *submission.ValidationError:
		http.Error(w, err.Error(), http.StatusBadRequest)
	case *submission.JobKeyConflictError:
		http.Error(w, err.Error(), http.StatusConflict)
	case *submission.TooManyUnitsError:
		http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobKey := chi.URLParam(r, "jobId")
	status, err := s.admin.JobStatus(r.Context(), jobKey)
	if err != nil {
		if err == store.ErrJobNotFound {
			http.Error(w, "job not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	jobKey := chi.URLParam(r, "jobId")
	if err := s.admin.Cancel(r.Context(), jobKey, s.clock.Now()); err != nil {
		if err == store.ErrJobNotFound {
			http.Error(w, "job not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (s *Server) handleRedrive(w http.ResponseWriter, r *http.Request) {
	inputID := chi.URLParam(r, "inputId")
	if err := s.admin.Redrive(r.Context(), inputID); err != nil {
		if err == store.ErrUnitNotDLQ {
			http.Error(w, "unit is not in DLQ", http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if s.notifier != nil {
		s.notifier.Notify(r.Context())
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "redriven"})
}

func (s *Server) handleDLQ(w http.ResponseWriter, r *http.Request) {
	entries, err := s.admin.ListDLQ(r.Context(), 100)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": entries})
}

func clientFromRequest(r *http.Request) string {
	if v := r.Header.Get("X-Client-ID"); v != "" {
		return v
	}
	return "default"
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
