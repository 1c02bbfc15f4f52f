package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/clearmedia-api/internal/credit"
	"github.com/maauso/clearmedia-api/internal/identity"
	"github.com/maauso/clearmedia-api/internal/job"
	"github.com/maauso/clearmedia-api/internal/payment"
	"github.com/maauso/clearmedia-api/internal/storage"
)

const (
	defaultMaxUploadBytes = 500 << 20
	defaultHistoryLimit   = 50
)

// CheckoutCreator starts hosted checkout sessions.
type CheckoutCreator interface {
	CreateCheckout(ctx context.Context, productID string, meta payment.CheckoutMetadata) (string, error)
}

// Dependencies are the services the handlers delegate to.
type Dependencies struct {
	Submitter  *job.Submitter
	Reconciler *job.ProgressReconciler
	Jobs       job.Repository
	Ledger     credit.Ledger
	Webhooks   *payment.WebhookReconciler
	// Checkout is optional; checkout requests fail with 503 when nil.
	Checkout CheckoutCreator
	Products payment.ProductCredits
	Objects  storage.ObjectStore
	// Ping reports backing store health, nil when there is nothing to check.
	Ping func(ctx context.Context) error
}

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	deps           Dependencies
	validator      *validator.Validate
	logger         *slog.Logger
	maxUploadBytes int64
	presignTTL     time.Duration
	historyLimit   int
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithMaxUploadBytes limits the body size accepted by POST /uploads.
func WithMaxUploadBytes(n int64) HandlerOption {
	return func(h *Handlers) {
		if n > 0 {
			h.maxUploadBytes = n
		}
	}
}

// WithPresignTTL sets the lifetime of presigned upload URLs.
func WithPresignTTL(d time.Duration) HandlerOption {
	return func(h *Handlers) {
		if d > 0 {
			h.presignTTL = d
		}
	}
}

// WithHistoryLimit caps the number of jobs returned by GET /jobs.
func WithHistoryLimit(n int) HandlerOption {
	return func(h *Handlers) {
		h.historyLimit = n
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(deps Dependencies, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		deps:           deps,
		validator:      validator.New(),
		logger:         logger,
		maxUploadBytes: defaultMaxUploadBytes,
		presignTTL:     storage.DefaultPresignTTL,
		historyLimit:   defaultHistoryLimit,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if h.deps.Ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.deps.Ping(ctx); err != nil {
			h.logger.Error("health check failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// CreateJob handles POST /jobs requests.
func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req CreateJobRequest
	if !h.decode(w, r, &req) {
		return
	}

	submitted, err := h.deps.Submitter.Submit(r.Context(), job.SubmitInput{
		OwnerID:  userID,
		Kind:     job.Kind(req.Kind),
		InputRef: req.InputRef,
		Metric:   req.Metric,
		Params:   req.Params,
	})
	if err != nil {
		h.writeSubmitError(w, userID, err)
		return
	}

	writeJSON(w, http.StatusAccepted, CreateJobResponse{
		JobID:           submitted.ID,
		State:           string(submitted.State),
		BillingMode:     string(submitted.BillingMode),
		CreditsReserved: submitted.CreditsReserved,
	})
}

func (h *Handlers) writeSubmitError(w http.ResponseWriter, userID string, err error) {
	if pe, ok := job.AsPolicyError(err); ok {
		status := http.StatusBadRequest
		if pe.Reason == job.ReasonInsufficientCredits {
			status = http.StatusPaymentRequired
		}
		writeJSON(w, status, ErrorResponse{
			Error: pe.Error(),
			Code:  string(pe.Reason),
			Mode:  string(pe.Mode),
			Limit: pe.Limit,
		})
		return
	}

	var se *job.SubmissionError
	if errors.As(err, &se) {
		writeJSON(w, http.StatusBadGateway, ErrorResponse{
			Error: "the processing service rejected the job",
			Code:  "vendor_submission_failed",
			JobID: se.JobID,
		})
		return
	}

	if errors.Is(err, job.ErrInputRequired) {
		writeError(w, http.StatusBadRequest, err.Error(), "validation_error")
		return
	}

	h.logger.Error("failed to submit job",
		slog.String("user_id", userID),
		slog.String("error", err.Error()),
	)
	writeError(w, http.StatusInternalServerError, "failed to submit job", "job_submission_failed")
}

// JobProgress handles GET /jobs/{id}/progress requests.
func (h *Handlers) JobProgress(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "missing_job_id")
		return
	}

	j, err := h.deps.Reconciler.Poll(r.Context(), userID, jobID)
	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found", "job_not_found")
			return
		}
		h.logger.Error("failed to reconcile job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get job progress", "job_fetch_failed")
		return
	}

	resp := ProgressResponse{
		JobID:           j.ID,
		State:           string(j.State),
		ProgressPercent: j.Progress,
		Error:           j.Error,
	}
	if j.State == job.StateCompleted {
		resp.OutputRef = j.OutputRef
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListJobs handles GET /jobs requests.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	jobs, err := h.deps.Jobs.ListByOwner(r.Context(), userID, h.historyLimit)
	if err != nil {
		h.logger.Error("failed to list jobs",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list jobs", "job_fetch_failed")
		return
	}

	resp := ListJobsResponse{Jobs: make([]JobSummary, 0, len(jobs))}
	for _, j := range jobs {
		s := JobSummary{
			JobID:           j.ID,
			Kind:            string(j.Kind),
			State:           string(j.State),
			ProgressPercent: j.Progress,
			BillingMode:     string(j.BillingMode),
			CreditsCharged:  j.CreditsCharged,
			CreatedAt:       j.CreatedAt,
		}
		if j.State == job.StateCompleted {
			s.OutputRef = j.OutputRef
		}
		resp.Jobs = append(resp.Jobs, s)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Credits handles GET /credits requests.
func (h *Handlers) Credits(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	acct, err := h.deps.Ledger.GetBalance(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to load credit balance",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load credits", "credits_fetch_failed")
		return
	}

	writeJSON(w, http.StatusOK, CreditsResponse{
		Balance:           acct.Balance,
		FreeTrialConsumed: acct.FreeTrialConsumed,
	})
}

// decode reads and validates a JSON request body, writing the error response
// itself when it returns false.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "invalid_json")
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "validation_error")
		return false
	}
	return true
}

// currentUser returns the authenticated user placed in the context by
// AuthMiddleware.
func currentUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := identity.UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required", "unauthenticated")
		return "", false
	}
	return userID, true
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
