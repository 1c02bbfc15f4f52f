package job

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/maauso/clearmedia-api/internal/billing"
	"github.com/maauso/clearmedia-api/internal/processor"
)

// Reasons recorded on jobs failed by the reconciler itself.
const (
	failureBudgetExhausted = "processing did not finish within the polling budget"
	failureVendor          = "processing failed"
)

// ProgressReconciler brings a job up to date with the external processor.
// It is driven by client polling; every call is independent.
type ProgressReconciler struct {
	repo        Repository
	processor   processor.Processor
	policies    map[Kind]billing.Policy
	logger      *slog.Logger
	maxAttempts int
	maxAge      time.Duration
	now         func() time.Time
}

// ReconcilerOption configures a ProgressReconciler.
type ReconcilerOption func(*ProgressReconciler)

// WithMaxPollAttempts bounds how many polls a job may take before it is failed.
func WithMaxPollAttempts(n int) ReconcilerOption {
	return func(r *ProgressReconciler) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

// WithMaxPollDuration bounds how long after submission a job may stay in flight.
func WithMaxPollDuration(d time.Duration) ReconcilerOption {
	return func(r *ProgressReconciler) {
		if d > 0 {
			r.maxAge = d
		}
	}
}

// WithReconcilerPolicies replaces the default billing policies.
func WithReconcilerPolicies(p map[Kind]billing.Policy) ReconcilerOption {
	return func(r *ProgressReconciler) {
		r.policies = p
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) ReconcilerOption {
	return func(r *ProgressReconciler) {
		r.now = now
	}
}

// NewProgressReconciler creates a ProgressReconciler.
// Defaults: 1800 polls and two hours per job.
func NewProgressReconciler(repo Repository, proc processor.Processor, logger *slog.Logger, opts ...ReconcilerOption) *ProgressReconciler {
	if logger == nil {
		logger = slog.Default()
	}
	r := &ProgressReconciler{
		repo:        repo,
		processor:   proc,
		policies:    DefaultPolicies(),
		logger:      logger,
		maxAttempts: 1800,
		maxAge:      2 * time.Hour,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Poll reconciles one job owned by ownerID and returns its current snapshot.
//
// Terminal jobs are returned as stored without calling the processor.
// A processor error is absorbed: the cached state is returned and the next
// poll tries again. Once the polling budget runs out the processor is still
// asked one last time; only a job that is not terminal there is failed,
// without settlement.
func (r *ProgressReconciler) Poll(ctx context.Context, ownerID, jobID string) (*Job, error) {
	if ownerID == "" {
		return nil, ErrOwnerRequired
	}
	j, err := r.repo.FindByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if j.OwnerID != ownerID {
		return nil, ErrJobNotFound
	}
	if j.State.IsTerminal() {
		return j, nil
	}

	attempts, err := r.repo.RecordPoll(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("job: record poll: %w", err)
	}
	exhausted := r.budgetExhausted(j, attempts)

	if j.State == StatePending || j.ExternalTaskID == "" {
		if exhausted {
			return r.failExhausted(ctx, jobID, attempts)
		}
		return r.repo.FindByID(ctx, jobID)
	}

	obs, err := r.processor.Describe(ctx, string(j.Kind), j.ExternalTaskID)
	if err != nil {
		r.logger.Warn("processor describe failed, returning cached state",
			slog.String("job_id", jobID),
			slog.String("external_task_id", j.ExternalTaskID),
			slog.Int("poll_count", attempts),
			slog.String("error", err.Error()),
		)
		if exhausted {
			return r.failExhausted(ctx, jobID, attempts)
		}
		return r.repo.FindByID(ctx, jobID)
	}

	if exhausted && !obs.Phase.IsTerminal() {
		return r.failExhausted(ctx, jobID, attempts)
	}
	if err := r.apply(ctx, j, obs); err != nil {
		return nil, err
	}
	return r.repo.FindByID(ctx, jobID)
}

// failExhausted fails a job whose polling budget ran out.
func (r *ProgressReconciler) failExhausted(ctx context.Context, jobID string, attempts int) (*Job, error) {
	failed, err := r.repo.Fail(ctx, jobID, failureBudgetExhausted)
	if err != nil {
		return nil, fmt.Errorf("job: fail after budget: %w", err)
	}
	if failed {
		r.logger.Warn("job exceeded polling budget",
			slog.String("job_id", jobID),
			slog.Int("poll_count", attempts),
		)
	}
	return r.repo.FindByID(ctx, jobID)
}

// apply persists one observation.
func (r *ProgressReconciler) apply(ctx context.Context, j *Job, obs processor.Observation) error {
	switch obs.Phase {
	case processor.PhaseSucceeded:
		charge := 0
		if j.BillingMode == BillingMetered {
			charge = r.cost(j)
		}
		s, err := r.repo.Complete(ctx, j.ID, obs.OutputRef, charge)
		if err != nil {
			return fmt.Errorf("job: complete: %w", err)
		}
		if !s.Completed {
			return nil
		}
		if s.Shortfall > 0 {
			r.logger.Warn("settlement shortfall",
				slog.String("job_id", j.ID),
				slog.String("user_id", j.OwnerID),
				slog.Int("charge", charge),
				slog.Int("shortfall", s.Shortfall),
			)
		}
		r.logger.Info("job completed",
			slog.String("job_id", j.ID),
			slog.String("billing_mode", string(j.BillingMode)),
			slog.Int("charged", s.Charged),
		)
		return nil

	case processor.PhaseFailed:
		reason := obs.Detail
		if reason == "" {
			reason = failureVendor
		}
		if _, err := r.repo.Fail(ctx, j.ID, reason); err != nil {
			return fmt.Errorf("job: fail: %w", err)
		}
		r.logger.Info("job failed at processor",
			slog.String("job_id", j.ID),
			slog.String("vendor_status", obs.VendorStatus),
			slog.String("reason", reason),
		)
		return nil

	default:
		if err := r.repo.Advance(ctx, j.ID, NextProgress(j.Progress, obs.Progress)); err != nil {
			return fmt.Errorf("job: advance: %w", err)
		}
		return nil
	}
}

// cost recomputes the charge from the stored metric.
func (r *ProgressReconciler) cost(j *Job) int {
	if p, ok := r.policies[j.Kind]; ok {
		return p.Cost(j.Metric)
	}
	return j.CreditsReserved
}

func (r *ProgressReconciler) budgetExhausted(j *Job, attempts int) bool {
	if attempts > r.maxAttempts {
		return true
	}
	started := j.SubmittedAt
	if started.IsZero() {
		started = j.CreatedAt
	}
	return r.now().Sub(started) > r.maxAge
}

// NextProgress returns the progress to store for an in-flight job.
// Without a vendor value it creeps up by ten, never past 90.
func NextProgress(last int, reported *int) int {
	if reported != nil {
		return *reported
	}
	next := last + 10
	if next > 90 {
		next = 90
	}
	if next < last {
		return last
	}
	return next
}
