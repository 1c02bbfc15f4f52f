package job

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/maauso/clearmedia-api/internal/billing"
	"github.com/maauso/clearmedia-api/internal/credit"
	"github.com/maauso/clearmedia-api/internal/processor"
)

// SubmitInput is a request to start a conversion.
type SubmitInput struct {
	// OwnerID is the authenticated user.
	OwnerID string
	// Kind is the requested conversion.
	Kind Kind
	// InputRef is the storage reference of the uploaded source.
	InputRef string
	// Metric is the duration in seconds or the size in bytes, per the kind's policy.
	Metric float64
	// Params are passed through to the processor.
	Params map[string]string
}

// Submitter validates conversion requests against the billing policy and
// hands accepted jobs to the external processor.
type Submitter struct {
	ledger    credit.Ledger
	repo      Repository
	processor processor.Processor
	policies  map[Kind]billing.Policy
	logger    *slog.Logger
}

// SubmitterOption configures a Submitter.
type SubmitterOption func(*Submitter)

// WithPolicies replaces the default billing policies.
func WithPolicies(p map[Kind]billing.Policy) SubmitterOption {
	return func(s *Submitter) {
		s.policies = p
	}
}

// NewSubmitter creates a Submitter.
func NewSubmitter(ledger credit.Ledger, repo Repository, proc processor.Processor, logger *slog.Logger, opts ...SubmitterOption) *Submitter {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Submitter{
		ledger:    ledger,
		repo:      repo,
		processor: proc,
		policies:  DefaultPolicies(),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit validates the request, picks the billing mode and starts the job.
//
// The free trial is consumed before the processor is called and is not given
// back if the processor rejects the job: one eligible attempt uses it up.
// On processor rejection the failed job is returned together with a
// *SubmissionError.
func (s *Submitter) Submit(ctx context.Context, in SubmitInput) (*Job, error) {
	if in.OwnerID == "" {
		return nil, ErrOwnerRequired
	}
	if in.InputRef == "" {
		return nil, ErrInputRequired
	}
	policy, ok := s.policies[in.Kind]
	if !ok {
		return nil, &PolicyError{Reason: ReasonUnsupportedKind}
	}
	if err := policy.ValidateMetric(in.Metric); err != nil {
		return nil, &PolicyError{Reason: ReasonInvalidMetric}
	}

	acct, err := s.ledger.GetBalance(ctx, in.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("job: load credit account: %w", err)
	}

	mode := BillingMetered
	if policy.FreeTrialEligible && !acct.FreeTrialConsumed {
		mode = BillingFreeTrial
	}

	for {
		if err := checkCeiling(policy, in.Metric, mode); err != nil {
			return nil, err
		}
		if mode == BillingMetered {
			if acct.Balance <= 0 {
				return nil, &PolicyError{Reason: ReasonInsufficientCredits, Mode: mode}
			}
			break
		}

		won, err := s.ledger.MarkFreeTrialConsumed(ctx, in.OwnerID)
		if err != nil {
			return nil, fmt.Errorf("job: reserve free trial: %w", err)
		}
		if won {
			break
		}

		s.logger.Info("free trial taken by a concurrent request, re-evaluating as metered",
			slog.String("user_id", in.OwnerID),
		)
		mode = BillingMetered
		if acct, err = s.ledger.GetBalance(ctx, in.OwnerID); err != nil {
			return nil, fmt.Errorf("job: load credit account: %w", err)
		}
	}

	// From here on the job must be recorded even if the caller goes away:
	// the free trial may already be spent and the vendor may accept the task.
	persistCtx := context.WithoutCancel(ctx)

	j := New(in.OwnerID, in.Kind, in.InputRef, in.Metric)
	j.BillingMode = mode
	if mode == BillingMetered {
		j.CreditsReserved = policy.Cost(in.Metric)
	}
	if err := s.repo.Create(persistCtx, j); err != nil {
		return nil, fmt.Errorf("job: create: %w", err)
	}

	taskID, err := s.processor.Submit(ctx, processor.Request{
		Kind:      string(in.Kind),
		SourceRef: in.InputRef,
		Params:    in.Params,
	})
	if err != nil {
		s.logger.Error("processor rejected job",
			slog.String("job_id", j.ID),
			slog.String("user_id", in.OwnerID),
			slog.String("kind", string(in.Kind)),
			slog.String("error", err.Error()),
		)
		if _, ferr := s.repo.Fail(persistCtx, j.ID, err.Error()); ferr != nil {
			return nil, fmt.Errorf("job: mark failed after submission error: %w", ferr)
		}
		failed, ferr := s.repo.FindByID(persistCtx, j.ID)
		if ferr != nil {
			return nil, ferr
		}
		return failed, &SubmissionError{JobID: j.ID, Err: err}
	}

	if err := s.repo.MarkSubmitted(persistCtx, j.ID, taskID); err != nil {
		return nil, fmt.Errorf("job: mark submitted: %w", err)
	}

	s.logger.Info("job submitted",
		slog.String("job_id", j.ID),
		slog.String("user_id", in.OwnerID),
		slog.String("kind", string(in.Kind)),
		slog.String("billing_mode", string(mode)),
		slog.String("external_task_id", taskID),
	)

	return s.repo.FindByID(persistCtx, j.ID)
}

// checkCeiling rejects metrics above the ceiling of the billing mode.
func checkCeiling(p billing.Policy, metric float64, mode BillingMode) error {
	freeTrial := mode == BillingFreeTrial
	if !p.Exceeds(metric, freeTrial) {
		return nil
	}
	reason := ReasonDurationExceeded
	if p.Unit == billing.UnitBytes {
		reason = ReasonSizeExceeded
	}
	return &PolicyError{Reason: reason, Mode: mode, Limit: p.Ceiling(freeTrial)}
}
