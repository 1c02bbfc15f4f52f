// Package job provides the ConversionJob aggregate and the flows that drive
// it: submission against the billing policy, progress reconciliation with the
// external processor, and exactly-once credit settlement on completion.
package job

import (
	"errors"
	"sync"
	"time"

	"github.com/maauso/clearmedia-api/internal/job/id"
)

// State represents the lifecycle state of a Job.
type State string

const (
	// StatePending is the initial state, before the processor accepted the job.
	StatePending State = "pending"
	// StateSubmitted means the processor accepted the job and returned a handle.
	StateSubmitted State = "submitted"
	// StateProcessing means a poll observed the job in progress.
	StateProcessing State = "processing"
	// StateCompleted means the processor produced the output. Terminal.
	StateCompleted State = "completed"
	// StateFailed means the job will never produce output. Terminal.
	StateFailed State = "failed"
)

// IsTerminal returns true for completed and failed.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// BillingMode is how a job is paid for.
type BillingMode string

const (
	// BillingFreeTrial jobs are covered by the one-time free trial.
	BillingFreeTrial BillingMode = "free_trial"
	// BillingMetered jobs are charged from the credit balance on completion.
	BillingMetered BillingMode = "metered"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which state transitions are allowed.
// submitted -> completed covers a vendor that finishes before the first poll.
var validTransitions = map[State][]State{
	StatePending:    {StateSubmitted, StateFailed},
	StateSubmitted:  {StateProcessing, StateCompleted, StateFailed},
	StateProcessing: {StateProcessing, StateCompleted, StateFailed},
	StateCompleted:  {},
	StateFailed:     {},
}

// canTransition checks if a transition from one state to another is valid.
func canTransition(from, to State) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Job is a conversion job aggregate.
type Job struct {
	mu sync.RWMutex

	// ID is the internal identifier.
	ID string
	// ExternalTaskID is the processor's handle, empty until submission succeeds.
	ExternalTaskID string
	// OwnerID is the user who submitted the job.
	OwnerID string
	// Kind is the conversion performed.
	Kind Kind
	// State is the current lifecycle state.
	State State
	// Progress is the percentage of completion (0-100). It never decreases.
	Progress int
	// InputRef is the storage reference of the source file.
	InputRef string
	// OutputRef is the storage reference of the result, set on completion.
	OutputRef string
	// BillingMode records whether the free trial or credits pay for the job.
	BillingMode BillingMode
	// CreditsReserved is the cost computed at submission, zero on the free trial.
	CreditsReserved int
	// CreditsSettled turns true exactly once, when the job completes.
	CreditsSettled bool
	// CreditsCharged is the amount actually debited at settlement.
	CreditsCharged int
	// Shortfall is the amount that could not be debited at settlement.
	Shortfall int
	// Metric is the duration or size the policy was evaluated against.
	Metric float64
	// PollCount is the number of reconciliation polls so far.
	PollCount int
	// Error holds the failure reason of a failed job.
	Error string
	// CreatedAt is when the job was created.
	CreatedAt time.Time
	// UpdatedAt is when the job was last updated.
	UpdatedAt time.Time
	// SubmittedAt is when the processor accepted the job.
	SubmittedAt time.Time
	// CompletedAt is when the job reached a terminal state.
	CompletedAt time.Time
}

// New creates a pending job with a generated ID.
func New(ownerID string, kind Kind, inputRef string, metric float64) *Job {
	now := time.Now()
	return &Job{
		ID:        id.Generate(),
		OwnerID:   ownerID,
		Kind:      kind,
		State:     StatePending,
		InputRef:  inputRef,
		Metric:    metric,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo attempts to change the job state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) TransitionTo(state State) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.transitionLocked(state)
}

func (j *Job) transitionLocked(state State) error {
	if !canTransition(j.State, state) {
		return ErrInvalidTransition
	}

	j.State = state
	j.UpdatedAt = time.Now()

	switch state {
	case StateSubmitted:
		j.SubmittedAt = j.UpdatedAt
	case StateCompleted, StateFailed:
		j.CompletedAt = j.UpdatedAt
	}
	return nil
}

// MarkSubmitted records the processor handle and moves to submitted.
func (j *Job) MarkSubmitted(externalTaskID string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StateSubmitted); err != nil {
		return err
	}
	j.ExternalTaskID = externalTaskID
	return nil
}

// Advance moves the job to processing and raises its progress.
// A reported value below the current progress is ignored.
func (j *Job) Advance(progress int) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StateProcessing); err != nil {
		return err
	}
	j.raiseProgressLocked(progress)
	return nil
}

func (j *Job) raiseProgressLocked(progress int) {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	if progress > j.Progress {
		j.Progress = progress
	}
}

// Complete moves the job to completed with its output.
func (j *Job) Complete(outputRef string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StateCompleted); err != nil {
		return err
	}
	j.Progress = 100
	j.OutputRef = outputRef
	return nil
}

// Settle records the settlement of a completed job.
func (j *Job) Settle(charged, shortfall int) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.State != StateCompleted || j.CreditsSettled {
		return ErrInvalidTransition
	}
	j.CreditsSettled = true
	j.CreditsCharged = charged
	j.Shortfall = shortfall
	j.UpdatedAt = time.Now()
	return nil
}

// Fail moves the job to failed with a reason.
func (j *Job) Fail(reason string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StateFailed); err != nil {
		return err
	}
	j.Error = reason
	return nil
}

// GetState returns the current state (thread-safe).
func (j *Job) GetState() State {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.State
}

// IsTerminal returns true if the job is completed or failed.
func (j *Job) IsTerminal() bool {
	return j.GetState().IsTerminal()
}

// Clone creates a copy of the job for safe reads.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return &Job{
		ID:              j.ID,
		ExternalTaskID:  j.ExternalTaskID,
		OwnerID:         j.OwnerID,
		Kind:            j.Kind,
		State:           j.State,
		Progress:        j.Progress,
		InputRef:        j.InputRef,
		OutputRef:       j.OutputRef,
		BillingMode:     j.BillingMode,
		CreditsReserved: j.CreditsReserved,
		CreditsSettled:  j.CreditsSettled,
		CreditsCharged:  j.CreditsCharged,
		Shortfall:       j.Shortfall,
		Metric:          j.Metric,
		PollCount:       j.PollCount,
		Error:           j.Error,
		CreatedAt:       j.CreatedAt,
		UpdatedAt:       j.UpdatedAt,
		SubmittedAt:     j.SubmittedAt,
		CompletedAt:     j.CompletedAt,
	}
}
