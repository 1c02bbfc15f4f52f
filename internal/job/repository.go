package job

import (
	"context"
	"errors"
)

// ErrJobNotFound is returned when a job cannot be found by ID.
var ErrJobNotFound = errors.New("job not found")

// Settlement is the outcome of completing a job.
type Settlement struct {
	// Completed is true only for the call that moved the job to completed.
	Completed bool
	// Charged is the amount debited from the owner.
	Charged int
	// Shortfall is the amount that could not be debited.
	Shortfall int
}

// Repository defines the interface for job persistence.
// State-changing methods are conditional updates so concurrent pollers of the
// same job converge on a single outcome.
type Repository interface {
	// Create stores a new job.
	Create(ctx context.Context, j *Job) error

	// FindByID retrieves a job by its unique identifier.
	// Returns ErrJobNotFound if the job does not exist.
	FindByID(ctx context.Context, id string) (*Job, error)

	// ListByOwner returns the owner's jobs, newest first, at most limit.
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]*Job, error)

	// MarkSubmitted stores the processor handle of a pending job.
	// Returns ErrInvalidTransition if the job is no longer pending.
	MarkSubmitted(ctx context.Context, id, externalTaskID string) error

	// RecordPoll increments the poll counter of a non-terminal job and
	// returns the new count.
	RecordPoll(ctx context.Context, id string) (int, error)

	// Advance moves a submitted or processing job to processing, raising its
	// progress without ever lowering it. Terminal jobs are left unchanged.
	Advance(ctx context.Context, id string, progress int) error

	// Fail moves a non-terminal job to failed and reports whether it did.
	Fail(ctx context.Context, id, reason string) (bool, error)

	// Complete moves a non-terminal job to completed and, in the same atomic
	// unit, debits charge credits from the owner. When the balance does not
	// cover charge, nothing is debited and the amount is recorded as a
	// shortfall. A job that is already terminal yields a zero Settlement.
	Complete(ctx context.Context, id, outputRef string, charge int) (Settlement, error)
}
