package job

import (
	"errors"
	"fmt"
	"strconv"
)

// Static errors for job flows.
var (
	// ErrOwnerRequired is returned when a flow is invoked without a user.
	ErrOwnerRequired = errors.New("job: owner ID is required")
	// ErrInputRequired is returned when a submission has no input reference.
	ErrInputRequired = errors.New("job: input reference is required")
)

// Reason is a machine-readable policy violation code.
type Reason string

const (
	ReasonInsufficientCredits Reason = "insufficient_credits"
	ReasonDurationExceeded    Reason = "duration_exceeded"
	ReasonSizeExceeded        Reason = "size_exceeded"
	ReasonInvalidMetric       Reason = "invalid_metric"
	ReasonUnsupportedKind     Reason = "unsupported_kind"
)

// PolicyError is a submission rejected by the billing policy.
// No state is mutated when it is returned.
type PolicyError struct {
	Reason Reason
	// Mode is the billing mode the request was evaluated under.
	Mode BillingMode
	// Limit is the ceiling that was exceeded, zero when not applicable.
	Limit float64
}

func (e *PolicyError) Error() string {
	switch e.Reason {
	case ReasonDurationExceeded, ReasonSizeExceeded:
		return fmt.Sprintf("job: %s: %s limit is %s", e.Reason, e.Mode, strconv.FormatFloat(e.Limit, 'f', -1, 64))
	default:
		return "job: " + string(e.Reason)
	}
}

// SubmissionError is returned when the processor rejects a job.
// The job has been moved to failed and nothing was charged.
type SubmissionError struct {
	JobID string
	Err   error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("job %s: vendor submission failed: %v", e.JobID, e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// AsPolicyError returns the PolicyError wrapped in err, if any.
func AsPolicyError(err error) (*PolicyError, bool) {
	var pe *PolicyError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
