// Package processor provides the vendor-neutral contract for external media
// processing. Adapters translate each vendor's status vocabulary into a
// single Observation so the job lifecycle never sees vendor strings.
package processor

import (
	"context"
	"errors"
)

// ErrUnsupportedKind is returned when no processor handles a conversion kind.
var ErrUnsupportedKind = errors.New("processor: unsupported conversion kind")

// Phase is the vendor-neutral phase of an external task.
type Phase string

const (
	// PhaseProcessing covers queued, running and unrecognized vendor states.
	PhaseProcessing Phase = "processing"
	// PhaseSucceeded means the vendor finished and produced output.
	PhaseSucceeded Phase = "succeeded"
	// PhaseFailed means the vendor gave up on the task.
	PhaseFailed Phase = "failed"
)

// IsTerminal reports whether the vendor is done with the task.
func (p Phase) IsTerminal() bool {
	return p == PhaseSucceeded || p == PhaseFailed
}

// Observation is one translated vendor status report.
type Observation struct {
	// Phase is the translated phase.
	Phase Phase
	// Progress is the vendor-reported percentage, nil when the vendor omits it.
	Progress *int
	// OutputRef locates the result once Phase is PhaseSucceeded.
	OutputRef string
	// Detail carries the vendor error message for failures.
	Detail string
	// VendorStatus is the raw status string, kept for logs.
	VendorStatus string
}

// Request describes a job handed to an external processor.
type Request struct {
	// Kind is the conversion kind, e.g. "subtitle_removal".
	Kind string
	// SourceRef is the storage reference of the input file.
	SourceRef string
	// Params are kind-specific options passed through to the vendor.
	Params map[string]string
}

// Processor submits and describes external processing tasks.
type Processor interface {
	// Submit hands the request to the vendor and returns its task handle.
	Submit(ctx context.Context, req Request) (taskID string, err error)

	// Describe reports the current state of a task.
	Describe(ctx context.Context, kind, taskID string) (Observation, error)
}

// intPtr returns a pointer to v.
func intPtr(v int) *int {
	return &v
}
