// Package imgproc provides an HTTP client for the image and document
// processing task queue (watermark removal, restoration, cutout, colorization).
package imgproc

// Status represents the status of a queued task.
type Status string

// Task statuses reported by the queue.
const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusComplete  Status = "COMPLETE" // Returned by older workers instead of COMPLETED
	StatusFailed    Status = "FAILED"
	StatusError     Status = "ERROR"
	StatusCanceled  Status = "CANCELED"
)

// IsTerminal returns true if the status is a terminal state.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusComplete, StatusFailed, StatusError, StatusCanceled:
		return true
	default:
		return false
	}
}

// Operations understood by the queue workers.
const (
	OperationRemoveWatermark      = "remove_watermark"
	OperationRestore              = "restore"
	OperationCutout               = "cutout"
	OperationColorize             = "colorize"
	OperationPDFRemoveWatermark   = "pdf_remove_watermark"
	OperationAudioRemoveWatermark = "audio_remove_watermark"
	OperationEbookRemoveWatermark = "ebook_remove_watermark"
)

// TaskInput describes one task submission.
type TaskInput struct {
	Operation string            // Worker operation to run
	SourceURL string            // URL of the file to process
	Params    map[string]string // Operation-specific parameters
}

// taskRequest represents the request body of the submit endpoint.
type taskRequest struct {
	Operation string            `json:"operation"`
	SourceURL string            `json:"source_url"`
	Params    map[string]string `json:"params,omitempty"`
}

// taskResponse represents the response of the submit endpoint.
type taskResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}

// TaskStatus is the response of the status endpoint.
type TaskStatus struct {
	TaskID   string       `json:"task_id"`
	Status   Status       `json:"status"`
	Progress *int         `json:"progress,omitempty"`
	Outputs  []TaskOutput `json:"outputs,omitempty"`
	Error    string       `json:"error,omitempty"`
}

// TaskOutput represents a single output file of a task.
type TaskOutput struct {
	Name string `json:"name,omitempty"`
	URL  string `json:"url,omitempty"`
}
