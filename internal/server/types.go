// Package server provides the HTTP API of the media-conversion service.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import "time"

// CreateJobRequest is the HTTP request body for submitting a conversion.
type CreateJobRequest struct {
	// Kind is the conversion to run, e.g. "subtitle_removal".
	Kind string `json:"kind" validate:"required,max=64"`
	// InputRef is the storage reference returned by an upload.
	InputRef string `json:"inputRef" validate:"required,max=2048"`
	// Metric is the duration in seconds for video kinds or the size in bytes for file kinds.
	Metric float64 `json:"metric"`
	// Params are kind-specific processor options.
	Params map[string]string `json:"params,omitempty" validate:"omitempty,max=16,dive,keys,max=64,endkeys,max=1024"`
}

// CreateJobResponse is the HTTP response after submitting a conversion.
type CreateJobResponse struct {
	JobID           string `json:"jobId"`
	State           string `json:"state"`
	BillingMode     string `json:"billingMode"`
	CreditsReserved int    `json:"creditsReserved"`
}

// ProgressResponse is the HTTP response of a progress poll.
type ProgressResponse struct {
	JobID           string `json:"jobId"`
	State           string `json:"state"`
	ProgressPercent int    `json:"progressPercent"`
	// OutputRef is set once the job is completed.
	OutputRef string `json:"outputRef,omitempty"`
	// Error is the failure reason of a failed job.
	Error string `json:"error,omitempty"`
}

// JobSummary is one entry of the conversion history.
type JobSummary struct {
	JobID           string    `json:"jobId"`
	Kind            string    `json:"kind"`
	State           string    `json:"state"`
	ProgressPercent int       `json:"progressPercent"`
	BillingMode     string    `json:"billingMode"`
	CreditsCharged  int       `json:"creditsCharged"`
	OutputRef       string    `json:"outputRef,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// ListJobsResponse is the HTTP response for the conversion history.
type ListJobsResponse struct {
	Jobs []JobSummary `json:"jobs"`
}

// CreditsResponse is the HTTP response for the credit balance.
type CreditsResponse struct {
	Balance           int  `json:"balance"`
	FreeTrialConsumed bool `json:"freeTrialConsumed"`
}

// WebhookResponse acknowledges a payment webhook.
type WebhookResponse struct {
	Received bool   `json:"received"`
	Message  string `json:"message,omitempty"`
}

// CheckoutRequest is the HTTP request body for starting a purchase.
type CheckoutRequest struct {
	ProductID string `json:"productId" validate:"required,max=128"`
	Email     string `json:"email,omitempty" validate:"omitempty,email"`
}

// CheckoutResponse carries the hosted checkout URL.
type CheckoutResponse struct {
	CheckoutURL string `json:"checkoutUrl"`
}

// PresignRequest is the HTTP request body for a direct-upload URL.
type PresignRequest struct {
	Filename    string `json:"filename" validate:"required,max=255"`
	ContentType string `json:"contentType" validate:"required,max=128"`
}

// PresignResponse carries a presigned upload URL.
type PresignResponse struct {
	// UploadURL accepts a PUT of the file body.
	UploadURL string `json:"uploadUrl"`
	// InputRef is what to pass as inputRef when submitting the job.
	InputRef string `json:"inputRef"`
	// PublicURL is where the object is served from after upload.
	PublicURL string `json:"publicUrl"`
	// ExpiresIn is the URL lifetime in seconds.
	ExpiresIn int `json:"expiresIn"`
}

// UploadResponse describes a file stored through the API.
type UploadResponse struct {
	InputRef  string `json:"inputRef"`
	PublicURL string `json:"publicUrl"`
	Size      int64  `json:"size"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the machine-readable reason code.
	Code string `json:"code"`
	// Mode is the billing mode a policy violation was evaluated under.
	Mode string `json:"mode,omitempty"`
	// Limit is the ceiling a policy violation exceeded.
	Limit float64 `json:"limit,omitempty"`
	// JobID is set when a job was created before the failure.
	JobID string `json:"jobId,omitempty"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}
