package imgproc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Static errors for task queue operations.
var (
	// ErrBaseURLRequired is returned when the queue URL is not provided.
	ErrBaseURLRequired = errors.New("imgproc: base URL is required")
	// ErrTokenRequired is returned when no token is configured.
	ErrTokenRequired = errors.New("imgproc: token is required")
	// ErrTaskIDRequired is returned when the task ID is not provided.
	ErrTaskIDRequired = errors.New("imgproc: task ID is required")
	// ErrOperationRequired is returned when a submission has no operation.
	ErrOperationRequired = errors.New("imgproc: operation is required")
	// ErrNoTaskIDReturned is returned when the submit response contains no task ID.
	ErrNoTaskIDReturned = errors.New("imgproc: submit failed: no task ID returned")
	// ErrSubmitFailed is returned when the queue rejects a task.
	ErrSubmitFailed = errors.New("imgproc: submit failed")
	// ErrServerError is returned when the server returns a 5xx status code.
	ErrServerError = errors.New("imgproc: server error")
	// ErrRateLimited is returned when the server returns a 429 status code.
	ErrRateLimited = errors.New("imgproc: rate limited")
	// ErrRequestFailed is returned when the request fails with a non-2xx status code.
	ErrRequestFailed = errors.New("imgproc: request failed")
)

// Client defines the interface for interacting with the task queue.
type Client interface {
	// Submit enqueues a task and returns its ID.
	Submit(ctx context.Context, in TaskInput) (taskID string, err error)

	// Status returns the current status of a task.
	Status(ctx context.Context, taskID string) (TaskStatus, error)
}

// HTTPClient is the HTTP implementation of Client.
type HTTPClient struct {
	token       string
	baseURL     string
	httpClient  *http.Client
	maxRetries  int
	baseBackoff time.Duration
}

// ClientOption is a function that configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(hc *HTTPClient) {
		hc.httpClient = c
	}
}

// WithMaxRetries sets the maximum number of retries for transient failures.
func WithMaxRetries(n int) ClientOption {
	return func(hc *HTTPClient) {
		hc.maxRetries = n
	}
}

// WithBaseBackoff sets the initial backoff duration for retries.
func WithBaseBackoff(d time.Duration) ClientOption {
	return func(hc *HTTPClient) {
		hc.baseBackoff = d
	}
}

// NewClient creates a task queue client for the queue at baseURL.
func NewClient(baseURL, token string, opts ...ClientOption) (*HTTPClient, error) {
	if baseURL == "" {
		return nil, ErrBaseURLRequired
	}
	if token == "" {
		return nil, ErrTokenRequired
	}

	c := &HTTPClient{
		token:       token,
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		maxRetries:  3,
		baseBackoff: 1 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Submit enqueues a task.
func (c *HTTPClient) Submit(ctx context.Context, in TaskInput) (string, error) {
	if in.Operation == "" {
		return "", ErrOperationRequired
	}

	bodyBytes, err := json.Marshal(taskRequest{
		Operation: in.Operation,
		SourceURL: in.SourceURL,
		Params:    in.Params,
	})
	if err != nil {
		return "", fmt.Errorf("imgproc: marshal request: %w", err)
	}

	var resp taskResponse
	if err := c.doRequestWithRetry(ctx, http.MethodPost, c.baseURL+"/tasks", bodyBytes, &resp); err != nil {
		return "", err
	}

	if resp.TaskID == "" {
		if resp.Error != "" {
			return "", fmt.Errorf("%w: %s", ErrSubmitFailed, resp.Error)
		}
		return "", ErrNoTaskIDReturned
	}
	return resp.TaskID, nil
}

// Status returns the current status of a task.
func (c *HTTPClient) Status(ctx context.Context, taskID string) (TaskStatus, error) {
	if taskID == "" {
		return TaskStatus{}, ErrTaskIDRequired
	}

	endpoint := fmt.Sprintf("%s/tasks/%s", c.baseURL, url.PathEscape(taskID))

	var resp TaskStatus
	if err := c.doRequestWithRetry(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return TaskStatus{}, err
	}
	if resp.TaskID == "" {
		resp.TaskID = taskID
	}
	return resp, nil
}

// doRequestWithRetry performs an HTTP request with exponential backoff retry.
func (c *HTTPClient) doRequestWithRetry(ctx context.Context, method, endpoint string, body []byte, result any) error {
	var lastErr error
	backoff := c.baseBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("imgproc: context cancelled: %w", ctx.Err())
			case <-time.After(backoff):
				backoff *= 2
			}
		}

		err := c.doRequest(ctx, method, endpoint, body, result)
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("imgproc: max retries exceeded: %w", lastErr)
}

// doRequest performs a single HTTP request.
func (c *HTTPClient) doRequest(ctx context.Context, method, endpoint string, body []byte, result any) error {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return fmt.Errorf("imgproc: create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &retryableError{err: fmt.Errorf("imgproc: request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &retryableError{err: fmt.Errorf("imgproc: read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode >= 500 {
			return &retryableError{err: fmt.Errorf("%w %d: %s", ErrServerError, resp.StatusCode, string(respBody))}
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			return &retryableError{err: fmt.Errorf("%w: %s", ErrRateLimited, string(respBody))}
		}
		return fmt.Errorf("%w with status %d: %s", ErrRequestFailed, resp.StatusCode, string(respBody))
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("imgproc: unmarshal response: %w", err)
		}
	}
	return nil
}

// retryableError wraps errors that should be retried.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

// isRetryable returns true if the error should be retried.
func isRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}
