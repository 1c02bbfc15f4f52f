package mps

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Static errors for media-processing client operations.
var (
	// ErrBaseURLRequired is returned when the service URL is not provided.
	ErrBaseURLRequired = errors.New("mps: base URL is required")
	// ErrAPIKeyRequired is returned when no API key is configured.
	ErrAPIKeyRequired = errors.New("mps: API key is required")
	// ErrTaskIDRequired is returned when the task ID is not provided.
	ErrTaskIDRequired = errors.New("mps: task ID is required")
	// ErrInputObjectRequired is returned when ProcessMedia has no source object.
	ErrInputObjectRequired = errors.New("mps: input object is required")
	// ErrNoTaskIDReturned is returned when the submit response contains no task ID.
	ErrNoTaskIDReturned = errors.New("mps: process media failed: no task ID returned")
	// ErrAPIError is returned when the response envelope carries an error object.
	ErrAPIError = errors.New("mps: api error")
	// ErrServerError is returned when the server returns a 5xx status code.
	ErrServerError = errors.New("mps: server error")
	// ErrRateLimited is returned when the server returns a 429 status code.
	ErrRateLimited = errors.New("mps: rate limited")
	// ErrRequestFailed is returned when the request fails with a non-2xx status code.
	ErrRequestFailed = errors.New("mps: request failed")
)

// Client defines the operations used against the media-processing service.
type Client interface {
	// ProcessMedia starts a smart-erase task and returns its task ID.
	ProcessMedia(ctx context.Context, in ProcessMediaInput) (taskID string, err error)

	// DescribeTaskDetail returns the current description of a task.
	DescribeTaskDetail(ctx context.Context, taskID string) (TaskDetail, error)
}

// HTTPClient is the HTTP implementation of Client.
type HTTPClient struct {
	apiKey      string
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

// NewClient creates a media-processing client for the service at baseURL.
func NewClient(baseURL, apiKey string, opts ...ClientOption) (*HTTPClient, error) {
	if baseURL == "" {
		return nil, ErrBaseURLRequired
	}
	if apiKey == "" {
		return nil, ErrAPIKeyRequired
	}

	c := &HTTPClient{
		apiKey:      apiKey,
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

// ProcessMedia starts a smart-erase task.
func (c *HTTPClient) ProcessMedia(ctx context.Context, in ProcessMediaInput) (string, error) {
	if in.InputObject == "" {
		return "", ErrInputObjectRequired
	}
	if in.OutputBucket == "" {
		in.OutputBucket = in.InputBucket
	}
	if in.OutputRegion == "" {
		in.OutputRegion = in.InputRegion
	}

	reqBody := processMediaRequest{
		InputInfo: inputInfo{
			Type: "COS",
			CosInputInfo: cosReference{
				Bucket: in.InputBucket,
				Region: in.InputRegion,
				Object: in.InputObject,
			},
		},
		OutputStorage: outputStorage{
			Type: "COS",
			CosOutputStorage: cosReference{
				Bucket: in.OutputBucket,
				Region: in.OutputRegion,
			},
		},
		OutputDir:      in.OutputDir,
		SmartEraseTask: smartEraseTask{Definition: in.Definition},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("mps: marshal request: %w", err)
	}

	var resp processMediaResponse
	if err := c.doRequestWithRetry(ctx, "ProcessMedia", bodyBytes, &resp); err != nil {
		return "", err
	}
	if resp.Response.Error != nil {
		return "", fmt.Errorf("%w: %s: %s", ErrAPIError, resp.Response.Error.Code, resp.Response.Error.Message)
	}
	if resp.Response.TaskID == "" {
		return "", ErrNoTaskIDReturned
	}
	return resp.Response.TaskID, nil
}

// DescribeTaskDetail returns the current description of a task.
func (c *HTTPClient) DescribeTaskDetail(ctx context.Context, taskID string) (TaskDetail, error) {
	if taskID == "" {
		return TaskDetail{}, ErrTaskIDRequired
	}

	bodyBytes, err := json.Marshal(describeRequest{TaskID: taskID})
	if err != nil {
		return TaskDetail{}, fmt.Errorf("mps: marshal request: %w", err)
	}

	var resp describeResponse
	if err := c.doRequestWithRetry(ctx, "DescribeTaskDetail", bodyBytes, &resp); err != nil {
		return TaskDetail{}, err
	}
	if resp.Response.Error != nil {
		return TaskDetail{}, fmt.Errorf("%w: %s: %s", ErrAPIError, resp.Response.Error.Code, resp.Response.Error.Message)
	}
	return resp.Response.TaskDetail, nil
}

// doRequestWithRetry posts an action with exponential backoff retry.
func (c *HTTPClient) doRequestWithRetry(ctx context.Context, action string, body []byte, result any) error {
	var lastErr error
	backoff := c.baseBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("mps: context cancelled: %w", ctx.Err())
			case <-time.After(backoff):
				backoff *= 2
			}
		}

		err := c.doRequest(ctx, action, body, result)
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("mps: max retries exceeded: %w", lastErr)
}

// doRequest performs a single action call.
func (c *HTTPClient) doRequest(ctx context.Context, action string, body []byte, result any) error {
	url := fmt.Sprintf("%s/%s", c.baseURL, action)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("mps: create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Action", action)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &retryableError{err: fmt.Errorf("mps: request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &retryableError{err: fmt.Errorf("mps: read response: %w", err)}
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
			return fmt.Errorf("mps: unmarshal response: %w", err)
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
