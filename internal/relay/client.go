package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/maauso/veo-studio/internal/video"
)

// Static errors for relay client operations.
var (
	// ErrQueueURLRequired is returned when the queue URL is not provided.
	ErrQueueURLRequired = errors.New("relay: queue URL is required")
	// ErrTokenNotSet is returned when the RELAY_TOKEN is not provided.
	ErrTokenNotSet = errors.New("relay: token is required")
	// ErrTaskIDRequired is returned when the task ID is not provided.
	ErrTaskIDRequired = errors.New("relay: task ID is required")
	// ErrNoTaskIDReturned is returned when the submit response contains no task ID.
	ErrNoTaskIDReturned = errors.New("relay: submit failed: no task ID returned")
	// ErrSubmitFailed is returned when the submit operation fails.
	ErrSubmitFailed = errors.New("relay: submit failed")
	// ErrServerError is returned when the server returns a 5xx status code.
	ErrServerError = errors.New("relay: server error")
	// ErrRateLimited is returned when the server returns a 429 status code.
	ErrRateLimited = errors.New("relay: rate limited")
	// ErrRequestFailed is returned when the request fails with a non-2xx status code.
	ErrRequestFailed = errors.New("relay: request failed")
	// ErrNoOutputURL is returned when a completed task has no output URL.
	ErrNoOutputURL = errors.New("relay: no output URL in completed task")
)

// StatusError is a non-retryable HTTP failure. It wraps ErrRequestFailed.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%v with status %d: %s", ErrRequestFailed, e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error {
	return ErrRequestFailed
}

// Client defines the interface for interacting with the relay task queue.
type Client interface {
	// Submit sends a generation task and returns the task ID.
	Submit(ctx context.Context, req video.Request) (taskID string, err error)

	// Poll checks the status of a task and returns the result.
	Poll(ctx context.Context, taskID string) (PollResult, error)

	// Download fetches the output video.
	Download(ctx context.Context, outputURL string) ([]byte, error)
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)

// HTTPClient is the HTTP implementation of the relay Client interface.
type HTTPClient struct {
	token       string
	queueURL    string
	statusURL   string
	httpClient  *http.Client
	maxRetries  int
	baseBackoff time.Duration
}

// ClientOption is a function that configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithToken sets the API token for authentication.
func WithToken(token string) ClientOption {
	return func(hc *HTTPClient) {
		hc.token = token
	}
}

// WithStatusURL sets the base URL of the task status endpoint.
// Status requests go to <statusURL>/<taskID>/.
func WithStatusURL(u string) ClientOption {
	return func(hc *HTTPClient) {
		hc.statusURL = u
	}
}

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

// NewClient creates a new relay HTTP client.
// The token can be set via the WithToken option. If not provided,
// it is read from the environment variable RELAY_TOKEN.
// Without WithStatusURL, status is read from <queueURL>/<taskID>/.
func NewClient(queueURL string, opts ...ClientOption) (*HTTPClient, error) {
	if queueURL == "" {
		return nil, ErrQueueURLRequired
	}

	c := &HTTPClient{
		queueURL:    queueURL,
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		maxRetries:  3,
		baseBackoff: 1 * time.Second,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.statusURL == "" {
		c.statusURL = queueURL
	}
	c.statusURL = strings.TrimSuffix(c.statusURL, "/")

	if c.token == "" {
		c.token = os.Getenv("RELAY_TOKEN")
	}

	if c.token == "" {
		return nil, ErrTokenNotSet
	}

	return c, nil
}

// Submit sends a generation task and returns the task ID.
func (c *HTTPClient) Submit(ctx context.Context, req video.Request) (string, error) {
	bodyBytes, err := json.Marshal(newTaskRequest(req))
	if err != nil {
		return "", fmt.Errorf("relay: marshal request: %w", err)
	}

	var resp taskResponse
	if err := c.doRequestWithRetry(ctx, http.MethodPost, c.queueURL, bodyBytes, &resp); err != nil {
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

// Poll checks the status of a task and returns the result.
func (c *HTTPClient) Poll(ctx context.Context, taskID string) (PollResult, error) {
	if taskID == "" {
		return PollResult{}, ErrTaskIDRequired
	}

	statusURL := c.statusURL + "/" + url.PathEscape(taskID) + "/"

	var resp statusResponse
	if err := c.doRequestWithRetry(ctx, http.MethodGet, statusURL, nil, &resp); err != nil {
		return PollResult{}, err
	}

	result := PollResult{
		Status:    Status(resp.Status),
		ErrorCode: resp.ErrorCode,
	}
	if result.Status == StatusComplete {
		result.Status = StatusCompleted
	}

	switch result.Status {
	case StatusCompleted:
		if len(resp.Outputs) > 0 && resp.Outputs[0].URL != "" {
			result.OutputURL = resp.Outputs[0].URL
			result.MIMEType = resp.Outputs[0].MIMEType
		} else {
			result.Error = "no output URL available"
		}
	case StatusFailed, StatusErrored, StatusCanceled:
		result.Error = resp.Error
	}

	return result, nil
}

// Download fetches the output video into memory.
func (c *HTTPClient) Download(ctx context.Context, outputURL string) ([]byte, error) {
	if outputURL == "" {
		return nil, ErrNoOutputURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, outputURL, nil)
	if err != nil {
		return nil, fmt.Errorf("relay: create download request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("relay: download request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("relay: read download data: %w", err)
	}
	return data, nil
}

// doRequestWithRetry performs an HTTP request with exponential backoff retry.
func (c *HTTPClient) doRequestWithRetry(ctx context.Context, method, endpoint string, body []byte, result interface{}) error {
	var lastErr error
	backoff := c.baseBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("relay: context cancelled: %w", ctx.Err())
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

	return fmt.Errorf("relay: max retries exceeded: %w", lastErr)
}

// doRequest performs a single HTTP request.
func (c *HTTPClient) doRequest(ctx context.Context, method, endpoint string, body []byte, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return fmt.Errorf("relay: create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("relay: request failed: %w", err)
		}
		return &retryableError{err: fmt.Errorf("relay: request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &retryableError{err: fmt.Errorf("relay: read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode >= 500 {
			return &retryableError{err: fmt.Errorf("%w %d: %s", ErrServerError, resp.StatusCode, string(respBody))}
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			return &retryableError{err: fmt.Errorf("%w: %s", ErrRateLimited, string(respBody))}
		}
		return &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("relay: unmarshal response: %w", err)
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
