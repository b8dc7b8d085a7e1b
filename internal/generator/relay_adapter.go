package generator

import (
	"context"
	"errors"
	"fmt"

	"github.com/maauso/veo-studio/internal/relay"
	"github.com/maauso/veo-studio/internal/video"
)

// Compile-time check that RelayAdapter implements Backend.
var _ Backend = (*RelayAdapter)(nil)

// RelayAdapter adapts the relay client to the Backend interface.
type RelayAdapter struct {
	client relay.Client
}

// NewRelayAdapter creates a new relay backend adapter.
func NewRelayAdapter(client relay.Client) *RelayAdapter {
	return &RelayAdapter{client: client}
}

// Submit sends a generation task to the relay.
func (a *RelayAdapter) Submit(ctx context.Context, req video.Request) (string, error) {
	taskID, err := a.client.Submit(ctx, req)
	if err != nil {
		return "", fromRelayError("relay adapter submit", err)
	}
	return taskID, nil
}

// Poll checks the status of a relay task.
func (a *RelayAdapter) Poll(ctx context.Context, taskID string) (PollResult, error) {
	result, err := a.client.Poll(ctx, taskID)
	if err != nil {
		return PollResult{}, fromRelayError("relay adapter poll", err)
	}

	var status Status
	switch result.Status {
	case relay.StatusPending:
		status = StatusPending
	case relay.StatusRunning:
		status = StatusRunning
	case relay.StatusCompleted, relay.StatusComplete:
		status = StatusCompleted
	case relay.StatusFailed, relay.StatusErrored:
		status = StatusFailed
	case relay.StatusCanceled:
		status = StatusCancelled
	default:
		status = Status(result.Status)
	}

	// a completed task without output cannot be downloaded
	if status == StatusCompleted && result.OutputURL == "" {
		status = StatusFailed
	}

	return PollResult{
		Status:    status,
		OutputURI: result.OutputURL,
		MIMEType:  result.MIMEType,
		Error:     result.Error,
		ErrorCode: CodeFromRPC(result.ErrorCode),
	}, nil
}

// Download fetches the relay output.
func (a *RelayAdapter) Download(ctx context.Context, res PollResult) (video.Result, error) {
	data, err := a.client.Download(ctx, res.OutputURI)
	if err != nil {
		return video.Result{}, fromRelayError("relay adapter download", err)
	}
	mime := res.MIMEType
	if mime == "" {
		mime = "video/mp4"
	}
	return video.Result{
		Payload:   data,
		MIMEType:  mime,
		RemoteRef: &video.RemoteRef{URI: res.OutputURI, MIMEType: mime},
	}, nil
}

func fromRelayError(op string, err error) error {
	var se *relay.StatusError
	if errors.As(err, &se) {
		if code := CodeFromHTTPStatus(se.StatusCode); code != CodeUnknown {
			return &RemoteError{Code: code, Message: se.Body, Err: err}
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
