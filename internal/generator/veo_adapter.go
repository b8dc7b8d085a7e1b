package generator

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/maauso/veo-studio/internal/video"
)

// VeoClient is the subset of veo.Client used by VeoAdapter.
type VeoClient interface {
	Start(ctx context.Context, req video.Request) (*genai.GenerateVideosOperation, error)
	Get(ctx context.Context, name string) (*genai.GenerateVideosOperation, error)
	Download(ctx context.Context, v *genai.Video) ([]byte, error)
}

// Compile-time check that VeoAdapter implements Backend.
var _ Backend = (*VeoAdapter)(nil)

// VeoAdapter adapts the Veo client to the Backend interface.
type VeoAdapter struct {
	client VeoClient
}

// NewVeoAdapter creates a new Veo backend adapter.
func NewVeoAdapter(client VeoClient) *VeoAdapter {
	return &VeoAdapter{client: client}
}

// Submit starts a generation and returns the operation name.
func (a *VeoAdapter) Submit(ctx context.Context, req video.Request) (string, error) {
	op, err := a.client.Start(ctx, req)
	if err != nil {
		return "", fromAPIError(err)
	}
	if op == nil || op.Name == "" {
		return "", fmt.Errorf("veo adapter submit: %w", ErrNoOutput)
	}
	return op.Name, nil
}

// Poll checks the status of an operation.
func (a *VeoAdapter) Poll(ctx context.Context, name string) (PollResult, error) {
	op, err := a.client.Get(ctx, name)
	if err != nil {
		return PollResult{}, fromAPIError(err)
	}
	return pollResultFromOperation(op), nil
}

// Download fetches the generated video unless the operation carried it inline.
func (a *VeoAdapter) Download(ctx context.Context, res PollResult) (video.Result, error) {
	mime := res.MIMEType
	if mime == "" {
		mime = "video/mp4"
	}
	ref := &video.RemoteRef{URI: res.OutputURI, MIMEType: mime}
	if res.OutputURI == "" {
		ref = nil
	}

	if len(res.Inline) > 0 {
		return video.Result{Payload: res.Inline, MIMEType: mime, RemoteRef: ref}, nil
	}

	data, err := a.client.Download(ctx, &genai.Video{URI: res.OutputURI, MIMEType: res.MIMEType})
	if err != nil {
		return video.Result{}, fromAPIError(err)
	}
	return video.Result{Payload: data, MIMEType: mime, RemoteRef: ref}, nil
}

func pollResultFromOperation(op *genai.GenerateVideosOperation) PollResult {
	if op == nil || !op.Done {
		return PollResult{Status: StatusRunning}
	}

	if op.Error != nil {
		msg, _ := op.Error["message"].(string)
		return PollResult{
			Status:    StatusFailed,
			Error:     msg,
			ErrorCode: CodeFromRPC(op.Error["code"]),
		}
	}

	if op.Response == nil || len(op.Response.GeneratedVideos) == 0 || op.Response.GeneratedVideos[0].Video == nil {
		msg := "no videos were generated"
		if op.Response != nil && len(op.Response.RAIMediaFilteredReasons) > 0 {
			msg = op.Response.RAIMediaFilteredReasons[0]
		}
		return PollResult{Status: StatusFailed, Error: msg}
	}

	v := op.Response.GeneratedVideos[0].Video
	return PollResult{
		Status:    StatusCompleted,
		OutputURI: v.URI,
		MIMEType:  v.MIMEType,
		Inline:    v.VideoBytes,
	}
}

// fromAPIError converts a genai API error into a RemoteError. Other errors
// are returned unchanged.
func fromAPIError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return remoteFromAPIError(apiErr, err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return remoteFromAPIError(*apiErrPtr, err)
	}
	return err
}

func remoteFromAPIError(apiErr genai.APIError, err error) error {
	code := CodeFromHTTPStatus(apiErr.Code)
	if code == CodeUnknown {
		code = CodeFromRPC(apiErr.Status)
	}
	msg := apiErr.Message
	if msg == "" {
		msg = err.Error()
	}
	return &RemoteError{Code: code, Message: msg, Err: err}
}
