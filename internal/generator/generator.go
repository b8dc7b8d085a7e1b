// Package generator provides the common interface for video generation
// backends. The Veo and relay adapters implement Backend, and Poller turns
// any Backend into a blocking Generator.
package generator

import (
	"context"
	"errors"
	"fmt"

	"github.com/maauso/veo-studio/internal/video"
)

// Generator produces a video for a request, blocking until it is ready.
type Generator interface {
	Generate(ctx context.Context, req video.Request) (video.Result, error)
}

// Status represents the status of a remote generation job.
type Status string

// Common job statuses across backends.
const (
	StatusPending   Status = "PENDING"   // Job submitted but not yet running
	StatusRunning   Status = "RUNNING"   // Job is currently processing
	StatusCompleted Status = "COMPLETED" // Job finished successfully
	StatusFailed    Status = "FAILED"    // Job failed with error
	StatusCancelled Status = "CANCELLED" // Job was cancelled
)

// IsTerminal returns true if the status represents a final state.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// PollResult contains the result of polling a job's status.
type PollResult struct {
	Status    Status
	OutputURI string // remote location of the video, if any
	MIMEType  string
	Inline    []byte // video bytes when the backend returns them directly
	Error     string // error message when failed
	ErrorCode Code   // structured failure code when the backend reports one
}

// Backend is a submit/poll/download generation service.
type Backend interface {
	// Submit starts a job for req and returns its ID.
	Submit(ctx context.Context, req video.Request) (jobID string, err error)

	// Poll checks the status of a job.
	Poll(ctx context.Context, jobID string) (PollResult, error)

	// Download fetches the output of a completed job.
	Download(ctx context.Context, res PollResult) (video.Result, error)
}

// Code is a backend-independent failure category.
type Code string

// Failure codes understood by the orchestrator.
const (
	CodeUnknown          Code = ""
	CodeUnauthenticated  Code = "UNAUTHENTICATED"
	CodePermissionDenied Code = "PERMISSION_DENIED"
	CodeNotFound         Code = "NOT_FOUND"
)

// RemoteError is a failure reported by a generation backend.
type RemoteError struct {
	Code    Code
	Message string
	Err     error
}

func (e *RemoteError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Code)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// Static errors for generation.
var (
	// ErrJobCancelled is returned when the backend cancels a job.
	ErrJobCancelled = errors.New("generator: job was cancelled")
	// ErrNoOutput is returned when a completed job carries no video.
	ErrNoOutput = errors.New("generator: completed job has no output")
)

// CodeFromHTTPStatus maps an HTTP status to a failure code.
func CodeFromHTTPStatus(status int) Code {
	switch status {
	case 401:
		return CodeUnauthenticated
	case 403:
		return CodePermissionDenied
	case 404:
		return CodeNotFound
	default:
		return CodeUnknown
	}
}

// CodeFromRPC maps a google.rpc.Code value or name to a failure code.
func CodeFromRPC(v any) Code {
	switch c := v.(type) {
	case float64:
		return CodeFromRPC(int(c))
	case int:
		switch c {
		case 5:
			return CodeNotFound
		case 7:
			return CodePermissionDenied
		case 16:
			return CodeUnauthenticated
		}
	case string:
		switch Code(c) {
		case CodeNotFound, CodePermissionDenied, CodeUnauthenticated:
			return Code(c)
		}
	}
	return CodeUnknown
}

func remoteFailure(res PollResult) error {
	if res.Status == StatusCancelled {
		return &RemoteError{Code: res.ErrorCode, Message: res.Error, Err: ErrJobCancelled}
	}
	msg := res.Error
	if msg == "" {
		msg = fmt.Sprintf("generation ended with status %s", res.Status)
	}
	return &RemoteError{Code: res.ErrorCode, Message: msg}
}
