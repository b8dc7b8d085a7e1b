// Package relay provides an HTTP client for a task-queue style video
// generation relay: submit a task, poll its status, download the output.
package relay

import (
	"encoding/base64"

	"github.com/maauso/veo-studio/internal/video"
)

// Status represents the status of a relay task.
type Status string

// Relay task statuses.
const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusComplete  Status = "COMPLETE" // some relays report "COMPLETE" instead of "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusErrored   Status = "ERROR"
	StatusCanceled  Status = "CANCELED"
)

// IsTerminal returns true if the status is a terminal state.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusComplete, StatusFailed, StatusErrored, StatusCanceled:
		return true
	default:
		return false
	}
}

// image is an inline image in a task request.
type image struct {
	Base64   string `json:"base64"`
	MIMEType string `json:"mime_type,omitempty"`
}

func encodeImage(m *video.Media) *image {
	if m == nil || len(m.Data) == 0 {
		return nil
	}
	return &image{Base64: base64.StdEncoding.EncodeToString(m.Data), MIMEType: m.MIMEType}
}

// taskRequest represents the request body for the relay's task queue endpoint.
type taskRequest struct {
	Prompt          string  `json:"prompt,omitempty"`
	Mode            string  `json:"mode"`
	Model           string  `json:"model"`
	AspectRatio     string  `json:"aspect_ratio,omitempty"`
	Resolution      string  `json:"resolution,omitempty"`
	StartFrame      *image  `json:"start_frame,omitempty"`
	EndFrame        *image  `json:"end_frame,omitempty"`
	ReferenceImages []image `json:"reference_images,omitempty"`
	StyleImage      *image  `json:"style_image,omitempty"`
	InputVideoURL   string  `json:"input_video_url,omitempty"`
	Loop            bool    `json:"loop,omitempty"`
}

func newTaskRequest(req video.Request) taskRequest {
	tr := taskRequest{
		Prompt:      req.Prompt,
		Mode:        string(req.Mode),
		Model:       string(req.Model),
		AspectRatio: string(req.AspectRatio),
		Resolution:  string(req.Resolution),
		StartFrame:  encodeImage(req.StartFrame),
		EndFrame:    encodeImage(req.EndFrame),
		StyleImage:  encodeImage(req.StyleImage),
		Loop:        req.Loop,
	}
	for i := range req.ReferenceImages {
		if img := encodeImage(&req.ReferenceImages[i]); img != nil {
			tr.ReferenceImages = append(tr.ReferenceImages, *img)
		}
	}
	if req.InputVideoRef != nil {
		tr.InputVideoURL = req.InputVideoRef.URI
	}
	return tr
}

// taskResponse represents the response from the task submission endpoint.
type taskResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}

// statusResponse represents the response from the task status endpoint.
type statusResponse struct {
	TaskID    string       `json:"task_id"`
	Status    string       `json:"status"`
	Outputs   []taskOutput `json:"outputs,omitempty"`
	Error     string       `json:"error,omitempty"`
	ErrorCode string       `json:"error_code,omitempty"`
}

// taskOutput represents a single output file from a task.
type taskOutput struct {
	Name     string `json:"name,omitempty"`
	URL      string `json:"url,omitempty"`
	MIMEType string `json:"mime_type,omitempty"`
}

// PollResult contains the result of polling a task's status.
type PollResult struct {
	Status    Status
	OutputURL string // URL to download the output video
	MIMEType  string
	Error     string // Error message (only set when the task failed)
	ErrorCode string // Upstream failure code such as PERMISSION_DENIED
}
