// Package server provides the HTTP presentation layer for Veo Studio.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import "time"

// MediaBody is an input file in a request body.
type MediaBody struct {
	// Data is the base64-encoded file content.
	Data string `json:"data" validate:"required,base64"`
	// MIMEType is the content type, e.g. image/png.
	MIMEType string `json:"mime_type" validate:"required"`
}

// RemoteRefBody points at a video held by the generation service.
type RemoteRefBody struct {
	URI      string `json:"uri" validate:"required"`
	MIMEType string `json:"mime_type,omitempty"`
}

// RequestBody is the HTTP form of a generation request. It is accepted by
// POST /session/generate and returned as the request and draft of a session.
type RequestBody struct {
	Prompt          string         `json:"prompt" validate:"max=4000"`
	Mode            string         `json:"mode,omitempty" validate:"omitempty,oneof=TEXT_TO_VIDEO FRAMES_TO_VIDEO REFERENCES_TO_VIDEO EXTEND_VIDEO"`
	Model           string         `json:"model,omitempty" validate:"omitempty,oneof=veo-3.1-fast-generate-preview veo-3.1-generate-preview"`
	AspectRatio     string         `json:"aspect_ratio,omitempty" validate:"omitempty,oneof=16:9 9:16"`
	Resolution      string         `json:"resolution,omitempty" validate:"omitempty,oneof=720p 1080p"`
	StartFrame      *MediaBody     `json:"start_frame,omitempty"`
	EndFrame        *MediaBody     `json:"end_frame,omitempty"`
	ReferenceImages []MediaBody    `json:"reference_images,omitempty" validate:"max=3,dive"`
	StyleImage      *MediaBody     `json:"style_image,omitempty"`
	InputVideoRef   *RemoteRefBody `json:"input_video_ref,omitempty"`
	Loop            bool           `json:"loop,omitempty"`
}

// HandleBody is a playable result.
type HandleBody struct {
	URL      string `json:"url"`
	MIMEType string `json:"mime_type"`
	Size     int    `json:"size"`
}

// SessionResponse is the HTTP form of a session snapshot.
type SessionResponse struct {
	// State is one of RESTORING, IDLE, LOADING, SUCCESS, ERROR.
	State string `json:"state"`
	// Error is the failure or warning message to show.
	Error string `json:"error,omitempty"`
	// NeedsCredential asks the client to prompt for an API key.
	NeedsCredential bool `json:"needs_credential"`
	// Video is the displayed result, set in SUCCESS.
	Video *HandleBody `json:"video,omitempty"`
	// Request produced the displayed result.
	Request *RequestBody `json:"request,omitempty"`
	// CanExtend is true when the displayed result may be extended.
	CanExtend bool `json:"can_extend"`
	// Unsaved is true when the displayed result is not in history.
	Unsaved bool `json:"unsaved,omitempty"`
	// ActiveRecordID is the history record being shown.
	ActiveRecordID string `json:"active_record_id,omitempty"`
	// Draft seeds the request form in IDLE.
	Draft *RequestBody `json:"draft,omitempty"`
}

// HistoryItem is one entry of GET /history.
type HistoryItem struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	Prompt     string    `json:"prompt"`
	Mode       string    `json:"mode"`
	Resolution string    `json:"resolution"`
	MIMEType   string    `json:"mime_type"`
	Size       int       `json:"size"`
}

// HistoryResponse is the HTTP response for GET /history.
type HistoryResponse struct {
	Records []HistoryItem `json:"records"`
}

// CredentialsRequest is the HTTP request body for POST /credentials.
type CredentialsRequest struct {
	APIKey string `json:"api_key" validate:"required"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}
