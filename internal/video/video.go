// Package video provides the generation request and result types shared by
// the session, history and generator packages.
package video

import (
	"errors"
	"strings"
)

// Mode selects which inputs a generation request uses.
type Mode string

const (
	// ModeTextToVideo generates from a prompt only.
	ModeTextToVideo Mode = "TEXT_TO_VIDEO"
	// ModeFramesToVideo generates from a start frame and optional end frame.
	ModeFramesToVideo Mode = "FRAMES_TO_VIDEO"
	// ModeReferencesToVideo generates from a prompt and reference images.
	ModeReferencesToVideo Mode = "REFERENCES_TO_VIDEO"
	// ModeExtendVideo continues a previously generated video.
	ModeExtendVideo Mode = "EXTEND_VIDEO"
)

// IsValid returns true if the mode is known.
func (m Mode) IsValid() bool {
	switch m {
	case ModeTextToVideo, ModeFramesToVideo, ModeReferencesToVideo, ModeExtendVideo:
		return true
	default:
		return false
	}
}

// Model selects the remote generation model.
type Model string

const (
	// ModelVeoFast is the fast preview model and the default.
	ModelVeoFast Model = "veo-3.1-fast-generate-preview"
	// ModelVeo is the full quality model. References mode requires it.
	ModelVeo Model = "veo-3.1-generate-preview"
)

// AspectRatio of the generated video.
type AspectRatio string

const (
	AspectLandscape AspectRatio = "16:9"
	AspectPortrait  AspectRatio = "9:16"
)

// Resolution is one of two output tiers. Only the lower tier can be extended.
type Resolution string

const (
	Resolution720p  Resolution = "720p"
	Resolution1080p Resolution = "1080p"
)

// MaxReferenceImages is the number of reference images a request may carry.
const MaxReferenceImages = 3

// Validation errors returned by Request.Validate.
var (
	ErrUnknownMode        = errors.New("video: unknown generation mode")
	ErrPromptRequired     = errors.New("video: a prompt is required")
	ErrStartFrameRequired = errors.New("video: a start frame is required")
	ErrReferenceRequired  = errors.New("video: at least one reference image is required")
	ErrTooManyReferences  = errors.New("video: too many reference images")
	ErrInputVideoRequired = errors.New("video: an input video from a previous generation is required to extend")
)

// Media is an input file attached to a request.
type Media struct {
	Data     []byte `json:"data"`
	MIMEType string `json:"mime_type"`
}

// Clone returns a deep copy. A nil receiver returns nil.
func (m *Media) Clone() *Media {
	if m == nil {
		return nil
	}
	data := make([]byte, len(m.Data))
	copy(data, m.Data)
	return &Media{Data: data, MIMEType: m.MIMEType}
}

// RemoteRef is an opaque reference to a video held by the remote service.
// It is only needed to chain an extend request.
type RemoteRef struct {
	URI      string `json:"uri"`
	MIMEType string `json:"mime_type,omitempty"`
}

// Clone returns a copy. A nil receiver returns nil.
func (r *RemoteRef) Clone() *RemoteRef {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// Request holds every parameter of one generation attempt.
// Only the fields relevant to Mode are populated once normalized.
type Request struct {
	Prompt          string      `json:"prompt"`
	Mode            Mode        `json:"mode"`
	Model           Model       `json:"model"`
	AspectRatio     AspectRatio `json:"aspect_ratio"`
	Resolution      Resolution  `json:"resolution"`
	StartFrame      *Media      `json:"start_frame,omitempty"`
	EndFrame        *Media      `json:"end_frame,omitempty"`
	ReferenceImages []Media     `json:"reference_images,omitempty"`
	StyleImage      *Media      `json:"style_image,omitempty"`
	InputVideo      *Media      `json:"input_video,omitempty"`
	InputVideoRef   *RemoteRef  `json:"input_video_ref,omitempty"`
	Loop            bool        `json:"loop,omitempty"`
}

// NewRequest returns a text-to-video draft with the default settings.
func NewRequest() Request {
	return Request{
		Mode:        ModeTextToVideo,
		Model:       ModelVeoFast,
		AspectRatio: AspectLandscape,
		Resolution:  Resolution720p,
	}
}

// Clone creates a deep copy so a submitted request can never be mutated
// through a draft seeded from it.
func (r Request) Clone() Request {
	c := r
	c.StartFrame = r.StartFrame.Clone()
	c.EndFrame = r.EndFrame.Clone()
	c.StyleImage = r.StyleImage.Clone()
	c.InputVideo = r.InputVideo.Clone()
	c.InputVideoRef = r.InputVideoRef.Clone()
	if r.ReferenceImages != nil {
		c.ReferenceImages = make([]Media, len(r.ReferenceImages))
		for i := range r.ReferenceImages {
			c.ReferenceImages[i] = *r.ReferenceImages[i].Clone()
		}
	}
	return c
}

// WithMode returns a draft switched to mode. Every mode-specific input is
// cleared; references mode pins model, aspect ratio and resolution and
// extend mode pins the lower resolution tier.
func (r Request) WithMode(mode Mode) Request {
	c := r.Clone()
	c.Mode = mode
	c.StartFrame = nil
	c.EndFrame = nil
	c.ReferenceImages = nil
	c.StyleImage = nil
	c.InputVideo = nil
	c.InputVideoRef = nil
	c.Loop = false
	c.applyModeConstraints()
	return c
}

// Normalize returns a copy with defaults filled in and every field that is
// not meaningful to the active mode dropped.
func (r Request) Normalize() Request {
	c := r.Clone()
	if c.Mode == "" {
		c.Mode = ModeTextToVideo
	}
	if c.Model == "" {
		c.Model = ModelVeoFast
	}
	if c.AspectRatio == "" {
		c.AspectRatio = AspectLandscape
	}
	if c.Resolution == "" {
		c.Resolution = Resolution720p
	}

	if c.Mode != ModeFramesToVideo {
		c.StartFrame = nil
		c.EndFrame = nil
		c.Loop = false
	} else if c.Loop {
		c.EndFrame = nil
	}
	if c.Mode != ModeReferencesToVideo {
		c.ReferenceImages = nil
		c.StyleImage = nil
	}
	if c.Mode != ModeExtendVideo {
		c.InputVideo = nil
		c.InputVideoRef = nil
	}
	c.applyModeConstraints()
	return c
}

func (r *Request) applyModeConstraints() {
	switch r.Mode {
	case ModeReferencesToVideo:
		r.Model = ModelVeo
		r.AspectRatio = AspectLandscape
		r.Resolution = Resolution720p
	case ModeExtendVideo:
		r.Resolution = Resolution720p
	}
}

// Validate checks the submission rules of the active mode.
func (r Request) Validate() error {
	hasPrompt := strings.TrimSpace(r.Prompt) != ""

	switch r.Mode {
	case ModeTextToVideo:
		if !hasPrompt {
			return ErrPromptRequired
		}
	case ModeFramesToVideo:
		if r.StartFrame == nil || len(r.StartFrame.Data) == 0 {
			return ErrStartFrameRequired
		}
	case ModeReferencesToVideo:
		if len(r.ReferenceImages) == 0 {
			return ErrReferenceRequired
		}
		if len(r.ReferenceImages) > MaxReferenceImages {
			return ErrTooManyReferences
		}
		if !hasPrompt {
			return ErrPromptRequired
		}
	case ModeExtendVideo:
		if r.InputVideoRef == nil || r.InputVideoRef.URI == "" {
			return ErrInputVideoRequired
		}
	default:
		return ErrUnknownMode
	}
	return nil
}

// CanExtend reports whether a result produced by this request may later be
// extended.
func (r Request) CanExtend() bool {
	return r.Resolution == Resolution720p
}

// Result is the output of one successful generation.
type Result struct {
	// Payload is the generated video.
	Payload []byte
	// MIMEType of the payload, usually video/mp4.
	MIMEType string
	// RemoteRef points at the remote copy; nil when the backend has none.
	RemoteRef *RemoteRef
}
