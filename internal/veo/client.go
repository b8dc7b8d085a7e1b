// Package veo provides a client for the Gemini API video generation
// long-running operation.
package veo

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genai"

	"github.com/maauso/veo-studio/internal/video"
)

// Static errors for Veo client operations.
var (
	// ErrOperationNameRequired is returned when polling without an operation name.
	ErrOperationNameRequired = errors.New("veo: operation name is required")
	// ErrNoVideo is returned when download is called without a video.
	ErrNoVideo = errors.New("veo: no video to download")
)

// KeySource supplies the API key for each call.
type KeySource interface {
	Key() (string, error)
}

// Client talks to the Gemini API. A genai client is built per call so a
// key entered after startup takes effect immediately.
type Client struct {
	keys       KeySource
	httpClient *http.Client
	baseURL    string
}

// ClientOption is a function that configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(vc *Client) {
		vc.httpClient = c
	}
}

// WithBaseURL overrides the API endpoint.
func WithBaseURL(u string) ClientOption {
	return func(vc *Client) {
		vc.baseURL = u
	}
}

// NewClient creates a Veo client reading its key from keys.
func NewClient(keys KeySource, opts ...ClientOption) *Client {
	c := &Client{keys: keys}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) genai(ctx context.Context) (*genai.Client, error) {
	key, err := c.keys.Key()
	if err != nil {
		return nil, err
	}
	cfg := &genai.ClientConfig{
		APIKey:     key,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: c.httpClient,
	}
	if c.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: c.baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("veo: create genai client: %w", err)
	}
	return client, nil
}

// Start begins a generation and returns the pending operation.
func (c *Client) Start(ctx context.Context, req video.Request) (*genai.GenerateVideosOperation, error) {
	client, err := c.genai(ctx)
	if err != nil {
		return nil, err
	}
	source, config := BuildSource(req)
	op, err := client.Models.GenerateVideosFromSource(ctx, string(req.Model), source, config)
	if err != nil {
		return nil, fmt.Errorf("veo: start generation: %w", err)
	}
	return op, nil
}

// Get refreshes the operation with the given name.
func (c *Client) Get(ctx context.Context, name string) (*genai.GenerateVideosOperation, error) {
	if name == "" {
		return nil, ErrOperationNameRequired
	}
	client, err := c.genai(ctx)
	if err != nil {
		return nil, err
	}
	op, err := client.Operations.GetVideosOperation(ctx, &genai.GenerateVideosOperation{Name: name}, nil)
	if err != nil {
		return nil, fmt.Errorf("veo: get operation: %w", err)
	}
	return op, nil
}

// Download fetches the bytes of a generated video.
func (c *Client) Download(ctx context.Context, v *genai.Video) ([]byte, error) {
	if v == nil || v.URI == "" {
		return nil, ErrNoVideo
	}
	client, err := c.genai(ctx)
	if err != nil {
		return nil, err
	}
	data, err := client.Files.Download(ctx, genai.NewDownloadURIFromVideo(v), nil)
	if err != nil {
		return nil, fmt.Errorf("veo: download video: %w", err)
	}
	return data, nil
}

// BuildSource maps a normalized request onto the genai source and config.
func BuildSource(req video.Request) (*genai.GenerateVideosSource, *genai.GenerateVideosConfig) {
	source := &genai.GenerateVideosSource{Prompt: req.Prompt}
	config := &genai.GenerateVideosConfig{
		NumberOfVideos: 1,
		AspectRatio:    string(req.AspectRatio),
		Resolution:     string(req.Resolution),
	}

	switch req.Mode {
	case video.ModeFramesToVideo:
		source.Image = image(req.StartFrame)
		if req.Loop {
			config.LastFrame = image(req.StartFrame)
		} else {
			config.LastFrame = image(req.EndFrame)
		}
	case video.ModeReferencesToVideo:
		for i := range req.ReferenceImages {
			config.ReferenceImages = append(config.ReferenceImages, &genai.VideoGenerationReferenceImage{
				Image:         image(&req.ReferenceImages[i]),
				ReferenceType: genai.VideoGenerationReferenceTypeAsset,
			})
		}
		if req.StyleImage != nil {
			config.ReferenceImages = append(config.ReferenceImages, &genai.VideoGenerationReferenceImage{
				Image:         image(req.StyleImage),
				ReferenceType: genai.VideoGenerationReferenceTypeStyle,
			})
		}
	case video.ModeExtendVideo:
		if req.InputVideoRef != nil {
			source.Video = &genai.Video{
				URI:      req.InputVideoRef.URI,
				MIMEType: req.InputVideoRef.MIMEType,
			}
		}
	}
	return source, config
}

func image(m *video.Media) *genai.Image {
	if m == nil || len(m.Data) == 0 {
		return nil
	}
	return &genai.Image{ImageBytes: m.Data, MIMEType: m.MIMEType}
}
