package server

import (
	"encoding/base64"
	"fmt"

	"github.com/maauso/veo-studio/internal/history"
	"github.com/maauso/veo-studio/internal/session"
	"github.com/maauso/veo-studio/internal/video"
)

func decodeMedia(field string, m *MediaBody) (*video.Media, error) {
	if m == nil {
		return nil, nil
	}
	data, err := base64.StdEncoding.DecodeString(m.Data)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid base64: %w", field, err)
	}
	return &video.Media{Data: data, MIMEType: m.MIMEType}, nil
}

func encodeMedia(m *video.Media) *MediaBody {
	if m == nil {
		return nil
	}
	return &MediaBody{
		Data:     base64.StdEncoding.EncodeToString(m.Data),
		MIMEType: m.MIMEType,
	}
}

// toRequest converts a request body to the domain request.
func toRequest(b RequestBody) (video.Request, error) {
	req := video.Request{
		Prompt:      b.Prompt,
		Mode:        video.Mode(b.Mode),
		Model:       video.Model(b.Model),
		AspectRatio: video.AspectRatio(b.AspectRatio),
		Resolution:  video.Resolution(b.Resolution),
		Loop:        b.Loop,
	}

	var err error
	if req.StartFrame, err = decodeMedia("start_frame", b.StartFrame); err != nil {
		return video.Request{}, err
	}
	if req.EndFrame, err = decodeMedia("end_frame", b.EndFrame); err != nil {
		return video.Request{}, err
	}
	if req.StyleImage, err = decodeMedia("style_image", b.StyleImage); err != nil {
		return video.Request{}, err
	}
	for i := range b.ReferenceImages {
		m, err := decodeMedia(fmt.Sprintf("reference_images[%d]", i), &b.ReferenceImages[i])
		if err != nil {
			return video.Request{}, err
		}
		req.ReferenceImages = append(req.ReferenceImages, *m)
	}
	if b.InputVideoRef != nil {
		req.InputVideoRef = &video.RemoteRef{URI: b.InputVideoRef.URI, MIMEType: b.InputVideoRef.MIMEType}
	}
	return req, nil
}

// fromRequest converts a domain request to its body. The input video
// payload is left out; the remote reference is enough to extend.
func fromRequest(req *video.Request) *RequestBody {
	if req == nil {
		return nil
	}
	b := &RequestBody{
		Prompt:      req.Prompt,
		Mode:        string(req.Mode),
		Model:       string(req.Model),
		AspectRatio: string(req.AspectRatio),
		Resolution:  string(req.Resolution),
		StartFrame:  encodeMedia(req.StartFrame),
		EndFrame:    encodeMedia(req.EndFrame),
		StyleImage:  encodeMedia(req.StyleImage),
		Loop:        req.Loop,
	}
	for i := range req.ReferenceImages {
		b.ReferenceImages = append(b.ReferenceImages, *encodeMedia(&req.ReferenceImages[i]))
	}
	if req.InputVideoRef != nil {
		b.InputVideoRef = &RemoteRefBody{URI: req.InputVideoRef.URI, MIMEType: req.InputVideoRef.MIMEType}
	}
	return b
}

func fromSnapshot(s session.Snapshot) SessionResponse {
	resp := SessionResponse{
		State:           string(s.State),
		Error:           s.Error,
		NeedsCredential: s.NeedsCredential,
		Request:         fromRequest(s.Request),
		CanExtend:       s.CanExtend,
		Unsaved:         s.Unsaved,
		ActiveRecordID:  s.ActiveRecordID,
		Draft:           fromRequest(s.Draft),
	}
	if s.Handle != nil {
		resp.Video = &HandleBody{
			URL:      s.Handle.URL,
			MIMEType: s.Handle.MIMEType,
			Size:     s.Handle.Size,
		}
	}
	return resp
}

func fromRecords(records []history.Record) HistoryResponse {
	items := make([]HistoryItem, 0, len(records))
	for _, r := range records {
		items = append(items, HistoryItem{
			ID:         r.ID,
			CreatedAt:  r.CreatedAt,
			Prompt:     r.Prompt,
			Mode:       string(r.Request.Mode),
			Resolution: string(r.Request.Resolution),
			MIMEType:   r.MIMEType,
			Size:       len(r.Payload),
		})
	}
	return HistoryResponse{Records: items}
}
