package session

import (
	"github.com/maauso/veo-studio/internal/handle"
	"github.com/maauso/veo-studio/internal/video"
)

// Snapshot is a read-only view of the session for presentation.
type Snapshot struct {
	State State
	// Error is the message of the last failure, or the warning attached to
	// an unsaved result.
	Error string
	// NeedsCredential asks the presentation layer to prompt for an API key.
	NeedsCredential bool
	// Handle is the displayed result, nil unless State is SUCCESS.
	Handle *handle.Handle
	// Request produced the displayed result.
	Request *video.Request
	// CanExtend is true when the displayed result used the 720p tier and
	// has a remote reference; without one an extend draft could not be
	// submitted.
	CanExtend bool
	// Unsaved is true when the displayed result could not be stored.
	Unsaved bool
	// ActiveRecordID is the stored record the session points at.
	ActiveRecordID string
	// Draft seeds the request form while IDLE.
	Draft *video.Request
}

func (m *Machine) snapshot() Snapshot {
	s := Snapshot{
		State:           m.state,
		Error:           m.errMessage,
		NeedsCredential: m.needsCredential,
		CanExtend:       m.canExtend(),
		Unsaved:         m.unsaved,
		ActiveRecordID:  m.activeID,
	}
	if m.current != nil {
		h := m.current.handle
		req := m.current.request.Clone()
		s.Handle = &h
		s.Request = &req
	}
	if m.state == StateIdle {
		draft := video.NewRequest()
		if m.draft != nil {
			draft = m.draft.Clone()
		}
		s.Draft = &draft
	}
	return s
}
