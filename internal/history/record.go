// Package history provides the persistent store of generated videos.
// Records are written once through an Engine (the blob store) and never
// updated; a separate Pointer remembers the most recently displayed record
// so a session can be restored after a restart.
package history

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/maauso/veo-studio/internal/video"
)

// Static errors for history operations.
var (
	// ErrStorageUnavailable is returned when the engine cannot be opened.
	ErrStorageUnavailable = errors.New("history: storage unavailable")
	// ErrWriteFailure is returned when a record could not be written.
	ErrWriteFailure = errors.New("history: write failed")
	// ErrNotFound is returned by engines when a record does not exist.
	ErrNotFound = errors.New("history: record not found")
	// ErrDuplicateID is returned by engines when a record ID is already taken.
	ErrDuplicateID = errors.New("history: duplicate record ID")
	// ErrNoPointer is returned by pointers that hold no value.
	ErrNoPointer = errors.New("history: no active pointer")
	// ErrCorruptRecord is returned when a stored record cannot be decoded.
	ErrCorruptRecord = errors.New("history: corrupt record")
)

// UntitledPrompt is the title given to records whose prompt is empty.
const UntitledPrompt = "Untitled Video"

// Record is one persisted generation. It is never mutated after creation.
type Record struct {
	// ID is generated by the store at save time.
	ID string `json:"id"`
	// CreatedAt is when the record was saved.
	CreatedAt time.Time `json:"created_at"`
	// Prompt is the display title.
	Prompt string `json:"prompt"`
	// Request is the request that produced the video.
	Request video.Request `json:"request"`
	// Payload is the generated video.
	Payload []byte `json:"payload"`
	// MIMEType of the payload.
	MIMEType string `json:"mime_type"`
	// RemoteRef is needed to extend the video later. Optional.
	RemoteRef *video.RemoteRef `json:"remote_ref,omitempty"`
}

// Result rebuilds the generation result held by the record.
func (r Record) Result() video.Result {
	return video.Result{
		Payload:   r.Payload,
		MIMEType:  r.MIMEType,
		RemoteRef: r.RemoteRef.Clone(),
	}
}

// Clone creates a deep copy of the record.
func (r Record) Clone() Record {
	c := r
	c.Request = r.Request.Clone()
	c.RemoteRef = r.RemoteRef.Clone()
	c.Payload = make([]byte, len(r.Payload))
	copy(c.Payload, r.Payload)
	return c
}

// EngineOption configures the disk and S3 engines.
type EngineOption func(*engineOptions)

type engineOptions struct {
	logger *slog.Logger
}

// WithEngineLogger sets the logger used to report skipped records.
func WithEngineLogger(logger *slog.Logger) EngineOption {
	return func(o *engineOptions) {
		o.logger = logger
	}
}

func newEngineOptions(opts []EngineOption) engineOptions {
	o := engineOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// skippable reports whether List should pass over a record instead of
// failing: it vanished after listing or cannot be decoded.
func skippable(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrCorruptRecord)
}

// Engine is the binary store engine: a single collection of records keyed
// by store-generated IDs.
type Engine interface {
	// Put writes the full record in one atomic step.
	// Returns ErrDuplicateID if the ID is already present.
	Put(ctx context.Context, rec Record) error

	// Get retrieves a record by its ID.
	// Returns ErrNotFound if the record does not exist.
	Get(ctx context.Context, id string) (Record, error)

	// List returns every readable record in no particular order. Records
	// that cannot be decoded are logged and skipped.
	List(ctx context.Context) ([]Record, error)
}

// Pointer is the scalar durable value holding the active record ID.
type Pointer interface {
	// Get returns the stored ID or ErrNoPointer.
	Get(ctx context.Context) (string, error)
	// Set replaces the stored ID.
	Set(ctx context.Context, id string) error
	// Clear removes the stored ID. Clearing an empty pointer is not an error.
	Clear(ctx context.Context) error
}
