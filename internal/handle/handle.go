// Package handle turns generated payloads into short-lived, addressable
// media handles that a player can stream over HTTP.
package handle

import (
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/maauso/veo-studio/internal/metrics"
)

// Static errors for handle operations.
var (
	// ErrEmptyPayload is returned when there is nothing to materialize.
	ErrEmptyPayload = errors.New("handle: payload is empty")
	// ErrUnknownHandle is returned by Open for a released or unknown token.
	ErrUnknownHandle = errors.New("handle: unknown or released handle")
)

const defaultMIMEType = "video/mp4"

// Handle is a live reference to a payload held by the Manager.
type Handle struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	MIMEType string `json:"mime_type"`
	Size     int    `json:"size"`
}

// IsZero reports whether h is the zero Handle.
func (h Handle) IsZero() bool {
	return h.ID == ""
}

// Entry is a live payload as returned by Open.
type Entry struct {
	Handle
	Payload []byte
}

// Manager owns the set of live handles.
type Manager struct {
	mu      sync.Mutex
	baseURL string
	live    map[string]Entry
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithMetrics reports the live handle count on mt.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// NewManager creates a Manager whose handle URLs are <baseURL>/media/<id>.
func NewManager(baseURL string, opts ...Option) *Manager {
	m := &Manager{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		live:    make(map[string]Entry),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Materialize registers payload under a fresh token. The payload is not
// copied; callers must not modify it afterwards.
func (m *Manager) Materialize(payload []byte, mimeType string) (Handle, error) {
	if len(payload) == 0 {
		return Handle{}, ErrEmptyPayload
	}
	if mimeType == "" {
		mimeType = defaultMIMEType
	}

	id := uuid.NewString()
	h := Handle{
		ID:       id,
		URL:      m.baseURL + "/media/" + id,
		MIMEType: mimeType,
		Size:     len(payload),
	}

	m.mu.Lock()
	m.live[id] = Entry{Handle: h, Payload: payload}
	n := len(m.live)
	m.mu.Unlock()

	m.metrics.SetLiveHandles(n)
	m.logger.Debug("handle materialized",
		slog.String("handle_id", id),
		slog.Int("bytes", len(payload)),
	)
	return h, nil
}

// Release invalidates h. Releasing twice is logged and otherwise ignored.
func (m *Manager) Release(h Handle) {
	m.mu.Lock()
	_, ok := m.live[h.ID]
	delete(m.live, h.ID)
	n := len(m.live)
	m.mu.Unlock()

	if !ok {
		m.logger.Warn("release of unknown handle", slog.String("handle_id", h.ID))
		return
	}
	m.metrics.SetLiveHandles(n)
	m.logger.Debug("handle released", slog.String("handle_id", h.ID))
}

// Open returns the live entry for id.
func (m *Manager) Open(id string) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.live[id]
	if !ok {
		return Entry{}, ErrUnknownHandle
	}
	return e, nil
}

// Live returns the number of live handles.
func (m *Manager) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}
