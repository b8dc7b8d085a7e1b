package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/veo-studio/internal/handle"
	"github.com/maauso/veo-studio/internal/history"
	"github.com/maauso/veo-studio/internal/session"
	"github.com/maauso/veo-studio/internal/video"
)

// Session is the subset of session.Machine used by the handlers.
type Session interface {
	Snapshot() session.Snapshot
	StartSubmit(ctx context.Context, req video.Request) (session.Snapshot, <-chan session.Outcome, error)
	Submit(ctx context.Context, req video.Request) (session.Snapshot, error)
	StartRetry(ctx context.Context) (session.Snapshot, <-chan session.Outcome, error)
	Retry(ctx context.Context) (session.Snapshot, error)
	EditAndRetry(ctx context.Context) (session.Snapshot, error)
	Extend(ctx context.Context) (session.Snapshot, bool)
	NewProject(ctx context.Context) (session.Snapshot, error)
	LoadFromHistory(ctx context.Context, recordID string) (session.Snapshot, error)
	CredentialAcquired(ctx context.Context) (session.Snapshot, <-chan session.Outcome, error)
	History(ctx context.Context) ([]history.Record, error)
}

// MediaSource opens live handles.
type MediaSource interface {
	Open(id string) (handle.Entry, error)
}

// KeySetter stores a user-supplied API key.
type KeySetter interface {
	SetKey(key string)
}

// Compile-time check that the session machine satisfies Session.
var _ Session = (*session.Machine)(nil)

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	session   Session
	media     MediaSource
	keys      KeySetter
	validator *validator.Validate
	logger    *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(sess Session, media MediaSource, keys KeySetter, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		session:   sess,
		media:     media,
		keys:      keys,
		validator: validator.New(),
		logger:    logger,
	}
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// GetSession handles GET /session requests.
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, fromSnapshot(h.session.Snapshot()))
}

// Generate handles POST /session/generate requests. The generation runs in
// the background and the LOADING snapshot is returned, unless ?wait=true
// asks to block until it settles.
func (h *Handlers) Generate(w http.ResponseWriter, r *http.Request) {
	var body RequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}

	if err := h.validator.Struct(body); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	req, err := toRequest(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	if wantsWait(r) {
		snap, err := h.session.Submit(r.Context(), req)
		h.respond(w, http.StatusOK, snap, err)
		return
	}

	snap, _, err := h.session.StartSubmit(r.Context(), req)
	h.respond(w, http.StatusAccepted, snap, err)
}

// Retry handles POST /session/retry requests.
func (h *Handlers) Retry(w http.ResponseWriter, r *http.Request) {
	if wantsWait(r) {
		snap, err := h.session.Retry(r.Context())
		h.respond(w, http.StatusOK, snap, err)
		return
	}
	snap, _, err := h.session.StartRetry(r.Context())
	h.respond(w, http.StatusAccepted, snap, err)
}

// EditAndRetry handles POST /session/edit requests.
func (h *Handlers) EditAndRetry(w http.ResponseWriter, r *http.Request) {
	snap, err := h.session.EditAndRetry(r.Context())
	h.respond(w, http.StatusOK, snap, err)
}

// Extend handles POST /session/extend requests.
func (h *Handlers) Extend(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.session.Extend(r.Context())
	if !ok {
		writeError(w, http.StatusConflict, "the displayed video cannot be extended", "CANNOT_EXTEND")
		return
	}
	writeJSON(w, http.StatusOK, fromSnapshot(snap))
}

// NewProject handles POST /session/new requests.
func (h *Handlers) NewProject(w http.ResponseWriter, r *http.Request) {
	snap, err := h.session.NewProject(r.Context())
	h.respond(w, http.StatusOK, snap, err)
}

// ListHistory handles GET /history requests.
func (h *Handlers) ListHistory(w http.ResponseWriter, r *http.Request) {
	records, err := h.session.History(r.Context())
	if err != nil {
		h.logger.Error("failed to list history",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list history", "HISTORY_FETCH_FAILED")
		return
	}
	writeJSON(w, http.StatusOK, fromRecords(records))
}

// LoadHistory handles POST /history/{id}/load requests.
func (h *Handlers) LoadHistory(w http.ResponseWriter, r *http.Request) {
	recordID := r.PathValue("id")
	if recordID == "" {
		writeError(w, http.StatusBadRequest, "record ID is required", "MISSING_RECORD_ID")
		return
	}
	snap, err := h.session.LoadFromHistory(r.Context(), recordID)
	h.respond(w, http.StatusOK, snap, err)
}

// SetCredentials handles POST /credentials requests. A failed attempt that
// was waiting for a key is retried in the background.
func (h *Handlers) SetCredentials(w http.ResponseWriter, r *http.Request) {
	var body CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}
	if err := h.validator.Struct(body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	h.keys.SetKey(body.APIKey)
	h.logger.Info("API key updated")

	snap, done, err := h.session.CredentialAcquired(r.Context())
	status := http.StatusOK
	if done != nil {
		status = http.StatusAccepted
	}
	h.respond(w, status, snap, err)
}

// Media handles GET /media/{token} requests.
func (h *Handlers) Media(w http.ResponseWriter, r *http.Request) {
	entry, err := h.media.Open(r.PathValue("token"))
	if err != nil {
		if errors.Is(err, handle.ErrUnknownHandle) {
			writeError(w, http.StatusNotFound, "media not found", "MEDIA_NOT_FOUND")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to open media", "MEDIA_FETCH_FAILED")
		return
	}

	w.Header().Set("Content-Type", entry.MIMEType)
	w.Header().Set("Cache-Control", "private, no-store")
	http.ServeContent(w, r, "", time.Time{}, bytes.NewReader(entry.Payload))
}

// respond writes snap with status, or maps err to an error response.
func (h *Handlers) respond(w http.ResponseWriter, status int, snap session.Snapshot, err error) {
	if err == nil {
		writeJSON(w, status, fromSnapshot(snap))
		return
	}

	switch {
	case errors.Is(err, session.ErrBusy):
		writeError(w, http.StatusConflict, err.Error(), "SESSION_BUSY")
	case errors.Is(err, session.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
	case errors.Is(err, session.ErrCredentialRequired):
		writeError(w, http.StatusUnauthorized, err.Error(), "CREDENTIAL_REQUIRED")
	case errors.Is(err, session.ErrNothingToRetry):
		writeError(w, http.StatusConflict, err.Error(), "NOTHING_TO_RETRY")
	case errors.Is(err, session.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error(), "INVALID_TRANSITION")
	case errors.Is(err, session.ErrRecordNotFound):
		writeError(w, http.StatusNotFound, err.Error(), "RECORD_NOT_FOUND")
	case errors.Is(err, session.ErrSuperseded):
		writeError(w, http.StatusConflict, err.Error(), "SUPERSEDED")
	default:
		h.logger.Error("session action failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "session action failed", "SESSION_ERROR")
	}
}

func wantsWait(r *http.Request) bool {
	return r.URL.Query().Get("wait") == "true"
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
