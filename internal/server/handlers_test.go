package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/veo-studio/internal/credential"
	"github.com/maauso/veo-studio/internal/handle"
	"github.com/maauso/veo-studio/internal/history"
	"github.com/maauso/veo-studio/internal/metrics"
	"github.com/maauso/veo-studio/internal/session"
	"github.com/maauso/veo-studio/internal/video"
)

// fakeRunner answers every request with fn.
type fakeRunner struct {
	mu sync.Mutex
	fn func(ctx context.Context, req video.Request) (video.Result, error)
}

func (r *fakeRunner) Run(ctx context.Context, req video.Request) (video.Result, error) {
	r.mu.Lock()
	fn := r.fn
	r.mu.Unlock()
	return fn(ctx, req)
}

func (r *fakeRunner) set(fn func(ctx context.Context, req video.Request) (video.Result, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fn = fn
}

func succeed(payload string) func(context.Context, video.Request) (video.Result, error) {
	return func(context.Context, video.Request) (video.Result, error) {
		return video.Result{
			Payload:   []byte(payload),
			MIMEType:  "video/mp4",
			RemoteRef: &video.RemoteRef{URI: "files/" + payload},
		}, nil
	}
}

type testServer struct {
	router  http.Handler
	machine *session.Machine
	store   *history.Store
	keys    *credential.KeyStore
	runner  *fakeRunner
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, apiKey string) *testServer {
	t.Helper()
	logger := quietLogger()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	store := history.NewStore(history.NewMemoryEngine(), history.NewMemoryPointer(), logger)
	handles := handle.NewManager("http://test", handle.WithLogger(logger))
	keys := credential.NewKeyStore(apiKey)
	runner := &fakeRunner{fn: succeed("video-bytes")}

	machine := session.NewMachine(store, handles, runner,
		session.WithGate(keys),
		session.WithLogger(logger),
		session.WithMetrics(m),
	)
	machine.Restore(context.Background())
	t.Cleanup(machine.Wait)

	h := NewHandlers(machine, handles, keys, logger)
	cfg := DefaultConfig()
	cfg.Gatherer = reg

	return &testServer{
		router:  NewRouter(h, logger, cfg),
		machine: machine,
		store:   store,
		keys:    keys,
		runner:  runner,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeSession(t *testing.T, rec *httptest.ResponseRecorder) SessionResponse {
	t.Helper()
	var resp SessionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, "key")

	rec := s.do(t, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestGetSession_Idle(t *testing.T) {
	s := newTestServer(t, "key")

	rec := s.do(t, http.MethodGet, "/session", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeSession(t, rec)
	assert.Equal(t, "IDLE", resp.State)
	require.NotNil(t, resp.Draft)
	assert.Equal(t, "TEXT_TO_VIDEO", resp.Draft.Mode)
	assert.Nil(t, resp.Video)
}

func TestGenerate_Async(t *testing.T) {
	s := newTestServer(t, "key")

	rec := s.do(t, http.MethodPost, "/session/generate", RequestBody{Prompt: "a cat surfing"})

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "LOADING", decodeSession(t, rec).State)

	s.machine.Wait()
	snap := s.machine.Snapshot()
	assert.Equal(t, session.StateSuccess, snap.State)
}

func TestGenerate_WaitAndServeMedia(t *testing.T) {
	s := newTestServer(t, "key")

	rec := s.do(t, http.MethodPost, "/session/generate?wait=true", RequestBody{Prompt: "a cat surfing"})

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeSession(t, rec)
	assert.Equal(t, "SUCCESS", resp.State)
	assert.True(t, resp.CanExtend)
	assert.NotEmpty(t, resp.ActiveRecordID)
	require.NotNil(t, resp.Video)
	require.NotNil(t, resp.Request)
	assert.Equal(t, "a cat surfing", resp.Request.Prompt)

	path := strings.TrimPrefix(resp.Video.URL, "http://test")
	media := s.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, media.Code)
	assert.Equal(t, "video/mp4", media.Header().Get("Content-Type"))
	assert.Equal(t, "video-bytes", media.Body.String())
}

func TestGenerate_InvalidJSON(t *testing.T) {
	s := newTestServer(t, "key")

	req := httptest.NewRequest(http.MethodPost, "/session/generate", strings.NewReader("{invalid"))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_JSON", decodeError(t, rec).Code)
}

func TestGenerate_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		body RequestBody
	}{
		{"unknown mode", RequestBody{Prompt: "x", Mode: "SOUND_TO_VIDEO"}},
		{"unknown resolution", RequestBody{Prompt: "x", Resolution: "4k"}},
		{"bad base64", RequestBody{Mode: "FRAMES_TO_VIDEO", StartFrame: &MediaBody{Data: "!!", MIMEType: "image/png"}}},
		{"empty prompt", RequestBody{}},
		{"frames without start frame", RequestBody{Mode: "FRAMES_TO_VIDEO"}},
		{"too many references", RequestBody{
			Prompt: "x",
			Mode:   "REFERENCES_TO_VIDEO",
			ReferenceImages: []MediaBody{
				{Data: "aQ==", MIMEType: "image/png"},
				{Data: "aQ==", MIMEType: "image/png"},
				{Data: "aQ==", MIMEType: "image/png"},
				{Data: "aQ==", MIMEType: "image/png"},
			},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, "key")

			rec := s.do(t, http.MethodPost, "/session/generate", tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "VALIDATION_ERROR", decodeError(t, rec).Code)
		})
	}
}

func TestGenerate_FramesRequestDecoded(t *testing.T) {
	s := newTestServer(t, "key")
	var got video.Request
	s.runner.set(func(ctx context.Context, req video.Request) (video.Result, error) {
		got = req
		return succeed("v")(ctx, req)
	})

	body := RequestBody{
		Mode:       "FRAMES_TO_VIDEO",
		StartFrame: &MediaBody{Data: base64.StdEncoding.EncodeToString([]byte("frame")), MIMEType: "image/png"},
		Loop:       true,
	}
	rec := s.do(t, http.MethodPost, "/session/generate?wait=true", body)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got.StartFrame)
	assert.Equal(t, []byte("frame"), got.StartFrame.Data)
	assert.True(t, got.Loop)
}

func TestGenerate_Busy(t *testing.T) {
	s := newTestServer(t, "key")
	release := make(chan struct{})
	s.runner.set(func(ctx context.Context, req video.Request) (video.Result, error) {
		<-release
		return succeed("v")(ctx, req)
	})

	rec := s.do(t, http.MethodPost, "/session/generate", RequestBody{Prompt: "first"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = s.do(t, http.MethodPost, "/session/generate", RequestBody{Prompt: "second"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "SESSION_BUSY", decodeError(t, rec).Code)

	close(release)
}

func TestGenerate_CredentialRequiredThenAcquired(t *testing.T) {
	s := newTestServer(t, "")

	rec := s.do(t, http.MethodPost, "/session/generate", RequestBody{Prompt: "x"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "CREDENTIAL_REQUIRED", decodeError(t, rec).Code)
	assert.True(t, s.machine.Snapshot().NeedsCredential)

	rec = s.do(t, http.MethodPost, "/credentials", CredentialsRequest{APIKey: "new-key"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeSession(t, rec).NeedsCredential)

	key, err := s.keys.Key()
	require.NoError(t, err)
	assert.Equal(t, "new-key", key)
}

func TestSetCredentials_RetriesFailedAttempt(t *testing.T) {
	s := newTestServer(t, "key")
	s.runner.set(func(context.Context, video.Request) (video.Result, error) {
		return video.Result{}, errors.New("400 INVALID_ARGUMENT: API_KEY_INVALID")
	})

	rec := s.do(t, http.MethodPost, "/session/generate?wait=true", RequestBody{Prompt: "x"})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeSession(t, rec)
	assert.Equal(t, "ERROR", resp.State)
	assert.True(t, resp.NeedsCredential)

	s.runner.set(succeed("ok"))
	rec = s.do(t, http.MethodPost, "/credentials", CredentialsRequest{APIKey: "better-key"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "LOADING", decodeSession(t, rec).State)

	s.machine.Wait()
	assert.Equal(t, session.StateSuccess, s.machine.Snapshot().State)
}

func TestSetCredentials_Validation(t *testing.T) {
	s := newTestServer(t, "key")

	rec := s.do(t, http.MethodPost, "/credentials", CredentialsRequest{})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decodeError(t, rec).Code)
}

func TestRetry(t *testing.T) {
	s := newTestServer(t, "key")

	rec := s.do(t, http.MethodPost, "/session/retry", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "NOTHING_TO_RETRY", decodeError(t, rec).Code)

	s.runner.set(func(context.Context, video.Request) (video.Result, error) {
		return video.Result{}, errors.New("quota exceeded")
	})
	rec = s.do(t, http.MethodPost, "/session/generate?wait=true", RequestBody{Prompt: "x"})
	resp := decodeSession(t, rec)
	require.Equal(t, "ERROR", resp.State)
	assert.Equal(t, "Video generation failed: quota exceeded", resp.Error)

	s.runner.set(succeed("second"))
	rec = s.do(t, http.MethodPost, "/session/retry?wait=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "SUCCESS", decodeSession(t, rec).State)
}

func TestEditAndRetry(t *testing.T) {
	s := newTestServer(t, "key")

	rec := s.do(t, http.MethodPost, "/session/edit", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "INVALID_TRANSITION", decodeError(t, rec).Code)

	s.runner.set(func(context.Context, video.Request) (video.Result, error) {
		return video.Result{}, errors.New("boom")
	})
	s.do(t, http.MethodPost, "/session/generate?wait=true", RequestBody{Prompt: "keep me"})

	rec = s.do(t, http.MethodPost, "/session/edit", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeSession(t, rec)
	assert.Equal(t, "IDLE", resp.State)
	require.NotNil(t, resp.Draft)
	assert.Equal(t, "keep me", resp.Draft.Prompt)
}

func TestExtend(t *testing.T) {
	s := newTestServer(t, "key")

	rec := s.do(t, http.MethodPost, "/session/extend", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "CANNOT_EXTEND", decodeError(t, rec).Code)

	s.do(t, http.MethodPost, "/session/generate?wait=true", RequestBody{Prompt: "x"})

	rec = s.do(t, http.MethodPost, "/session/extend", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeSession(t, rec)
	assert.Equal(t, "IDLE", resp.State)
	require.NotNil(t, resp.Draft)
	assert.Equal(t, "EXTEND_VIDEO", resp.Draft.Mode)
	require.NotNil(t, resp.Draft.InputVideoRef)
	assert.Equal(t, "files/video-bytes", resp.Draft.InputVideoRef.URI)
}

func TestNewProject(t *testing.T) {
	s := newTestServer(t, "key")
	s.do(t, http.MethodPost, "/session/generate?wait=true", RequestBody{Prompt: "x"})

	rec := s.do(t, http.MethodPost, "/session/new", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeSession(t, rec)
	assert.Equal(t, "IDLE", resp.State)
	assert.Empty(t, resp.ActiveRecordID)
}

func TestHistory_ListAndLoad(t *testing.T) {
	s := newTestServer(t, "key")

	s.runner.set(succeed("first"))
	first := decodeSession(t, s.do(t, http.MethodPost, "/session/generate?wait=true", RequestBody{Prompt: "one"}))
	s.do(t, http.MethodPost, "/session/new", nil)
	s.runner.set(succeed("second"))
	s.do(t, http.MethodPost, "/session/generate?wait=true", RequestBody{Prompt: "two"})

	rec := s.do(t, http.MethodGet, "/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list HistoryResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	require.Len(t, list.Records, 2)

	rec = s.do(t, http.MethodPost, "/history/"+first.ActiveRecordID+"/load", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeSession(t, rec)
	assert.Equal(t, "SUCCESS", resp.State)
	assert.Equal(t, first.ActiveRecordID, resp.ActiveRecordID)
	require.NotNil(t, resp.Request)
	assert.Equal(t, "one", resp.Request.Prompt)
}

func TestHistory_LoadNotFound(t *testing.T) {
	s := newTestServer(t, "key")

	rec := s.do(t, http.MethodPost, "/history/does-not-exist/load", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "RECORD_NOT_FOUND", decodeError(t, rec).Code)
}

func TestMedia_NotFound(t *testing.T) {
	s := newTestServer(t, "key")

	rec := s.do(t, http.MethodGet, "/media/unknown", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "MEDIA_NOT_FOUND", decodeError(t, rec).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, "key")
	s.do(t, http.MethodPost, "/session/generate?wait=true", RequestBody{Prompt: "x"})

	rec := s.do(t, http.MethodGet, "/metrics", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "veo_studio_session_transitions_total")
}

func TestCORSMiddleware(t *testing.T) {
	logger := quietLogger()
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := CORSMiddleware([]string{"https://example.com"})(next)

	// Test with allowed origin
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, "https://example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	// Test with other origin
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	// Test OPTIONS preflight
	req = httptest.NewRequest(http.MethodOptions, "/session/generate", nil)
	req.Header.Set("Origin", "https://example.com")
	rec = httptest.NewRecorder()
	LoggingMiddleware(logger)(handler).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	panicHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("test panic")
	})

	handler := RecoveryMiddleware(quietLogger())(panicHandler)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()

	// Should not panic
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "INTERNAL_ERROR", decodeError(t, rec).Code)
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.NotEmpty(t, seen)
	assert.NotEqual(t, "abc-123", seen)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
}
