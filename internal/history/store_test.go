package history

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/veo-studio/internal/metrics"
	"github.com/maauso/veo-studio/internal/video"
)

// failingEngine returns err from every operation.
type failingEngine struct {
	err error
}

func (e failingEngine) Put(context.Context, Record) error           { return e.err }
func (e failingEngine) Get(context.Context, string) (Record, error) { return Record{}, e.err }
func (e failingEngine) List(context.Context) ([]Record, error)      { return nil, e.err }

// failingPointer returns err from every operation.
type failingPointer struct {
	err error
}

func (p failingPointer) Get(context.Context) (string, error) { return "", p.err }
func (p failingPointer) Set(context.Context, string) error   { return p.err }
func (p failingPointer) Clear(context.Context) error         { return p.err }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func textRequest(prompt string) video.Request {
	r := video.NewRequest()
	r.Prompt = prompt
	return r
}

func TestStore_Put(t *testing.T) {
	ctx := context.Background()
	engine := NewMemoryEngine()
	pointer := NewMemoryPointer()
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	store := NewStore(engine, pointer, quietLogger(),
		WithClock(func() time.Time { return now }),
		WithIDGenerator(func() string { return "rec-1" }),
	)

	req := textRequest("a cat")
	rec, err := store.Put(ctx, req, video.Result{
		Payload:   []byte("mp4"),
		MIMEType:  "video/mp4",
		RemoteRef: &video.RemoteRef{URI: "files/1"},
	})
	require.NoError(t, err)

	assert.Equal(t, "rec-1", rec.ID)
	assert.Equal(t, now, rec.CreatedAt)
	assert.Equal(t, "a cat", rec.Prompt)
	assert.Equal(t, req, rec.Request)
	assert.Equal(t, "files/1", rec.RemoteRef.URI)

	saved, found, err := store.Get(ctx, "rec-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("mp4"), saved.Payload)

	active, ok := store.GetActivePointer(ctx)
	require.True(t, ok)
	assert.Equal(t, "rec-1", active)
}

func TestStore_Put_UntitledPrompt(t *testing.T) {
	store := NewStore(NewMemoryEngine(), NewMemoryPointer(), quietLogger())

	rec, err := store.Put(context.Background(), textRequest(""), video.Result{Payload: []byte{1}})
	require.NoError(t, err)
	assert.Equal(t, UntitledPrompt, rec.Prompt)
	assert.Equal(t, "", rec.Request.Prompt)
}

func TestStore_Put_GeneratesUniqueIDs(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemoryEngine(), NewMemoryPointer(), quietLogger())

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		rec, err := store.Put(ctx, textRequest(fmt.Sprintf("p%d", i)), video.Result{Payload: []byte{1}})
		require.NoError(t, err)
		assert.False(t, seen[rec.ID], "duplicate id %s", rec.ID)
		seen[rec.ID] = true
	}
}

func TestStore_Put_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("unavailable", func(t *testing.T) {
		m := metrics.New(prometheus.NewRegistry())
		pointer := NewMemoryPointer()
		store := NewStore(failingEngine{err: fmt.Errorf("%w: no disk", ErrStorageUnavailable)}, pointer, quietLogger(), WithMetrics(m))

		_, err := store.Put(ctx, textRequest("x"), video.Result{Payload: []byte{1}})
		assert.ErrorIs(t, err, ErrStorageUnavailable)
		assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreWrites.WithLabelValues(metrics.WriteUnavailable)))

		_, ok := store.GetActivePointer(ctx)
		assert.False(t, ok, "pointer must not move on a failed write")
	})

	t.Run("write failure", func(t *testing.T) {
		store := NewStore(failingEngine{err: errors.New("disk full")}, NewMemoryPointer(), quietLogger())

		_, err := store.Put(ctx, textRequest("x"), video.Result{Payload: []byte{1}})
		assert.ErrorIs(t, err, ErrWriteFailure)
		assert.Contains(t, err.Error(), "disk full")
	})
}

func TestStore_Put_PointerFailureIsSwallowed(t *testing.T) {
	ctx := context.Background()
	engine := NewMemoryEngine()
	store := NewStore(engine, failingPointer{err: errors.New("quota exceeded")}, quietLogger())

	rec, err := store.Put(ctx, textRequest("x"), video.Result{Payload: []byte{1}})
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, 1, engine.Len())

	_, ok := store.GetActivePointer(ctx)
	assert.False(t, ok)
	assert.NotPanics(t, func() { store.ClearActivePointer(ctx) })
}

func TestStore_GetAll_NewestFirst(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	store := NewStore(NewMemoryEngine(), NewMemoryPointer(), quietLogger(),
		WithClock(func() time.Time {
			tick++
			return base.Add(time.Duration(tick) * time.Minute)
		}),
	)

	for _, p := range []string{"first", "second", "third"} {
		_, err := store.Put(ctx, textRequest(p), video.Result{Payload: []byte(p)})
		require.NoError(t, err)
	}

	records, err := store.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "third", records[0].Prompt)
	assert.Equal(t, "second", records[1].Prompt)
	assert.Equal(t, "first", records[2].Prompt)
}

func TestStore_GetAll_Empty(t *testing.T) {
	store := NewStore(NewMemoryEngine(), NewMemoryPointer(), quietLogger())

	records, err := store.GetAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestStore_Get_Absent(t *testing.T) {
	store := NewStore(NewMemoryEngine(), NewMemoryPointer(), quietLogger())

	_, found, err := store.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_Get_EngineError(t *testing.T) {
	store := NewStore(failingEngine{err: ErrStorageUnavailable}, NewMemoryPointer(), quietLogger())

	_, found, err := store.Get(context.Background(), "x")
	assert.ErrorIs(t, err, ErrStorageUnavailable)
	assert.False(t, found)
}

func TestStore_ActivePointer(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemoryEngine(), NewMemoryPointer(), quietLogger())

	_, ok := store.GetActivePointer(ctx)
	assert.False(t, ok)

	store.SetActivePointer(ctx, "abc")
	got, ok := store.GetActivePointer(ctx)
	assert.True(t, ok)
	assert.Equal(t, "abc", got)

	store.ClearActivePointer(ctx)
	_, ok = store.GetActivePointer(ctx)
	assert.False(t, ok)
}

func videoResult(payload string) video.Result {
	return video.Result{Payload: []byte(payload), MIMEType: "video/mp4"}
}
