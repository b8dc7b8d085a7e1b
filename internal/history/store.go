package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/maauso/veo-studio/internal/history/id"
	"github.com/maauso/veo-studio/internal/metrics"
	"github.com/maauso/veo-studio/internal/video"
)

// Store is the persistent store of generated videos. It owns record
// identity and timestamps and keeps the active pointer in step with writes.
type Store struct {
	engine  Engine
	pointer Pointer
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	newID   func() string
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// WithIDGenerator overrides the record ID source.
func WithIDGenerator(gen func() string) StoreOption {
	return func(s *Store) {
		s.newID = gen
	}
}

// WithMetrics records write outcomes on m.
func WithMetrics(m *metrics.Metrics) StoreOption {
	return func(s *Store) {
		s.metrics = m
	}
}

// NewStore creates a Store over engine and pointer.
func NewStore(engine Engine, pointer Pointer, logger *slog.Logger, opts ...StoreOption) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		engine:  engine,
		pointer: pointer,
		logger:  logger,
		now:     time.Now,
		newID:   id.Generate,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put saves a new record for req and res, then points the active pointer
// at it. Errors wrap ErrStorageUnavailable or ErrWriteFailure.
func (s *Store) Put(ctx context.Context, req video.Request, res video.Result) (Record, error) {
	prompt := req.Prompt
	if prompt == "" {
		prompt = UntitledPrompt
	}

	rec := Record{
		ID:        s.newID(),
		CreatedAt: s.now().UTC(),
		Prompt:    prompt,
		Request:   req.Clone(),
		Payload:   res.Payload,
		MIMEType:  res.MIMEType,
		RemoteRef: res.RemoteRef.Clone(),
	}

	if err := s.engine.Put(ctx, rec); err != nil {
		if errors.Is(err, ErrStorageUnavailable) {
			s.metrics.ObserveWrite(metrics.WriteUnavailable)
			s.logger.Error("history storage unavailable",
				slog.String("record_id", rec.ID),
				slog.String("error", err.Error()),
			)
			return Record{}, err
		}
		s.metrics.ObserveWrite(metrics.WriteFailed)
		s.logger.Error("failed to save record",
			slog.String("record_id", rec.ID),
			slog.String("error", err.Error()),
		)
		return Record{}, fmt.Errorf("%w: %w", ErrWriteFailure, err)
	}
	s.metrics.ObserveWrite(metrics.WriteOK)

	s.logger.Info("record saved",
		slog.String("record_id", rec.ID),
		slog.Int("bytes", len(rec.Payload)),
		slog.String("mode", string(req.Mode)),
	)

	s.SetActivePointer(ctx, rec.ID)
	return rec, nil
}

// GetAll returns every record, newest first.
func (s *Store) GetAll(ctx context.Context) ([]Record, error) {
	records, err := s.engine.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

// Get returns the record with the given ID. A missing record is reported
// through the boolean, not as an error.
func (s *Store) Get(ctx context.Context, recordID string) (Record, bool, error) {
	rec, err := s.engine.Get(ctx, recordID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Record{}, false, nil
		}
		return Record{}, false, err
	}
	return rec, true, nil
}

// GetActivePointer returns the active record ID, if any. Pointer failures
// are logged and reported as absent.
func (s *Store) GetActivePointer(ctx context.Context) (string, bool) {
	recordID, err := s.pointer.Get(ctx)
	if err != nil {
		if !errors.Is(err, ErrNoPointer) {
			s.logger.Warn("failed to read active pointer",
				slog.String("error", err.Error()),
			)
		}
		return "", false
	}
	return recordID, true
}

// SetActivePointer stores recordID as the active record. Failures are logged
// and swallowed.
func (s *Store) SetActivePointer(ctx context.Context, recordID string) {
	if err := s.pointer.Set(ctx, recordID); err != nil {
		s.logger.Warn("failed to save active pointer",
			slog.String("record_id", recordID),
			slog.String("error", err.Error()),
		)
	}
}

// ClearActivePointer removes the active record. Failures are logged and
// swallowed.
func (s *Store) ClearActivePointer(ctx context.Context) {
	if err := s.pointer.Clear(ctx); err != nil {
		s.logger.Warn("failed to clear active pointer",
			slog.String("error", err.Error()),
		)
	}
}
