// Package session implements the lifecycle of one user session: restoring
// the last result, submitting requests, displaying results and moving
// between history entries.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/maauso/veo-studio/internal/credential"
	"github.com/maauso/veo-studio/internal/generation"
	"github.com/maauso/veo-studio/internal/handle"
	"github.com/maauso/veo-studio/internal/history"
	"github.com/maauso/veo-studio/internal/metrics"
	"github.com/maauso/veo-studio/internal/video"
)

// Static errors for session actions.
var (
	// ErrBusy is returned when an action arrives while a request is in
	// flight or the session is still restoring.
	ErrBusy = errors.New("session: a generation is already in progress")
	// ErrInvalidRequest wraps a request validation error.
	ErrInvalidRequest = errors.New("session: invalid request")
	// ErrCredentialRequired is returned when the credential gate refuses.
	ErrCredentialRequired = errors.New("session: an API key is required")
	// ErrNothingToRetry is returned by Retry when there is no last request.
	ErrNothingToRetry = errors.New("session: nothing to retry")
	// ErrRecordNotFound is returned by LoadFromHistory for an unknown ID.
	ErrRecordNotFound = errors.New("session: history record not found")
	// ErrSuperseded is returned when a generation finished after the user
	// moved on; its result was discarded.
	ErrSuperseded = errors.New("session: generation superseded by a later action")
)

// Message prefixes for results that were produced but not fully handled.
const (
	msgSaveFailed    = "Video generated, but it could not be saved to history: "
	msgDisplayFailed = "Video generated, but it could not be displayed: "
)

// Runner executes one generation request.
type Runner interface {
	Run(ctx context.Context, req video.Request) (video.Result, error)
}

// Handles creates and releases playable handles.
type Handles interface {
	Materialize(payload []byte, mimeType string) (handle.Handle, error)
	Release(h handle.Handle)
}

// displayed is the result currently shown.
type displayed struct {
	handle   handle.Handle
	result   video.Result
	request  video.Request
	recordID string
}

// Machine is the session state machine. It is the sole owner of displayed
// handles and of the active pointer.
type Machine struct {
	mu sync.Mutex
	wg sync.WaitGroup

	state           State
	errMessage      string
	needsCredential bool
	unsaved         bool
	draft           *video.Request
	lastConfig      *video.Request
	current         *displayed
	activeID        string
	seq             uint64

	store   *history.Store
	handles Handles
	runner  Runner
	gate    credential.Gate
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Machine.
type Option func(*Machine)

// WithGate sets the credential gate checked before every generation.
func WithGate(g credential.Gate) Option {
	return func(m *Machine) {
		m.gate = g
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Machine) {
		m.logger = logger
	}
}

// WithMetrics records transitions on mt.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Machine) {
		m.metrics = mt
	}
}

// NewMachine creates a Machine in the RESTORING state.
func NewMachine(store *history.Store, handles Handles, runner Runner, opts ...Option) *Machine {
	m := &Machine{
		state:   StateRestoring,
		store:   store,
		handles: handles,
		runner:  runner,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Restore shows the record named by the active pointer, if it can. Every
// failure is logged and leaves the session IDLE with the pointer cleared.
func (m *Machine) Restore(ctx context.Context) Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateRestoring {
		return m.snapshot()
	}

	recordID, ok := m.store.GetActivePointer(ctx)
	if !ok {
		m.mustTransition(StateIdle)
		return m.snapshot()
	}

	rec, found, err := m.store.Get(ctx, recordID)
	switch {
	case err != nil:
		m.logger.Warn("restore failed: could not read record",
			slog.String("record_id", recordID),
			slog.String("error", err.Error()),
		)
	case !found:
		m.logger.Warn("restore failed: active record no longer exists",
			slog.String("record_id", recordID),
		)
	default:
		if err := m.show(rec); err != nil {
			m.logger.Warn("restore failed: could not display record",
				slog.String("record_id", recordID),
				slog.String("error", err.Error()),
			)
			break
		}
		m.mustTransition(StateSuccess)
		m.logger.Info("session restored", slog.String("record_id", recordID))
		return m.snapshot()
	}

	m.store.ClearActivePointer(ctx)
	m.mustTransition(StateIdle)
	return m.snapshot()
}

// Submit validates req and generates it, blocking until the result is
// displayed or the attempt failed.
func (m *Machine) Submit(ctx context.Context, req video.Request) (Snapshot, error) {
	snap, done, err := m.StartSubmit(ctx, req)
	if err != nil {
		return snap, err
	}
	return wait(ctx, snap, done)
}

// StartSubmit validates req and starts generating it in the background. It
// returns the LOADING snapshot and a channel that receives the settled one.
func (m *Machine) StartSubmit(ctx context.Context, req video.Request) (Snapshot, <-chan Outcome, error) {
	req = req.Normalize()
	if err := req.Validate(); err != nil {
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.snapshot(), nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return m.launch(ctx, req, StateIdle)
}

// Retry resubmits the last request unchanged, blocking until it settles.
func (m *Machine) Retry(ctx context.Context) (Snapshot, error) {
	snap, done, err := m.StartRetry(ctx)
	if err != nil {
		return snap, err
	}
	return wait(ctx, snap, done)
}

// StartRetry resubmits the last request in the background.
func (m *Machine) StartRetry(ctx context.Context) (Snapshot, <-chan Outcome, error) {
	m.mu.Lock()
	last := m.lastConfig
	m.mu.Unlock()

	if last == nil {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.state == StateLoading || m.state == StateRestoring {
			return m.snapshot(), nil, ErrBusy
		}
		return m.snapshot(), nil, ErrNothingToRetry
	}
	return m.launch(ctx, last.Clone(), StateSuccess, StateError)
}

// CredentialAcquired records that the user supplied a credential. When the
// last attempt failed, it is retried in the background.
func (m *Machine) CredentialAcquired(ctx context.Context) (Snapshot, <-chan Outcome, error) {
	m.mu.Lock()
	m.needsCredential = false
	retry := m.state == StateError && m.lastConfig != nil
	if !retry {
		defer m.mu.Unlock()
		return m.snapshot(), nil, nil
	}
	m.mu.Unlock()

	return m.StartRetry(ctx)
}

// EditAndRetry leaves the ERROR state with a draft seeded from the last
// request, so it can be edited rather than retyped.
func (m *Machine) EditAndRetry(ctx context.Context) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateError {
		return m.snapshot(), fmt.Errorf("%w: cannot edit and retry from %s", ErrInvalidTransition, m.state)
	}
	if m.lastConfig == nil {
		m.resetProject(ctx)
		return m.snapshot(), nil
	}

	draft := m.lastConfig.Clone()
	m.draft = &draft
	m.errMessage = ""
	m.mustTransition(StateIdle)
	return m.snapshot(), nil
}

// Extend seeds an extend-mode draft from the displayed result and hides it.
// It reports false, and changes nothing, unless the displayed result can be
// extended.
func (m *Machine) Extend(_ context.Context) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.canExtend() {
		return m.snapshot(), false
	}

	cur := m.current
	draft := cur.request.WithMode(video.ModeExtendVideo)
	draft.Prompt = ""
	draft.InputVideo = &video.Media{Data: cur.result.Payload, MIMEType: cur.result.MIMEType}
	draft.InputVideoRef = cur.result.RemoteRef.Clone()

	m.releaseDisplayed()
	m.draft = &draft
	m.mustTransition(StateIdle)
	return m.snapshot(), true
}

// NewProject discards the displayed result, the last request and any error,
// and clears the active pointer. An in-flight generation is superseded.
func (m *Machine) NewProject(ctx context.Context) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateRestoring {
		return m.snapshot(), ErrBusy
	}
	m.resetProject(ctx)
	return m.snapshot(), nil
}

// LoadFromHistory displays the stored record with the given ID and makes it
// the active record. An in-flight generation is superseded.
func (m *Machine) LoadFromHistory(ctx context.Context, recordID string) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateRestoring {
		return m.snapshot(), ErrBusy
	}

	rec, found, err := m.store.Get(ctx, recordID)
	if err != nil {
		return m.snapshot(), fmt.Errorf("session: load %s: %w", recordID, err)
	}
	if !found {
		return m.snapshot(), ErrRecordNotFound
	}

	if err := m.show(rec); err != nil {
		return m.snapshot(), fmt.Errorf("session: display %s: %w", recordID, err)
	}

	m.seq++
	m.errMessage = ""
	m.unsaved = false
	m.draft = nil
	m.store.SetActivePointer(ctx, rec.ID)
	m.mustTransition(StateSuccess)
	m.logger.Info("history record loaded", slog.String("record_id", rec.ID))
	return m.snapshot(), nil
}

// History lists stored records, newest first.
func (m *Machine) History(ctx context.Context) ([]history.Record, error) {
	return m.store.GetAll(ctx)
}

// Snapshot returns the current presentation state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot()
}

// Wait blocks until every background generation has settled.
func (m *Machine) Wait() {
	m.wg.Wait()
}

// Outcome is the settled result of a background generation.
type Outcome struct {
	Snapshot Snapshot
	// Err is ErrSuperseded when the result was discarded, nil otherwise.
	Err error
}

func wait(ctx context.Context, snap Snapshot, done <-chan Outcome) (Snapshot, error) {
	select {
	case out := <-done:
		return out.Snapshot, out.Err
	case <-ctx.Done():
		return snap, fmt.Errorf("session: context cancelled: %w", ctx.Err())
	}
}

// launch moves to LOADING and runs req in the background. The state must be
// one of from.
func (m *Machine) launch(ctx context.Context, req video.Request, from ...State) (Snapshot, <-chan Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateLoading || m.state == StateRestoring {
		return m.snapshot(), nil, ErrBusy
	}
	if !stateIn(m.state, from) {
		return m.snapshot(), nil, fmt.Errorf("%w: cannot generate from %s", ErrInvalidTransition, m.state)
	}

	if !m.hasCredential(ctx) {
		m.needsCredential = true
		return m.snapshot(), nil, ErrCredentialRequired
	}

	m.releaseDisplayed()
	m.seq++
	ticket := m.seq
	last := req.Clone()
	m.lastConfig = &last
	m.draft = nil
	m.errMessage = ""
	m.unsaved = false
	m.needsCredential = false
	m.mustTransition(StateLoading)
	snap := m.snapshot()

	done := make(chan Outcome, 1)
	runCtx := context.WithoutCancel(ctx)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		res, err := m.runner.Run(runCtx, req)
		done <- m.settle(runCtx, ticket, req, res, err)
	}()
	return snap, done, nil
}

// settle applies the outcome of the generation identified by ticket.
func (m *Machine) settle(ctx context.Context, ticket uint64, req video.Request, res video.Result, runErr error) Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ticket != m.seq || m.state != StateLoading {
		m.metrics.ObserveGeneration(metrics.OutcomeStale, 0)
		m.logger.Info("discarding superseded generation",
			slog.Uint64("ticket", ticket),
			slog.Uint64("current", m.seq),
			slog.Bool("failed", runErr != nil),
		)
		return Outcome{Snapshot: m.snapshot(), Err: ErrSuperseded}
	}

	if runErr != nil {
		f := generation.Classify(runErr)
		m.errMessage = f.Message
		m.needsCredential = f.NeedsCredential()
		m.mustTransition(StateError)
		return Outcome{Snapshot: m.snapshot()}
	}

	rec, saveErr := m.store.Put(ctx, req, res)
	if saveErr != nil {
		m.unsaved = true
		m.errMessage = msgSaveFailed + saveErr.Error()
		// the pointer keeps naming the last stored record
		m.activeID = ""
	} else {
		m.activeID = rec.ID
	}

	h, err := m.handles.Materialize(res.Payload, res.MIMEType)
	if err != nil {
		m.logger.Error("failed to display generated video", slog.String("error", err.Error()))
		m.errMessage = msgDisplayFailed + err.Error()
		m.mustTransition(StateError)
		return Outcome{Snapshot: m.snapshot()}
	}

	m.current = &displayed{handle: h, result: res, request: req, recordID: rec.ID}
	m.mustTransition(StateSuccess)
	return Outcome{Snapshot: m.snapshot()}
}

// show materializes rec and swaps it in for the displayed result. The new
// handle exists before the old one is released, so a failure leaves the
// previous result on screen.
func (m *Machine) show(rec history.Record) error {
	h, err := m.handles.Materialize(rec.Payload, rec.MIMEType)
	if err != nil {
		return err
	}
	m.releaseDisplayed()

	req := rec.Request.Clone()
	m.current = &displayed{handle: h, result: rec.Result(), request: req, recordID: rec.ID}
	last := req.Clone()
	m.lastConfig = &last
	m.activeID = rec.ID
	return nil
}

// releaseDisplayed releases the displayed handle, if any.
func (m *Machine) releaseDisplayed() {
	if m.current == nil {
		return
	}
	m.handles.Release(m.current.handle)
	m.current = nil
}

func (m *Machine) resetProject(ctx context.Context) {
	m.releaseDisplayed()
	m.seq++
	m.store.ClearActivePointer(ctx)
	m.activeID = ""
	m.lastConfig = nil
	m.errMessage = ""
	m.draft = nil
	m.unsaved = false
	m.mustTransition(StateIdle)
}

func (m *Machine) hasCredential(ctx context.Context) bool {
	if m.gate == nil {
		return true
	}
	ok, err := m.gate.HasCredential(ctx)
	if err != nil {
		m.logger.Warn("credential check failed", slog.String("error", err.Error()))
		return false
	}
	return ok
}

func (m *Machine) canExtend() bool {
	return m.state == StateSuccess &&
		m.current != nil &&
		m.current.request.CanExtend() &&
		m.current.result.RemoteRef != nil &&
		m.current.result.RemoteRef.URI != ""
}

// transitionTo changes state, or returns ErrInvalidTransition.
func (m *Machine) transitionTo(to State) error {
	from := m.state
	if !canTransition(from, to) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, from, to)
	}
	m.state = to
	m.metrics.ObserveTransition(string(from), string(to))
	m.logger.Debug("session transition",
		slog.String("from", string(from)),
		slog.String("to", string(to)),
	)
	return nil
}

// mustTransition is transitionTo for callers that already checked the
// current state; a refusal is a programming error and is only logged.
func (m *Machine) mustTransition(to State) {
	if err := m.transitionTo(to); err != nil {
		m.logger.Error("unexpected session transition", slog.String("error", err.Error()))
	}
}

func stateIn(s State, set []State) bool {
	for _, x := range set {
		if s == x {
			return true
		}
	}
	return false
}
