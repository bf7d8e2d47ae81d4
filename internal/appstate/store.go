// Package appstate owns the single persisted AppState record. Reads are
// served from memory; mutations apply in memory first and are persisted by a
// background writer, so callers never block on or see storage failures.
package appstate

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/julianstephens/dosekeep/internal/constants"
	"github.com/julianstephens/dosekeep/internal/kv"
	"github.com/julianstephens/dosekeep/internal/logger"
	"github.com/julianstephens/dosekeep/internal/metrics"
	"github.com/julianstephens/dosekeep/internal/models"
)

// ErrNotStarted is returned by Flush before Init has been called.
var ErrNotStarted = errors.New("app state store not started")

type Store struct {
	backend kv.Backend
	key     string
	now     func() time.Time
	loc     *time.Location
	rec     metrics.Recorder
	hook    PersistHook
	w       *writer

	mu      sync.RWMutex
	state   models.AppState
	loading bool
	seq     uint64

	startOnce sync.Once
	started   bool
	readyOnce sync.Once
	ready     chan struct{}
}

// New returns a store holding Default() and marked as loading. Nothing is
// read or written until Init.
func New(backend kv.Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		key:     constants.StorageKey,
		now:     time.Now,
		loc:     time.Local,
		rec:     metrics.NoopRecorder{},
		state:   models.Default(),
		loading: true,
		ready:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.w = newWriter(backend, s.key, s.rec, s.hook)
	return s
}

// Init starts the background writer and schedules hydration. It returns
// immediately; use Ready or WaitLoaded to wait for the stored record.
// Backend calls keep ctx's values but not its cancellation.
func (s *Store) Init(ctx context.Context) {
	s.startOnce.Do(func() {
		bg := context.WithoutCancel(ctx)
		s.mu.Lock()
		s.started = true
		s.mu.Unlock()

		go s.w.run(bg)
		go s.Load(bg)
	})
}

// Ready is closed once the first hydration has finished.
func (s *Store) Ready() <-chan struct{} {
	return s.ready
}

// WaitLoaded blocks until hydration has finished or ctx is done.
func (s *Store) WaitLoaded(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Load reads the stored blob and replaces the in-memory record with it.
// Missing, unreadable or corrupt data yields Default(); the failure is
// logged and never returned. A field whose stored value has the wrong type
// keeps its default while the rest of the blob is kept.
func (s *Store) Load(ctx context.Context) models.AppState {
	state, result := s.read(ctx)
	s.rec.IncHydrateResult(result)

	s.mu.Lock()
	s.state = state
	s.loading = false
	s.mu.Unlock()

	s.rec.SetCurrentStreak(state.CurrentStreak)
	s.readyOnce.Do(func() { close(s.ready) })
	return state.Clone()
}

func (s *Store) read(ctx context.Context) (models.AppState, metrics.HydrateLabel) {
	raw, err := s.backend.Get(ctx, s.key)
	if errors.Is(err, kv.ErrNotFound) {
		logger.Debug("No stored app state, using defaults", "key", s.key)
		return models.Default(), metrics.HydrateAbsent
	}
	if err != nil {
		logger.Error("Failed to read app state, using defaults", "key", s.key, "error", err)
		return models.Default(), metrics.HydrateFailed
	}

	state := models.Default()
	err = json.Unmarshal([]byte(raw), &state)
	if err == nil {
		return state, metrics.HydrateLoaded
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && !errors.Is(err, models.ErrNotObject) {
		logger.Warn("Stored app state has a mistyped field, keeping its default", "field", typeErr.Field, "error", err)
		return state, metrics.HydratePartial
	}

	logger.Warn("Stored app state is corrupt, using defaults", "key", s.key, "error", err)
	return models.Default(), metrics.HydrateCorrupt
}

// State returns a copy of the current record.
func (s *Store) State() models.AppState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// IsLoading reports whether hydration has not finished yet.
func (s *Store) IsLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// UpdateState lays patch over the current record and schedules a persist of
// the result. Keys whose values do not fit their field are dropped and
// logged; unknown keys are kept verbatim.
func (s *Store) UpdateState(patch models.Patch) {
	if len(patch) == 0 {
		return
	}

	s.mu.Lock()
	next, rejected := s.state.Apply(patch)
	s.state = next
	s.persistLocked()
	s.mu.Unlock()

	if len(rejected) > 0 {
		logger.Warn("Dropped patch keys with mistyped values", "keys", rejected)
	}
}

// Reset deletes the stored blob and restores Default() in memory. Unlike
// the other mutations it waits for the backend and returns its error.
func (s *Store) Reset(ctx context.Context) error {
	if !s.isStarted() {
		return ErrNotStarted
	}

	result := make(chan error, 1)
	s.mu.Lock()
	s.state = models.Default()
	s.seq++
	queued := s.w.enqueue(op{seq: s.seq, delete: true, result: result})
	s.mu.Unlock()
	s.rec.SetCurrentStreak(0)

	if !queued {
		return kv.ErrClosed
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// persistLocked assigns the next sequence number to the current record and
// queues it for the writer. Callers hold s.mu, so snapshots are queued in
// the order they were taken.
func (s *Store) persistLocked() {
	s.seq++
	data, err := json.Marshal(s.state)
	if err != nil {
		logger.Error("Failed to encode app state", "seq", s.seq, "error", err)
		return
	}
	if !s.w.enqueue(op{seq: s.seq, data: string(data)}) {
		logger.Warn("App state changed after close, not persisted", "seq", s.seq)
	}
}

func (s *Store) isStarted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

// Flush waits until every mutation made so far has been handed to the
// backend. Persist failures are not returned; they go to the log, the
// metrics recorder and the PersistHook.
func (s *Store) Flush(ctx context.Context) error {
	if !s.isStarted() {
		return ErrNotStarted
	}
	return s.w.flush(ctx)
}

// Close flushes pending writes and stops the writer. The backend is left
// open; its owner closes it.
func (s *Store) Close(ctx context.Context) error {
	s.startOnce.Do(func() {
		// Never initialized: run the writer only to drain what was queued.
		s.mu.Lock()
		s.started = true
		s.mu.Unlock()
		go s.w.run(context.WithoutCancel(ctx))
	})
	return s.w.close(ctx)
}

// Location returns the timezone calendar days are computed in.
func (s *Store) Location() *time.Location {
	return s.loc
}
