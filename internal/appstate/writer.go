package appstate

import (
	"context"
	"sync"
	"time"

	"github.com/julianstephens/dosekeep/internal/kv"
	"github.com/julianstephens/dosekeep/internal/logger"
	"github.com/julianstephens/dosekeep/internal/metrics"
)

// op is one queued backend call. Consecutive snapshot writes coalesce into
// the newest one; deletes never coalesce.
type op struct {
	seq    uint64
	data   string
	delete bool
	result chan error
}

// writer hands snapshots to the backend from a single goroutine so writes
// reach storage in mutation order.
type writer struct {
	backend kv.Backend
	key     string
	rec     metrics.Recorder
	hook    PersistHook

	mu       sync.Mutex
	queue    []op
	enqueued uint64
	written  uint64
	progress chan struct{}
	closed   bool

	wake    chan struct{}
	stop    chan struct{}
	stopped chan struct{}
}

func newWriter(backend kv.Backend, key string, rec metrics.Recorder, hook PersistHook) *writer {
	return &writer{
		backend:  backend,
		key:      key,
		rec:      rec,
		hook:     hook,
		progress: make(chan struct{}),
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// enqueue schedules a write and returns false once the writer is closed.
func (w *writer) enqueue(o op) bool {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return false
	}
	w.enqueued = o.seq
	if n := len(w.queue); n > 0 && !o.delete && !w.queue[n-1].delete {
		w.queue[n-1] = o
		w.rec.IncPersistCoalesced()
	} else {
		w.queue = append(w.queue, o)
	}
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
	return true
}

func (w *writer) run(ctx context.Context) {
	defer close(w.stopped)
	for {
		select {
		case <-w.wake:
			w.drain(ctx)
		case <-w.stop:
			w.drain(ctx)
			return
		}
	}
}

func (w *writer) drain(ctx context.Context) {
	for {
		w.mu.Lock()
		if len(w.queue) == 0 {
			w.mu.Unlock()
			return
		}
		next := w.queue[0]
		w.queue = w.queue[1:]
		w.mu.Unlock()

		err := w.write(ctx, next)
		if next.result != nil {
			next.result <- err
		}

		w.mu.Lock()
		w.written = next.seq
		close(w.progress)
		w.progress = make(chan struct{})
		w.mu.Unlock()
	}
}

func (w *writer) write(ctx context.Context, o op) error {
	start := time.Now()
	var err error
	if o.delete {
		err = w.backend.Delete(ctx, w.key)
	} else {
		err = w.backend.Set(ctx, w.key, o.data)
	}
	elapsed := time.Since(start)

	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultFailed
		logger.Error("Failed to persist app state", "seq", o.seq, "backend", w.backend.Location(), "error", err)
	} else {
		logger.Debug("Persisted app state", "seq", o.seq, "bytes", len(o.data), "deleted", o.delete)
	}
	w.rec.ObservePersistDuration(elapsed, result)
	w.rec.IncPersistResult(result)

	if w.hook != nil {
		w.hook(PersistResult{Seq: o.seq, Deleted: o.delete, Err: err, Duration: elapsed})
	}
	return err
}

// flush waits until everything enqueued so far has been handed to the backend.
func (w *writer) flush(ctx context.Context) error {
	w.mu.Lock()
	target := w.enqueued
	w.mu.Unlock()

	for {
		w.mu.Lock()
		if w.written >= target {
			w.mu.Unlock()
			return nil
		}
		progress := w.progress
		w.mu.Unlock()

		select {
		case <-progress:
		case <-w.stopped:
			w.mu.Lock()
			done := w.written >= target
			w.mu.Unlock()
			if done {
				return nil
			}
			return kv.ErrClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// close stops accepting writes, drains the queue and waits for the goroutine.
func (w *writer) close(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	close(w.stop)
	select {
	case <-w.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
