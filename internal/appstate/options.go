package appstate

import (
	"time"

	"github.com/julianstephens/dosekeep/internal/metrics"
)

// PersistResult describes one write handed to the storage backend.
type PersistResult struct {
	// Seq is the mutation sequence number of the snapshot that was written.
	Seq      uint64
	Deleted  bool
	Err      error
	Duration time.Duration
}

// PersistHook observes persistence outcomes. It runs on the writer goroutine
// and must not call back into the Store's mutating methods.
type PersistHook func(PersistResult)

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now. Tests use it to simulate calendar days.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLocation sets the timezone calendar days are computed in. The default
// is time.Local.
func WithLocation(loc *time.Location) Option {
	return func(s *Store) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithRecorder(rec metrics.Recorder) Option {
	return func(s *Store) {
		if rec != nil {
			s.rec = rec
		}
	}
}

func WithPersistHook(hook PersistHook) Option {
	return func(s *Store) {
		s.hook = hook
	}
}

// WithKey overrides the storage key the blob is kept under.
func WithKey(key string) Option {
	return func(s *Store) {
		if key != "" {
			s.key = key
		}
	}
}
