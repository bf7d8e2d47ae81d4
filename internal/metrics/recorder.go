// Package metrics records state store activity. The CLI keeps an in-process
// Prometheus registry and prints it from the doctor command; nothing is
// exported over the network.
package metrics

import "time"

// ResultLabel enumerates outcome categories for counters.
type ResultLabel string

const (
	ResultSuccess ResultLabel = "success"
	ResultFailed  ResultLabel = "failed"
)

// HydrateLabel describes how the stored blob turned into in-memory state.
type HydrateLabel string

const (
	HydrateLoaded  HydrateLabel = "loaded"
	HydrateAbsent  HydrateLabel = "absent"
	HydratePartial HydrateLabel = "partial"
	HydrateCorrupt HydrateLabel = "corrupt"
	HydrateFailed  HydrateLabel = "failed"
)

// CheckInLabel separates recorded check-ins from same-day repeats.
type CheckInLabel string

const (
	CheckInRecorded  CheckInLabel = "recorded"
	CheckInDuplicate CheckInLabel = "duplicate"
)

// Recorder defines observability hooks for the state store.
type Recorder interface {
	ObservePersistDuration(d time.Duration, result ResultLabel)
	IncPersistResult(result ResultLabel)
	IncPersistCoalesced()
	IncHydrateResult(result HydrateLabel)
	IncCheckIn(result CheckInLabel)
	SetCurrentStreak(n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObservePersistDuration(time.Duration, ResultLabel) {}
func (NoopRecorder) IncPersistResult(ResultLabel)                      {}
func (NoopRecorder) IncPersistCoalesced()                              {}
func (NoopRecorder) IncHydrateResult(HydrateLabel)                     {}
func (NoopRecorder) IncCheckIn(CheckInLabel)                           {}
func (NoopRecorder) SetCurrentStreak(int)                              {}
