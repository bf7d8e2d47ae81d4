package appstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/julianstephens/dosekeep/internal/constants"
	"github.com/julianstephens/dosekeep/internal/kv"
	"github.com/julianstephens/dosekeep/internal/metrics"
	"github.com/julianstephens/dosekeep/internal/models"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(day string) *fakeClock {
	c := &fakeClock{}
	c.SetDay(day)
	return c
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// SetDay moves the clock to 09:00 UTC on day.
func (c *fakeClock) SetDay(day string) {
	t, err := time.Parse(constants.DateFormat, day)
	if err != nil {
		panic(err)
	}
	c.Set(t.Add(9 * time.Hour))
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// startStore initializes a store over backend and waits for hydration.
func startStore(t *testing.T, backend kv.Backend, clock *fakeClock, opts ...Option) *Store {
	t.Helper()
	opts = append([]Option{WithClock(clock.Now), WithLocation(time.UTC)}, opts...)
	s := New(backend, opts...)
	ctx := testContext(t)
	s.Init(ctx)
	if err := s.WaitLoaded(ctx); err != nil {
		t.Fatalf("WaitLoaded failed: %v", err)
	}
	t.Cleanup(func() { s.Close(context.Background()) })
	return s
}

func seed(t *testing.T, backend *kv.Memory, blob string) {
	t.Helper()
	if err := backend.Set(context.Background(), constants.StorageKey, blob); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
}

func stored(t *testing.T, backend kv.Backend) models.AppState {
	t.Helper()
	raw, err := backend.Get(context.Background(), constants.StorageKey)
	if err != nil {
		t.Fatalf("reading stored blob failed: %v", err)
	}
	state := models.Default()
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		t.Fatalf("stored blob does not decode: %v", err)
	}
	return state
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	return string(data)
}

func TestNewStoreIsLoadingWithDefaults(t *testing.T) {
	s := New(kv.NewMemory())
	if !s.IsLoading() {
		t.Error("expected IsLoading before Init")
	}
	if !reflect.DeepEqual(s.State(), models.Default()) {
		t.Error("expected Default() before hydration")
	}
	select {
	case <-s.Ready():
		t.Error("Ready closed before hydration")
	default:
	}
}

func TestLoadAbsentYieldsDefault(t *testing.T) {
	s := startStore(t, kv.NewMemory(), newFakeClock("2024-01-01"))

	if s.IsLoading() {
		t.Error("expected IsLoading false after hydration")
	}
	if !reflect.DeepEqual(s.State(), models.Default()) {
		t.Errorf("expected Default(), got %+v", s.State())
	}
}

func TestLoadKeepsDefaultsForMissingFields(t *testing.T) {
	backend := kv.NewMemory()
	seed(t, backend, `{"userName":"Alex","currentStreak":3,"longestStreak":7}`)

	s := startStore(t, backend, newFakeClock("2024-01-01"))
	state := s.State()

	if state.UserName != "Alex" || state.CurrentStreak != 3 || state.LongestStreak != 7 {
		t.Errorf("stored fields not preserved: %+v", state)
	}
	if state.RoutineTime != "08:00" || state.NotificationMode != models.NotificationSpecific {
		t.Errorf("missing fields did not take defaults: routineTime=%q mode=%q", state.RoutineTime, state.NotificationMode)
	}
	if state.DailyScores == nil || len(state.DailyScores) != 0 {
		t.Errorf("expected empty dailyScores, got %#v", state.DailyScores)
	}
}

func TestLoadCorruptYieldsDefault(t *testing.T) {
	tests := []struct {
		name string
		blob string
	}{
		{name: "garbage", blob: "{{{{"},
		{name: "truncated", blob: `{"userName":"Al`},
		{name: "array", blob: `["a","b"]`},
		{name: "string", blob: `"hello"`},
		{name: "empty", blob: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := kv.NewMemory()
			seed(t, backend, tt.blob)

			s := startStore(t, backend, newFakeClock("2024-01-01"))
			if !reflect.DeepEqual(s.State(), models.Default()) {
				t.Errorf("expected Default(), got %+v", s.State())
			}
		})
	}
}

func TestLoadTypeMismatchKeepsRest(t *testing.T) {
	backend := kv.NewMemory()
	seed(t, backend, `{"userName":"Alex","missedDoses":"four","goal":"sleep"}`)

	s := startStore(t, backend, newFakeClock("2024-01-01"))
	state := s.State()
	if state.UserName != "Alex" || state.Goal != "sleep" {
		t.Errorf("well-typed fields lost: %+v", state)
	}
	if state.MissedDoses != 0 {
		t.Errorf("mistyped field should keep default, got %d", state.MissedDoses)
	}
}

func TestLoadBackendErrorYieldsDefault(t *testing.T) {
	backend := kv.NewMemory()
	seed(t, backend, `{"userName":"Alex"}`)
	backend.GetErr = errors.New("disk unplugged")

	s := startStore(t, backend, newFakeClock("2024-01-01"))
	if !reflect.DeepEqual(s.State(), models.Default()) {
		t.Errorf("expected Default() on read failure, got %+v", s.State())
	}
}

func TestLoadIsIdempotentAndReplacesState(t *testing.T) {
	backend := kv.NewMemory()
	seed(t, backend, `{"userName":"Alex"}`)
	s := startStore(t, backend, newFakeClock("2024-01-01"))
	ctx := testContext(t)

	first := s.Load(ctx)
	second := s.Load(ctx)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated Load differs:\n%+v\n%+v", first, second)
	}

	seed(t, backend, `{"userName":"Sam"}`)
	if got := s.Load(ctx); got.UserName != "Sam" || s.State().UserName != "Sam" {
		t.Errorf("Load did not replace in-memory state: %q", s.State().UserName)
	}
}

func TestUnknownKeysSurvivePersist(t *testing.T) {
	backend := kv.NewMemory()
	seed(t, backend, `{"userName":"Alex","paywallVariant":"b","plan":{"tier":"pro"}}`)
	s := startStore(t, backend, newFakeClock("2024-01-01"))

	s.UpdateState(models.Patch{"goal": "energy", "referralCode": "XYZ"})
	if err := s.Flush(testContext(t)); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	raw, _ := backend.Get(context.Background(), constants.StorageKey)
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		t.Fatalf("stored blob invalid: %v", err)
	}
	for key, want := range map[string]string{
		"paywallVariant": `"b"`,
		"plan":           `{"tier":"pro"}`,
		"referralCode":   `"XYZ"`,
		"goal":           `"energy"`,
	} {
		if string(fields[key]) != want {
			t.Errorf("%s = %s, want %s", key, fields[key], want)
		}
	}
}

func TestUpdateStateChangesOnlyPatchedField(t *testing.T) {
	backend := kv.NewMemory()
	seed(t, backend, `{"userName":"Alex","products":["omega-3"],"lastCheckedIn":"2024-01-01","currentStreak":4,"checkInHistory":["2024-01-01"],"totalDaysTaken":1}`)
	s := startStore(t, backend, newFakeClock("2024-01-02"))

	before := s.State()
	s.UpdateState(models.Patch{"goal": "energy"})
	after := s.State()

	if after.Goal != "energy" {
		t.Fatalf("goal = %q, want energy", after.Goal)
	}
	before.Goal = "energy"
	if mustJSON(t, before) != mustJSON(t, after) {
		t.Errorf("fields other than goal changed:\nbefore %s\nafter  %s", mustJSON(t, before), mustJSON(t, after))
	}
}

func TestUpdateStateIsVisibleImmediately(t *testing.T) {
	backend := &gatedBackend{Memory: kv.NewMemory(), gate: make(chan struct{}), entered: make(chan struct{})}
	s := startStore(t, backend, newFakeClock("2024-01-01"))

	s.UpdateState(models.Patch{"userName": "Alex"})
	<-backend.entered
	if got := s.State().UserName; got != "Alex" {
		t.Errorf("in-memory state not updated before persist finished: %q", got)
	}
	close(backend.gate)
}

func TestUpdateStateDropsMistypedKeys(t *testing.T) {
	s := startStore(t, kv.NewMemory(), newFakeClock("2024-01-01"))

	s.UpdateState(models.Patch{"missedDoses": "lots", "friction": "forgetting"})
	state := s.State()
	if state.MissedDoses != 0 {
		t.Errorf("mistyped value applied: %d", state.MissedDoses)
	}
	if state.Friction != "forgetting" {
		t.Errorf("valid key in same patch not applied: %q", state.Friction)
	}
}

func TestPersistFailureKeepsInMemoryState(t *testing.T) {
	backend := kv.NewMemory()
	var (
		mu      sync.Mutex
		results []PersistResult
	)
	hook := func(r PersistResult) {
		mu.Lock()
		defer mu.Unlock()
		results = append(results, r)
	}
	s := startStore(t, backend, newFakeClock("2024-01-01"), WithPersistHook(hook))

	backend.SetFailure(errors.New("quota exceeded"))
	s.UpdateState(models.Patch{"userName": "Alex"})
	s.CheckIn(nil)
	if err := s.Flush(testContext(t)); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	state := s.State()
	if state.UserName != "Alex" || state.TotalDaysTaken != 1 {
		t.Errorf("in-memory state rolled back: %+v", state)
	}
	if _, err := backend.Get(context.Background(), constants.StorageKey); !errors.Is(err, kv.ErrNotFound) {
		t.Errorf("expected nothing stored, got %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(results) == 0 {
		t.Fatal("persist hook was not called")
	}
	for _, r := range results {
		if r.Err == nil {
			t.Errorf("expected persist error in hook result %+v", r)
		}
	}
}

// gatedBackend blocks the first Set until gate is closed.
type gatedBackend struct {
	*kv.Memory
	gate    chan struct{}
	entered chan struct{}
	once    sync.Once
}

func (g *gatedBackend) Set(ctx context.Context, key, value string) error {
	g.once.Do(func() {
		close(g.entered)
		<-g.gate
	})
	return g.Memory.Set(ctx, key, value)
}

func TestWriterCoalescesToLastSnapshot(t *testing.T) {
	backend := &gatedBackend{Memory: kv.NewMemory(), gate: make(chan struct{}), entered: make(chan struct{})}
	var (
		mu   sync.Mutex
		seqs []uint64
	)
	hook := func(r PersistResult) {
		mu.Lock()
		defer mu.Unlock()
		seqs = append(seqs, r.Seq)
	}
	s := startStore(t, backend, newFakeClock("2024-01-01"), WithPersistHook(hook))

	s.UpdateState(models.Patch{"userName": "first"})
	<-backend.entered
	for _, name := range []string{"b", "c", "d", "last"} {
		s.UpdateState(models.Patch{"userName": name})
	}
	close(backend.gate)

	if err := s.Flush(testContext(t)); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	if got := stored(t, backend).UserName; got != "last" {
		t.Errorf("stored userName = %q, want last", got)
	}
	if n := backend.SetCount(constants.StorageKey); n != 2 {
		t.Errorf("expected queued snapshots to coalesce into 2 writes, got %d", n)
	}

	mu.Lock()
	defer mu.Unlock()
	if !reflect.DeepEqual(seqs, []uint64{1, 5}) {
		t.Errorf("persisted seqs = %v, want [1 5]", seqs)
	}
}

func TestWritesReachBackendInOrder(t *testing.T) {
	backend := kv.NewMemory()
	var (
		mu   sync.Mutex
		seqs []uint64
	)
	hook := func(r PersistResult) {
		mu.Lock()
		defer mu.Unlock()
		seqs = append(seqs, r.Seq)
	}
	s := startStore(t, backend, newFakeClock("2024-01-01"), WithPersistHook(hook))

	for i := 0; i < 50; i++ {
		s.UpdateState(models.Patch{"gapScore": i})
	}
	if err := s.Flush(testContext(t)); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if got := stored(t, backend).GapScore; got != 49 {
		t.Errorf("stored gapScore = %d, want 49", got)
	}

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(seqs); i++ {
		if seqs[i] <= seqs[i-1] {
			t.Fatalf("writes out of order: %v", seqs)
		}
	}
	if seqs[len(seqs)-1] != 50 {
		t.Errorf("last persisted seq = %d, want 50", seqs[len(seqs)-1])
	}
}

func TestConcurrentMutatorsPersistLatestState(t *testing.T) {
	for round := 0; round < 50; round++ {
		backend := kv.NewMemory()
		clock := newFakeClock("2024-01-01")
		s := New(backend, WithClock(clock.Now), WithLocation(time.UTC))
		ctx := testContext(t)
		s.Init(ctx)
		if err := s.WaitLoaded(ctx); err != nil {
			t.Fatal(err)
		}

		var wg sync.WaitGroup
		for g := 0; g < 8; g++ {
			wg.Add(1)
			go func(g int) {
				defer wg.Done()
				for i := 0; i < 20; i++ {
					s.UpdateState(models.Patch{"userName": fmt.Sprintf("u%d-%d", g, i)})
				}
			}(g)
		}
		wg.Wait()
		if err := s.Close(ctx); err != nil {
			t.Fatalf("Close failed: %v", err)
		}

		if got, want := stored(t, backend).UserName, s.State().UserName; got != want {
			t.Fatalf("round %d: stored userName %q, in memory %q", round, got, want)
		}
	}
}

func TestReset(t *testing.T) {
	backend := kv.NewMemory()
	seed(t, backend, `{"userName":"Alex","totalDaysTaken":3}`)
	s := startStore(t, backend, newFakeClock("2024-01-01"))

	s.UpdateState(models.Patch{"goal": "sleep"})
	if err := s.Reset(testContext(t)); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}

	if !reflect.DeepEqual(s.State(), models.Default()) {
		t.Errorf("expected Default() after reset, got %+v", s.State())
	}
	if _, err := backend.Get(context.Background(), constants.StorageKey); !errors.Is(err, kv.ErrNotFound) {
		t.Errorf("expected blob deleted, got %v", err)
	}

	s.UpdateState(models.Patch{"userName": "Sam"})
	if err := s.Flush(testContext(t)); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if got := stored(t, backend); got.UserName != "Sam" || got.TotalDaysTaken != 0 {
		t.Errorf("write after reset = %+v", got)
	}
}

func TestCloseFlushesAndStopsPersisting(t *testing.T) {
	backend := kv.NewMemory()
	clock := newFakeClock("2024-01-01")
	s := New(backend, WithClock(clock.Now), WithLocation(time.UTC))
	ctx := testContext(t)
	s.Init(ctx)
	if err := s.WaitLoaded(ctx); err != nil {
		t.Fatal(err)
	}

	s.UpdateState(models.Patch{"userName": "Alex"})
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if got := stored(t, backend).UserName; got != "Alex" {
		t.Errorf("pending write lost on Close: %q", got)
	}

	s.UpdateState(models.Patch{"userName": "Sam"})
	if s.State().UserName != "Sam" {
		t.Error("mutation after Close should still apply in memory")
	}
	if got := stored(t, backend).UserName; got != "Alex" {
		t.Errorf("mutation after Close was persisted: %q", got)
	}
	if err := s.Reset(ctx); !errors.Is(err, kv.ErrClosed) {
		t.Errorf("Reset after Close = %v, want ErrClosed", err)
	}
	if err := s.Close(ctx); err != nil {
		t.Errorf("second Close = %v", err)
	}
}

func TestFlushBeforeInit(t *testing.T) {
	s := New(kv.NewMemory())
	if err := s.Flush(context.Background()); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Flush before Init = %v, want ErrNotStarted", err)
	}
}

func TestResetBeforeInitChangesNothing(t *testing.T) {
	backend := kv.NewMemory()
	seed(t, backend, `{"userName":"Alex"}`)
	s := New(backend)
	s.UpdateState(models.Patch{"goal": "focus"})

	if err := s.Reset(context.Background()); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("Reset before Init = %v, want ErrNotStarted", err)
	}
	if got := s.State().Goal; got != "focus" {
		t.Errorf("in-memory state reset by a failed Reset: goal %q", got)
	}

	if err := s.Close(testContext(t)); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if got := stored(t, backend); got.Goal != "focus" {
		t.Errorf("failed Reset still deleted the blob on Close: %+v", got)
	}
}

func TestCloseWithoutInitDrainsQueue(t *testing.T) {
	backend := kv.NewMemory()
	s := New(backend)
	s.UpdateState(models.Patch{"goal": "focus"})
	if err := s.Close(testContext(t)); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if got := stored(t, backend).Goal; got != "focus" {
		t.Errorf("stored goal = %q, want focus", got)
	}
}

func TestMetricsRecorded(t *testing.T) {
	reg := prom.NewRegistry()
	rec := metrics.NewPrometheusRecorder(reg)
	backend := kv.NewMemory()
	seed(t, backend, `{"userName":"Alex"}`)
	clock := newFakeClock("2024-01-01")

	s := startStore(t, backend, clock, WithRecorder(rec))
	s.CheckIn(nil)
	s.CheckIn(nil)
	if err := s.Flush(testContext(t)); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	samples, err := metrics.Snapshot(reg)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	got := map[string]float64{}
	for _, sm := range samples {
		got[sm.Name] = sm.Value
	}
	want := map[string]float64{
		"dosekeep_hydrate_results_total{result=loaded}":  1,
		"dosekeep_checkins_total{result=recorded}":       1,
		"dosekeep_checkins_total{result=duplicate}":      1,
		"dosekeep_persist_results_total{result=success}": 1,
		"dosekeep_current_streak_days":                   1,
	}
	for name, v := range want {
		if got[name] != v {
			t.Errorf("%s = %v, want %v", name, got[name], v)
		}
	}
}
