package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/julianstephens/dosekeep/internal/kv"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	store := NewStore(filepath.Join(t.TempDir(), "nested", "dosekeep.db"))
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreGetSetDelete(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	if _, err := store.Get(ctx, "ivb_app_state"); !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := store.Set(ctx, "ivb_app_state", `{"goal":"sleep"}`); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := store.Set(ctx, "ivb_app_state", `{"goal":"focus"}`); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := store.Get(ctx, "ivb_app_state")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != `{"goal":"focus"}` {
		t.Errorf("Get = %q, want latest value", got)
	}

	if err := store.Delete(ctx, "ivb_app_state"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get(ctx, "ivb_app_state"); !errors.Is(err, kv.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestStoreKeepsHistory(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	for _, v := range []string{"a", "b", "c"} {
		if err := store.Set(ctx, "k", v); err != nil {
			t.Fatalf("Set(%q) failed: %v", v, err)
		}
	}

	history, err := store.History(ctx, "k", 10)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 2 || history[0] != "b" || history[1] != "a" {
		t.Errorf("History = %v, want [b a]", history)
	}
}

func TestStoreTrimsHistory(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	for i := 0; i < HistoryLimit+5; i++ {
		if err := store.Set(ctx, "k", string(rune('a'+i))); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}

	history, err := store.History(ctx, "k", 100)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != HistoryLimit {
		t.Errorf("expected %d history rows, got %d", HistoryLimit, len(history))
	}
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dosekeep.db")
	ctx := context.Background()

	first := NewStore(path)
	if err := first.Init(ctx); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if err := first.Set(ctx, "k", "v"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	first.Close()

	second := NewStore(path)
	if err := second.Load(ctx); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	defer second.Close()

	got, err := second.Get(ctx, "k")
	if err != nil || got != "v" {
		t.Errorf("Get after reopen = %q, %v", got, err)
	}
}

func TestStoreLoadRequiresInit(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "missing.db"))
	if err := store.Load(context.Background()); err == nil {
		t.Error("expected Load on a missing database to fail")
	}
}

func TestStoreClosed(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	if err := store.Ping(ctx); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := store.Set(ctx, "k", "v"); !errors.Is(err, kv.ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}
}

func TestStoreCreatesDirectory(t *testing.T) {
	store := setupStore(t)
	if _, err := os.Stat(filepath.Dir(store.Path())); err != nil {
		t.Errorf("expected parent directory to exist: %v", err)
	}
	if store.Location() != store.Path() {
		t.Errorf("Location = %q, want %q", store.Location(), store.Path())
	}
}
