// Package clitest builds command contexts over throwaway storage for tests.
package clitest

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/julianstephens/dosekeep/internal/appstate"
	"github.com/julianstephens/dosekeep/internal/cli"
	"github.com/julianstephens/dosekeep/internal/config"
	"github.com/julianstephens/dosekeep/internal/constants"
	"github.com/julianstephens/dosekeep/internal/kv"
)

// Env is an opened command context plus its captured output.
type Env struct {
	Ctx     *cli.Context
	Out     *bytes.Buffer
	Backend kv.Backend
}

// Day returns a clock fixed at 09:00 UTC on day.
func Day(day string) func() time.Time {
	t, err := time.Parse(constants.DateFormat, day)
	if err != nil {
		panic(err)
	}
	t = t.Add(9 * time.Hour)
	return func() time.Time { return t }
}

// Open returns a context over backend with the lock taken in a temp dir and
// the store hydrated. input is what commands read from stdin.
func Open(t *testing.T, cfg config.Config, backend kv.Backend, input string, opts ...appstate.Option) *Env {
	t.Helper()
	if cfg.Dir == "" {
		cfg.Dir = t.TempDir()
	}
	if cfg.Backend == "" {
		cfg.Backend = constants.BackendMemory
	}

	opts = append([]appstate.Option{appstate.WithLocation(time.UTC)}, opts...)
	ctx, err := cli.NewContext(cfg, backend, opts...)
	if err != nil {
		t.Fatalf("NewContext failed: %v", err)
	}
	out := &bytes.Buffer{}
	ctx.Out = out
	ctx.In = strings.NewReader(input)

	openCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ctx.Open(openCtx, true); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = ctx.Close() })
	return &Env{Ctx: ctx, Out: out, Backend: backend}
}

// Flush waits for pending writes to reach the backend.
func (e *Env) Flush(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Ctx.Store.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
}
