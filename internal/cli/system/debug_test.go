package system

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/julianstephens/dosekeep/internal/cli/clitest"
	"github.com/julianstephens/dosekeep/internal/config"
	"github.com/julianstephens/dosekeep/internal/constants"
	"github.com/julianstephens/dosekeep/internal/kv"
	"github.com/julianstephens/dosekeep/internal/kv/sqlite"
	"github.com/julianstephens/dosekeep/internal/models"
)

func TestDebugPathCmd(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, constants.DefaultSQLiteFile)
	env := clitest.Open(t, config.Config{Dir: dir, Backend: constants.BackendSQLite}, sqlite.NewStore(dbPath), "")

	if err := (&DebugPathCmd{}).Run(env.Ctx); err != nil {
		t.Fatalf("debug path failed: %v", err)
	}

	var got map[string]string
	if err := json.Unmarshal(env.Out.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, env.Out.String())
	}
	if got["path"] != dbPath {
		t.Errorf("path = %q, want %q", got["path"], dbPath)
	}
	if got["key"] != constants.StorageKey {
		t.Errorf("key = %q, want %q", got["key"], constants.StorageKey)
	}
}

func TestDebugDumpCmd(t *testing.T) {
	env := clitest.Open(t, config.Config{}, kv.NewMemory(), "")

	if err := (&DebugDumpCmd{}).Run(env.Ctx); err == nil {
		t.Fatal("expected an error before anything is stored")
	}

	env.Ctx.Store.UpdateState(models.Patch{"userName": "Alex"})
	env.Flush(t)

	if err := (&DebugDumpCmd{}).Run(env.Ctx); err != nil {
		t.Fatalf("debug dump failed: %v", err)
	}
	if !strings.Contains(env.Out.String(), `"userName": "Alex"`) {
		t.Errorf("expected indented record:\n%s", env.Out.String())
	}

	env.Out.Reset()
	if err := (&DebugDumpCmd{Raw: true}).Run(env.Ctx); err != nil {
		t.Fatalf("debug dump --raw failed: %v", err)
	}
	if !strings.Contains(env.Out.String(), `"userName":"Alex"`) {
		t.Errorf("expected compact record:\n%s", env.Out.String())
	}
}
