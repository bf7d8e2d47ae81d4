package system

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/julianstephens/dosekeep/internal/cli"
	"github.com/julianstephens/dosekeep/internal/constants"
	"github.com/julianstephens/dosekeep/internal/kv"
)

type DebugCmd struct {
	Path DebugPathCmd `cmd:"" help:"Show where the app state is stored."`
	Dump DebugDumpCmd `cmd:"" help:"Dump the raw stored record."`
}

type DebugPathCmd struct{}

func (cmd *DebugPathCmd) Run(ctx *cli.Context) error {
	// Output in machine-readable format
	output := map[string]string{
		"backend":  ctx.Config.Backend,
		"location": ctx.Backend.Location(),
		"key":      constants.StorageKey,
	}
	if fb, ok := ctx.Backend.(kv.FileBacked); ok {
		output["path"] = fb.Path()
	}

	jsonBytes, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	ctx.Println(string(jsonBytes))
	return nil
}

type DebugDumpCmd struct {
	Raw bool `help:"Print the blob exactly as stored."`
}

func (cmd *DebugDumpCmd) Run(ctx *cli.Context) error {
	blob, err := ctx.Backend.Get(ctx.Ctx, constants.StorageKey)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return fmt.Errorf("no record stored under %s", constants.StorageKey)
		}
		return fmt.Errorf("failed to read record: %w", err)
	}
	if cmd.Raw {
		ctx.Println(blob)
		return nil
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(blob), "", "  "); err != nil {
		ctx.Println("⚠ Stored record is not valid JSON; printing as stored")
		ctx.Println(blob)
		return nil
	}
	ctx.Println(buf.String())
	return nil
}
