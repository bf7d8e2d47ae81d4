package system

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/julianstephens/dosekeep/internal/cli"
	"github.com/julianstephens/dosekeep/internal/constants"
	"github.com/julianstephens/dosekeep/internal/kv"
	"github.com/julianstephens/dosekeep/internal/logger"
)

type InitCmd struct {
	SaveConfig bool `help:"Write the resolved settings to config.yaml even if one exists."`
}

// Run expects the caller to have opened the context with create set, so
// directories and schema already exist by the time it runs.
func (c *InitCmd) Run(ctx *cli.Context) error {
	_, err := ctx.Backend.Get(ctx.Ctx, constants.StorageKey)
	switch {
	case errors.Is(err, kv.ErrNotFound):
		// Nothing has been written yet; the hydrated record is the default.
		data, err := json.Marshal(ctx.Store.State())
		if err != nil {
			return fmt.Errorf("failed to encode default app state: %w", err)
		}
		if err := ctx.Backend.Set(ctx.Ctx, constants.StorageKey, string(data)); err != nil {
			return fmt.Errorf("failed to write default app state: %w", err)
		}
		logger.Info("Wrote default app state", "location", ctx.Backend.Location())
	case err != nil:
		return fmt.Errorf("failed to read app state: %w", err)
	default:
		ctx.Println("Existing app state found, leaving it in place.")
	}

	configPath := filepath.Join(ctx.Config.Dir, constants.DefaultConfigFile)
	if _, statErr := os.Stat(configPath); c.SaveConfig || os.IsNotExist(statErr) {
		if err := ctx.Config.Save(); err != nil {
			return err
		}
		ctx.Printf("✓ Wrote config: %s\n", configPath)
	}

	ctx.Printf("✓ Initialized %s storage at: %s\n", ctx.Config.Backend, ctx.Backend.Location())
	return nil
}
