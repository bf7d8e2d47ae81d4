package system

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/julianstephens/dosekeep/internal/cli"
	"github.com/julianstephens/dosekeep/internal/constants"
	"github.com/julianstephens/dosekeep/internal/kv"
	"github.com/julianstephens/dosekeep/internal/metrics"
	"github.com/julianstephens/dosekeep/internal/models"
	"github.com/julianstephens/dosekeep/internal/validation"
)

// historian is implemented by backends that keep previous revisions.
type historian interface {
	History(ctx context.Context, key string, limit int) ([]string, error)
}

type DoctorCmd struct{}

type check struct {
	name string
	// needsStorage checks are skipped once storage is known unreachable.
	needsStorage bool
	warnOnly     bool
	// run returns an optional detail line printed under the result.
	run func(ctx *cli.Context) (string, error)
}

func (cmd *DoctorCmd) Run(ctx *cli.Context) error {
	ctx.Println("Running diagnostics...")
	ctx.Println()

	checks := []check{
		{name: "Storage reachable", run: checkStorageReachable},
		{name: "Lock held", run: checkLock},
		{name: "Stored record", needsStorage: true, run: checkStoredRecord},
		{name: "Data validation", needsStorage: true, run: checkValidation},
		{name: "Revision history", needsStorage: true, warnOnly: true, run: checkHistory},
		{name: "Backups present", needsStorage: true, warnOnly: true, run: checkBackupsPresent},
		{name: "Clock/timezone", run: checkClockTimezone},
	}

	hasError := false
	reachable := true
	for i, c := range checks {
		if c.needsStorage && !reachable {
			ctx.Printf("⊘ %s: SKIPPED (storage not reachable)\n", c.name)
			continue
		}
		detail, err := c.run(ctx)
		switch {
		case err == nil:
			ctx.Printf("✓ %s: OK\n", c.name)
			if detail != "" {
				ctx.Printf("   %s\n", detail)
			}
		case c.warnOnly:
			ctx.Printf("⚠ %s: WARNING\n", c.name)
			ctx.Printf("   %v\n", err)
		default:
			ctx.Printf("❌ %s: FAIL\n", c.name)
			ctx.Printf("   Error: %v\n", err)
			hasError = true
			if i == 0 {
				reachable = false
			}
		}
	}

	printMetrics(ctx)

	ctx.Println()
	if hasError {
		ctx.Println("Diagnostics completed with errors.")
		return fmt.Errorf("one or more health checks failed")
	}
	ctx.Println("All diagnostics passed!")
	return nil
}

func checkStorageReachable(ctx *cli.Context) (string, error) {
	if p, ok := ctx.Backend.(kv.Pinger); ok {
		if err := p.Ping(ctx.Ctx); err != nil {
			return "", fmt.Errorf("ping %s: %w", ctx.Backend.Location(), err)
		}
		return ctx.Backend.Location(), nil
	}
	if _, err := ctx.Backend.Get(ctx.Ctx, constants.StorageKey); err != nil && !errors.Is(err, kv.ErrNotFound) {
		return "", fmt.Errorf("read %s: %w", ctx.Backend.Location(), err)
	}
	return ctx.Backend.Location(), nil
}

func checkLock(ctx *cli.Context) (string, error) {
	if ctx.Lock == nil {
		return "", errors.New("this process does not hold the state lock")
	}
	return ctx.Lock.Path(), nil
}

// checkStoredRecord decodes the blob directly. Hydration falls back to
// defaults without reporting why.
func checkStoredRecord(ctx *cli.Context) (string, error) {
	blob, err := ctx.Backend.Get(ctx.Ctx, constants.StorageKey)
	if errors.Is(err, kv.ErrNotFound) {
		return "nothing stored yet", nil
	}
	if err != nil {
		return "", err
	}

	state := models.Default()
	err = json.Unmarshal([]byte(blob), &state)
	var typeErr *json.UnmarshalTypeError
	switch {
	case err == nil:
		if n := len(state.Extra); n > 0 {
			return fmt.Sprintf("%d field(s) from newer clients preserved", n), nil
		}
		return "", nil
	case errors.As(err, &typeErr) && !errors.Is(err, models.ErrNotObject):
		return "", fmt.Errorf("field %q has the wrong type, it was reset to its default on load", typeErr.Field)
	default:
		return "", fmt.Errorf("stored record is unreadable, defaults are in use: %w", err)
	}
}

func checkValidation(ctx *cli.Context) (string, error) {
	result := validation.New().ValidateState(ctx.Store.State())
	if result.HasIssues() {
		return "", errors.New(result.FormatReport())
	}
	return "", nil
}

const historyScanLimit = 100

func checkHistory(ctx *cli.Context) (string, error) {
	h, ok := ctx.Backend.(historian)
	if !ok {
		return "not kept by this backend", nil
	}
	revisions, err := h.History(ctx.Ctx, constants.StorageKey, historyScanLimit)
	if err != nil {
		return "", fmt.Errorf("failed to read revision history: %w", err)
	}
	return fmt.Sprintf("%d previous revision(s) kept", len(revisions)), nil
}

func checkBackupsPresent(ctx *cli.Context) (string, error) {
	mgr, err := ctx.BackupManager()
	if err != nil {
		return "not supported by this backend", nil
	}
	backups, err := mgr.ListBackups()
	if err != nil {
		return "", fmt.Errorf("failed to list backups: %w", err)
	}
	if len(backups) == 0 {
		return "", fmt.Errorf("no backups found in %s", mgr.BackupDir())
	}
	if age := time.Since(backups[0].Timestamp); age > 7*24*time.Hour {
		return "", fmt.Errorf("latest backup is %d days old", int(age.Hours()/24))
	}
	return fmt.Sprintf("%d backup(s), latest %s", len(backups), backups[0].Timestamp.Format("2006-01-02 15:04")), nil
}

func checkClockTimezone(ctx *cli.Context) (string, error) {
	now := time.Now()
	if now.Year() < 2020 {
		return "", fmt.Errorf("system clock looks wrong: %s", now.Format(time.RFC3339))
	}
	loc := ctx.Store.Location()
	return fmt.Sprintf("today is %s in %s", now.In(loc).Format(constants.DateFormat), loc), nil
}

func printMetrics(ctx *cli.Context) {
	if !ctx.Config.Metrics {
		return
	}
	samples, err := metrics.Snapshot(ctx.Registry)
	if err != nil {
		ctx.Printf("⚠ Metrics: %v\n", err)
		return
	}
	ctx.Println()
	ctx.Println("Metrics for this run:")
	for _, s := range samples {
		ctx.Printf("  %s %g\n", s.Name, s.Value)
	}
}
