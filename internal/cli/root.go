package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/julianstephens/dosekeep/internal/appstate"
	"github.com/julianstephens/dosekeep/internal/backup"
	"github.com/julianstephens/dosekeep/internal/config"
	"github.com/julianstephens/dosekeep/internal/constants"
	"github.com/julianstephens/dosekeep/internal/keyring"
	"github.com/julianstephens/dosekeep/internal/kv"
	"github.com/julianstephens/dosekeep/internal/kv/postgres"
	"github.com/julianstephens/dosekeep/internal/kv/sqlite"
	"github.com/julianstephens/dosekeep/internal/lock"
	"github.com/julianstephens/dosekeep/internal/logger"
	"github.com/julianstephens/dosekeep/internal/metrics"
)

// ShutdownTimeout bounds how long Close waits for pending writes.
const ShutdownTimeout = 5 * time.Second

// Context is handed to every command's Run method.
type Context struct {
	// Ctx is cancelled on interrupt.
	Ctx      context.Context
	Config   config.Config
	Backend  kv.Backend
	Store    *appstate.Store
	Lock     *lock.Lock
	Registry *prom.Registry
	Out      io.Writer
	In       io.Reader

	// ConnSource records where the Postgres connection string came from.
	ConnSource keyring.Source

	mu         sync.Mutex
	persistErr error
}

// loader is implemented by backends that can open existing storage without
// creating it.
type loader interface {
	Load(ctx context.Context) error
}

// NewBackend builds the storage backend named by cfg.Backend. connFlag is the
// --db-connection flag value and only matters for postgres.
func NewBackend(cfg config.Config, connFlag string) (kv.Backend, keyring.Source, error) {
	switch cfg.Backend {
	case constants.BackendMemory:
		return kv.NewMemory(), "", nil
	case constants.BackendFile, constants.BackendSQLite:
		path, err := cfg.StorePath()
		if err != nil {
			return nil, "", err
		}
		if cfg.Backend == constants.BackendFile {
			return kv.NewFile(path), "", nil
		}
		return sqlite.NewStore(path), "", nil
	case constants.BackendPostgres:
		connStr, source, err := keyring.Resolve(connFlag, cfg.DB.Connection)
		if err != nil {
			return nil, "", err
		}
		// Only secret stores may carry a password.
		if source == keyring.SourceFlag || source == keyring.SourceConfig {
			if err := postgres.ValidateConnString(connStr); err != nil {
				return nil, "", err
			}
		}
		return postgres.New(connStr), source, nil
	default:
		return nil, "", fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// NewContext wires a store around backend. The store is not started until
// Open is called. opts are applied after the config-derived options.
func NewContext(cfg config.Config, backend kv.Backend, opts ...appstate.Option) (*Context, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	reg := prom.NewRegistry()
	var rec metrics.Recorder = metrics.NoopRecorder{}
	if cfg.Metrics {
		rec = metrics.NewPrometheusRecorder(reg)
	}

	c := &Context{
		Ctx:      context.Background(),
		Config:   cfg,
		Backend:  backend,
		Registry: reg,
		Out:      os.Stdout,
		In:       os.Stdin,
	}
	c.Store = appstate.New(backend, append([]appstate.Option{
		appstate.WithLocation(loc),
		appstate.WithRecorder(rec),
		appstate.WithPersistHook(c.onPersist),
	}, opts...)...)
	return c, nil
}

func (c *Context) onPersist(r appstate.PersistResult) {
	if r.Err == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.persistErr = r.Err
}

// PersistErr returns the most recent failed write, if any.
func (c *Context) PersistErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.persistErr
}

// Open prepares the backend, takes the single-writer lock and hydrates the
// store. With create unset, a SQLite database must already exist.
func (c *Context) Open(ctx context.Context, create bool) error {
	if err := os.MkdirAll(c.Config.Dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	l, err := lock.Acquire(c.Config.Dir)
	if err != nil {
		return err
	}
	c.Lock = l

	if ld, ok := c.Backend.(loader); ok && !create {
		err = ld.Load(ctx)
	} else {
		err = c.Backend.Init(ctx)
	}
	if err != nil {
		return fmt.Errorf("failed to open storage at %s: %w", c.Backend.Location(), err)
	}

	c.Store.Init(ctx)
	return c.Store.WaitLoaded(ctx)
}

// Close flushes pending writes and releases the backend and lock. It is safe
// to call when Open never ran or failed part way.
func (c *Context) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	var errs []error
	if c.Store != nil {
		if err := c.Store.Close(ctx); err != nil && !errors.Is(err, kv.ErrClosed) {
			errs = append(errs, fmt.Errorf("failed to flush app state: %w", err))
		}
		if err := c.PersistErr(); err != nil {
			errs = append(errs, fmt.Errorf("changes were not saved: %w", err))
		}
	}
	if c.Backend != nil {
		if err := c.Backend.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close storage: %w", err))
		}
	}
	if err := c.Lock.Release(); err != nil {
		errs = append(errs, fmt.Errorf("failed to release lock: %w", err))
	}
	return errors.Join(errs...)
}

// BackupManager returns a backup manager for the active backend, or an error
// when the backend keeps its data somewhere that cannot be copied.
func (c *Context) BackupManager() (*backup.Manager, error) {
	switch b := c.Backend.(type) {
	case *sqlite.Store:
		return backup.NewManager(b.Path(), backup.FormatSQLite), nil
	case *kv.File:
		return backup.NewManager(filepath.Join(b.Path(), constants.StorageKey+".json"), backup.FormatJSON), nil
	default:
		return nil, fmt.Errorf("backups are not supported for the %s backend", c.Config.Backend)
	}
}

// PerformAutomaticBackup creates an automatic backup and silently handles errors
func (c *Context) PerformAutomaticBackup() {
	mgr, err := c.BackupManager()
	if err != nil {
		logger.Debug("Automatic backup skipped", "reason", err)
		return
	}
	if _, err := mgr.CreateBackup(); err != nil {
		// Log warning but don't interrupt user workflow
		logger.Warn("Automatic backup failed", "error", err)
	}
}

func (c *Context) out() io.Writer {
	if c.Out == nil {
		return os.Stdout
	}
	return c.Out
}

func (c *Context) Printf(format string, args ...any) {
	fmt.Fprintf(c.out(), format, args...)
}

func (c *Context) Println(args ...any) {
	fmt.Fprintln(c.out(), args...)
}
