// Package lock keeps two dosekeep processes from writing the same state
// store at once. The lockfile holds "pid|executable" of the holder.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/go-ps"

	"github.com/julianstephens/dosekeep/internal/constants"
	"github.com/julianstephens/dosekeep/internal/logger"
)

var (
	findProcessFunc = ps.FindProcess
	getpidFunc      = os.Getpid
	executableFunc  = func() string { return filepath.Base(os.Args[0]) }
	retryDelay      = constants.LockRetryDelay
)

// ErrLocked is returned when another live process holds the lock.
var ErrLocked = errors.New("state store is in use by another dosekeep process")

// Lock is a held lockfile.
type Lock struct {
	path string
	pid  int
}

// Acquire takes the lockfile in dir. A lockfile left by a process that is no
// longer running is removed and taken over.
func Acquire(dir string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	path := filepath.Join(dir, constants.LockfileName)
	pid := getpidFunc()
	content := strconv.Itoa(pid) + "|" + executableFunc()

	var lastErr error
	for attempt := 0; attempt < constants.LockMaxRetries; attempt++ {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
		if err == nil {
			_, werr := f.WriteString(content)
			cerr := f.Close()
			if werr != nil || cerr != nil {
				os.Remove(path)
				return nil, fmt.Errorf("failed to write lockfile: %w", errors.Join(werr, cerr))
			}
			return &Lock{path: path, pid: pid}, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("failed to create lockfile: %w", err)
		}

		holder, alive := holderAlive(path)
		if !alive {
			logger.Warn("Removing stale lockfile", "path", path, "pid", holder)
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to remove stale lockfile: %w", err)
			}
			continue
		}
		if holder == pid {
			// Re-entrant acquire from the same process.
			return &Lock{path: path, pid: pid}, nil
		}

		lastErr = fmt.Errorf("%w (pid %d)", ErrLocked, holder)
		time.Sleep(retryDelay)
	}
	if lastErr == nil {
		lastErr = ErrLocked
	}
	return nil, lastErr
}

// holderAlive reads the lockfile and reports whether its process still runs.
// Unreadable or malformed lockfiles count as stale.
func holderAlive(path string) (int, bool) {
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}

	pidStr, exe, ok := strings.Cut(strings.TrimSpace(string(content)), "|")
	if !ok {
		return 0, false
	}
	pid, err := strconv.Atoi(pidStr)
	if err != nil || pid <= 0 {
		return 0, false
	}

	process, err := findProcessFunc(pid)
	if err != nil || process == nil {
		return pid, false
	}
	// The OS may truncate executable names, so the recorded name only has to
	// start with what the process table reports.
	if name := process.Executable(); name == "" || !strings.HasPrefix(exe, name) {
		return pid, false
	}
	return pid, true
}

// Release removes the lockfile if this process still owns it.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	content, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read lockfile: %w", err)
	}
	pidStr, _, _ := strings.Cut(strings.TrimSpace(string(content)), "|")
	if pidStr != strconv.Itoa(l.pid) {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lockfile: %w", err)
	}
	return nil
}

// Path returns the lockfile path.
func (l *Lock) Path() string {
	return l.path
}
