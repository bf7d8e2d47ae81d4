// Package backup snapshots the local state store and restores it. SQLite
// databases are copied with VACUUM INTO; the file backend's JSON blob is
// copied as-is.
package backup

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/julianstephens/dosekeep/internal/constants"
	"github.com/julianstephens/dosekeep/internal/logger"
	"github.com/julianstephens/dosekeep/internal/models"
)

const timestampFormat = "20060102-150405"

var nowFunc = time.Now

// Format is the on-disk format of the store being backed up.
type Format string

const (
	FormatSQLite Format = "sqlite"
	FormatJSON   Format = "json"
)

func (f Format) suffix() string {
	if f == FormatJSON {
		return ".json"
	}
	return ".db"
}

// BackupInfo contains information about a backup file
type BackupInfo struct {
	Path      string
	Timestamp time.Time
	Size      int64
}

// Manager handles backup operations for one store file.
type Manager struct {
	srcPath   string
	backupDir string
	format    Format
}

// NewManager returns a manager keeping backups of srcPath in a backups
// directory next to it.
func NewManager(srcPath string, format Format) *Manager {
	return &Manager{
		srcPath:   srcPath,
		backupDir: filepath.Join(filepath.Dir(srcPath), constants.BackupDirName),
		format:    format,
	}
}

func (m *Manager) BackupDir() string {
	return m.backupDir
}

// CreateBackup snapshots the store and rotates old backups.
func (m *Manager) CreateBackup() (string, error) {
	return m.createBackup(false)
}

// createBackup skips rotation when called from a restore so the pre-restore
// snapshot cannot push out the backup being restored.
func (m *Manager) createBackup(skipRotation bool) (string, error) {
	if err := os.MkdirAll(m.backupDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}
	if _, err := os.Stat(m.srcPath); os.IsNotExist(err) {
		return "", fmt.Errorf("state store does not exist: %s", m.srcPath)
	}

	backupPath, err := m.nextBackupPath()
	if err != nil {
		return "", err
	}

	switch m.format {
	case FormatJSON:
		if err := verifyJSON(m.srcPath); err != nil {
			return "", fmt.Errorf("refusing to back up invalid state file: %w", err)
		}
		err = copyFile(m.srcPath, backupPath)
	default:
		err = vacuumInto(m.srcPath, backupPath)
	}
	if err != nil {
		return "", fmt.Errorf("failed to back up state store: %w", err)
	}

	if !skipRotation {
		if err := m.rotateBackups(); err != nil {
			logger.Warn("Failed to rotate old backups", "error", err)
		}
	}
	return backupPath, nil
}

func (m *Manager) nextBackupPath() (string, error) {
	stamp := nowFunc().Format(timestampFormat)
	suffix := m.format.suffix()
	path := filepath.Join(m.backupDir, constants.BackupPrefix+stamp+suffix)
	for counter := 1; ; counter++ {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path, nil
		}
		if counter > 100 {
			return "", errors.New("failed to generate unique backup filename")
		}
		path = filepath.Join(m.backupDir, fmt.Sprintf("%s%s-%d%s", constants.BackupPrefix, stamp, counter, suffix))
	}
}

func vacuumInto(src, dst string) error {
	db, err := sql.Open("sqlite", src+"?mode=ro")
	if err != nil {
		return fmt.Errorf("failed to open source database: %w", err)
	}
	defer db.Close()

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master").Scan(&count); err != nil {
		return fmt.Errorf("source database appears to be corrupted: %w", err)
	}

	if _, err := db.Exec("VACUUM INTO ?", dst); err != nil {
		db.Close()
		return copyFile(src, dst)
	}
	return nil
}

// ListBackups returns every backup, newest first.
func (m *Manager) ListBackups() ([]BackupInfo, error) {
	entries, err := os.ReadDir(m.backupDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []BackupInfo{}, nil
		}
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	suffix := m.format.suffix()
	backups := []BackupInfo{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, constants.BackupPrefix) || !strings.HasSuffix(name, suffix) {
			continue
		}

		stamp, ok := parseStamp(strings.TrimSuffix(strings.TrimPrefix(name, constants.BackupPrefix), suffix))
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		backups = append(backups, BackupInfo{
			Path:      filepath.Join(m.backupDir, name),
			Timestamp: stamp,
			Size:      info.Size(),
		})
	}

	sort.SliceStable(backups, func(i, j int) bool {
		if backups[i].Timestamp.Equal(backups[j].Timestamp) {
			return backups[i].Path > backups[j].Path
		}
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})
	return backups, nil
}

// parseStamp accepts "YYYYMMDD-HHMMSS" with an optional "-N" counter.
func parseStamp(s string) (time.Time, bool) {
	parts := strings.Split(s, "-")
	if len(parts) == 3 {
		if _, err := strconv.Atoi(parts[2]); err != nil {
			return time.Time{}, false
		}
		parts = parts[:2]
	}
	if len(parts) != 2 {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(timestampFormat, parts[0]+"-"+parts[1], time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func (m *Manager) rotateBackups() error {
	backups, err := m.ListBackups()
	if err != nil {
		return err
	}
	for i := constants.MaxBackups; i < len(backups); i++ {
		if err := os.Remove(backups[i].Path); err != nil {
			return fmt.Errorf("failed to remove old backup %s: %w", backups[i].Path, err)
		}
	}
	return nil
}

// RestoreBackup replaces the store with backupPath. The current store is
// snapshotted first and that snapshot's path is returned ("" if there was
// nothing to snapshot). The store must be closed while this runs.
func (m *Manager) RestoreBackup(backupPath string) (string, error) {
	if _, err := os.Stat(backupPath); os.IsNotExist(err) {
		return "", fmt.Errorf("backup file does not exist: %s", backupPath)
	}
	if err := m.verifyBackup(backupPath); err != nil {
		return "", fmt.Errorf("backup file is corrupted or invalid: %w", err)
	}

	var previous string
	if _, err := os.Stat(m.srcPath); err == nil {
		p, err := m.createBackup(true)
		if err != nil {
			return "", fmt.Errorf("failed to back up current state before restore: %w", err)
		}
		previous = p
		logger.Info("Backed up current state before restore", "path", p)
	}

	tempPath := m.srcPath + ".restore.tmp"
	if err := copyFile(backupPath, tempPath); err != nil {
		return previous, fmt.Errorf("failed to copy backup file: %w", err)
	}
	if err := os.Rename(tempPath, m.srcPath); err != nil {
		if removeErr := os.Remove(tempPath); removeErr != nil {
			logger.Warn("Failed to remove temporary file", "path", tempPath, "error", removeErr)
		}
		return previous, fmt.Errorf("failed to restore state store: %w", err)
	}
	return previous, nil
}

func (m *Manager) verifyBackup(path string) error {
	if m.format == FormatJSON {
		return verifyJSON(path)
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return err
	}
	defer db.Close()

	var count int
	return db.QueryRow("SELECT COUNT(*) FROM kv").Scan(&count)
}

// verifyJSON accepts any blob the state store would hydrate from. A
// mistyped field still hydrates, so only syntax and shape are checked.
func verifyJSON(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	state := models.Default()
	err = json.Unmarshal(data, &state)
	var typeErr *json.UnmarshalTypeError
	if err != nil && !errors.Is(err, models.ErrNotObject) && errors.As(err, &typeErr) {
		return nil
	}
	return err
}

func copyFile(src, dst string) error {
	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	destFile, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer destFile.Close()

	if _, err := destFile.ReadFrom(sourceFile); err != nil {
		return err
	}
	return destFile.Sync()
}
