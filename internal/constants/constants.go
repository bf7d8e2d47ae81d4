package constants

import "time"

const (
	AppName            = "dosekeep"
	DefaultKeyringUser = "database-connection"
	DefaultConfigDir   = "~/.config/dosekeep"
	DefaultConfigFile  = "config.yaml"
	DefaultStateFile   = "state"
	DefaultSQLiteFile  = "dosekeep.db"
	Version            = "v0.3.0"

	// StorageKey is the single key the whole app state blob is stored under.
	// It matches the key written by the mobile app so exported blobs load as-is.
	StorageKey = "ivb_app_state"

	// DateFormat is the standard date format used throughout the application (YYYY-MM-DD)
	DateFormat = "2006-01-02"

	// TimeFormat is the standard time format used throughout the application (HH:MM)
	TimeFormat = "15:04"

	// Backup constants
	MaxBackups    = 14
	BackupDirName = "backups"
	BackupPrefix  = "dosekeep-"

	// Lock constants
	LockfileName    = "dosekeep.lock"
	LockMaxRetries  = 3
	LockRetryDelay  = 100 * time.Millisecond
	EnvPrefix       = "DOSEKEEP_"
	EnvDBConnection = "DOSEKEEP_DB_CONNECTION"

	// Score bounds for daily self-ratings
	MinScore = 1
	MaxScore = 10

	// Onboarding bounds
	MaxMissedDoses    = 7
	MaxMissedDosesPct = 100
)

// Backend identifiers accepted by the --backend flag and config file.
const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)
