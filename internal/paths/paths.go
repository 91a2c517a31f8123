package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"qsar/internal/config"
)

const (
	// AccessLogName is the file prefix for per-request access records.
	AccessLogName = "access-log"
	// IncidentLogName is the file prefix for operational events.
	IncidentLogName = "incident-log"
	// AccessDBName is the default SQLite store file inside the log dir.
	AccessDBName = "access.db"

	dayLayout = "2006-01-02"
)

// LogDir returns the configured log directory as an absolute, cleaned path.
func LogDir(cfg *config.Config) (string, error) {
	dir := cfg.Logging.Dir
	if dir == "" {
		dir = config.DefaultConfig().Logging.Dir
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve log dir %q: %w", dir, err)
	}
	return abs, nil
}

// EnsureDir creates dir (and parents) if missing.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	return nil
}

// AccessLogPrefix is the path that daily access files are suffixed onto.
func AccessLogPrefix(logDir string) string {
	return filepath.Join(logDir, AccessLogName)
}

// IncidentLogPrefix is the path that daily incident files are suffixed onto.
func IncidentLogPrefix(logDir string) string {
	return filepath.Join(logDir, IncidentLogName)
}

// DailyLogPath returns "<prefix>.<YYYY-MM-DD>" for the day containing t.
func DailyLogPath(prefix string, t time.Time) string {
	return prefix + "." + t.Format(dayLayout)
}

// AccessDBPath returns the SQLite store location, defaulting into the log dir.
func AccessDBPath(cfg *config.Config) (string, error) {
	if cfg.Storage.Path != "" {
		return filepath.Abs(cfg.Storage.Path)
	}
	dir, err := LogDir(cfg)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, AccessDBName), nil
}
