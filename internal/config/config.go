package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	defaultHTTPAddr      = ":5000"
	defaultDBDriver      = "sqlite"
	defaultDBDSN         = "timestamp.db"
	defaultLogDir        = "logs"
	defaultStaleAfter    = 120 * time.Second
	defaultWatchInterval = 5 * time.Second
	defaultHistoryEpoch  = "2026-01-01"
)

type Config struct {
	HTTPAddr      string
	DBDriver      string
	DBDSN         string
	LogDir        string
	StaleAfter    time.Duration
	WatchInterval time.Duration
	HistoryEpoch  string
}

func FromEnv() Config {
	addr := strings.TrimSpace(os.Getenv("TRACKER_HTTP_ADDR"))
	if addr == "" {
		addr = defaultHTTPAddr
	}
	driver := strings.TrimSpace(os.Getenv("TRACKER_DB_DRIVER"))
	if driver == "" {
		driver = defaultDBDriver
	}
	dsn := strings.TrimSpace(os.Getenv("TRACKER_DB_DSN"))
	if dsn == "" {
		dsn = defaultDBDSN
	}
	logDir := strings.TrimSpace(os.Getenv("TRACKER_LOG_DIR"))
	if logDir == "" {
		logDir = defaultLogDir
	}
	epoch := strings.TrimSpace(os.Getenv("TRACKER_HISTORY_EPOCH"))
	if epoch == "" {
		epoch = defaultHistoryEpoch
	}

	return Config{
		HTTPAddr:      addr,
		DBDriver:      strings.ToLower(driver),
		DBDSN:         dsn,
		LogDir:        logDir,
		StaleAfter:    durationEnv("TRACKER_STALE_AFTER", defaultStaleAfter),
		WatchInterval: durationEnv("TRACKER_WATCH_INTERVAL", defaultWatchInterval),
		HistoryEpoch:  epoch,
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.HTTPAddr) == "" {
		return fmt.Errorf("TRACKER_HTTP_ADDR must not be empty")
	}
	switch strings.ToLower(strings.TrimSpace(c.DBDriver)) {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("TRACKER_DB_DRIVER must be sqlite or postgres")
	}
	if strings.TrimSpace(c.DBDSN) == "" {
		return fmt.Errorf("TRACKER_DB_DSN must not be empty")
	}
	if strings.TrimSpace(c.LogDir) == "" {
		return fmt.Errorf("TRACKER_LOG_DIR must not be empty")
	}
	if c.StaleAfter <= 0 {
		return fmt.Errorf("TRACKER_STALE_AFTER must be > 0")
	}
	if c.WatchInterval <= 0 {
		return fmt.Errorf("TRACKER_WATCH_INTERVAL must be > 0")
	}
	if _, err := time.Parse("2006-01-02", c.HistoryEpoch); err != nil {
		return fmt.Errorf("TRACKER_HISTORY_EPOCH must be YYYY-MM-DD: %w", err)
	}
	return nil
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
