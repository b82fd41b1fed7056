package history

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const defaultDSN = "./data/sketchmagic.db"

// OpenDatabaseFromEnv opens DATABASE_DSN with DATABASE_DRIVER, inferring the
// driver from the DSN when unset. An empty DSN selects the local sqlite file.
func OpenDatabaseFromEnv() (*gorm.DB, error) {
	dsn := strings.TrimSpace(os.Getenv("DATABASE_DSN"))
	if dsn == "" {
		dsn = defaultDSN
	}

	driver := strings.TrimSpace(os.Getenv("DATABASE_DRIVER"))
	if driver == "" {
		driver = inferDriverFromDSN(dsn)
		if driver == "" {
			return nil, fmt.Errorf("history: DATABASE_DRIVER is required when DSN %q does not identify a driver", dsn)
		}
	}
	return OpenDatabase(driver, dsn)
}

// SharedOpener wraps open so every caller gets the same *gorm.DB. The first
// successful open is kept; failures are not cached so a later call retries.
func SharedOpener(open func() (*gorm.DB, error)) func() (*gorm.DB, error) {
	var (
		mu sync.Mutex
		db *gorm.DB
	)
	return func() (*gorm.DB, error) {
		mu.Lock()
		defer mu.Unlock()
		if db != nil {
			return db, nil
		}
		opened, err := open()
		if err != nil {
			return nil, err
		}
		db = opened
		return db, nil
	}
}

// OpenDatabase opens dsn with the named driver.
func OpenDatabase(driver, dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
		Logger:  logger.Default.LogMode(logger.Warn),
	}
	switch strings.ToLower(driver) {
	case "postgres", "postgresql", "pg":
		return gorm.Open(postgres.Open(dsn), cfg)
	case "mysql":
		return gorm.Open(mysql.Open(strings.TrimPrefix(dsn, "mysql://")), cfg)
	case "sqlite", "sqlite3":
		path := strings.TrimPrefix(dsn, "sqlite://")
		if err := ensureSQLiteDir(path); err != nil {
			return nil, err
		}
		return gorm.Open(sqlite.Open(path), cfg)
	default:
		return nil, fmt.Errorf("history: unsupported database driver %q", driver)
	}
}

// ensureSQLiteDir creates the parent directory of a file-backed sqlite DSN.
func ensureSQLiteDir(path string) error {
	if path == "" || path == ":memory:" || strings.HasPrefix(path, "file:") {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("history: create database directory: %w", err)
	}
	return nil
}

// inferDriverFromDSN guesses the driver from the DSN shape.
func inferDriverFromDSN(dsn string) string {
	lower := strings.ToLower(dsn)
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return "postgres"
	case strings.HasPrefix(lower, "mysql://"), strings.Contains(lower, "@tcp("):
		return "mysql"
	case strings.HasPrefix(lower, "sqlite://"), strings.HasSuffix(lower, ".db"), strings.HasSuffix(lower, ".sqlite"), lower == ":memory:":
		return "sqlite"
	default:
		return ""
	}
}
