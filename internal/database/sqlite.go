package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// memoryDSN is shared between pool connections so every session sees the same journal.
const memoryDSN = "file::memory:?cache=shared&_busy_timeout=5000"

// openSQLite opens a file backed database in WAL mode. Journal writes arrive
// from many connection goroutines, so a busy timeout replaces SQLITE_BUSY
// failures with short waits.
func openSQLite(cfg Config) (*gorm.DB, error) {
	dsn := cfg.DSN
	if dsn == "" {
		path := strings.TrimSpace(cfg.Path)
		if path == "" || strings.EqualFold(path, ":memory:") {
			dsn = memoryDSN
		} else {
			if err := ensureDir(path); err != nil {
				return nil, fmt.Errorf("database: prepare sqlite directory: %w", err)
			}
			options := withDefaults(cfg.Options, map[string]string{
				"_journal_mode": "WAL",
				"_busy_timeout": "5000",
			})
			dsn = "file:" + filepath.ToSlash(path) + "?" + strings.Join(sortedPairs(options, "="), "&")
		}
	}

	db, err := gorm.Open(sqlite.Open(dsn), gormConfig())
	if err != nil {
		return nil, err
	}

	if strings.Contains(dsn, "memory") {
		// A shared memory database disappears once its last connection closes.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
