package database

import (
	"context"
	"fmt"
	"os"
)

// Info describes the database file backing a handle.
type Info struct {
	Path          string `json:"path" yaml:"path"`
	SQLiteVersion string `json:"sqlite_version" yaml:"sqlite_version"`
	FileSizeBytes int64  `json:"file_size_bytes" yaml:"file_size_bytes"`
	TableCount    int    `json:"table_count" yaml:"table_count"`
}

// DatabaseExists checks if a database file exists
func DatabaseExists(dbPath string) bool {
	if dbPath == "" || dbPath == MemoryPath {
		return false
	}
	_, err := os.Stat(dbPath)
	return err == nil
}

// GetDatabaseSize returns the size of the database file in bytes
func GetDatabaseSize(dbPath string) (int64, error) {
	info, err := os.Stat(dbPath)
	if err != nil {
		return 0, fmt.Errorf("failed to get database file info: %w", err)
	}

	return info.Size(), nil
}

// Vacuum runs VACUUM on the database to reclaim space
func (db *Database) Vacuum(ctx context.Context) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, err := db.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("failed to vacuum database: %w", err)
	}

	return nil
}

// Info returns information about the database
func (db *Database) Info(ctx context.Context) (Info, error) {
	info := Info{Path: db.Path()}

	conn := db.DB()
	if err := conn.QueryRowContext(ctx, "SELECT sqlite_version()").Scan(&info.SQLiteVersion); err != nil {
		return Info{}, fmt.Errorf("failed to get SQLite version: %w", err)
	}

	if size, err := GetDatabaseSize(db.Path()); err == nil {
		info.FileSizeBytes = size
	}

	if err := conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM sqlite_master WHERE type='table'").Scan(&info.TableCount); err != nil {
		return Info{}, fmt.Errorf("failed to get table count: %w", err)
	}

	return info, nil
}
