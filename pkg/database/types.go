// Package database wraps a SQLite handle shared by the storage components.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/lepinkainen/search-forge/pkg/filesystem"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Database represents a thread-safe database connection.
// Each caller owns its handle; there is no process-wide registry.
type Database struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// Config holds database configuration
type Config struct {
	Path         string
	Driver       string
	BusyTimeout  time.Duration
	MaxOpenConns int
}

// DefaultConfig returns the default database configuration
func DefaultConfig() Config {
	return Config{
		Driver:       "sqlite",
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: 10,
	}
}

// dsn builds the driver connection string. Pragmas go in the DSN so every
// pooled connection gets them, not just the first one.
func (c Config) dsn() string {
	if c.Path == MemoryPath {
		return c.Path
	}

	params := url.Values{}
	params.Add("_pragma", "busy_timeout("+strconv.FormatInt(c.BusyTimeout.Milliseconds(), 10)+")")
	params.Add("_pragma", "journal_mode(WAL)")
	params.Add("_pragma", "synchronous(NORMAL)")
	params.Add("_pragma", "temp_store(memory)")
	return "file:" + c.Path + "?" + params.Encode()
}

// NewDatabase opens a new database connection
func NewDatabase(config Config) (*Database, error) {
	defaults := DefaultConfig()
	if config.Driver == "" {
		config.Driver = defaults.Driver
	}
	if config.BusyTimeout <= 0 {
		config.BusyTimeout = defaults.BusyTimeout
	}
	if config.MaxOpenConns <= 0 {
		config.MaxOpenConns = defaults.MaxOpenConns
	}
	if config.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if config.Path != MemoryPath {
		if err := filesystem.EnsureDirectoryExists(config.Path); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open(config.Driver, config.dsn())
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", config.Path, err)
	}

	// An in-memory database exists per connection, so pin the pool to one.
	if config.Path == MemoryPath {
		config.MaxOpenConns = 1
	}
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxOpenConns)
	db.SetConnMaxLifetime(time.Hour)
	if config.Path == MemoryPath {
		db.SetConnMaxLifetime(0)
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.BusyTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("Failed to close database", "error", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to database %s: %w", config.Path, err)
	}

	slog.Debug("Opened database", "path", config.Path, "max_open_conns", config.MaxOpenConns)

	return &Database{
		db:     db,
		dbPath: config.Path,
	}, nil
}

// Close closes the database connection
func (db *Database) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.db == nil {
		return nil
	}
	err := db.db.Close()
	db.db = nil
	return err
}

// DB returns the underlying sql.DB instance (thread-safe)
func (db *Database) DB() *sql.DB {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.db
}

// Path returns the database file path
func (db *Database) Path() string {
	return db.dbPath
}

// ExecuteSchema executes a schema statement
func (db *Database) ExecuteSchema(ctx context.Context, schema string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, err := db.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// Transaction executes a function within a database transaction.
// Transactions are serialized; fn must not call back into Transaction.
func (db *Database) Transaction(ctx context.Context, fn func(*sql.Tx) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if r := recover(); r != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				slog.Error("Failed to rollback transaction", "error", rollbackErr)
			}
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			slog.Error("Failed to rollback transaction", "error", rollbackErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
