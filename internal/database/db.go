// Package database provides the SQLite connection and schema management for pixiu.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (ships FTS5)
)

// Profile selects the PRAGMA tuning applied to a connection.
type Profile string

const (
	// ProfileStandard is the balanced configuration used by the main store.
	ProfileStandard Profile = "standard"
	// ProfileCache trades durability for speed; used by throwaway test stores.
	ProfileCache Profile = "cache"
)

// DB wraps a SQLite connection with pixiu's production configuration.
type DB struct {
	conn    *sql.DB
	path    string
	profile Profile
	name    string
}

// Config holds database configuration.
type Config struct {
	Path    string
	Profile Profile
	Name    string // Friendly name for logging
}

// New opens a SQLite database with WAL journaling and the profile's PRAGMAs.
func New(cfg Config) (*DB, error) {
	if strings.HasPrefix(cfg.Path, "file:") {
		// file: URIs (in-memory test databases) bypass path resolution.
	} else {
		absPath, err := filepath.Abs(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve database path: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		cfg.Path = absPath
	}

	if cfg.Profile == "" {
		cfg.Profile = ProfileStandard
	}

	conn, err := sql.Open("sqlite", buildConnectionString(cfg.Path, cfg.Profile))
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", cfg.Name, err)
	}

	configurePool(conn, cfg.Profile)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database %s: %w", cfg.Name, err)
	}

	return &DB{conn: conn, path: cfg.Path, profile: cfg.Profile, name: cfg.Name}, nil
}

// buildConnectionString assembles the _pragma query parameters for the profile.
func buildConnectionString(path string, profile Profile) string {
	connStr := path + "?_pragma=journal_mode(WAL)"

	switch profile {
	case ProfileCache:
		connStr += "&_pragma=synchronous(OFF)"
		connStr += "&_pragma=temp_store(MEMORY)"
	default:
		connStr += "&_pragma=synchronous(NORMAL)"
		connStr += "&_pragma=auto_vacuum(INCREMENTAL)"
		connStr += "&_pragma=temp_store(MEMORY)"
	}

	connStr += "&_pragma=foreign_keys(1)"
	connStr += "&_pragma=busy_timeout(5000)"
	connStr += "&_pragma=wal_autocheckpoint(1000)"
	connStr += "&_pragma=cache_size(-64000)" // 64MB (negative = KB)

	return connStr
}

// configurePool sets connection pool limits for a long-lived single-user process.
func configurePool(conn *sql.DB, profile Profile) {
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(24 * time.Hour)
	conn.SetConnMaxIdleTime(30 * time.Minute)

	if profile == ProfileCache {
		conn.SetMaxOpenConns(10)
		conn.SetMaxIdleConns(2)
	}
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying sql.DB for repositories.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Name returns the database name.
func (db *DB) Name() string { return db.name }

// Path returns the database file path.
func (db *DB) Path() string { return db.path }

// Migrate applies the embedded schema. Statements use IF NOT EXISTS so the
// call is idempotent across restarts.
func (db *DB) Migrate() error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin schema transaction: %w", err)
	}

	if _, err := tx.Exec(Schema); err != nil {
		_ = tx.Rollback()
		if strings.Contains(err.Error(), "already exists") ||
			strings.Contains(err.Error(), "duplicate column") {
			return nil
		}
		return fmt.Errorf("failed to apply schema: %w", err)
	}

	return tx.Commit()
}

// Begin starts a new transaction.
func (db *DB) Begin() (*sql.Tx, error) {
	return db.conn.Begin()
}

// BeginTx starts a new transaction with options.
func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	return db.conn.BeginTx(ctx, opts)
}

// WithTransaction executes fn inside a transaction, handling commit, rollback
// and panic recovery. A panic inside fn rolls back and is returned as an error.
func WithTransaction(db *sql.DB, fn func(*sql.Tx) error) (err error) {
	if db == nil {
		return fmt.Errorf("database connection is nil")
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			err = fmt.Errorf("panic in transaction: %v", p)
		} else if err != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				err = fmt.Errorf("transaction failed: %w (rollback also failed: %v)", err, rollbackErr)
			}
		} else {
			err = tx.Commit()
		}
	}()

	err = fn(tx)
	return err
}

// HealthCheck runs a quick integrity check against the store.
func (db *DB) HealthCheck(ctx context.Context) error {
	var result string
	if err := db.conn.QueryRowContext(ctx, "PRAGMA quick_check").Scan(&result); err != nil {
		return fmt.Errorf("health check failed for %s: %w", db.name, err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed for %s: %s", db.name, result)
	}
	return nil
}

// WALCheckpoint forces a WAL checkpoint, truncating the log.
func (db *DB) WALCheckpoint() error {
	_, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	if err != nil {
		return fmt.Errorf("WAL checkpoint failed for %s: %w", db.name, err)
	}
	return nil
}

// Vacuum rebuilds the database file, reclaiming free pages.
func (db *DB) Vacuum() error {
	if _, err := db.conn.Exec("VACUUM"); err != nil {
		return fmt.Errorf("vacuum failed for %s: %w", db.name, err)
	}
	return nil
}

// VacuumInto writes a compacted snapshot of the database to destPath.
// Used by the backup service: the copy is taken under a read transaction so
// it is consistent without blocking writers.
func (db *DB) VacuumInto(destPath string) error {
	if _, err := db.conn.Exec("VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("vacuum into %s failed: %w", destPath, err)
	}
	return nil
}

// Stats reports connection pool statistics for the health endpoint.
func (db *DB) Stats() sql.DBStats {
	return db.conn.Stats()
}
