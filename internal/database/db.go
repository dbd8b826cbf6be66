// Package database provides the SQLite connection and schema bootstrap
// shared by all services.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// ErrClosed is returned when a database is accessed after Close.
var ErrClosed = errors.New("database: not connected")

// Mode selects the connection profile for a process.
type Mode string

const (
	// ModePoller - one persistent connection owned by the polling loop.
	// Serialization comes from the loop's sequential cycles.
	ModePoller Mode = "poller"
	// ModeServer - bounded connection pool for the HTTP/WS process.
	// database/sql acquisition acts as the counting semaphore, and
	// connections that errored during use are discarded by the pool.
	ModeServer Mode = "server"
)

// DB wraps the database connection with the pragma profile every service
// uses: WAL journal, incremental auto-vacuum, NORMAL sync.
type DB struct {
	conn   *sql.DB
	path   string
	mode   Mode
	name   string
	closed atomic.Bool
}

// Config holds database configuration.
type Config struct {
	Path     string
	Mode     Mode
	Name     string // Friendly name for logging (e.g., "readings")
	PoolSize int    // ModeServer only; defaults to 5
}

// New opens a database connection with the standard pragma profile.
func New(cfg Config) (*DB, error) {
	// file: URIs (in-memory databases in tests) skip filepath handling.
	if !strings.HasPrefix(cfg.Path, "file:") {
		absPath, err := filepath.Abs(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve database path: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		cfg.Path = absPath
	}

	if cfg.Mode == "" {
		cfg.Mode = ModePoller
	}

	conn, err := sql.Open("sqlite", buildConnectionString(cfg.Path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", cfg.Name, err)
	}

	configureConnections(conn, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database %s: %w", cfg.Name, err)
	}

	return &DB{
		conn: conn,
		path: cfg.Path,
		mode: cfg.Mode,
		name: cfg.Name,
	}, nil
}

// buildConnectionString appends the pragma profile to the DSN.
func buildConnectionString(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep +
		"_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=auto_vacuum(INCREMENTAL)" +
		"&_pragma=temp_store(MEMORY)" +
		"&_pragma=foreign_keys(1)" +
		"&_pragma=busy_timeout(5000)"
}

// configureConnections applies the mode's pool limits.
func configureConnections(conn *sql.DB, cfg Config) {
	switch cfg.Mode {
	case ModeServer:
		size := cfg.PoolSize
		if size <= 0 {
			size = 5
		}
		conn.SetMaxOpenConns(size)
		conn.SetMaxIdleConns(size)
	default:
		conn.SetMaxOpenConns(1)
		conn.SetMaxIdleConns(1)
	}
	conn.SetConnMaxLifetime(24 * time.Hour)
	conn.SetConnMaxIdleTime(30 * time.Minute)
}

// Close closes all connections. Further access fails with ErrClosed.
func (db *DB) Close() error {
	if db.closed.Swap(true) {
		return nil
	}
	return db.conn.Close()
}

func (db *DB) check() error {
	if db.closed.Load() {
		return ErrClosed
	}
	return nil
}

// Conn returns the underlying sql.DB connection.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Name returns the database name for logging.
func (db *DB) Name() string {
	return db.name
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Exec executes a statement without returning rows.
func (db *DB) Exec(query string, args ...interface{}) (sql.Result, error) {
	if err := db.check(); err != nil {
		return nil, err
	}
	return db.conn.Exec(query, args...)
}

// ExecContext executes a statement with a context.
func (db *DB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	if err := db.check(); err != nil {
		return nil, err
	}
	return db.conn.ExecContext(ctx, query, args...)
}

// Query executes a query that returns rows.
func (db *DB) Query(query string, args ...interface{}) (*sql.Rows, error) {
	if err := db.check(); err != nil {
		return nil, err
	}
	return db.conn.Query(query, args...)
}

// QueryContext executes a query with a context.
func (db *DB) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	if err := db.check(); err != nil {
		return nil, err
	}
	return db.conn.QueryContext(ctx, query, args...)
}

// Row defers a single-row query's error to Scan, like sql.Row, so the
// closed-database check can surface as ErrClosed there.
type Row struct {
	row *sql.Row
	err error
}

// Scan copies the row's columns into dest.
func (r *Row) Scan(dest ...interface{}) error {
	if r.err != nil {
		return r.err
	}
	return r.row.Scan(dest...)
}

// QueryRow executes a query that returns at most one row.
func (db *DB) QueryRow(query string, args ...interface{}) *Row {
	if err := db.check(); err != nil {
		return &Row{err: err}
	}
	return &Row{row: db.conn.QueryRow(query, args...)}
}

// QueryRowContext executes a query with a context.
func (db *DB) QueryRowContext(ctx context.Context, query string, args ...interface{}) *Row {
	if err := db.check(); err != nil {
		return &Row{err: err}
	}
	return &Row{row: db.conn.QueryRowContext(ctx, query, args...)}
}

// Pragma executes a PRAGMA statement.
func (db *DB) Pragma(statement string) error {
	if err := db.check(); err != nil {
		return err
	}
	_, err := db.conn.Exec("PRAGMA " + statement)
	return err
}

// HealthCheck pings the database.
func (db *DB) HealthCheck(ctx context.Context) error {
	if err := db.check(); err != nil {
		return err
	}
	return db.conn.PingContext(ctx)
}

// WithTransaction executes fn within a transaction. It handles begin,
// commit, rollback and panic recovery; a returned error or panic rolls
// the transaction back.
func (db *DB) WithTransaction(ctx context.Context, fn func(*sql.Tx) error) (err error) {
	if err := db.check(); err != nil {
		return err
	}

	tx, err := db.conn.BeginTx(ctx, nil)
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
			} else {
				err = fmt.Errorf("transaction failed: %w", err)
			}
		} else {
			if commitErr := tx.Commit(); commitErr != nil {
				err = fmt.Errorf("failed to commit transaction: %w", commitErr)
			}
		}
	}()

	err = fn(tx)
	return err
}
