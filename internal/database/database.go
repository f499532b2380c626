package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"sync/atomic"

	_ "modernc.org/sqlite"
)

// Opener opens the underlying database handle for a storage path.
type Opener func(path string) (*sql.DB, error)

// Manager owns the single database handle. It creates the schema and runs
// migrations the first time Initialize is called.
type Manager struct {
	path       string
	open       Opener
	migrations []Migration

	mu sync.Mutex // serializes Initialize, Close and Reset
	db atomic.Pointer[sql.DB]
}

// New creates a Manager for the SQLite file at path
func New(path string) *Manager {
	return NewWithOpener(path, OpenSQLite)
}

// NewWithOpener creates a Manager with a custom opener for testing
func NewWithOpener(path string, open Opener) *Manager {
	return &Manager{
		path:       path,
		open:       open,
		migrations: Migrations,
	}
}

// OpenSQLite opens a SQLite file restricted to a single connection. Foreign key
// enforcement is per connection in SQLite, so it is requested in the DSN as well
// as explicitly during Initialize.
func OpenSQLite(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	return db, nil
}

// Path returns the storage path of the database file
func (m *Manager) Path() string {
	return m.path
}

// Initialize returns the shared handle, opening the database, creating the schema
// and migrating it on the first call. Concurrent callers wait for the single
// in-flight initialization and receive the same handle.
func (m *Manager) Initialize(ctx context.Context) (*sql.DB, error) {
	if db := m.db.Load(); db != nil {
		return db, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if db := m.db.Load(); db != nil {
		return db, nil
	}

	slog.Info("Initializing database", "path", m.path)
	db, err := m.open(m.path)
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", m.path, err)
	}

	if err := m.bootstrap(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	m.db.Store(db)
	return db, nil
}

// Get returns the cached handle. It fails with UninitializedError until
// Initialize has completed.
func (m *Manager) Get() (*sql.DB, error) {
	db := m.db.Load()
	if db == nil {
		return nil, &UninitializedError{}
	}
	return db, nil
}

// Close closes the handle and clears the cache. Closing twice is a no-op.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeLocked()
}

func (m *Manager) closeLocked() error {
	db := m.db.Swap(nil)
	if db == nil {
		return nil
	}
	if err := db.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}

// Reset closes the handle and deletes the database file with its journal files.
func (m *Manager) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.closeLocked(); err != nil {
		return err
	}
	if m.path == "" || m.path == ":memory:" {
		return nil
	}

	for _, suffix := range []string{"", "-wal", "-shm", "-journal"} {
		if err := os.Remove(m.path + suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("removing %s: %w", m.path+suffix, err)
		}
	}
	slog.Info("Database reset", "path", m.path)
	return nil
}

// SchemaVersion reads the stored schema version. found is false on a database
// that has never been initialized.
func (m *Manager) SchemaVersion(ctx context.Context) (version int, found bool, err error) {
	db, err := m.Get()
	if err != nil {
		return 0, false, err
	}
	return readSchemaVersion(ctx, db)
}

func (m *Manager) bootstrap(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("enabling foreign keys: %w", err)
	}

	if err := createSchema(ctx, db); err != nil {
		return err
	}

	stored, found, err := readSchemaVersion(ctx, db)
	if err != nil {
		return err
	}

	switch {
	case !found:
		slog.Info("Recording schema version", "version", CurrentSchemaVersion)
		return writeSchemaVersion(ctx, db, CurrentSchemaVersion)
	case stored < CurrentSchemaVersion:
		return runMigrations(ctx, db, m.migrations, stored, CurrentSchemaVersion)
	case stored > CurrentSchemaVersion:
		return &MigrationError{
			From: stored,
			To:   CurrentSchemaVersion,
			Err:  errors.New("stored schema is newer than this build; downgrades are not supported"),
		}
	}
	return nil
}

func createSchema(ctx context.Context, db *sql.DB) error {
	for i, stmt := range Catalog {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return &SchemaError{Index: i, Statement: stmt, Err: err}
		}
	}
	slog.Debug("Schema verified", "statements", len(Catalog))
	return nil
}

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func readSchemaVersion(ctx context.Context, q Querier) (int, bool, error) {
	var raw string
	err := q.QueryRowContext(ctx, "SELECT value FROM db_metadata WHERE key = ?", schemaVersionKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("reading schema version: %w", err)
	}

	version, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("parsing schema version %q: %w", raw, err)
	}
	return version, true, nil
}

func writeSchemaVersion(ctx context.Context, q Querier, version int) error {
	_, err := q.ExecContext(ctx, `INSERT INTO db_metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = `+timestampNow,
		schemaVersionKey, strconv.Itoa(version))
	if err != nil {
		return fmt.Errorf("writing schema version: %w", err)
	}
	return nil
}
