package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// DB wraps the SQLite handle. Writers are serialized through a single
// connection and every transaction starts with BEGIN IMMEDIATE.
type DB struct {
	*sql.DB
	path   string
	logger *zerolog.Logger
}

const dsnOptions = "_foreign_keys=on&_busy_timeout=5000&_txlock=immediate"

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite3", path+"?"+dsnOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db := &DB{DB: sqlDB, path: path, logger: logger}
	if err := db.migrate(context.Background()); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("database initialized")
	return db, nil
}

// Path is the file the database lives in, ":memory:" for tests.
func (db *DB) Path() string {
	return db.path
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS identities (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		email TEXT NOT NULL UNIQUE COLLATE NOCASE,
		display_name TEXT NOT NULL,
		phone TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL CHECK (role IN ('guest', 'client', 'instructor', 'admin')),
		password_hash TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS class_slots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		date TEXT NOT NULL,
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		capacity_max INTEGER NOT NULL CHECK (capacity_max > 0),
		capacity_current INTEGER NOT NULL DEFAULT 0,
		instructor_id INTEGER REFERENCES identities(id),
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CHECK (capacity_current >= 0 AND capacity_current <= capacity_max)
	)`,
	`CREATE TABLE IF NOT EXISTS packages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		client_id INTEGER NOT NULL REFERENCES identities(id),
		name TEXT NOT NULL DEFAULT '',
		classes_total INTEGER NOT NULL CHECK (classes_total > 0),
		classes_remaining INTEGER NOT NULL,
		purchased_at DATETIME NOT NULL,
		expires_at TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		CHECK (classes_remaining >= 0 AND classes_remaining <= classes_total)
	)`,
	`CREATE TABLE IF NOT EXISTS reservations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		client_id INTEGER NOT NULL REFERENCES identities(id),
		slot_id INTEGER NOT NULL REFERENCES class_slots(id),
		package_id INTEGER NOT NULL REFERENCES packages(id),
		status TEXT NOT NULL DEFAULT 'confirmed' CHECK (status IN ('confirmed', 'cancelled')),
		attended INTEGER CHECK (attended IN (0, 1)),
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		version INTEGER NOT NULL DEFAULT 1
	)`,
	`CREATE TABLE IF NOT EXISTS sync_queue (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		task_type TEXT NOT NULL,
		reservation_id INTEGER NOT NULL,
		payload TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		retry_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		created_at DATETIME NOT NULL,
		processed_at DATETIME,
		next_retry_at DATETIME
	)`,

	// one live booking per client and class
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_reservations_client_slot
		ON reservations(client_id, slot_id) WHERE status = 'confirmed'`,

	`CREATE INDEX IF NOT EXISTS idx_slots_date ON class_slots(date, start_time)`,
	`CREATE INDEX IF NOT EXISTS idx_slots_instructor ON class_slots(instructor_id, date)`,
	`CREATE INDEX IF NOT EXISTS idx_packages_client ON packages(client_id, expires_at)`,
	`CREATE INDEX IF NOT EXISTS idx_reservations_slot ON reservations(slot_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_reservations_client ON reservations(client_id)`,
	`CREATE INDEX IF NOT EXISTS idx_sync_queue_status ON sync_queue(status, next_retry_at)`,
}

func (db *DB) migrate(ctx context.Context) error {
	for _, query := range schema {
		if _, err := db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

// queryer is satisfied by both *DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

func isCheckViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintCheck
	}
	return false
}

func nullBool(v sql.NullBool) *bool {
	if !v.Valid {
		return nil
	}
	b := v.Bool
	return &b
}

func nullInt(v sql.NullInt64) int64 {
	if !v.Valid {
		return 0
	}
	return v.Int64
}

func optionalID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}
