package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

// DB wraps the sqlite connection used by the booking engine.
type DB struct {
	*sql.DB
	logger *zerolog.Logger
}

var (
	// ErrDuplicateKey signals a violated uniqueness constraint on insert.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrNotFound signals a lookup that matched no row.
	ErrNotFound = errors.New("not found")
)

// NewDB opens the database at path, applies sqlite tuning and migrations.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	instance := &DB{DB: db, logger: logger}
	if err := instance.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	if logger != nil {
		logger.Info().Str("path", path).Msg("Database initialized")
	}
	return instance, nil
}

func (db *DB) createTables() error {
	queries := []string{
		// Weekly opening hours; provider_id 0 is the salon-wide fallback.
		`CREATE TABLE IF NOT EXISTS working_hours (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			provider_id INTEGER NOT NULL DEFAULT 0,
			day_of_week INTEGER NOT NULL,
			start_time TEXT NOT NULL,
			end_time TEXT NOT NULL,
			slot_duration INTEGER NOT NULL DEFAULT 30,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(provider_id, day_of_week)
		)`,

		`CREATE TABLE IF NOT EXISTS break_intervals (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			rule_id INTEGER NOT NULL,
			start_time TEXT NOT NULL,
			end_time TEXT NOT NULL,
			FOREIGN KEY (rule_id) REFERENCES working_hours(id) ON DELETE CASCADE
		)`,

		// Date-specific forced closures, full or partial day.
		`CREATE TABLE IF NOT EXISTS date_constraints (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			provider_id INTEGER NOT NULL DEFAULT 0,
			date TEXT NOT NULL,
			start_time TEXT NOT NULL,
			end_time TEXT NOT NULL,
			reason TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Slot rows: available placeholders and bookings share the table.
		// The unique key is what makes the booking race safe.
		`CREATE TABLE IF NOT EXISTS appointments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			uid TEXT NOT NULL,
			provider_id INTEGER NOT NULL DEFAULT 0,
			date TEXT NOT NULL,
			time TEXT NOT NULL,
			duration_minutes INTEGER NOT NULL,
			is_available BOOLEAN NOT NULL DEFAULT 1,
			status TEXT NOT NULL DEFAULT 'available',
			client_name TEXT NOT NULL DEFAULT '',
			client_phone TEXT NOT NULL DEFAULT '',
			service_name TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(date, time, provider_id)
		)`,

		`CREATE TABLE IF NOT EXISTS waitlist (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			requested_date TEXT NOT NULL,
			time_period TEXT NOT NULL DEFAULT 'any',
			service_name TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'waiting',
			provider_id INTEGER NOT NULL DEFAULT 0,
			client_name TEXT NOT NULL,
			client_phone TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS recurring_rules (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			provider_id INTEGER NOT NULL DEFAULT 0,
			day_of_week INTEGER NOT NULL,
			time TEXT NOT NULL,
			service_name TEXT NOT NULL DEFAULT '',
			client_name TEXT NOT NULL,
			client_phone TEXT NOT NULL,
			valid_from TEXT,
			valid_until TEXT,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Notification outbox; delivery is handled by a separate dispatcher.
		`CREATE TABLE IF NOT EXISTS notifications (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			uid TEXT NOT NULL UNIQUE,
			waitlist_id INTEGER NOT NULL DEFAULT 0,
			client_name TEXT NOT NULL DEFAULT '',
			client_phone TEXT NOT NULL DEFAULT '',
			message TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			retry_count INTEGER NOT NULL DEFAULT 0,
			last_error TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			sent_at DATETIME
		)`,

		`CREATE INDEX IF NOT EXISTS idx_working_hours_day ON working_hours(provider_id, day_of_week)`,
		`CREATE INDEX IF NOT EXISTS idx_constraints_date ON date_constraints(date, provider_id)`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_date ON appointments(date, provider_id)`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_status ON appointments(status)`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_client ON appointments(client_phone, date)`,
		`CREATE INDEX IF NOT EXISTS idx_waitlist_date_status ON waitlist(requested_date, status)`,
		`CREATE INDEX IF NOT EXISTS idx_recurring_day ON recurring_rules(day_of_week, is_active)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_status ON notifications(status)`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("exec migration %s: %w", trimSQL(q), err)
		}
	}
	return nil
}

func trimSQL(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}

// isUniqueViolation reports whether err is a sqlite uniqueness error.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (db *DB) Close() error {
	return db.DB.Close()
}
