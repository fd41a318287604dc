package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/lead-agent/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements LeadStore using SQLite.
type SQLiteStore struct {
	db      *sql.DB
	path    string
	writeMu sync.Mutex // serializes appends to prevent SQLITE_BUSY
}

// NewSQLite creates a new SQLite-backed lead store.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db, path: dbPath}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS leads (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		company TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// AppendLead inserts a lead row.
func (s *SQLiteStore) AppendLead(ctx context.Context, lead domain.LeadRecord) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	query := `INSERT INTO leads (name, email, company, created_at) VALUES (?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, lead.Name, lead.Email, lead.Company, time.Now().UnixNano()); err != nil {
		if isSQLiteConflict(err) {
			return fmt.Errorf("insert lead (database busy): %w", err)
		}
		return fmt.Errorf("insert lead: %w", err)
	}
	return nil
}

// Leads returns every stored lead in insertion order.
func (s *SQLiteStore) Leads(ctx context.Context) ([]domain.LeadRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, email, company FROM leads ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query leads: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var leads []domain.LeadRecord
	for rows.Next() {
		var l domain.LeadRecord
		if err := rows.Scan(&l.Name, &l.Email, &l.Company); err != nil {
			return nil, fmt.Errorf("scan lead row: %w", err)
		}
		leads = append(leads, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate leads: %w", err)
	}
	return leads, nil
}

// Stats returns the lead count, the time of the newest insert and the size
// of the database file.
func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	var total int
	var lastInsert sql.NullInt64
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*), MAX(created_at) FROM leads`)
	if err := row.Scan(&total, &lastInsert); err != nil {
		return Stats{}, fmt.Errorf("query lead stats: %w", err)
	}

	stats := Stats{TotalLeads: total}
	if lastInsert.Valid {
		ts := time.Unix(0, lastInsert.Int64)
		stats.LastUpdated = &ts
	}

	info, err := os.Stat(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return Stats{}, fmt.Errorf("stat database file: %w", err)
	}
	if info != nil {
		stats.FileSize = info.Size()
	}
	return stats, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// isSQLiteConflict reports SQLITE_BUSY and "database is locked" errors.
func isSQLiteConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
