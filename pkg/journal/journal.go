// Package journal records executed batches and their per-command results
// in SQLite so runs can be inspected after the fact.
package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	apperrors "github.com/odvcencio/screenpilot/pkg/errors"
)

//go:embed schema.sql
var schemaSQL string

// ErrBatchNotFound is returned when a batch id is unknown.
var ErrBatchNotFound = apperrors.New(apperrors.ErrCodeNotFound, "batch not found")

const (
	busyRetries = 3
	busyBackoff = 25 * time.Millisecond
)

// Journal manages the run journal database.
type Journal struct {
	db *sql.DB
}

// Open opens (creating if needed) the journal at dbPath. ":memory:" gives
// a private in-memory journal.
func Open(dbPath string) (*Journal, error) {
	filePath, onDisk := sqliteFilePathFromDSN(dbPath)
	if onDisk {
		if dir := filepath.Dir(filePath); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, apperrors.Wrap(err, apperrors.ErrCodeStorageWrite, "creating journal directory")
			}
		}
	}

	db, err := sql.Open("sqlite", withPragmas(dbPath, onDisk))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeStorageWrite, "opening journal")
	}

	if onDisk {
		db.SetMaxOpenConns(4)
	} else {
		// Each connection to ":memory:" is a separate database.
		db.SetMaxOpenConns(1)
	}
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, apperrors.Wrap(err, apperrors.ErrCodeStorageWrite, "configuring journal").WithContext("pragma", p)
		}
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, apperrors.Wrap(err, apperrors.ErrCodeStorageWrite, "migrating journal")
	}

	return &Journal{db: db}, nil
}

func sqliteFilePathFromDSN(dsn string) (string, bool) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" || dsn == ":memory:" {
		return "", false
	}
	if strings.HasPrefix(dsn, "file:") {
		u, err := url.Parse(dsn)
		if err != nil || !strings.EqualFold(strings.TrimSpace(u.Scheme), "file") {
			return "", false
		}
		path := strings.TrimSpace(u.Path)
		if path == "" {
			path = strings.TrimSpace(u.Opaque)
		}
		if path == "" || path == ":memory:" {
			return "", false
		}
		return path, true
	}
	if strings.Contains(dsn, "://") {
		return "", false
	}
	return dsn, true
}

// withPragmas applies per-connection pragmas through the DSN so every pooled
// connection enforces foreign keys and waits on locks.
func withPragmas(dsn string, onDisk bool) string {
	if !onDisk || strings.Contains(dsn, "_pragma=") {
		return dsn
	}
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// Close closes the database connection.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Ping checks that the database is reachable.
func (j *Journal) Ping(ctx context.Context) error {
	if err := j.db.PingContext(ctx); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeStorageRead, "pinging journal")
	}
	return nil
}

type migration struct {
	Version int
	Name    string
	Apply   func(db *sql.DB) error
}

var migrations = []migration{
	{1, "initial_schema", func(db *sql.DB) error { return nil }},
	{2, "results_duration", ensureResultsDuration},
}

func runMigrations(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("apply base schema: %w", err)
	}

	var current int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if err := m.Apply(db); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
		}
		if _, err := db.Exec("INSERT INTO schema_migrations (version, name) VALUES (?, ?)", m.Version, m.Name); err != nil {
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
	}
	return nil
}

func ensureResultsDuration(db *sql.DB) error {
	cols, err := tableColumns(db, "results")
	if err != nil {
		return err
	}
	if cols["duration_ms"] {
		return nil
	}
	_, err = db.Exec(`ALTER TABLE results ADD COLUMN duration_ms INTEGER NOT NULL DEFAULT 0`)
	return err
}

func tableColumns(db *sql.DB, table string) (map[string]bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var (
			cid       int
			name      string
			ctype     string
			notnull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return nil, err
		}
		cols[name] = true
	}
	return cols, rows.Err()
}

// SchemaVersion returns the highest applied migration.
func (j *Journal) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	err := j.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&v)
	return v, err
}

// exec runs a write, retrying briefly while another connection holds the lock.
func (j *Journal) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var (
		res sql.Result
		err error
	)
	for attempt := 0; attempt <= busyRetries; attempt++ {
		res, err = j.db.ExecContext(ctx, query, args...)
		if !isBusyError(err) {
			return res, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(busyBackoff * time.Duration(attempt+1)):
		}
	}
	return res, err
}

func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
	}
	return false
}
