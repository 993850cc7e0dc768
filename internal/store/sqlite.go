package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a pattern has never been used.
var ErrNotFound = errors.New("pattern not recorded")

// dayLayout keys daily_usage rows in local time.
const dayLayout = "2006-01-02"

// Store represents the SQLite usage database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database at the given path and runs migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer; the recorder batches.
	db.SetMaxOpenConns(1)

	if err := MigrateDB(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	if err := os.Chmod(path, 0600); err != nil && !os.IsNotExist(err) {
		db.Close()
		return nil, fmt.Errorf("restrict database permissions: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Schema checks the database tables and reports the migration state.
func (s *Store) Schema() (*MigrationStatus, error) {
	if err := ValidateSchema(s.db); err != nil {
		return nil, err
	}
	return GetMigrationStatus(s.db)
}

// Record adds uses in one transaction.
func (s *Store) Record(ctx context.Context, uses ...Use) error {
	if len(uses) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	usage, err := tx.PrepareContext(ctx, `
		INSERT INTO trigger_usage (pattern, replacement, count, first_used_ns, last_used_ns)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT(pattern) DO UPDATE SET
			replacement  = excluded.replacement,
			count        = count + 1,
			last_used_ns = MAX(last_used_ns, excluded.last_used_ns)`)
	if err != nil {
		return fmt.Errorf("prepare usage: %w", err)
	}
	defer usage.Close()

	daily, err := tx.PrepareContext(ctx, `
		INSERT INTO daily_usage (day, count) VALUES (?, 1)
		ON CONFLICT(day) DO UPDATE SET count = count + 1`)
	if err != nil {
		return fmt.Errorf("prepare daily: %w", err)
	}
	defer daily.Close()

	for _, u := range uses {
		at := u.At
		if at.IsZero() {
			at = time.Now()
		}
		ns := at.UnixNano()
		if _, err := usage.ExecContext(ctx, u.Pattern, u.Replacement, ns, ns); err != nil {
			return fmt.Errorf("record %d uses: %w", len(uses), err)
		}
		if _, err := daily.ExecContext(ctx, at.Local().Format(dayLayout)); err != nil {
			return fmt.Errorf("record daily total: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Top returns the n most used triggers, most recent first among ties.
func (s *Store) Top(ctx context.Context, n int) ([]Usage, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT pattern, replacement, count, first_used_ns, last_used_ns
		FROM trigger_usage
		ORDER BY count DESC, last_used_ns DESC
		LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query top usage: %w", err)
	}
	defer rows.Close()

	return scanUsage(rows)
}

// Get returns the usage row for pattern.
func (s *Store) Get(ctx context.Context, pattern string) (*Usage, error) {
	var u Usage
	var first, last int64
	err := s.db.QueryRowContext(ctx, `
		SELECT pattern, replacement, count, first_used_ns, last_used_ns
		FROM trigger_usage WHERE pattern = ?`, pattern,
	).Scan(&u.Pattern, &u.Replacement, &u.Count, &first, &last)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get usage: %w", err)
	}
	u.FirstUsed = time.Unix(0, first)
	u.LastUsed = time.Unix(0, last)
	return &u, nil
}

// Totals returns the number of distinct triggers and total uses.
func (s *Store) Totals(ctx context.Context) (Totals, error) {
	var t Totals
	var since sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(count), 0), MIN(first_used_ns)
		FROM trigger_usage`,
	).Scan(&t.Patterns, &t.Uses, &since)
	if err != nil {
		return Totals{}, fmt.Errorf("query totals: %w", err)
	}
	if since.Valid {
		t.Since = time.Unix(0, since.Int64)
	}
	return t, nil
}

// Daily returns use counts keyed by local date for the last days calendar
// days. Days without uses are omitted.
func (s *Store) Daily(ctx context.Context, days int, now time.Time) (map[string]int64, error) {
	from := now.Local().AddDate(0, 0, -(days - 1)).Format(dayLayout)
	rows, err := s.db.QueryContext(ctx,
		"SELECT day, count FROM daily_usage WHERE day >= ? ORDER BY day", from)
	if err != nil {
		return nil, fmt.Errorf("query daily usage: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var day string
		var n int64
		if err := rows.Scan(&day, &n); err != nil {
			return nil, fmt.Errorf("scan daily usage: %w", err)
		}
		out[day] = n
	}
	return out, rows.Err()
}

// Reset deletes all recorded usage.
func (s *Store) Reset(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"trigger_usage", "daily_usage"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return tx.Commit()
}

func scanUsage(rows *sql.Rows) ([]Usage, error) {
	var out []Usage
	for rows.Next() {
		var u Usage
		var first, last int64
		if err := rows.Scan(&u.Pattern, &u.Replacement, &u.Count, &first, &last); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		u.FirstUsed = time.Unix(0, first)
		u.LastUsed = time.Unix(0, last)
		out = append(out, u)
	}
	return out, rows.Err()
}
