// Package report keeps rejected cells in a SQLite database so that a check
// run can be inspected after the fact.
package report

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

	_ "github.com/mattn/go-sqlite3"
	"github.com/zoobzio/clockz"

	"github.com/zoobzio/cellz"
	"github.com/zoobzio/cellz/schema"
)

// Memory is the path of a private in-memory database.
const Memory = ":memory:"

// KindRow marks a record that was rejected as a whole.
const KindRow = "row"

// Record is one stored rejection.
type Record struct {
	ID         int64
	Session    string
	Line       int
	Column     string
	Position   int
	Kind       string
	Stage      string
	Value      string
	Message    string
	RecordedAt time.Time
}

// Run summarizes one session.
type Run struct {
	Session    string
	Schema     string
	Source     string
	StartedAt  time.Time
	FinishedAt time.Time
	Rows       int
	Rejected   int
}

// Filter narrows Violations.
type Filter struct {
	Session string
	Column  string
	Stage   cellz.StageKind
	Limit   int
}

// Store persists runs and their rejected cells.
type Store struct {
	db    *sql.DB
	mu    sync.Mutex
	clock clockz.Clock
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used to stamp records.
func WithClock(clock clockz.Clock) Option {
	return func(s *Store) {
		s.clock = clock
	}
}

// Open opens or creates the database at path.
func Open(path string, opts ...Option) (*Store, error) {
	dsn := path
	if path != Memory {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == Memory {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	s := &Store{db: db, clock: clockz.RealClock}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	ddl := `
	CREATE TABLE IF NOT EXISTS runs (
		session TEXT PRIMARY KEY,
		schema_name TEXT NOT NULL,
		source TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		rows INTEGER NOT NULL DEFAULT 0,
		rejected INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS violations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session TEXT NOT NULL REFERENCES runs(session),
		line INTEGER NOT NULL,
		column_name TEXT NOT NULL,
		position INTEGER NOT NULL,
		kind TEXT NOT NULL,
		stage TEXT NOT NULL,
		value TEXT NOT NULL,
		message TEXT NOT NULL,
		recorded_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_violations_session ON violations(session, line);
	CREATE INDEX IF NOT EXISTS idx_violations_column ON violations(column_name);
	CREATE INDEX IF NOT EXISTS idx_violations_stage ON violations(stage);
	`
	_, err := s.db.Exec(ddl)
	return err
}

// Begin registers a run for the session reading source.
func (s *Store) Begin(ctx context.Context, sess *schema.Session, source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (session, schema_name, source, started_at)
		VALUES (?, ?, ?, ?)
	`, sess.ID().String(), sess.Registry().Name(), source, sess.StartedAt().UTC())
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// Finish stores the final counts of a run.
func (s *Store) Finish(ctx context.Context, session string, rows, rejected int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET finished_at = ?, rows = ?, rejected = ? WHERE session = ?
	`, s.clock.Now().UTC(), rows, rejected, session)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", session, sql.ErrNoRows)
	}
	return nil
}

// Record stores every failure of a rejected row and returns how many records
// were written.
func (s *Store) Record(ctx context.Context, session string, rowErr *schema.RowError) (int, error) {
	if rowErr == nil {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO violations (session, line, column_name, position, kind, stage, value, message, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := s.clock.Now().UTC()
	written := 0
	if rowErr.Err != nil {
		if _, err := stmt.ExecContext(ctx, session, rowErr.Line, "", -1, KindRow, "", "", rowErr.Err.Error(), now); err != nil {
			return 0, fmt.Errorf("failed to insert violation: %w", err)
		}
		written++
	}
	for _, ce := range rowErr.Errors {
		kind, value, message := describe(ce)
		if _, err := stmt.ExecContext(ctx, session, rowErr.Line, ce.Column, ce.Position, kind, string(ce.Stage()), value, message, now); err != nil {
			return 0, fmt.Errorf("failed to insert violation: %w", err)
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit violations: %w", err)
	}
	return written, nil
}

func describe(ce *schema.ColumnError) (kind, value, message string) {
	v, ok := ce.Violation()
	if !ok {
		return "error", "", ce.Err.Error()
	}
	if v.Value != nil {
		value = fmt.Sprint(v.Value)
	}
	message = v.Message
	if v.Err != nil {
		if message != "" {
			message += ": "
		}
		message += v.Err.Error()
	}
	return v.Kind.String(), value, message
}

// Violations returns stored records in line order.
func (s *Store) Violations(ctx context.Context, f Filter) ([]*Record, error) {
	var where []string
	var args []any
	if f.Session != "" {
		where = append(where, "session = ?")
		args = append(args, f.Session)
	}
	if f.Column != "" {
		where = append(where, "column_name = ?")
		args = append(args, f.Column)
	}
	if f.Stage != "" {
		where = append(where, "stage = ?")
		args = append(args, string(f.Stage))
	}

	query := `SELECT id, session, line, column_name, position, kind, stage, value, message, recorded_at FROM violations`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY line, position"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query violations: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		r := &Record{}
		if err := rows.Scan(&r.ID, &r.Session, &r.Line, &r.Column, &r.Position, &r.Kind, &r.Stage, &r.Value, &r.Message, &r.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan violation: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Run returns the summary of a session.
func (s *Store) Run(ctx context.Context, session string) (*Run, error) {
	r := &Run{}
	var finished sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT session, schema_name, source, started_at, finished_at, rows, rejected FROM runs WHERE session = ?
	`, session).Scan(&r.Session, &r.Schema, &r.Source, &r.StartedAt, &finished, &r.Rows, &r.Rejected)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", session, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	r.FinishedAt = finished.Time
	return r, nil
}

// StageCounts returns how many cells of a session each stage rejected.
func (s *Store) StageCounts(ctx context.Context, session string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT stage, COUNT(*) FROM violations WHERE session = ? GROUP BY stage
	`, session)
	if err != nil {
		return nil, fmt.Errorf("failed to count violations: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var stage string
		var n int
		if err := rows.Scan(&stage, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		if stage == "" {
			stage = KindRow
		}
		counts[stage] = n
	}
	return counts, rows.Err()
}

// Prune deletes runs started before the cutoff along with their violations.
func (s *Store) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.clock.Now().Add(-olderThan).UTC()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM violations WHERE session IN (SELECT session FROM runs WHERE started_at < ?)
	`, cutoff); err != nil {
		return 0, fmt.Errorf("failed to prune violations: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE started_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit prune: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
