// Package sqlite provides a SQLite-backed initializer store.
//
// The initialized marker is a row whose presence means "set"; clearing it
// deletes the row, so the common between-blocks state leaves both tables
// empty.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	sqlitemigrate "github.com/louisbranch/relaychain/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/primitives"
	"github.com/louisbranch/relaychain/internal/services/relay/storage"
	"github.com/louisbranch/relaychain/internal/services/relay/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

const initializedMarker = "has_initialized"

// Store persists initializer state in SQLite.
type Store struct {
	sqlDB *sql.DB
}

// Open opens the store at path and applies migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB}
	if err := sqlitemigrate.ApplyMigrations(context.Background(), sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// HasInitialized reports whether the marker row exists.
func (s *Store) HasInitialized(ctx context.Context) (bool, error) {
	if err := s.check(ctx); err != nil {
		return false, err
	}
	var count int
	if err := s.sqlDB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM initializer_markers WHERE name = ?",
		initializedMarker,
	).Scan(&count); err != nil {
		return false, fmt.Errorf("read initialized marker: %w", err)
	}
	return count > 0, nil
}

// SetInitialized inserts the marker row.
func (s *Store) SetInitialized(ctx context.Context) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if _, err := s.sqlDB.ExecContext(ctx,
		"INSERT OR IGNORE INTO initializer_markers (name) VALUES (?)",
		initializedMarker,
	); err != nil {
		return fmt.Errorf("set initialized marker: %w", err)
	}
	return nil
}

// ClearInitialized deletes the marker row.
func (s *Store) ClearInitialized(ctx context.Context) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if _, err := s.sqlDB.ExecContext(ctx,
		"DELETE FROM initializer_markers WHERE name = ?",
		initializedMarker,
	); err != nil {
		return fmt.Errorf("clear initialized marker: %w", err)
	}
	return nil
}

// AppendSessionChange buffers a session change after any already buffered.
func (s *Store) AppendSessionChange(ctx context.Context, change storage.BufferedSessionChange) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	validators, err := json.Marshal(change.Validators)
	if err != nil {
		return fmt.Errorf("encode validators: %w", err)
	}
	queued, err := json.Marshal(change.Queued)
	if err != nil {
		return fmt.Errorf("encode queued validators: %w", err)
	}
	if _, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO buffered_session_changes (session_index, validators, queued)
VALUES (?, ?, ?)
`,
		int64(change.SessionIndex),
		string(validators),
		string(queued),
	); err != nil {
		return fmt.Errorf("append session change: %w", err)
	}
	return nil
}

// SessionChanges lists buffered changes in announcement order.
func (s *Store) SessionChanges(ctx context.Context) ([]storage.BufferedSessionChange, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	return listChanges(ctx, s.sqlDB)
}

// TakeSessionChanges lists and deletes buffered changes in one transaction.
func (s *Store) TakeSessionChanges(ctx context.Context) ([]storage.BufferedSessionChange, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin take session changes: %w", err)
	}
	changes, err := listChanges(ctx, tx)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM buffered_session_changes"); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("clear session changes: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit take session changes: %w", err)
	}
	return changes, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func listChanges(ctx context.Context, q queryer) ([]storage.BufferedSessionChange, error) {
	rows, err := q.QueryContext(ctx, `
SELECT session_index, validators, queued
FROM buffered_session_changes
ORDER BY seq ASC
`)
	if err != nil {
		return nil, fmt.Errorf("list session changes: %w", err)
	}
	defer rows.Close()

	var changes []storage.BufferedSessionChange
	for rows.Next() {
		var (
			sessionIndex int64
			validators   string
			queued       string
		)
		if err := rows.Scan(&sessionIndex, &validators, &queued); err != nil {
			return nil, fmt.Errorf("scan session change: %w", err)
		}
		change := storage.BufferedSessionChange{SessionIndex: primitives.SessionIndex(sessionIndex)}
		if err := json.Unmarshal([]byte(validators), &change.Validators); err != nil {
			return nil, fmt.Errorf("decode validators: %w", err)
		}
		if err := json.Unmarshal([]byte(queued), &change.Queued); err != nil {
			return nil, fmt.Errorf("decode queued validators: %w", err)
		}
		changes = append(changes, change)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session changes: %w", err)
	}
	return changes, nil
}

func (s *Store) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}
