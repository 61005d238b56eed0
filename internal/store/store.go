package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/dshills/tonecheck/internal/review"
)

//go:embed schema.sql
var schemaSQL string

// Store provides durable storage for the history log.
type Store struct {
	db *sql.DB
}

// Open creates or opens a SQLite database at path, applying pragmas and the
// schema. It is safe to call on an existing database.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// SaveHistory replaces the stored log with entries in one transaction.
func (s *Store) SaveHistory(ctx context.Context, entries []review.HistoryEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM history_entries`); err != nil {
		return fmt.Errorf("clearing history: %w", err)
	}

	insertEntry, err := tx.PrepareContext(ctx, `INSERT INTO history_entries (timestamp) VALUES (?)`)
	if err != nil {
		return fmt.Errorf("prepare entry insert: %w", err)
	}
	defer insertEntry.Close()

	insertResult, err := tx.PrepareContext(ctx, `
		INSERT INTO history_results
			(timestamp, position, node_id, original, suggestion, reason, violation_type, applied, dismissed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare result insert: %w", err)
	}
	defer insertResult.Close()

	for _, e := range entries {
		if _, err := insertEntry.ExecContext(ctx, e.Timestamp); err != nil {
			return fmt.Errorf("insert entry %d: %w", e.Timestamp, err)
		}
		for i, r := range e.Results {
			if _, err := insertResult.ExecContext(ctx,
				e.Timestamp, i, r.NodeID, r.Original, r.Suggestion, r.Reason, r.ViolationType,
				r.Applied, r.Dismissed,
			); err != nil {
				return fmt.Errorf("insert result %d/%d: %w", e.Timestamp, i, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// LoadHistory returns the stored log, newest entry first, with each
// entry's results in their original order.
func (s *Store) LoadHistory(ctx context.Context) ([]review.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.timestamp, r.node_id, r.original, r.suggestion, r.reason, r.violation_type, r.applied, r.dismissed
		FROM history_entries e
		LEFT JOIN history_results r ON r.timestamp = e.timestamp
		ORDER BY e.timestamp DESC, r.position ASC`)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	entries := []review.HistoryEntry{}
	for rows.Next() {
		var (
			ts                                              int64
			nodeID, original, suggestion, reason, violation sql.NullString
			applied, dismissed                              sql.NullBool
		)
		if err := rows.Scan(&ts, &nodeID, &original, &suggestion, &reason, &violation, &applied, &dismissed); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		if n := len(entries); n == 0 || entries[n-1].Timestamp != ts {
			entries = append(entries, review.HistoryEntry{Timestamp: ts, Results: []review.ReviewResult{}})
		}
		if !nodeID.Valid {
			continue
		}
		last := &entries[len(entries)-1]
		last.Results = append(last.Results, review.ReviewResult{
			NodeID:        nodeID.String,
			Original:      original.String,
			Suggestion:    suggestion.String,
			Reason:        reason.String,
			ViolationType: violation.String,
			Applied:       applied.Bool,
			Dismissed:     dismissed.Bool,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return entries, nil
}

// Clear deletes the whole log and reports how many entries were removed.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM history_entries`)
	if err != nil {
		return 0, fmt.Errorf("clearing history: %w", err)
	}
	return res.RowsAffected()
}
