// Package sqlite persists workflow state, checkpoints, and journal events
// in a single SQLite database. It implements the pipeline's StateStore,
// Checkpointer, and Journal interfaces, so one file can replace the three
// directory-backed stores.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/deepnoodle-ai/pipeline"
)

// Store manages pipeline persistence backed by SQLite.
type Store struct {
	db             *sql.DB
	path           string
	maxCheckpoints int
}

var (
	_ pipeline.StateStore   = (*Store)(nil)
	_ pipeline.Checkpointer = (*Store)(nil)
	_ pipeline.Journal      = (*Store)(nil)
)

// Open initializes or connects to the database at path and applies
// migrations. maxCheckpoints bounds the checkpoints retained per workflow;
// values below one select the default.
func Open(path string, maxCheckpoints int) (*Store, error) {
	if maxCheckpoints < 1 {
		maxCheckpoints = pipeline.DefaultMaxCheckpoints
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path, maxCheckpoints: maxCheckpoints}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Save persists the state, overwriting any previous version. The write is
// a single upsert, so readers never observe a partial record.
func (s *Store) Save(ctx context.Context, state *pipeline.WorkflowState) error {
	if state == nil {
		return fmt.Errorf("state is required")
	}
	if err := pipeline.ValidateWorkflowID(state.ID); err != nil {
		return err
	}
	document, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal workflow state: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflow_states (id, phase, state, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET
             phase = excluded.phase,
             state = excluded.state,
             updated_at = excluded.updated_at`,
		state.ID,
		state.Phase.String(),
		string(document),
		state.CreatedAt.UTC().Format(time.RFC3339Nano),
		state.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save workflow state: %w", err)
	}
	return nil
}

// Load returns the state stored for an id.
func (s *Store) Load(ctx context.Context, id string) (*pipeline.WorkflowState, error) {
	if err := pipeline.ValidateWorkflowID(id); err != nil {
		return nil, err
	}
	var document string
	err := s.db.QueryRowContext(ctx,
		"SELECT state FROM workflow_states WHERE id = ?", id).Scan(&document)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &pipeline.StateNotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("load workflow state: %w", err)
	}
	return decodeState([]byte(document))
}

// Latest returns the most recently updated state, or nil when the store
// is empty.
func (s *Store) Latest(ctx context.Context) (*pipeline.WorkflowState, error) {
	var document string
	err := s.db.QueryRowContext(ctx,
		"SELECT state FROM workflow_states ORDER BY updated_at DESC, id LIMIT 1").Scan(&document)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load latest workflow state: %w", err)
	}
	return decodeState([]byte(document))
}

// List returns summaries of all stored states, newest first.
func (s *Store) List(ctx context.Context) ([]*pipeline.WorkflowSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT state FROM workflow_states ORDER BY updated_at DESC, id")
	if err != nil {
		return nil, fmt.Errorf("list workflow states: %w", err)
	}
	defer rows.Close()

	var summaries []*pipeline.WorkflowSummary
	for rows.Next() {
		var document string
		if err := rows.Scan(&document); err != nil {
			return nil, fmt.Errorf("scan workflow state: %w", err)
		}
		state, err := decodeState([]byte(document))
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, state.Summary())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workflow states: %w", err)
	}
	return summaries, nil
}

// Delete removes the state for an id. Deleting an unknown id is not an
// error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := pipeline.ValidateWorkflowID(id); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM workflow_states WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete workflow state: %w", err)
	}
	return nil
}

// CleanupOlderThan deletes terminal states whose last update is older than
// maxAge. In-flight workflows are never removed.
func (s *Store) CleanupOlderThan(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-maxAge).Format(time.RFC3339Nano)
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM workflow_states
         WHERE phase IN (?, ?, ?) AND updated_at < ?`,
		pipeline.PhaseComplete.String(),
		pipeline.PhaseFailed.String(),
		pipeline.PhaseCancelled.String(),
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("cleanup workflow states: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count removed states: %w", err)
	}
	return int(removed), nil
}

func decodeState(document []byte) (*pipeline.WorkflowState, error) {
	var state pipeline.WorkflowState
	if err := json.Unmarshal(document, &state); err != nil {
		return nil, fmt.Errorf("unmarshal workflow state: %w", err)
	}
	if err := state.Validate(); err != nil {
		return nil, err
	}
	return &state, nil
}
