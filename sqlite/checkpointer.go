package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/deepnoodle-ai/pipeline"
)

// Checkpoint stores a snapshot of the state inside a transaction that
// assigns the next sequence number and prunes the oldest snapshots past
// the retention limit.
func (s *Store) Checkpoint(ctx context.Context, state *pipeline.WorkflowState, reason pipeline.CheckpointReason) (*pipeline.Checkpoint, error) {
	if state == nil {
		return nil, fmt.Errorf("state is required")
	}
	if err := pipeline.ValidateWorkflowID(state.ID); err != nil {
		return nil, err
	}
	if !reason.Valid() {
		return nil, fmt.Errorf("invalid checkpoint reason %q", reason)
	}

	checkpoint := &pipeline.Checkpoint{
		ID:         pipeline.NewCheckpointID(),
		WorkflowID: state.ID,
		Reason:     reason,
		State:      state.Clone(),
		CreatedAt:  time.Now().UTC(),
	}
	document, err := json.Marshal(checkpoint.State)
	if err != nil {
		return nil, fmt.Errorf("marshal checkpoint state: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin checkpoint tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	row := tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(sequence), 0) FROM checkpoints WHERE workflow_id = ?", state.ID)
	var lastSequence int
	if err := row.Scan(&lastSequence); err != nil {
		return nil, fmt.Errorf("scan checkpoint sequence: %w", err)
	}
	checkpoint.Sequence = lastSequence + 1

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO checkpoints (id, workflow_id, sequence, reason, state, created_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		checkpoint.ID,
		checkpoint.WorkflowID,
		checkpoint.Sequence,
		string(checkpoint.Reason),
		string(document),
		checkpoint.CreatedAt.Format(time.RFC3339Nano),
	); err != nil {
		return nil, fmt.Errorf("insert checkpoint: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM checkpoints
         WHERE workflow_id = ? AND sequence <= ?`,
		state.ID, checkpoint.Sequence-s.maxCheckpoints,
	); err != nil {
		return nil, fmt.Errorf("prune checkpoints: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit checkpoint: %w", err)
	}
	return checkpoint, nil
}

// ListCheckpoints returns a workflow's checkpoints in creation order.
func (s *Store) ListCheckpoints(ctx context.Context, workflowID string) ([]*pipeline.Checkpoint, error) {
	if err := pipeline.ValidateWorkflowID(workflowID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, workflow_id, sequence, reason, state, created_at
         FROM checkpoints WHERE workflow_id = ? ORDER BY sequence`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var checkpoints []*pipeline.Checkpoint
	for rows.Next() {
		checkpoint, err := scanCheckpoint(rows)
		if err != nil {
			return nil, err
		}
		checkpoints = append(checkpoints, checkpoint)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checkpoints: %w", err)
	}
	return checkpoints, nil
}

// LoadCheckpoint returns the checkpoint with the given id, or nil if it
// does not exist.
func (s *Store) LoadCheckpoint(ctx context.Context, checkpointID string) (*pipeline.Checkpoint, error) {
	if err := pipeline.ValidateWorkflowID(checkpointID); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT id, workflow_id, sequence, reason, state, created_at
         FROM checkpoints WHERE id = ?`, checkpointID)
	checkpoint, err := scanCheckpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return checkpoint, nil
}

// DeleteCheckpoints removes all checkpoint data for a workflow.
func (s *Store) DeleteCheckpoints(ctx context.Context, workflowID string) error {
	if err := pipeline.ValidateWorkflowID(workflowID); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM checkpoints WHERE workflow_id = ?", workflowID); err != nil {
		return fmt.Errorf("delete checkpoints: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCheckpoint(row rowScanner) (*pipeline.Checkpoint, error) {
	var (
		checkpoint pipeline.Checkpoint
		reason     string
		document   string
		createdAt  string
	)
	if err := row.Scan(
		&checkpoint.ID,
		&checkpoint.WorkflowID,
		&checkpoint.Sequence,
		&reason,
		&document,
		&createdAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan checkpoint: %w", err)
	}
	checkpoint.Reason = pipeline.CheckpointReason(reason)

	state, err := decodeState([]byte(document))
	if err != nil {
		return nil, err
	}
	checkpoint.State = state

	parsed, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse checkpoint timestamp: %w", err)
	}
	checkpoint.CreatedAt = parsed
	return &checkpoint, nil
}
