package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/deepnoodle-ai/pipeline"
)

// Append records a completed event in the journal table.
func (s *Store) Append(ctx context.Context, event *pipeline.PhaseEvent) error {
	if event == nil {
		return fmt.Errorf("event is required")
	}
	if err := pipeline.ValidateWorkflowID(event.WorkflowID); err != nil {
		return err
	}
	var artifacts any
	if len(event.Artifacts) > 0 {
		encoded, err := json.Marshal(event.Artifacts)
		if err != nil {
			return fmt.Errorf("marshal event artifacts: %w", err)
		}
		artifacts = string(encoded)
	}
	timestamp := event.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO journal_events (workflow_id, event, phase, kind, message, artifacts, timestamp)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.WorkflowID,
		event.Event,
		event.Phase.String(),
		nullableString(event.Kind),
		nullableString(event.Message),
		artifacts,
		timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append journal event: %w", err)
	}
	return nil
}

// Events retrieves the recorded history for a workflow in append order.
func (s *Store) Events(ctx context.Context, workflowID string) ([]*pipeline.PhaseEvent, error) {
	if err := pipeline.ValidateWorkflowID(workflowID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT workflow_id, event, phase, kind, message, artifacts, timestamp
         FROM journal_events WHERE workflow_id = ? ORDER BY id`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("list journal events: %w", err)
	}
	defer rows.Close()

	var events []*pipeline.PhaseEvent
	for rows.Next() {
		var (
			event     pipeline.PhaseEvent
			phase     string
			kind      sql.NullString
			message   sql.NullString
			artifacts sql.NullString
			timestamp string
		)
		if err := rows.Scan(&event.WorkflowID, &event.Event, &phase, &kind, &message, &artifacts, &timestamp); err != nil {
			return nil, fmt.Errorf("scan journal event: %w", err)
		}
		event.Phase = pipeline.Phase(phase)
		event.Kind = kind.String
		event.Message = message.String
		if artifacts.Valid && artifacts.String != "" {
			if err := json.Unmarshal([]byte(artifacts.String), &event.Artifacts); err != nil {
				return nil, fmt.Errorf("unmarshal event artifacts: %w", err)
			}
		}
		parsed, err := time.Parse(time.RFC3339Nano, timestamp)
		if err != nil {
			return nil, fmt.Errorf("parse event timestamp: %w", err)
		}
		event.Timestamp = parsed
		events = append(events, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal events: %w", err)
	}
	return events, nil
}

// nullableString maps empty strings to NULL.
func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
