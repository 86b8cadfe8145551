package pipeline

import (
	"context"
	"time"
)

// Journal event names.
const (
	JournalEventPhaseStart    = "phase_start"
	JournalEventPhaseComplete = "phase_complete"
	JournalEventError         = "error"
	JournalEventApproval      = "approval"
	JournalEventCancelled     = "cancelled"
)

// PhaseEvent is a single entry in a workflow's event journal.
type PhaseEvent struct {
	WorkflowID string         `json:"workflow_id"`
	Event      string         `json:"event"`
	Phase      Phase          `json:"phase"`
	Kind       string         `json:"kind,omitempty"`
	Message    string         `json:"message,omitempty"`
	Artifacts  map[string]any `json:"artifacts,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Journal records the ordered event history of workflow runs, separate
// from the state store: states are overwritten in place, journal entries
// are append-only.
type Journal interface {
	// Append records a completed event.
	Append(ctx context.Context, event *PhaseEvent) error

	// Events retrieves the recorded history for a workflow.
	Events(ctx context.Context, workflowID string) ([]*PhaseEvent, error)
}
