package pipeline

import (
	"time"

	"go.jetify.com/typeid"
)

// CheckpointReason records why a snapshot was taken.
type CheckpointReason string

const (
	CheckpointReasonPhaseStart    CheckpointReason = "phase_start"
	CheckpointReasonPhaseComplete CheckpointReason = "phase_complete"
	CheckpointReasonError         CheckpointReason = "error"
	CheckpointReasonManual        CheckpointReason = "manual"
)

// Valid returns true if the reason is one of the defined constants.
func (r CheckpointReason) Valid() bool {
	switch r {
	case CheckpointReasonPhaseStart, CheckpointReasonPhaseComplete,
		CheckpointReasonError, CheckpointReasonManual:
		return true
	default:
		return false
	}
}

// Checkpoint is an immutable snapshot of a workflow state taken at a
// boundary event. The embedded state is a deep copy; mutating the live
// workflow never changes an existing checkpoint.
type Checkpoint struct {
	ID         string           `json:"id"`
	WorkflowID string           `json:"workflow_id"`
	Sequence   int              `json:"sequence"`
	Reason     CheckpointReason `json:"reason"`
	State      *WorkflowState   `json:"state"`
	CreatedAt  time.Time        `json:"created_at"`
}

// NewWorkflowID returns a fresh workflow identifier.
func NewWorkflowID() string {
	id, err := typeid.WithPrefix("run")
	if err != nil {
		panic(err)
	}
	return id.String()
}

// NewCheckpointID returns a fresh checkpoint identifier.
func NewCheckpointID() string {
	id, err := typeid.WithPrefix("ckpt")
	if err != nil {
		panic(err)
	}
	return id.String()
}
