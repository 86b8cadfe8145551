package pipeline

import (
	"context"
)

// DefaultMaxCheckpoints bounds how many snapshots are retained per
// workflow before the oldest are pruned.
const DefaultMaxCheckpoints = 50

// Checkpointer stores immutable workflow snapshots taken at boundary
// events and supports rollback by checkpoint id.
type Checkpointer interface {
	// Checkpoint deep-copies the state, stores it under the given reason
	// and prunes the oldest snapshots past the retention limit.
	Checkpoint(ctx context.Context, state *WorkflowState, reason CheckpointReason) (*Checkpoint, error)

	// ListCheckpoints returns a workflow's checkpoints in creation order.
	ListCheckpoints(ctx context.Context, workflowID string) ([]*Checkpoint, error)

	// LoadCheckpoint returns the checkpoint with the given id, or nil if
	// it does not exist.
	LoadCheckpoint(ctx context.Context, checkpointID string) (*Checkpoint, error)

	// DeleteCheckpoints removes all checkpoint data for a workflow.
	DeleteCheckpoints(ctx context.Context, workflowID string) error
}
