package pipeline

import "context"

// NullCheckpointer is a no-op implementation.
type NullCheckpointer struct{}

func NewNullCheckpointer() *NullCheckpointer {
	return &NullCheckpointer{}
}

func (c *NullCheckpointer) Checkpoint(ctx context.Context, state *WorkflowState, reason CheckpointReason) (*Checkpoint, error) {
	return &Checkpoint{
		ID:         NewCheckpointID(),
		WorkflowID: state.ID,
		Reason:     reason,
	}, nil
}

func (c *NullCheckpointer) ListCheckpoints(ctx context.Context, workflowID string) ([]*Checkpoint, error) {
	return nil, nil
}

func (c *NullCheckpointer) LoadCheckpoint(ctx context.Context, checkpointID string) (*Checkpoint, error) {
	return nil, nil
}

func (c *NullCheckpointer) DeleteCheckpoints(ctx context.Context, workflowID string) error {
	return nil
}

var _ Checkpointer = (*NullCheckpointer)(nil)
