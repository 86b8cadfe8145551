package pipeline

import (
	"context"
	"fmt"
)

// CheckpointHook is the built-in observer that snapshots the workflow at
// every phase boundary: phase_start on entry, phase_complete on success
// and error on failure. Manual checkpoints (cancellation, operator
// action) are taken by the orchestrator directly.
type CheckpointHook struct {
	checkpointer Checkpointer
}

// NewCheckpointHook creates a checkpointing hook backed by the given
// checkpointer.
func NewCheckpointHook(checkpointer Checkpointer) *CheckpointHook {
	return &CheckpointHook{checkpointer: checkpointer}
}

func (h *CheckpointHook) OnPhaseStart(ctx context.Context, phase Phase, state *WorkflowState) error {
	return h.take(ctx, state, CheckpointReasonPhaseStart)
}

func (h *CheckpointHook) OnPhaseComplete(ctx context.Context, phase Phase, state *WorkflowState, result *PhaseResult) error {
	return h.take(ctx, state, CheckpointReasonPhaseComplete)
}

func (h *CheckpointHook) OnError(ctx context.Context, phase Phase, state *WorkflowState, err error) error {
	return h.take(ctx, state, CheckpointReasonError)
}

func (h *CheckpointHook) take(ctx context.Context, state *WorkflowState, reason CheckpointReason) error {
	if h.checkpointer == nil {
		return nil
	}
	if _, err := h.checkpointer.Checkpoint(ctx, state, reason); err != nil {
		return fmt.Errorf("checkpoint %s failed: %w", reason, err)
	}
	return nil
}

var _ WorkflowHook = (*CheckpointHook)(nil)
