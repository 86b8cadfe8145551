package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileCheckpointerSnapshotIsolation(t *testing.T) {
	checkpointer, err := NewFileCheckpointer(t.TempDir(), 10)
	require.NoError(t, err)
	ctx := context.Background()

	state := NewWorkflowState("run_snap", "prompt", "claude")
	require.NoError(t, state.Transition(PhaseDesign))
	state.MergeArtifacts(PhaseDesign, map[string]any{"concept": "v1"})

	checkpoint, err := checkpointer.Checkpoint(ctx, state, CheckpointReasonPhaseComplete)
	require.NoError(t, err)
	require.NotEmpty(t, checkpoint.ID)
	require.Equal(t, 1, checkpoint.Sequence)
	require.Equal(t, CheckpointReasonPhaseComplete, checkpoint.Reason)

	// Later mutations of the live state must not reach the snapshot.
	state.MergeArtifacts(PhaseDesign, map[string]any{"concept": "v2"})
	require.Equal(t, "v1", checkpoint.State.Artifacts["design"]["concept"])

	loaded, err := checkpointer.LoadCheckpoint(ctx, checkpoint.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Equal(t, "v1", loaded.State.Artifacts["design"]["concept"])
	require.Equal(t, checkpoint.State, loaded.State)
}

func TestFileCheckpointerSequencesAndOrder(t *testing.T) {
	checkpointer, err := NewFileCheckpointer(t.TempDir(), 10)
	require.NoError(t, err)
	ctx := context.Background()

	state := NewWorkflowState("run_seq", "prompt", "")
	reasons := []CheckpointReason{
		CheckpointReasonPhaseStart,
		CheckpointReasonPhaseComplete,
		CheckpointReasonManual,
	}
	for _, reason := range reasons {
		_, err := checkpointer.Checkpoint(ctx, state, reason)
		require.NoError(t, err)
	}

	checkpoints, err := checkpointer.ListCheckpoints(ctx, "run_seq")
	require.NoError(t, err)
	require.Len(t, checkpoints, 3)
	for i, checkpoint := range checkpoints {
		require.Equal(t, i+1, checkpoint.Sequence)
		require.Equal(t, reasons[i], checkpoint.Reason)
	}
}

func TestFileCheckpointerPrunesOldest(t *testing.T) {
	checkpointer, err := NewFileCheckpointer(t.TempDir(), 3)
	require.NoError(t, err)
	ctx := context.Background()

	state := NewWorkflowState("run_prune", "prompt", "")
	for i := 0; i < 5; i++ {
		_, err := checkpointer.Checkpoint(ctx, state, CheckpointReasonManual)
		require.NoError(t, err)
	}

	checkpoints, err := checkpointer.ListCheckpoints(ctx, "run_prune")
	require.NoError(t, err)
	require.Len(t, checkpoints, 3)
	// The oldest two snapshots were removed; sequence numbering continues.
	require.Equal(t, 3, checkpoints[0].Sequence)
	require.Equal(t, 5, checkpoints[2].Sequence)
}

func TestFileCheckpointerRejectsUnknownReason(t *testing.T) {
	checkpointer, err := NewFileCheckpointer(t.TempDir(), 3)
	require.NoError(t, err)

	state := NewWorkflowState("run_reason", "prompt", "")
	_, err = checkpointer.Checkpoint(context.Background(), state, CheckpointReason("whim"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown checkpoint reason")
}

func TestFileCheckpointerLoadMissing(t *testing.T) {
	checkpointer, err := NewFileCheckpointer(t.TempDir(), 3)
	require.NoError(t, err)

	checkpoint, err := checkpointer.LoadCheckpoint(context.Background(), "ckpt_missing")
	require.NoError(t, err)
	require.Nil(t, checkpoint)
}

func TestFileCheckpointerDelete(t *testing.T) {
	checkpointer, err := NewFileCheckpointer(t.TempDir(), 3)
	require.NoError(t, err)
	ctx := context.Background()

	state := NewWorkflowState("run_delete", "prompt", "")
	_, err = checkpointer.Checkpoint(ctx, state, CheckpointReasonManual)
	require.NoError(t, err)

	require.NoError(t, checkpointer.DeleteCheckpoints(ctx, "run_delete"))

	checkpoints, err := checkpointer.ListCheckpoints(ctx, "run_delete")
	require.NoError(t, err)
	require.Empty(t, checkpoints)
}
