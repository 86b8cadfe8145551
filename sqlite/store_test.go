package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/deepnoodle-ai/pipeline"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T, maxCheckpoints int) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "pipeline.db"), maxCheckpoints)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})
	return store
}

func TestOpenCreatesParentDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "pipeline.db")
	store, err := Open(path, 0)
	require.NoError(t, err)
	defer store.Close()
	require.Equal(t, path, store.Path())
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.db")

	store, err := Open(path, 10)
	require.NoError(t, err)
	state := pipeline.NewWorkflowState("run_persisted", "survive a reopen", "")
	require.NoError(t, store.Save(context.Background(), state))
	require.NoError(t, store.Close())

	// Reopening applies migrations again without clobbering data.
	reopened, err := Open(path, 10)
	require.NoError(t, err)
	defer reopened.Close()

	loaded, err := reopened.Load(context.Background(), "run_persisted")
	require.NoError(t, err)
	require.Equal(t, state, loaded)
}

func TestStateRoundTrip(t *testing.T) {
	store := openTestStore(t, 0)
	ctx := context.Background()

	state := pipeline.NewWorkflowState("run_full", "make a video", "claude")
	require.NoError(t, state.Transition(pipeline.PhaseDesign))
	state.MergeArtifacts(pipeline.PhaseDesign, map[string]any{"concept": "storyboard v2"})
	state.RecordApproval(pipeline.GateConcept, pipeline.ApprovalApproved, "looks right")
	state.RecordError(pipeline.PhaseDesign, pipeline.ErrorKindAgentFailed, "first attempt flaked")
	state.IncrementRetry(pipeline.PhaseDesign)

	require.NoError(t, store.Save(ctx, state))

	loaded, err := store.Load(ctx, "run_full")
	require.NoError(t, err)
	require.Equal(t, state, loaded)
}

func TestStateUpsertOverwrites(t *testing.T) {
	store := openTestStore(t, 0)
	ctx := context.Background()

	state := pipeline.NewWorkflowState("run_upsert", "evolving", "")
	require.NoError(t, store.Save(ctx, state))

	require.NoError(t, state.Transition(pipeline.PhaseDesign))
	state.MergeArtifacts(pipeline.PhaseDesign, map[string]any{"concept": "v2"})
	require.NoError(t, store.Save(ctx, state))

	loaded, err := store.Load(ctx, "run_upsert")
	require.NoError(t, err)
	require.Equal(t, pipeline.PhaseDesign, loaded.Phase)
	require.Equal(t, "v2", loaded.Artifacts["design"]["concept"])
}

func TestStateNotFound(t *testing.T) {
	store := openTestStore(t, 0)

	_, err := store.Load(context.Background(), "run_missing")
	var notFound *pipeline.StateNotFoundError
	require.ErrorAs(t, err, &notFound)
	require.Equal(t, "run_missing", notFound.ID)
}

func TestStateRejectsUnsafeIDs(t *testing.T) {
	store := openTestStore(t, 0)
	ctx := context.Background()

	for _, id := range []string{"", "../escape", "a/b", "run abc"} {
		state := pipeline.NewWorkflowState(id, "prompt", "")
		require.Error(t, store.Save(ctx, state), "save %q", id)
		_, err := store.Load(ctx, id)
		require.Error(t, err, "load %q", id)
	}
}

func TestStateLatestAndList(t *testing.T) {
	store := openTestStore(t, 0)
	ctx := context.Background()

	older := pipeline.NewWorkflowState("run_older", "first", "")
	older.UpdatedAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, store.Save(ctx, older))

	newer := pipeline.NewWorkflowState("run_newer", "second", "claude")
	require.NoError(t, store.Save(ctx, newer))

	latest, err := store.Latest(ctx)
	require.NoError(t, err)
	require.Equal(t, "run_newer", latest.ID)

	summaries, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	require.Equal(t, "run_newer", summaries[0].ID)
	require.Equal(t, "run_older", summaries[1].ID)
	require.Equal(t, "claude", summaries[0].Engine)
	require.Equal(t, pipeline.PhaseInit, summaries[0].Phase)
}

func TestStateLatestEmpty(t *testing.T) {
	store := openTestStore(t, 0)

	latest, err := store.Latest(context.Background())
	require.NoError(t, err)
	require.Nil(t, latest)
}

func TestStateDelete(t *testing.T) {
	store := openTestStore(t, 0)
	ctx := context.Background()

	state := pipeline.NewWorkflowState("run_gone", "temporary", "")
	require.NoError(t, store.Save(ctx, state))
	require.NoError(t, store.Delete(ctx, "run_gone"))

	_, err := store.Load(ctx, "run_gone")
	var notFound *pipeline.StateNotFoundError
	require.ErrorAs(t, err, &notFound)

	// Deleting an id that no longer exists is not an error.
	require.NoError(t, store.Delete(ctx, "run_gone"))
}

func TestStateCleanupOlderThan(t *testing.T) {
	store := openTestStore(t, 0)
	ctx := context.Background()

	oldFinished := pipeline.NewWorkflowState("run_old_done", "ancient", "")
	oldFinished.Phase = pipeline.PhaseComplete
	oldFinished.UpdatedAt = time.Now().UTC().Add(-2 * time.Hour)
	require.NoError(t, store.Save(ctx, oldFinished))

	oldActive := pipeline.NewWorkflowState("run_old_active", "stalled but alive", "")
	oldActive.Phase = pipeline.PhaseBuild
	oldActive.UpdatedAt = time.Now().UTC().Add(-2 * time.Hour)
	require.NoError(t, store.Save(ctx, oldActive))

	freshFinished := pipeline.NewWorkflowState("run_fresh_done", "just failed", "")
	freshFinished.Phase = pipeline.PhaseFailed
	require.NoError(t, store.Save(ctx, freshFinished))

	removed, err := store.CleanupOlderThan(ctx, time.Hour)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	_, err = store.Load(ctx, "run_old_done")
	require.Error(t, err)

	// In-flight workflows are never garbage collected.
	_, err = store.Load(ctx, "run_old_active")
	require.NoError(t, err)
	_, err = store.Load(ctx, "run_fresh_done")
	require.NoError(t, err)
}

func TestCheckpointSequencesAndPruning(t *testing.T) {
	store := openTestStore(t, 3)
	ctx := context.Background()

	state := pipeline.NewWorkflowState("run_ckpt", "snapshot me", "")
	for i := 0; i < 5; i++ {
		state.MergeArtifacts(pipeline.PhaseDesign, map[string]any{"revision": string(rune('a' + i))})
		_, err := store.Checkpoint(ctx, state, pipeline.CheckpointReasonManual)
		require.NoError(t, err)
	}

	checkpoints, err := store.ListCheckpoints(ctx, "run_ckpt")
	require.NoError(t, err)
	require.Len(t, checkpoints, 3)

	// The oldest snapshots were pruned; sequences keep counting up.
	require.Equal(t, 3, checkpoints[0].Sequence)
	require.Equal(t, 4, checkpoints[1].Sequence)
	require.Equal(t, 5, checkpoints[2].Sequence)
	require.Equal(t, "e", checkpoints[2].State.Artifacts["design"]["revision"])
}

func TestCheckpointSnapshotIsolation(t *testing.T) {
	store := openTestStore(t, 0)
	ctx := context.Background()

	state := pipeline.NewWorkflowState("run_iso", "keep the original", "")
	state.MergeArtifacts(pipeline.PhaseDesign, map[string]any{"concept": "v1"})

	checkpoint, err := store.Checkpoint(ctx, state, pipeline.CheckpointReasonPhaseComplete)
	require.NoError(t, err)

	// Later mutations must not leak into the stored snapshot.
	state.MergeArtifacts(pipeline.PhaseDesign, map[string]any{"concept": "v2"})

	loaded, err := store.LoadCheckpoint(ctx, checkpoint.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Equal(t, "v1", loaded.State.Artifacts["design"]["concept"])
	require.Equal(t, pipeline.CheckpointReasonPhaseComplete, loaded.Reason)
	require.Equal(t, checkpoint.Sequence, loaded.Sequence)
}

func TestCheckpointRejectsUnknownReason(t *testing.T) {
	store := openTestStore(t, 0)

	state := pipeline.NewWorkflowState("run_reason", "prompt", "")
	_, err := store.Checkpoint(context.Background(), state, pipeline.CheckpointReason("vibes"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid checkpoint reason")
}

func TestLoadCheckpointMissing(t *testing.T) {
	store := openTestStore(t, 0)

	checkpoint, err := store.LoadCheckpoint(context.Background(), "ckpt_missing")
	require.NoError(t, err)
	require.Nil(t, checkpoint)
}

func TestDeleteCheckpoints(t *testing.T) {
	store := openTestStore(t, 0)
	ctx := context.Background()

	state := pipeline.NewWorkflowState("run_wipe", "prompt", "")
	_, err := store.Checkpoint(ctx, state, pipeline.CheckpointReasonManual)
	require.NoError(t, err)
	_, err = store.Checkpoint(ctx, state, pipeline.CheckpointReasonError)
	require.NoError(t, err)

	require.NoError(t, store.DeleteCheckpoints(ctx, "run_wipe"))

	checkpoints, err := store.ListCheckpoints(ctx, "run_wipe")
	require.NoError(t, err)
	require.Empty(t, checkpoints)
}

func TestJournalAppendAndEvents(t *testing.T) {
	store := openTestStore(t, 0)
	ctx := context.Background()

	events := []*pipeline.PhaseEvent{
		{
			WorkflowID: "run_journal",
			Event:      pipeline.JournalEventPhaseStart,
			Phase:      pipeline.PhaseDesign,
			Timestamp:  time.Now().UTC(),
		},
		{
			WorkflowID: "run_journal",
			Event:      pipeline.JournalEventPhaseComplete,
			Phase:      pipeline.PhaseDesign,
			Artifacts:  map[string]any{"concept": "v1"},
			Timestamp:  time.Now().UTC(),
		},
		{
			WorkflowID: "run_journal",
			Event:      pipeline.JournalEventError,
			Phase:      pipeline.PhaseBuild,
			Kind:       pipeline.ErrorKindBuildFailed,
			Message:    "renderer crashed",
			Timestamp:  time.Now().UTC(),
		},
	}
	for _, event := range events {
		require.NoError(t, store.Append(ctx, event))
	}

	replayed, err := store.Events(ctx, "run_journal")
	require.NoError(t, err)
	require.Equal(t, events, replayed)
}

func TestJournalStampsMissingTimestamps(t *testing.T) {
	store := openTestStore(t, 0)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, &pipeline.PhaseEvent{
		WorkflowID: "run_stamp",
		Event:      pipeline.JournalEventPhaseStart,
		Phase:      pipeline.PhaseInit,
	}))

	events, err := store.Events(ctx, "run_stamp")
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.False(t, events[0].Timestamp.IsZero())
}

func TestJournalEventsForUnknownWorkflow(t *testing.T) {
	store := openTestStore(t, 0)

	events, err := store.Events(context.Background(), "run_silent")
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestSingleDatabaseServesAllRoles(t *testing.T) {
	store := openTestStore(t, 0)
	ctx := context.Background()

	state := pipeline.NewWorkflowState("run_all", "one file to rule them", "")
	require.NoError(t, store.Save(ctx, state))
	_, err := store.Checkpoint(ctx, state, pipeline.CheckpointReasonPhaseStart)
	require.NoError(t, err)
	require.NoError(t, store.Append(ctx, &pipeline.PhaseEvent{
		WorkflowID: "run_all",
		Event:      pipeline.JournalEventPhaseStart,
		Phase:      pipeline.PhaseInit,
		Timestamp:  time.Now().UTC(),
	}))

	loaded, err := store.Load(ctx, "run_all")
	require.NoError(t, err)
	require.Equal(t, state, loaded)

	checkpoints, err := store.ListCheckpoints(ctx, "run_all")
	require.NoError(t, err)
	require.Len(t, checkpoints, 1)

	events, err := store.Events(ctx, "run_all")
	require.NoError(t, err)
	require.Len(t, events, 1)
}
