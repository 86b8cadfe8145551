package pipeline

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewWorkflowState(t *testing.T) {
	state := NewWorkflowState("run_abc", "write a haiku", "claude")

	require.Equal(t, "run_abc", state.ID)
	require.Equal(t, PhaseInit, state.Phase)
	require.Equal(t, "write a haiku", state.Prompt)
	require.Equal(t, "claude", state.Engine)
	require.Equal(t, StateSchemaVersion, state.SchemaVersion)
	require.NotNil(t, state.Artifacts)
	require.NotNil(t, state.Approvals)
	require.NotNil(t, state.RetryCounts)
	require.Empty(t, state.ErrorHistory)
	require.False(t, state.CreatedAt.IsZero())
	require.Equal(t, state.CreatedAt, state.UpdatedAt)
}

func TestStateTransition(t *testing.T) {
	t.Run("legal edge advances and touches", func(t *testing.T) {
		state := NewWorkflowState("run_abc", "prompt", "")
		before := state.UpdatedAt

		require.NoError(t, state.Transition(PhaseDesign))
		require.Equal(t, PhaseDesign, state.Phase)
		require.False(t, state.UpdatedAt.Before(before))
	})

	t.Run("illegal edge leaves the state unmodified", func(t *testing.T) {
		state := NewWorkflowState("run_abc", "prompt", "")
		require.NoError(t, state.Transition(PhaseDesign))
		snapshot := state.Clone()

		err := state.Transition(PhaseQA)
		require.Error(t, err)

		var invalid *InvalidTransitionError
		require.ErrorAs(t, err, &invalid)
		require.Equal(t, PhaseDesign, invalid.From)
		require.Equal(t, PhaseQA, invalid.To)
		require.Equal(t, snapshot, state)
	})

	t.Run("terminal states accept no transitions", func(t *testing.T) {
		state := NewWorkflowState("run_abc", "prompt", "")
		require.NoError(t, state.Transition(PhaseCancelled))
		require.Error(t, state.Transition(PhaseDesign))
		require.Error(t, state.Transition(PhaseCancelled))
		require.True(t, state.Terminal())
	})
}

func TestStateCloneIsolation(t *testing.T) {
	state := NewWorkflowState("run_abc", "prompt", "claude")
	state.MergeArtifacts(PhaseDesign, map[string]any{"concept": "v1"})
	state.RecordApproval(GateConcept, ApprovalApproved, "ship it")
	state.IncrementRetry(PhaseBuild)
	state.RecordError(PhaseBuild, ErrorKindBuildFailed, "compile error")

	clone := state.Clone()
	require.Equal(t, state, clone)

	// Mutating the original must not show through the clone.
	state.MergeArtifacts(PhaseDesign, map[string]any{"concept": "v2"})
	state.Approvals[GateConcept].Feedback = "changed"
	state.IncrementRetry(PhaseBuild)
	state.RecordError(PhaseQA, ErrorKindQAFailed, "later failure")

	require.Equal(t, "v1", clone.Artifacts["design"]["concept"])
	require.Equal(t, "ship it", clone.Approvals[GateConcept].Feedback)
	require.Equal(t, 1, clone.RetryCount(PhaseBuild))
	require.Len(t, clone.ErrorHistory, 1)
}

func TestStateJSONRoundTrip(t *testing.T) {
	state := NewWorkflowState("run_abc", "prompt", "claude")
	require.NoError(t, state.Transition(PhaseDesign))
	state.MergeArtifacts(PhaseDesign, map[string]any{"concept": "v1"})
	state.RecordError(PhaseDesign, ErrorKindAgentFailed, "transient")
	state.RecordApproval(GateConcept, ApprovalApproved, "")

	encoded, err := json.Marshal(state)
	require.NoError(t, err)

	var decoded WorkflowState
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	require.Equal(t, state.ID, decoded.ID)
	require.Equal(t, state.Phase, decoded.Phase)
	require.Equal(t, state.Artifacts, decoded.Artifacts)
	require.Equal(t, state.Approvals, decoded.Approvals)
	require.Equal(t, state.ErrorHistory, decoded.ErrorHistory)
	require.True(t, state.UpdatedAt.Equal(decoded.UpdatedAt))
}

func TestMergeArtifacts(t *testing.T) {
	state := NewWorkflowState("run_abc", "prompt", "")

	state.MergeArtifacts(PhaseBuild, map[string]any{"output": "a", "path": "/tmp/a"})
	state.MergeArtifacts(PhaseBuild, map[string]any{"output": "b"})
	state.MergeArtifacts(PhaseQA, nil)

	require.Equal(t, "b", state.Artifacts["build"]["output"])
	require.Equal(t, "/tmp/a", state.Artifacts["build"]["path"])
	_, exists := state.Artifacts["qa"]
	require.False(t, exists)
}

func TestRetryCounters(t *testing.T) {
	state := NewWorkflowState("run_abc", "prompt", "")

	require.Equal(t, 0, state.RetryCount(PhaseBuild))
	require.Equal(t, 1, state.IncrementRetry(PhaseBuild))
	require.Equal(t, 2, state.IncrementRetry(PhaseBuild))
	require.Equal(t, 1, state.IncrementRetry(PhaseQA))

	state.ResetRetries(PhaseBuild, PhaseQA)
	require.Equal(t, 0, state.RetryCount(PhaseBuild))
	require.Equal(t, 0, state.RetryCount(PhaseQA))
}

func TestErrorHistoryAppendOnly(t *testing.T) {
	state := NewWorkflowState("run_abc", "prompt", "")
	require.Nil(t, state.LastError())

	state.RecordError(PhaseDesign, ErrorKindAgentFailed, "first")
	state.RecordError(PhaseBuild, ErrorKindBuildFailed, "second")

	require.Len(t, state.ErrorHistory, 2)
	require.Equal(t, "first", state.ErrorHistory[0].Message)
	last := state.LastError()
	require.NotNil(t, last)
	require.Equal(t, PhaseBuild, last.Phase)
	require.Equal(t, "second", last.Message)
	require.False(t, last.Timestamp.IsZero())
}

func TestStateValidate(t *testing.T) {
	state := NewWorkflowState("run_abc", "prompt", "")
	require.NoError(t, state.Validate())

	missing := &WorkflowState{Phase: PhaseInit}
	require.Error(t, missing.Validate())

	badPhase := NewWorkflowState("run_abc", "prompt", "")
	badPhase.Phase = Phase("limbo")
	require.Error(t, badPhase.Validate())

	future := NewWorkflowState("run_abc", "prompt", "")
	future.SchemaVersion = StateSchemaVersion + 1
	require.Error(t, future.Validate())
}

func TestSummaryAggregates(t *testing.T) {
	state := NewWorkflowState("run_abc", "prompt", "claude")
	state.IncrementRetry(PhaseBuild)
	state.IncrementRetry(PhaseQA)
	state.RecordError(PhaseBuild, ErrorKindBuildFailed, "x")

	summary := state.Summary()
	require.Equal(t, "run_abc", summary.ID)
	require.Equal(t, 2, summary.Retries)
	require.Equal(t, 1, summary.Errors)
	require.WithinDuration(t, time.Now().UTC(), summary.UpdatedAt, time.Minute)
}
