package pipeline

import (
	"errors"
	"testing"

	"github.com/deepnoodle-ai/pipeline/retry"
	"github.com/stretchr/testify/require"
)

func TestRetryPolicyRecoverableFailures(t *testing.T) {
	policy := NewRetryPolicy(2, discardLogger())
	state := NewWorkflowState("run_retry", "prompt", "")
	cause := NewBuildFailedError("compiler crashed", nil)

	// Budget of two grants exactly two retries, then stops.
	require.True(t, policy.ShouldRetry(state, PhaseBuild, cause))
	require.Equal(t, 1, state.RetryCount(PhaseBuild))
	require.True(t, policy.ShouldRetry(state, PhaseBuild, cause))
	require.Equal(t, 2, state.RetryCount(PhaseBuild))
	require.False(t, policy.ShouldRetry(state, PhaseBuild, cause))
	require.Equal(t, 2, state.RetryCount(PhaseBuild))
}

func TestRetryPolicyConfigurationErrorsAreFatal(t *testing.T) {
	policy := NewRetryPolicy(2, discardLogger())
	state := NewWorkflowState("run_cfg", "prompt", "")

	require.False(t, policy.ShouldRetry(state, PhaseDesign, NewConfigurationError("no design command")))
	require.Equal(t, 0, state.RetryCount(PhaseDesign))
}

func TestRetryPolicyApprovalHaltsAreFatal(t *testing.T) {
	policy := NewRetryPolicy(2, discardLogger())
	state := NewWorkflowState("run_halt", "prompt", "")

	require.False(t, policy.ShouldRetry(state, PhaseQA, &ApprovalRejectedError{Gate: GateQuality}))
	require.False(t, policy.ShouldRetry(state, PhaseQA, &ApprovalTimeoutError{Gate: GateQuality}))
}

func TestRetryPolicyNonRecoverableErrorsAreFatal(t *testing.T) {
	policy := NewRetryPolicy(2, discardLogger())
	state := NewWorkflowState("run_fatal", "prompt", "")

	err := retry.NewNonRecoverableError(errors.New("corrupt artifact"))
	require.False(t, policy.ShouldRetry(state, PhaseBuild, err))
	require.Equal(t, 0, state.RetryCount(PhaseBuild))
}

func TestRetryPolicyZeroBudgetDisablesRetries(t *testing.T) {
	policy := NewRetryPolicy(0, discardLogger())
	state := NewWorkflowState("run_zero", "prompt", "")

	require.False(t, policy.ShouldRetry(state, PhaseBuild, NewBuildFailedError("boom", nil)))
}

func TestRetryPolicyDefaults(t *testing.T) {
	require.Equal(t, DefaultMaxRetries, NewRetryPolicy(-1, discardLogger()).MaxRetries())
	require.Equal(t, 5, NewRetryPolicy(5, discardLogger()).MaxRetries())
}

func TestRetryPolicyBudgetIsPerPhase(t *testing.T) {
	policy := NewRetryPolicy(1, discardLogger())
	state := NewWorkflowState("run_phases", "prompt", "")
	cause := NewAgentError(PhaseDesign, "flaky", nil)

	require.True(t, policy.ShouldRetry(state, PhaseDesign, cause))
	require.False(t, policy.ShouldRetry(state, PhaseDesign, cause))

	// A different phase draws from its own budget.
	require.True(t, policy.ShouldRetry(state, PhaseBuild, NewBuildFailedError("flaky", nil)))
}

func TestRetryPolicyNilInputs(t *testing.T) {
	policy := NewRetryPolicy(2, discardLogger())
	state := NewWorkflowState("run_nil", "prompt", "")

	require.False(t, policy.ShouldRetry(state, PhaseBuild, nil))
	require.False(t, policy.ShouldRetry(nil, PhaseBuild, errors.New("x")))
}
