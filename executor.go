package pipeline

import (
	"context"
)

// PhaseResult is what a phase executor hands back on success.
type PhaseResult struct {
	// Artifacts describes the produced output (paths, metadata). The
	// orchestrator merges it into the workflow state under the phase name
	// without interpreting the payload.
	Artifacts map[string]any `json:"artifacts,omitempty"`

	// Feedback is an optional human-readable note about the outcome.
	Feedback string `json:"feedback,omitempty"`

	// Rework, returned by the qa executor, sends the pipeline back to
	// build for another fix cycle instead of advancing to publish.
	Rework bool `json:"rework,omitempty"`
}

// PhaseExecutor performs the work of a single pipeline phase. The state is
// a read-only copy of the current workflow; results flow back through the
// returned PhaseResult. Failures should be typed (AgentError or one of its
// subtypes) so the retry controller can classify them.
type PhaseExecutor interface {
	Execute(ctx context.Context, state *WorkflowState) (*PhaseResult, error)
}

// PhaseExecutorFunc adapts a function for use as a PhaseExecutor.
type PhaseExecutorFunc func(ctx context.Context, state *WorkflowState) (*PhaseResult, error)

func (f PhaseExecutorFunc) Execute(ctx context.Context, state *WorkflowState) (*PhaseResult, error) {
	return f(ctx, state)
}

// ExecutorProvider resolves the executor for a phase. The orchestrator
// calls it lazily on first use, so a run that never reaches publish never
// constructs the publish executor.
type ExecutorProvider interface {
	ExecutorForPhase(phase Phase) (PhaseExecutor, error)
}

// ExecutorMap is the simplest provider: a fixed mapping from phase to
// executor.
type ExecutorMap map[Phase]PhaseExecutor

func (m ExecutorMap) ExecutorForPhase(phase Phase) (PhaseExecutor, error) {
	executor, ok := m[phase]
	if !ok || executor == nil {
		return nil, NewConfigurationError("no executor registered for phase %q", phase)
	}
	return executor, nil
}

// ExecutorProviderFunc adapts a function for use as an ExecutorProvider.
type ExecutorProviderFunc func(phase Phase) (PhaseExecutor, error)

func (f ExecutorProviderFunc) ExecutorForPhase(phase Phase) (PhaseExecutor, error) {
	return f(phase)
}

var (
	_ PhaseExecutor    = (PhaseExecutorFunc)(nil)
	_ ExecutorProvider = (ExecutorMap)(nil)
	_ ExecutorProvider = (ExecutorProviderFunc)(nil)
)
