package pipeline

import (
	"context"
	"fmt"
	"log/slog"
)

// Severity grades notifications sent through approval hooks.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// WorkflowHook observes phase lifecycle events. Implementations must be
// fast: hooks run synchronously on the orchestrator's goroutine. A
// returned error is logged and discarded, and a panic is recovered, so a
// broken observer can never stall or corrupt the pipeline.
type WorkflowHook interface {
	OnPhaseStart(ctx context.Context, phase Phase, state *WorkflowState) error
	OnPhaseComplete(ctx context.Context, phase Phase, state *WorkflowState, result *PhaseResult) error
	OnError(ctx context.Context, phase Phase, state *WorkflowState, err error) error
}

// ApprovalHook adjudicates approval gates and carries notifications to
// wherever the decision makers live. The orchestration core has no
// knowledge of how a decision is actually collected.
type ApprovalHook interface {
	// RequestApproval blocks until a decision is made or ctx expires.
	RequestApproval(ctx context.Context, request *ApprovalRequest) (*ApprovalResponse, error)

	// SendNotification delivers an out-of-band message about the run.
	SendNotification(ctx context.Context, message string, severity Severity) error
}

// ApprovalRequest carries the context a decision maker needs to adjudicate
// a gate.
type ApprovalRequest struct {
	Gate       string         `json:"gate"`
	WorkflowID string         `json:"workflow_id"`
	Phase      Phase          `json:"phase"`
	Prompt     string         `json:"prompt"`
	Artifacts  map[string]any `json:"artifacts,omitempty"`
}

// ApprovalResponse is a decision maker's answer to an approval request.
type ApprovalResponse struct {
	Approved bool   `json:"approved"`
	Feedback string `json:"feedback,omitempty"`
}

// BaseWorkflowHook provides a default implementation that does nothing.
// Embed this to implement only the events you care about.
type BaseWorkflowHook struct{}

func (h *BaseWorkflowHook) OnPhaseStart(ctx context.Context, phase Phase, state *WorkflowState) error {
	return nil
}

func (h *BaseWorkflowHook) OnPhaseComplete(ctx context.Context, phase Phase, state *WorkflowState, result *PhaseResult) error {
	return nil
}

func (h *BaseWorkflowHook) OnError(ctx context.Context, phase Phase, state *WorkflowState, err error) error {
	return nil
}

var _ WorkflowHook = (*BaseWorkflowHook)(nil)

// HookDispatcher fans lifecycle events out to registered hooks in
// registration order. Hooks receive a copy of the workflow state, and
// both error returns and panics are isolated, so no hook can prevent the
// remaining hooks from running or mutate orchestration state.
type HookDispatcher struct {
	hooks  []WorkflowHook
	logger *slog.Logger
}

// NewHookDispatcher creates a dispatcher over the given hooks.
func NewHookDispatcher(logger *slog.Logger, hooks ...WorkflowHook) *HookDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &HookDispatcher{hooks: hooks, logger: logger}
}

// Add appends a hook to the dispatch order.
func (d *HookDispatcher) Add(hook WorkflowHook) {
	if hook != nil {
		d.hooks = append(d.hooks, hook)
	}
}

// Len returns the number of registered hooks.
func (d *HookDispatcher) Len() int {
	return len(d.hooks)
}

// PhaseStart dispatches OnPhaseStart to every hook.
func (d *HookDispatcher) PhaseStart(ctx context.Context, phase Phase, state *WorkflowState) {
	snapshot := state.Clone()
	d.dispatch(ctx, "on_phase_start", phase, func(hook WorkflowHook) error {
		return hook.OnPhaseStart(ctx, phase, snapshot)
	})
}

// PhaseComplete dispatches OnPhaseComplete to every hook.
func (d *HookDispatcher) PhaseComplete(ctx context.Context, phase Phase, state *WorkflowState, result *PhaseResult) {
	snapshot := state.Clone()
	d.dispatch(ctx, "on_phase_complete", phase, func(hook WorkflowHook) error {
		return hook.OnPhaseComplete(ctx, phase, snapshot, result)
	})
}

// Error dispatches OnError to every hook.
func (d *HookDispatcher) Error(ctx context.Context, phase Phase, state *WorkflowState, hookErr error) {
	snapshot := state.Clone()
	d.dispatch(ctx, "on_error", phase, func(hook WorkflowHook) error {
		return hook.OnError(ctx, phase, snapshot, hookErr)
	})
}

func (d *HookDispatcher) dispatch(ctx context.Context, event string, phase Phase, invoke func(WorkflowHook) error) {
	for _, hook := range d.hooks {
		if err := d.safeInvoke(hook, invoke); err != nil {
			d.logger.Warn("workflow hook failed",
				"event", event,
				"phase", phase,
				"hook", fmt.Sprintf("%T", hook),
				"error", err)
		}
	}
}

// safeInvoke converts a hook panic into an error so dispatch continues.
func (d *HookDispatcher) safeInvoke(hook WorkflowHook, invoke func(WorkflowHook) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("hook panicked: %v", r)
		}
	}()
	return invoke(hook)
}
