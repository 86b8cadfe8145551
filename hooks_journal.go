package pipeline

import (
	"context"
	"time"
)

// JournalHook feeds phase lifecycle events into a Journal. Registered by
// default when the orchestrator is configured with a journal.
type JournalHook struct {
	journal Journal
}

// NewJournalHook creates a journaling hook backed by the given journal.
func NewJournalHook(journal Journal) *JournalHook {
	return &JournalHook{journal: journal}
}

func (h *JournalHook) OnPhaseStart(ctx context.Context, phase Phase, state *WorkflowState) error {
	return h.append(ctx, state.ID, &PhaseEvent{
		Event: JournalEventPhaseStart,
		Phase: phase,
	})
}

func (h *JournalHook) OnPhaseComplete(ctx context.Context, phase Phase, state *WorkflowState, result *PhaseResult) error {
	event := &PhaseEvent{
		Event: JournalEventPhaseComplete,
		Phase: phase,
	}
	if result != nil {
		event.Artifacts = result.Artifacts
		event.Message = result.Feedback
	}
	return h.append(ctx, state.ID, event)
}

func (h *JournalHook) OnError(ctx context.Context, phase Phase, state *WorkflowState, err error) error {
	return h.append(ctx, state.ID, &PhaseEvent{
		Event:   JournalEventError,
		Phase:   phase,
		Kind:    ErrorKind(err),
		Message: err.Error(),
	})
}

func (h *JournalHook) append(ctx context.Context, workflowID string, event *PhaseEvent) error {
	if h.journal == nil {
		return nil
	}
	event.WorkflowID = workflowID
	event.Timestamp = time.Now().UTC()
	return h.journal.Append(ctx, event)
}

var _ WorkflowHook = (*JournalHook)(nil)
