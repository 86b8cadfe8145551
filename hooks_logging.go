package pipeline

import (
	"context"
	"log/slog"
)

// LoggingHook is the built-in observer that reports phase lifecycle events
// through structured logging. It is registered by default on every
// orchestrator unless default hooks are suppressed.
type LoggingHook struct {
	logger *slog.Logger
}

// NewLoggingHook creates a logging hook. A nil logger falls back to
// slog.Default().
func NewLoggingHook(logger *slog.Logger) *LoggingHook {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingHook{logger: logger}
}

func (h *LoggingHook) OnPhaseStart(ctx context.Context, phase Phase, state *WorkflowState) error {
	h.logger.Info("phase started",
		"workflow_id", state.ID,
		"phase", phase,
		"retry_count", state.RetryCount(phase))
	return nil
}

func (h *LoggingHook) OnPhaseComplete(ctx context.Context, phase Phase, state *WorkflowState, result *PhaseResult) error {
	attrs := []any{
		"workflow_id", state.ID,
		"phase", phase,
	}
	if result != nil {
		attrs = append(attrs, "artifacts", len(result.Artifacts))
		if result.Rework {
			attrs = append(attrs, "rework", true)
		}
	}
	h.logger.Info("phase completed", attrs...)
	return nil
}

func (h *LoggingHook) OnError(ctx context.Context, phase Phase, state *WorkflowState, err error) error {
	h.logger.Error("phase failed",
		"workflow_id", state.ID,
		"phase", phase,
		"kind", ErrorKind(err),
		"retry_count", state.RetryCount(phase),
		"error", err)
	return nil
}

var _ WorkflowHook = (*LoggingHook)(nil)
