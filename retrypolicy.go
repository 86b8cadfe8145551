package pipeline

import (
	"log/slog"

	"github.com/deepnoodle-ai/pipeline/retry"
)

// DefaultMaxRetries is the number of times a failed phase is re-run
// before the workflow is declared failed.
const DefaultMaxRetries = 2

// RetryPolicy decides whether a failed phase execution should be attempted
// again. Only recoverable executor failures are retried; configuration
// errors and rejections are always fatal regardless of the budget.
type RetryPolicy struct {
	maxRetries int
	logger     *slog.Logger
}

// NewRetryPolicy creates a policy allowing up to maxRetries re-runs per
// phase. A negative value selects DefaultMaxRetries; zero disables
// retries entirely.
func NewRetryPolicy(maxRetries int, logger *slog.Logger) *RetryPolicy {
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RetryPolicy{maxRetries: maxRetries, logger: logger}
}

// MaxRetries returns the per-phase retry budget.
func (p *RetryPolicy) MaxRetries() int {
	return p.maxRetries
}

// ShouldRetry reports whether phase may be re-executed after err. When it
// returns true one unit of the phase's budget has been consumed and the
// state's retry counter reflects the upcoming attempt.
func (p *RetryPolicy) ShouldRetry(state *WorkflowState, phase Phase, err error) bool {
	if err == nil || state == nil {
		return false
	}
	if IsConfigurationError(err) {
		p.logger.Error("configuration error is not retryable",
			"workflow_id", state.ID,
			"phase", phase,
			"error", err)
		return false
	}
	if IsApprovalHalt(err) {
		return false
	}
	if !retry.IsRecoverable(err) {
		p.logger.Error("phase failed with non-recoverable error",
			"workflow_id", state.ID,
			"phase", phase,
			"error", err)
		return false
	}
	used := state.RetryCount(phase)
	if used >= p.maxRetries {
		p.logger.Error("phase retry budget exhausted",
			"workflow_id", state.ID,
			"phase", phase,
			"retries", used,
			"max_retries", p.maxRetries)
		return false
	}
	attempt := state.IncrementRetry(phase)
	p.logger.Warn("retrying phase",
		"workflow_id", state.ID,
		"phase", phase,
		"attempt", attempt,
		"max_retries", p.maxRetries,
		"error", err)
	return true
}
