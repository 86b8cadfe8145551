package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Error kind constants used for error-history classification and matching.
const (
	ErrorKindInvalidTransition = "invalid_transition"
	ErrorKindStateNotFound     = "state_not_found"
	ErrorKindConfiguration     = "configuration"
	ErrorKindAgentFailed       = "agent_failed"
	ErrorKindBuildFailed       = "build_failed"
	ErrorKindQAFailed          = "qa_failed"
	ErrorKindPublishFailed     = "publish_failed"
	ErrorKindApprovalRejected  = "approval_rejected"
	ErrorKindApprovalTimeout   = "approval_timeout"
	ErrorKindFixCyclesExceeded = "fix_cycles_exhausted"
	ErrorKindTimeout           = "timeout"
	ErrorKindCancelled         = "cancelled"
	ErrorKindUnknown           = "error"
)

// ErrorClassifier allows errors to declare their classification. The kind
// string is recorded verbatim in the workflow's error history.
type ErrorClassifier interface {
	ErrorKind() string
}

// ErrWorkflowFinished is returned when resuming or cancelling a workflow
// that already reached a terminal phase.
var ErrWorkflowFinished = errors.New("workflow already reached a terminal phase")

// ErrNoActiveWorkflow is returned by Resume("") when no non-terminal
// workflow exists in the store.
var ErrNoActiveWorkflow = errors.New("no active workflow to resume")

// ErrApprovalUnsupported is returned by notification-only approval hooks
// from RequestApproval. The gate skips such hooks without logging a
// failure.
var ErrApprovalUnsupported = errors.New("approval collection not supported")

// InvalidTransitionError reports an attempt to move between two phases
// with no edge in the transition table. It indicates a logic error in the
// caller, not a runtime condition, and the state is left unmodified.
type InvalidTransitionError struct {
	From Phase
	To   Phase
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid phase transition: %s -> %s", e.From, e.To)
}

func (e *InvalidTransitionError) ErrorKind() string { return ErrorKindInvalidTransition }

// StateNotFoundError reports a load for a workflow id the store does not
// contain.
type StateNotFoundError struct {
	ID string
}

func (e *StateNotFoundError) Error() string {
	return fmt.Sprintf("workflow state not found: %s", e.ID)
}

func (e *StateNotFoundError) ErrorKind() string { return ErrorKindStateNotFound }

// ConfigurationError reports an invalid configuration or run request. It
// is always fatal: the retry controller never retries it.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s", e.Reason)
}

func (e *ConfigurationError) ErrorKind() string { return ErrorKindConfiguration }

// NewConfigurationError creates a ConfigurationError from a format string.
func NewConfigurationError(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

// AgentError is the base failure type for phase executors. Executor
// failures are recoverable by default and eligible for bounded retry.
type AgentError struct {
	Phase   Phase
	Message string
	Err     error
}

func (e *AgentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s executor failed: %s: %v", e.Phase, e.Message, e.Err)
	}
	return fmt.Sprintf("%s executor failed: %s", e.Phase, e.Message)
}

func (e *AgentError) Unwrap() error { return e.Err }

func (e *AgentError) ErrorKind() string { return ErrorKindAgentFailed }

// IsRecoverable marks executor failures as retryable.
func (e *AgentError) IsRecoverable() bool { return true }

// NewAgentError creates an AgentError for the given phase wrapping cause.
func NewAgentError(phase Phase, message string, cause error) *AgentError {
	return &AgentError{Phase: phase, Message: message, Err: cause}
}

// BuildFailedError reports a failed build executor invocation.
type BuildFailedError struct {
	AgentError
}

func (e *BuildFailedError) Unwrap() error { return &e.AgentError }

func (e *BuildFailedError) ErrorKind() string { return ErrorKindBuildFailed }

// NewBuildFailedError creates a BuildFailedError wrapping cause.
func NewBuildFailedError(message string, cause error) *BuildFailedError {
	return &BuildFailedError{AgentError{Phase: PhaseBuild, Message: message, Err: cause}}
}

// QAFailedError reports a failed qa executor invocation.
type QAFailedError struct {
	AgentError
}

func (e *QAFailedError) Unwrap() error { return &e.AgentError }

func (e *QAFailedError) ErrorKind() string { return ErrorKindQAFailed }

// NewQAFailedError creates a QAFailedError wrapping cause.
func NewQAFailedError(message string, cause error) *QAFailedError {
	return &QAFailedError{AgentError{Phase: PhaseQA, Message: message, Err: cause}}
}

// PublishFailedError reports a failed publish executor invocation.
type PublishFailedError struct {
	AgentError
}

func (e *PublishFailedError) Unwrap() error { return &e.AgentError }

func (e *PublishFailedError) ErrorKind() string { return ErrorKindPublishFailed }

// NewPublishFailedError creates a PublishFailedError wrapping cause.
func NewPublishFailedError(message string, cause error) *PublishFailedError {
	return &PublishFailedError{AgentError{Phase: PhasePublish, Message: message, Err: cause}}
}

// ApprovalRejectedError reports a gate decision of rejected. It is
// terminal for the run.
type ApprovalRejectedError struct {
	Gate     string
	Feedback string
}

func (e *ApprovalRejectedError) Error() string {
	if e.Feedback != "" {
		return fmt.Sprintf("approval gate %q rejected: %s", e.Gate, e.Feedback)
	}
	return fmt.Sprintf("approval gate %q rejected", e.Gate)
}

func (e *ApprovalRejectedError) ErrorKind() string { return ErrorKindApprovalRejected }

// ApprovalTimeoutError reports that a gate decision did not arrive within
// the configured window. It halts the run identically to rejection.
type ApprovalTimeoutError struct {
	Gate    string
	Timeout time.Duration
}

func (e *ApprovalTimeoutError) Error() string {
	if e.Timeout > 0 {
		return fmt.Sprintf("approval gate %q timed out after %s", e.Gate, e.Timeout)
	}
	return fmt.Sprintf("approval gate %q timed out", e.Gate)
}

func (e *ApprovalTimeoutError) ErrorKind() string { return ErrorKindApprovalTimeout }

// FixCycleLimitError reports that QA sent the workflow back to build more
// times than the configured budget allows.
type FixCycleLimitError struct {
	Cycles int
	Limit  int
}

func (e *FixCycleLimitError) Error() string {
	return fmt.Sprintf("qa requested rework %d times, budget is %d", e.Cycles, e.Limit)
}

func (e *FixCycleLimitError) ErrorKind() string { return ErrorKindFixCyclesExceeded }

// ErrorKind classifies an arbitrary error into a stable kind string for
// the error history. Typed errors supply their own kind; the remainder is
// classified by shape, with unknown errors defaulting to a generic kind.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	var classifier ErrorClassifier
	if errors.As(err, &classifier) {
		return classifier.ErrorKind()
	}
	if errors.Is(err, context.Canceled) {
		return ErrorKindCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		strings.Contains(strings.ToLower(err.Error()), "timeout") {
		return ErrorKindTimeout
	}
	return ErrorKindUnknown
}

// IsConfigurationError reports whether err carries a ConfigurationError
// anywhere in its chain.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// IsApprovalHalt reports whether err is a terminal gate outcome
// (rejection or expiry).
func IsApprovalHalt(err error) bool {
	var rejected *ApprovalRejectedError
	var expired *ApprovalTimeoutError
	return errors.As(err, &rejected) || errors.As(err, &expired)
}
