package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Gate names used by the built-in phase boundaries.
const (
	// GateConcept guards the design produced by the DESIGN phase.
	GateConcept = "concept"

	// GateQuality guards promotion out of the QA phase.
	GateQuality = "quality"

	// GateRelease guards the final publish step.
	GateRelease = "release"
)

// gateForPhase returns the approval gate evaluated after the given phase
// completes, if any.
func gateForPhase(phase Phase) (string, bool) {
	switch phase {
	case PhaseDesign:
		return GateConcept, true
	case PhaseQA:
		return GateQuality, true
	case PhasePublish:
		return GateRelease, true
	}
	return "", false
}

// ApprovalGate adjudicates human approval boundaries between phases. A
// decision is requested from every registered hook in order and must be
// unanimous; hooks that error are skipped with a warning. With no hooks
// registered the gate approves by default so unattended runs can proceed.
type ApprovalGate struct {
	hooks       []ApprovalHook
	autoApprove bool
	timeout     time.Duration
	logger      *slog.Logger
}

// NewApprovalGate creates a gate consulting the given hooks. A zero timeout
// lets each request block until its hook decides or the run is cancelled.
func NewApprovalGate(hooks []ApprovalHook, autoApprove bool, timeout time.Duration, logger *slog.Logger) *ApprovalGate {
	if logger == nil {
		logger = slog.Default()
	}
	return &ApprovalGate{
		hooks:       hooks,
		autoApprove: autoApprove,
		timeout:     timeout,
		logger:      logger,
	}
}

// Evaluate adjudicates the named gate and records the decision on state.
// It returns nil when the gate approves, *ApprovalRejectedError when a
// hook rejects, and *ApprovalTimeoutError when a decision does not arrive
// in time.
func (g *ApprovalGate) Evaluate(ctx context.Context, state *WorkflowState, gate string) error {
	if g.autoApprove {
		state.RecordApproval(gate, ApprovalApproved, "auto-approve enabled")
		g.logger.Info("approval gate auto-approved",
			"workflow_id", state.ID,
			"gate", gate)
		return nil
	}
	if len(g.hooks) == 0 {
		g.logger.Warn("no approval hook registered, approving gate by default",
			"workflow_id", state.ID,
			"gate", gate)
		state.RecordApproval(gate, ApprovalApproved, "no approval hook registered")
		return nil
	}

	request := &ApprovalRequest{
		Gate:       gate,
		WorkflowID: state.ID,
		Phase:      state.Phase,
		Prompt:     state.Prompt,
		Artifacts:  state.Artifacts[state.Phase.String()],
	}

	var feedback string
	decided := false
	for _, hook := range g.hooks {
		response, err := g.request(ctx, hook, request)
		if err != nil {
			if errors.Is(err, ErrApprovalUnsupported) {
				g.logger.Debug("approval hook does not collect decisions, skipping",
					"gate", gate,
					"hook", fmt.Sprintf("%T", hook))
				continue
			}
			if isApprovalTimeout(err) {
				state.RecordApproval(gate, ApprovalExpired, "approval request timed out")
				g.logger.Error("approval gate expired",
					"workflow_id", state.ID,
					"gate", gate,
					"timeout", g.timeout)
				return &ApprovalTimeoutError{Gate: gate, Timeout: g.timeout}
			}
			if errors.Is(err, context.Canceled) {
				return err
			}
			g.logger.Warn("approval hook failed, skipping",
				"workflow_id", state.ID,
				"gate", gate,
				"hook", fmt.Sprintf("%T", hook),
				"error", err)
			continue
		}
		if !response.Approved {
			state.RecordApproval(gate, ApprovalRejected, response.Feedback)
			g.logger.Info("approval gate rejected",
				"workflow_id", state.ID,
				"gate", gate,
				"feedback", response.Feedback)
			return &ApprovalRejectedError{Gate: gate, Feedback: response.Feedback}
		}
		decided = true
		if response.Feedback != "" {
			feedback = response.Feedback
		}
	}
	if !decided {
		// Every hook abstained or errored out. Treat the gate like an
		// unattended run rather than blocking progress on broken plumbing.
		g.logger.Warn("no approval hook produced a decision, approving gate by default",
			"workflow_id", state.ID,
			"gate", gate)
		state.RecordApproval(gate, ApprovalApproved, "no approval decision produced")
		return nil
	}
	state.RecordApproval(gate, ApprovalApproved, feedback)
	g.logger.Info("approval gate approved",
		"workflow_id", state.ID,
		"gate", gate)
	return nil
}

// request asks a single hook for its decision, applying the configured
// timeout when one is set.
func (g *ApprovalGate) request(ctx context.Context, hook ApprovalHook, request *ApprovalRequest) (*ApprovalResponse, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	response, err := hook.RequestApproval(ctx, request)
	if err != nil {
		return nil, err
	}
	if response == nil {
		return nil, errors.New("approval hook returned no response")
	}
	return response, nil
}

// Notify fans a message out to every approval hook. Delivery failures are
// logged and do not interrupt the caller.
func (g *ApprovalGate) Notify(ctx context.Context, message string, severity Severity) {
	for _, hook := range g.hooks {
		if err := hook.SendNotification(ctx, message, severity); err != nil {
			g.logger.Warn("notification failed",
				"hook", fmt.Sprintf("%T", hook),
				"severity", severity,
				"error", err)
		}
	}
}

func isApprovalTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var timeoutErr *ApprovalTimeoutError
	return errors.As(err, &timeoutErr)
}
