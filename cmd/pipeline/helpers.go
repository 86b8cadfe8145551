package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/deepnoodle-ai/pipeline"
)

// executeWorkflow owns the shared plumbing for commands that drive a
// workflow: single-instance lock, stores, metrics endpoint, signal
// handling, and final reporting.
func executeWorkflow(cmd *cobra.Command, ctx *commandContext, opts orchestratorOptions, invoke func(context.Context, *pipeline.Orchestrator) (*pipeline.WorkflowState, error)) error {
	lock, err := ctx.acquireLock()
	if err != nil {
		return err
	}
	defer func() { _ = lock.Unlock() }()

	st, err := ctx.openStores()
	if err != nil {
		return err
	}
	defer func() { _ = st.close() }()

	stopMetrics, err := ctx.startMetrics()
	if err != nil {
		return err
	}
	defer stopMetrics()

	orchestrator, err := ctx.buildOrchestrator(st, opts)
	if err != nil {
		return err
	}

	runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	state, err := invoke(runCtx, orchestrator)
	if err != nil {
		return err
	}
	return reportOutcome(cmd, state)
}

// reportOutcome prints the terminal phase and maps everything but a
// completed run to a non-zero exit.
func reportOutcome(cmd *cobra.Command, state *pipeline.WorkflowState) error {
	switch state.Phase {
	case pipeline.PhaseComplete:
		fmt.Fprintf(cmd.OutOrStdout(), "workflow %s completed\n", state.ID)
		return nil
	case pipeline.PhaseCancelled:
		return fmt.Errorf("workflow %s cancelled", state.ID)
	case pipeline.PhaseFailed:
		if last := state.LastError(); last != nil {
			return fmt.Errorf("workflow %s failed in %s: %s", state.ID, last.Phase, last.Message)
		}
		return fmt.Errorf("workflow %s failed", state.ID)
	default:
		return fmt.Errorf("workflow %s stopped in %s", state.ID, state.Phase)
	}
}

func formatTimestamp(value time.Time) string {
	if value.IsZero() {
		return "-"
	}
	return value.Local().Format("2006-01-02 15:04:05")
}

func formatAge(value time.Time) string {
	if value.IsZero() {
		return "-"
	}
	age := time.Since(value)
	switch {
	case age < time.Minute:
		return fmt.Sprintf("%ds", int(age.Seconds()))
	case age < time.Hour:
		return fmt.Sprintf("%dm", int(age.Minutes()))
	case age < 24*time.Hour:
		return fmt.Sprintf("%dh", int(age.Hours()))
	default:
		return fmt.Sprintf("%dd", int(age.Hours()/24))
	}
}
