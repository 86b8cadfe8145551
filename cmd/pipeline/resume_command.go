package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deepnoodle-ai/pipeline"
)

func newResumeCommand(ctx *commandContext) *cobra.Command {
	var (
		autoApprove bool
		noInput     bool
	)

	cmd := &cobra.Command{
		Use:   "resume [workflow-id]",
		Short: "Resume an interrupted workflow",
		Long:  "Resume a stored workflow from its current phase. Without an id the most\nrecently updated unfinished workflow is selected.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workflowID := ""
			if len(args) == 1 {
				workflowID = args[0]
			}
			opts := orchestratorOptions{autoApprove: autoApprove, noInput: noInput}
			err := executeWorkflow(cmd, ctx, opts, func(runCtx context.Context, orchestrator *pipeline.Orchestrator) (*pipeline.WorkflowState, error) {
				return orchestrator.Resume(runCtx, workflowID)
			})
			if errors.Is(err, pipeline.ErrWorkflowFinished) {
				return fmt.Errorf("workflow %s already finished", workflowID)
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&autoApprove, "auto-approve", false, "Skip all approval gates")
	cmd.Flags().BoolVar(&noInput, "no-input", false, "Never prompt for approvals on the terminal")
	return cmd
}

func newRetryCommand(ctx *commandContext) *cobra.Command {
	var (
		autoApprove bool
		noInput     bool
	)

	cmd := &cobra.Command{
		Use:   "retry <workflow-id>",
		Short: "Re-run the phase a failed workflow died in",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := orchestratorOptions{autoApprove: autoApprove, noInput: noInput}
			return executeWorkflow(cmd, ctx, opts, func(runCtx context.Context, orchestrator *pipeline.Orchestrator) (*pipeline.WorkflowState, error) {
				return orchestrator.RetryPhase(runCtx, args[0])
			})
		},
	}

	cmd.Flags().BoolVar(&autoApprove, "auto-approve", false, "Skip all approval gates")
	cmd.Flags().BoolVar(&noInput, "no-input", false, "Never prompt for approvals on the terminal")
	return cmd
}
