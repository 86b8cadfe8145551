package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/deepnoodle-ai/pipeline"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var (
		promptFlag  string
		engineFlag  string
		idFlag      string
		autoApprove bool
		noInput     bool
	)

	cmd := &cobra.Command{
		Use:   "run [request.yaml]",
		Short: "Start a new workflow",
		Long:  "Start a new workflow from a YAML request file or from flags and drive it\nthrough the pipeline until it reaches a terminal phase.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			request := &pipeline.RunRequest{}
			if len(args) == 1 {
				loaded, err := pipeline.LoadRunRequest(args[0])
				if err != nil {
					return err
				}
				request = loaded
			}
			if promptFlag != "" {
				request.Prompt = promptFlag
			}
			if engineFlag != "" {
				request.Engine = engineFlag
			}
			if idFlag != "" {
				request.ID = idFlag
			}
			if strings.TrimSpace(request.Prompt) == "" {
				return fmt.Errorf("a prompt is required (pass --prompt or a request file)")
			}

			opts := orchestratorOptions{autoApprove: autoApprove, noInput: noInput}
			return executeWorkflow(cmd, ctx, opts, func(runCtx context.Context, orchestrator *pipeline.Orchestrator) (*pipeline.WorkflowState, error) {
				return orchestrator.Run(runCtx, request)
			})
		},
	}

	cmd.Flags().StringVarP(&promptFlag, "prompt", "p", "", "Instruction for the automation engines")
	cmd.Flags().StringVarP(&engineFlag, "engine", "e", "", "Automation engine to use")
	cmd.Flags().StringVar(&idFlag, "id", "", "Explicit workflow id")
	cmd.Flags().BoolVar(&autoApprove, "auto-approve", false, "Skip all approval gates")
	cmd.Flags().BoolVar(&noInput, "no-input", false, "Never prompt for approvals on the terminal")
	return cmd
}
