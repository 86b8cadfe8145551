package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <workflow-id>",
		Short: "Cancel a stored workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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

			orchestrator, err := ctx.buildOrchestrator(st, orchestratorOptions{noInput: true})
			if err != nil {
				return err
			}

			state, err := orchestrator.CancelWorkflow(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "workflow %s cancelled\n", state.ID)
			return nil
		},
	}
}
