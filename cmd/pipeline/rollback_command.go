package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRollbackCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "rollback <checkpoint-id>",
		Short: "Restore a workflow to a checkpointed state",
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

			state, err := orchestrator.RollbackToCheckpoint(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "workflow %s restored to %s\n", state.ID, state.Phase)
			fmt.Fprintf(cmd.OutOrStdout(), "resume it with: pipeline resume %s\n", state.ID)
			return nil
		},
	}
}
