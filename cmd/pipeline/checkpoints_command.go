package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newCheckpointsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "checkpoints <workflow-id>",
		Short: "List a workflow's checkpoints",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := ctx.openStores()
			if err != nil {
				return err
			}
			defer func() { _ = st.close() }()

			checkpoints, err := st.checkpointer.ListCheckpoints(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(checkpoints) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No checkpoints found")
				return nil
			}

			rows := make([][]string, 0, len(checkpoints))
			for _, checkpoint := range checkpoints {
				rows = append(rows, []string{
					strconv.Itoa(checkpoint.Sequence),
					checkpoint.ID,
					string(checkpoint.Reason),
					checkpoint.State.Phase.String(),
					formatTimestamp(checkpoint.CreatedAt),
				})
			}
			table := renderTable(
				[]string{"Seq", "ID", "Reason", "Phase", "Created"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
			)
			fmt.Fprint(cmd.OutOrStdout(), table)
			return nil
		},
	}
}
