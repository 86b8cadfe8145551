package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newCleanupCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration
	var deleteID string

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete finished workflows",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := ctx.openStores()
			if err != nil {
				return err
			}
			defer func() { _ = st.close() }()

			out := cmd.OutOrStdout()
			if deleteID != "" {
				if err := st.store.Delete(cmd.Context(), deleteID); err != nil {
					return err
				}
				if err := st.checkpointer.DeleteCheckpoints(cmd.Context(), deleteID); err != nil {
					return err
				}
				fmt.Fprintf(out, "deleted workflow %s\n", deleteID)
				return nil
			}

			removed, err := st.store.CleanupOlderThan(cmd.Context(), olderThan)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "removed %d finished workflows\n", removed)
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "Remove finished workflows not updated within this window")
	cmd.Flags().StringVar(&deleteID, "id", "", "Delete one workflow and its checkpoints regardless of age")
	return cmd
}
