package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newListCommand(ctx *commandContext) *cobra.Command {
	var activeOnly bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored workflows",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := ctx.openStores()
			if err != nil {
				return err
			}
			defer func() { _ = st.close() }()

			summaries, err := st.store.List(cmd.Context())
			if err != nil {
				return err
			}
			if activeOnly {
				filtered := summaries[:0]
				for _, summary := range summaries {
					if !summary.Phase.Terminal() {
						filtered = append(filtered, summary)
					}
				}
				summaries = filtered
			}
			if len(summaries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No workflows found")
				return nil
			}

			rows := make([][]string, 0, len(summaries))
			for _, summary := range summaries {
				rows = append(rows, []string{
					summary.ID,
					summary.Phase.String(),
					truncatePrompt(summary.Prompt, 40),
					summary.Engine,
					strconv.Itoa(summary.Retries),
					strconv.Itoa(summary.Errors),
					formatAge(summary.UpdatedAt),
				})
			}
			table := renderTable(
				[]string{"ID", "Phase", "Prompt", "Engine", "Retries", "Errors", "Updated"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight},
			)
			fmt.Fprint(cmd.OutOrStdout(), table)
			return nil
		},
	}

	cmd.Flags().BoolVar(&activeOnly, "active", false, "Show only workflows that have not finished")
	return cmd
}

func truncatePrompt(prompt string, limit int) string {
	if len(prompt) <= limit {
		return prompt
	}
	if limit <= 3 {
		return prompt[:limit]
	}
	return prompt[:limit-3] + "..."
}
