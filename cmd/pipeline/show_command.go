package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	var withEvents bool

	cmd := &cobra.Command{
		Use:   "show <workflow-id>",
		Short: "Display a workflow's state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := ctx.openStores()
			if err != nil {
				return err
			}
			defer func() { _ = st.close() }()

			state, err := st.store.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				encoded, err := json.MarshalIndent(state, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(encoded))
				return nil
			}

			fmt.Fprintf(out, "ID:         %s\n", state.ID)
			fmt.Fprintf(out, "Phase:      %s\n", state.Phase)
			fmt.Fprintf(out, "Prompt:     %s\n", state.Prompt)
			if state.Engine != "" {
				fmt.Fprintf(out, "Engine:     %s\n", state.Engine)
			}
			fmt.Fprintf(out, "Fix cycles: %d\n", state.FixCycles)
			fmt.Fprintf(out, "Created:    %s\n", formatTimestamp(state.CreatedAt))
			fmt.Fprintf(out, "Updated:    %s\n", formatTimestamp(state.UpdatedAt))

			if len(state.RetryCounts) > 0 {
				fmt.Fprintln(out)
				fmt.Fprintln(out, "Retries:")
				phases := make([]string, 0, len(state.RetryCounts))
				for phase := range state.RetryCounts {
					phases = append(phases, phase)
				}
				sort.Strings(phases)
				for _, phase := range phases {
					fmt.Fprintf(out, "  %s: %d\n", phase, state.RetryCounts[phase])
				}
			}

			if len(state.Approvals) > 0 {
				gates := make([]string, 0, len(state.Approvals))
				for gate := range state.Approvals {
					gates = append(gates, gate)
				}
				sort.Strings(gates)
				rows := make([][]string, 0, len(gates))
				for _, gate := range gates {
					record := state.Approvals[gate]
					rows = append(rows, []string{
						gate,
						string(record.Decision),
						record.Feedback,
						formatTimestamp(record.DecidedAt),
					})
				}
				fmt.Fprintln(out)
				fmt.Fprintln(out, "Approvals:")
				fmt.Fprint(out, renderTable(
					[]string{"Gate", "Decision", "Feedback", "Decided"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
				))
			}

			if len(state.ErrorHistory) > 0 {
				rows := make([][]string, 0, len(state.ErrorHistory))
				for i, record := range state.ErrorHistory {
					rows = append(rows, []string{
						strconv.Itoa(i + 1),
						record.Phase.String(),
						record.Kind,
						truncatePrompt(record.Message, 60),
						formatTimestamp(record.Timestamp),
					})
				}
				fmt.Fprintln(out)
				fmt.Fprintln(out, "Errors:")
				fmt.Fprint(out, renderTable(
					[]string{"#", "Phase", "Kind", "Message", "When"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
				))
			}

			if withEvents {
				events, err := st.journal.Events(cmd.Context(), state.ID)
				if err != nil {
					return err
				}
				if len(events) > 0 {
					rows := make([][]string, 0, len(events))
					for _, event := range events {
						rows = append(rows, []string{
							formatTimestamp(event.Timestamp),
							event.Event,
							event.Phase.String(),
							event.Kind,
							truncatePrompt(event.Message, 60),
						})
					}
					fmt.Fprintln(out)
					fmt.Fprintln(out, "Events:")
					fmt.Fprint(out, renderTable(
						[]string{"When", "Event", "Phase", "Kind", "Message"},
						rows,
						[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
					))
				}
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw state as JSON")
	cmd.Flags().BoolVar(&withEvents, "events", false, "Include the journaled event history")
	return cmd
}
