package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/me/uthread/pkg/model"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show live scheduler counters from a running debug API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Get("/api/v1/stats")
			if err != nil {
				return fmt.Errorf("get stats: %w", err)
			}

			var st model.SchedulerStats
			if err := json.Unmarshal(resp.Data, &st); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			state := "idle"
			switch {
			case st.Terminated:
				state = "terminated"
			case st.Started:
				state = "running"
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run: %s\n", st.RunID)
			fmt.Fprintf(out, "  State:       %s\n", state)
			fmt.Fprintf(out, "  Running:     %d\n", st.Running)
			fmt.Fprintf(out, "  Live:        %d\n", st.Live)
			fmt.Fprintf(out, "  Created:     %d\n", st.Created)
			fmt.Fprintf(out, "  Switches:    %d (%d yields, %d preemptions)\n", st.Switches, st.Yields, st.Preemptions)
			fmt.Fprintf(out, "  Ticks:       %d delivered, %d dropped\n", st.Ticks.Delivered, st.Ticks.Dropped)
			return nil
		},
	}
}
