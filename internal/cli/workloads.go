package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/me/uthread/internal/workload"
)

func newWorkloadsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "workloads",
		Short: "List the available workloads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-10s  %s\n", "NAME", "DESCRIPTION")
			fmt.Fprintf(out, "%-10s  %s\n", "----", "-----------")
			for _, w := range workload.All() {
				fmt.Fprintf(out, "%-10s  %s\n", w.Name, w.Description)
			}
			return nil
		},
	}
}
