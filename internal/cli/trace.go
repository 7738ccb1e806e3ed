package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/me/uthread/pkg/model"
)

func newTraceCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect traces stored in a SQLite database",
	}
	cmd.PersistentFlags().StringVar(&dbPath, "trace-db", "", "Trace database (default: trace.db from config)")

	resolve := func(cmd *cobra.Command) (string, error) {
		if cmd.Flags().Changed("trace-db") {
			return dbPath, nil
		}
		if cfg.Trace.DB == "" {
			return "", fmt.Errorf("no trace database: pass --trace-db or set trace.db in the config")
		}
		return cfg.Trace.DB, nil
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolve(cmd)
			if err != nil {
				return err
			}
			limit, _ := cmd.Flags().GetInt("limit")

			st, err := openStore(cmd.Context(), path)
			if err != nil {
				return err
			}
			defer st.Close()

			opts := model.ListOptions{Limit: limit}
			opts.Clamp()
			runs, total, err := st.ListRuns(cmd.Context(), opts)
			if err != nil {
				return fmt.Errorf("list runs: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs found.")
				return nil
			}
			fmt.Fprintf(out, "%-36s  %-8s  %-7s  %-6s  %-6s  %s\n", "ID", "WORKLOAD", "THREADS", "STATUS", "EVENTS", "CREATED")
			fmt.Fprintf(out, "%-36s  %-8s  %-7s  %-6s  %-6s  %s\n", "--", "--------", "-------", "------", "------", "-------")
			for _, r := range runs {
				fmt.Fprintf(out, "%-36s  %-8s  %-7d  %-6s  %-6d  %s\n",
					r.ID, r.Workload, r.Threads, formatStatus(r.ExitStatus), r.EventCount,
					r.CreatedAt.Local().Format("2006-01-02 15:04:05"))
			}
			if total > len(runs) {
				fmt.Fprintf(out, "\n(%d of %d shown)\n", len(runs), total)
			}
			return nil
		},
	}
	list.Flags().Int("limit", 20, "Maximum runs to show")

	show := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a run and its events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolve(cmd)
			if err != nil {
				return err
			}
			limit, _ := cmd.Flags().GetInt("limit")

			st, err := openStore(cmd.Context(), path)
			if err != nil {
				return err
			}
			defer st.Close()

			run, err := st.GetRun(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("get run: %w", err)
			}
			if run == nil {
				return fmt.Errorf("run %s not found", args[0])
			}
			opts := model.ListOptions{Limit: limit}
			opts.Clamp()
			events, total, err := st.ListEvents(cmd.Context(), run.ID, opts)
			if err != nil {
				return fmt.Errorf("list events: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run: %s\n", run.ID)
			fmt.Fprintf(out, "  Workload:    %s\n", run.Workload)
			fmt.Fprintf(out, "  Threads:     %d\n", run.Threads)
			fmt.Fprintf(out, "  Ticks:       %s @ %d Hz\n", run.TickSource, run.TickHz)
			fmt.Fprintf(out, "  Exit status: %s\n", formatStatus(run.ExitStatus))
			if run.CompletedAt != nil {
				fmt.Fprintf(out, "  Duration:    %s\n", formatDuration(run.CompletedAt.Sub(run.CreatedAt)))
			}
			if run.Stats != nil {
				fmt.Fprintf(out, "  Switches:    %d (%d yields, %d preemptions)\n",
					run.Stats.Switches, run.Stats.Yields, run.Stats.Preemptions)
			}

			fmt.Fprintf(out, "\n%-6s  %-9s  %-5s  %-5s  %s\n", "SEQ", "KIND", "TID", "PEER", "RESULT")
			for _, ev := range events {
				fmt.Fprintf(out, "%-6d  %-9s  %-5d  %-5d  %d\n", ev.Seq, ev.Kind, ev.TID, ev.Peer, ev.Result)
			}
			if total > len(events) {
				fmt.Fprintf(out, "\n(%d of %d events shown)\n", len(events), total)
			}
			return nil
		},
	}
	show.Flags().Int("limit", 1000, "Maximum events to show")

	cmd.AddCommand(list, show)
	return cmd
}
