// Package cli implements the uthread command-line tool.
package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/me/uthread/internal/config"
	"github.com/me/uthread/internal/logging"
)

var (
	flagConfig    string
	flagServer    string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	cfg    config.Config
	logger *slog.Logger
	client *Client
)

// ExitStatusError carries a non-zero workload exit status out of Execute.
type ExitStatusError struct {
	Status int
}

func (e *ExitStatusError) Error() string {
	return fmt.Sprintf("workload exited with status %d", e.Status)
}

// ExitCode maps an Execute error to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var es *ExitStatusError
	if errors.As(err, &es) {
		return es.Status
	}
	return 1
}

// Report prints err to w unless it only carries a workload exit status,
// which the run summary already shows, and returns the process exit code.
func Report(w io.Writer, err error) int {
	var es *ExitStatusError
	if err != nil && !errors.As(err, &es) {
		fmt.Fprintln(w, "Error:", err)
	}
	return ExitCode(err)
}

// defaultServer returns the default debug API URL, checking UTHREAD_SERVER first.
func defaultServer() string {
	if s := os.Getenv("UTHREAD_SERVER"); s != "" {
		return s
	}
	return "http://localhost:8090"
}

// NewRootCmd creates the root cobra command for the uthread CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "uthread",
		Short: "uthread runs thread programs on a preemptive user-level scheduler",
		Long: `uthread multiplexes logical threads over a single execution baton,
preempting the running thread on a periodic timer. It ships named workloads
that exercise create, yield, join and exit, records every scheduling event
and can persist the trace to SQLite for later inspection.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(flagConfig)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Log.Level = flagLogLevel
			}
			if cmd.Flags().Changed("log-format") {
				cfg.Log.Format = flagLogFormat
			}
			logger = logging.Setup(cmd.ErrOrStderr(), cfg.Log.Level, flagDebug, cfg.Log.Format)
			client = NewClient(flagServer, logger)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to YAML config file")
	root.PersistentFlags().StringVar(&flagServer, "server", defaultServer(), "Debug API URL for status (or UTHREAD_SERVER env)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newRunCmd(),
		newWorkloadsCmd(),
		newTraceCmd(),
		newServeCmd(),
		newStatusCmd(),
	)

	return root
}
