package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/me/uthread/internal/config"
	"github.com/me/uthread/internal/preempt"
	"github.com/me/uthread/internal/server"
	"github.com/me/uthread/internal/trace"
	"github.com/me/uthread/internal/ucontext"
	"github.com/me/uthread/internal/workload"
	"github.com/me/uthread/pkg/model"
	"github.com/me/uthread/pkg/uthread"
)

// maxTraceEvents bounds the in-memory trace of one run.
const maxTraceEvents = 1 << 20

// runRequest is everything one workload run needs.
type runRequest struct {
	workload  workload.Workload
	params    workload.Params
	scheduler config.SchedulerConfig
	traceDB   string
	debugAddr string
	quiet     bool
}

// runResult summarizes a finished run.
type runResult struct {
	RunID   string
	Status  int
	Elapsed time.Duration
	Stats   model.SchedulerStats
	Events  int
	Lost    uint64
}

func newRunCmd() *cobra.Command {
	var (
		hz         int
		tickSource string
		maxStacks  int
		traceDB    string
		debugAddr  string
		quiet      bool
	)
	p := workload.DefaultParams()

	cmd := &cobra.Command{
		Use:   "run <workload>",
		Short: "Run a named workload on a fresh scheduler",
		Long: `Run starts a scheduler, runs the workload as thread 0 and prints a
summary. The process exits with the workload's exit status.

Use "uthread workloads" to list the available workloads.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := workload.Lookup(args[0])
			if err != nil {
				return err
			}

			req := runRequest{
				workload:  w,
				params:    p,
				scheduler: cfg.Scheduler,
				traceDB:   cfg.Trace.DB,
				debugAddr: cfg.Debug.Addr,
				quiet:     quiet,
			}
			if cmd.Flags().Changed("hz") {
				req.scheduler.TickHz = hz
			}
			if cmd.Flags().Changed("tick-source") {
				req.scheduler.TickSource = model.TickSource(tickSource)
			}
			if cmd.Flags().Changed("max-stacks") {
				req.scheduler.MaxStacks = maxStacks
			}
			if cmd.Flags().Changed("trace-db") {
				req.traceDB = traceDB
			}
			if cmd.Flags().Changed("debug-addr") {
				req.debugAddr = debugAddr
			}
			req.params.Out = cmd.OutOrStdout()

			res, err := runWorkload(cmd.Context(), req)
			if err != nil {
				return err
			}
			if !quiet {
				printRunSummary(cmd.OutOrStdout(), w.Name, res)
			}
			if res.Status != 0 {
				return &ExitStatusError{Status: res.Status}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&p.Threads, "threads", "n", p.Threads, "Number of threads to spawn")
	cmd.Flags().IntVar(&p.Rounds, "rounds", p.Rounds, "Yields per thread (rotate)")
	cmd.Flags().DurationVar(&p.Duration, "duration", p.Duration, "Busy time per thread (preempt)")
	cmd.Flags().StringVar(&p.Expr, "expr", p.Expr, "JavaScript thread body (script)")
	cmd.Flags().IntVar(&hz, "hz", preempt.DefaultHz, "Preemption frequency")
	cmd.Flags().StringVar(&tickSource, "tick-source", string(model.TickSourceTicker), "Tick source (ticker, itimer, none)")
	cmd.Flags().IntVar(&maxStacks, "max-stacks", 0, "Stack budget (0 = unlimited)")
	cmd.Flags().StringVar(&traceDB, "trace-db", "", "Persist the event trace to this SQLite database")
	cmd.Flags().StringVar(&debugAddr, "debug-addr", "", "Serve the debug API on this address while running")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Suppress the run summary")

	return cmd
}

func runWorkload(ctx context.Context, req runRequest) (*runResult, error) {
	if req.scheduler.TickHz <= 0 {
		return nil, fmt.Errorf("tick frequency must be positive, got %d", req.scheduler.TickHz)
	}
	src, err := preempt.NewSource(req.scheduler.TickSource, req.scheduler.TickHz)
	if err != nil {
		return nil, fmt.Errorf("tick source: %w", err)
	}

	buf := trace.NewBuffer(maxTraceEvents)
	s := uthread.New(
		uthread.WithLogger(logger),
		uthread.WithSwitcher(ucontext.NewGoroutineSwitcher(req.scheduler.Switcher())),
		uthread.WithPreemption(src),
		uthread.WithRecorder(buf),
	)

	var st *trace.SQLiteStore
	run := &model.Run{
		ID:         s.ID(),
		Workload:   req.workload.Name,
		Threads:    req.params.Threads,
		TickHz:     req.scheduler.TickHz,
		TickSource: req.scheduler.TickSource,
		CreatedAt:  time.Now().UTC(),
	}
	if req.traceDB != "" {
		st, err = openStore(ctx, req.traceDB)
		if err != nil {
			return nil, err
		}
		defer st.Close()
		if err := st.CreateRun(ctx, run); err != nil {
			return nil, fmt.Errorf("create run: %w", err)
		}
	}

	if req.debugAddr != "" {
		opts := []server.Option{server.WithStats(s)}
		if st != nil {
			opts = append(opts, server.WithStore(st))
		}
		stop, err := startDebugServer(req.debugAddr, server.New(logger, opts...))
		if err != nil {
			return nil, err
		}
		defer stop()
	}

	logger.Info("running workload", "workload", req.workload.Name, "run_id", s.ID(),
		"threads", req.params.Threads, "tick_source", req.scheduler.TickSource, "tick_hz", req.scheduler.TickHz)

	start := time.Now()
	status, err := s.Run(req.workload.Entry(s, req.params), nil)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", req.workload.Name, err)
	}
	res := &runResult{
		RunID:   s.ID(),
		Status:  status,
		Elapsed: time.Since(start),
		Stats:   s.Stats(),
		Events:  buf.Len(),
		Lost:    buf.Lost(),
	}

	if st != nil {
		if err := st.AppendEvents(ctx, buf.Events()); err != nil {
			return nil, fmt.Errorf("store events: %w", err)
		}
		completed := time.Now().UTC()
		run.ExitStatus = &status
		run.Stats = &res.Stats
		run.CompletedAt = &completed
		if err := st.FinishRun(ctx, run); err != nil {
			return nil, fmt.Errorf("finish run: %w", err)
		}
		logger.Info("trace stored", "run_id", run.ID, "events", res.Events, "db", req.traceDB)
	}
	return res, nil
}

// openStore opens and migrates the trace database at path.
func openStore(ctx context.Context, path string) (*trace.SQLiteStore, error) {
	st, err := trace.NewSQLiteStore(path, logger)
	if err != nil {
		return nil, fmt.Errorf("open trace db: %w", err)
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate trace db: %w", err)
	}
	return st, nil
}

// startDebugServer serves h on addr in the background. The returned
// function shuts the server down.
func startDebugServer(addr string, h http.Handler) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	srv := &http.Server{Handler: h, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("debug server error", "error", err)
		}
	}()
	logger.Info("debug API listening", "addr", ln.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}, nil
}

func printRunSummary(w io.Writer, name string, r *runResult) {
	st := r.Stats
	fmt.Fprintf(w, "\nRun %s (%s)\n", r.RunID, name)
	fmt.Fprintf(w, "  Exit status:  %d\n", r.Status)
	fmt.Fprintf(w, "  Wall time:    %s\n", formatDuration(r.Elapsed))
	fmt.Fprintf(w, "  Threads:      %d created, %d reaped\n", st.Created, st.Reaped)
	fmt.Fprintf(w, "  Switches:     %d (%d yields, %d preemptions)\n", st.Switches, st.Yields, st.Preemptions)
	fmt.Fprintf(w, "  Joins:        %d\n", st.Joins)
	fmt.Fprintf(w, "  Stacks:       %d allocated, %d released\n", st.Stacks.Allocated, st.Stacks.Released)
	fmt.Fprintf(w, "  Ticks:        %d delivered, %d dropped\n", st.Ticks.Delivered, st.Ticks.Dropped)
	if r.Lost > 0 {
		fmt.Fprintf(w, "  Events:       %d (%d lost)\n", r.Events, r.Lost)
	} else {
		fmt.Fprintf(w, "  Events:       %d\n", r.Events)
	}
}
