package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/me/uthread/internal/server"
	"github.com/me/uthread/internal/trace"
	"github.com/me/uthread/pkg/model"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()

	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--log-level", "error"}, args...))

	err := root.Execute()
	return out.String(), err
}

type fakeStats struct{ st model.SchedulerStats }

func (f fakeStats) Stats() model.SchedulerStats { return f.st }

func TestWorkloadsCommand(t *testing.T) {
	out, err := runCLI(t, "workloads")
	if err != nil {
		t.Fatalf("workloads error: %v", err)
	}
	for _, name := range []string{"hello", "join", "preempt", "rotate", "script"} {
		if !strings.Contains(out, name) {
			t.Errorf("expected %q in output, got: %s", name, out)
		}
	}
}

func TestRunCommand_Hello(t *testing.T) {
	out, err := runCLI(t, "run", "hello", "--tick-source", "none")
	if err != nil {
		t.Fatalf("run error: %v\noutput: %s", err, out)
	}
	if !strings.Contains(out, "Hello world 2!\nHello world 1!") {
		t.Errorf("expected greetings in order, got: %s", out)
	}
	if !strings.Contains(out, "Exit status:  0") {
		t.Errorf("expected exit status in summary, got: %s", out)
	}
}

func TestRunCommand_Quiet(t *testing.T) {
	out, err := runCLI(t, "run", "rotate", "-n", "3", "--rounds", "2", "--tick-source", "none", "-q")
	if err != nil {
		t.Fatalf("run error: %v\noutput: %s", err, out)
	}
	if strings.Contains(out, "Exit status") {
		t.Errorf("summary printed with --quiet: %s", out)
	}
}

func TestRunCommand_UnknownWorkload(t *testing.T) {
	_, err := runCLI(t, "run", "nope")
	if err == nil || !strings.Contains(err.Error(), "unknown workload") {
		t.Fatalf("expected unknown workload error, got %v", err)
	}
	if ExitCode(err) != 1 {
		t.Errorf("ExitCode = %d, want 1", ExitCode(err))
	}
}

func TestRunCommand_BadTickSource(t *testing.T) {
	if _, err := runCLI(t, "run", "hello", "--tick-source", "sundial"); err == nil {
		t.Fatal("expected error for unknown tick source")
	}
	if _, err := runCLI(t, "run", "hello", "--hz", "0"); err == nil {
		t.Fatal("expected error for zero frequency")
	}
}

func TestRunCommand_ExitStatus(t *testing.T) {
	out, err := runCLI(t, "run", "script", "--expr", "(", "--tick-source", "none", "-q")
	var es *ExitStatusError
	if !errors.As(err, &es) {
		t.Fatalf("expected ExitStatusError, got %v\noutput: %s", err, out)
	}
	if es.Status != 2 || ExitCode(err) != 2 {
		t.Errorf("status = %d, ExitCode = %d, want 2", es.Status, ExitCode(err))
	}
}

func TestRunCommand_TraceDB(t *testing.T) {
	db := filepath.Join(t.TempDir(), "trace.db")

	if _, err := runCLI(t, "run", "join", "-n", "2", "--tick-source", "none", "--trace-db", db, "-q"); err != nil {
		t.Fatalf("run error: %v", err)
	}

	st, err := trace.NewSQLiteStore(db, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	runs, total, err := st.ListRuns(context.Background(), model.DefaultListOptions())
	st.Close()
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if total != 1 {
		t.Fatalf("total runs = %d, want 1", total)
	}
	run := runs[0]
	if run.Workload != "join" || run.ExitStatus == nil || *run.ExitStatus != 0 || run.EventCount == 0 {
		t.Errorf("run = %+v", run)
	}
	if run.CompletedAt == nil || run.Stats == nil || run.Stats.Created != 3 {
		t.Errorf("run not finished: %+v", run)
	}

	out, err := runCLI(t, "trace", "list", "--trace-db", db)
	if err != nil {
		t.Fatalf("trace list error: %v", err)
	}
	if !strings.Contains(out, run.ID) || !strings.Contains(out, "join") {
		t.Errorf("expected run in list, got: %s", out)
	}

	out, err = runCLI(t, "trace", "show", run.ID, "--trace-db", db)
	if err != nil {
		t.Fatalf("trace show error: %v", err)
	}
	for _, want := range []string{"Workload:    join", "create", "reap", "teardown"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output, got: %s", want, out)
		}
	}

	if _, err := runCLI(t, "trace", "show", "missing", "--trace-db", db); err == nil {
		t.Error("expected error for unknown run")
	}
}

func TestTraceCommand_NoDB(t *testing.T) {
	_, err := runCLI(t, "trace", "list")
	if err == nil || !strings.Contains(err.Error(), "no trace database") {
		t.Fatalf("expected missing database error, got %v", err)
	}
}

func TestTraceCommand_Empty(t *testing.T) {
	db := filepath.Join(t.TempDir(), "trace.db")
	out, err := runCLI(t, "trace", "list", "--trace-db", db)
	if err != nil {
		t.Fatalf("trace list error: %v", err)
	}
	if !strings.Contains(out, "No runs found.") {
		t.Errorf("expected empty message, got: %s", out)
	}
}

func TestStatusCommand(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	src := fakeStats{model.SchedulerStats{RunID: "run-42", Started: true, Running: 3, Switches: 9}}
	ts := httptest.NewServer(server.New(logger, server.WithStats(src)))
	defer ts.Close()

	out, err := runCLI(t, "--server", ts.URL, "status")
	if err != nil {
		t.Fatalf("status error: %v", err)
	}
	for _, want := range []string{"run-42", "State:       running", "Running:     3", "Switches:    9"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output, got: %s", want, out)
		}
	}
}

func TestStatusCommand_NoScheduler(t *testing.T) {
	ts := httptest.NewServer(server.New(slog.New(slog.NewTextHandler(io.Discard, nil))))
	defer ts.Close()

	_, err := runCLI(t, "--server", ts.URL, "status")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrUnavailable {
		t.Fatalf("expected UNAVAILABLE error, got %v", err)
	}
}

func TestConfigFlag_Invalid(t *testing.T) {
	if _, err := runCLI(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "workloads"); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{500 * time.Microsecond, "500µs"},
		{250 * time.Millisecond, "250ms"},
		{1500 * time.Millisecond, "1.5s"},
		{90 * time.Second, "1m 30s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestReport(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantOut  string
	}{
		{"success", nil, 0, ""},
		{"failure", errors.New("open trace db: boom"), 1, "Error: open trace db: boom\n"},
		{"status 1", &ExitStatusError{Status: 1}, 1, ""},
		{"status 2", &ExitStatusError{Status: 2}, 2, ""},
		{"negative status", &ExitStatusError{Status: -1}, -1, ""},
		{"wrapped status", fmt.Errorf("run: %w", &ExitStatusError{Status: 3}), 3, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if got := Report(&buf, tt.err); got != tt.wantCode {
				t.Errorf("Report code = %d, want %d", got, tt.wantCode)
			}
			if buf.String() != tt.wantOut {
				t.Errorf("Report output = %q, want %q", buf.String(), tt.wantOut)
			}
		})
	}
}
