// Package workload holds named thread programs that exercise the scheduler.
package workload

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/me/uthread/pkg/uthread"
)

// Params configures a workload run.
type Params struct {
	Threads  int           // number of threads to spawn
	Rounds   int           // yields per thread (rotate)
	Duration time.Duration // busy time per thread (preempt)
	Expr     string        // thread body (script)
	Out      io.Writer     // program output
}

// DefaultParams returns sensible defaults.
func DefaultParams() Params {
	return Params{
		Threads:  4,
		Rounds:   3,
		Duration: time.Second,
		Expr:     "self() * 2",
		Out:      io.Discard,
	}
}

// Func is the body of thread 0 for a workload. Its return value is the
// scheduler's exit status.
type Func func(s *uthread.Scheduler, p Params) int

// Workload is a registered thread program.
type Workload struct {
	Name        string
	Description string
	Run         Func
}

var registry = map[string]Workload{}

func register(w Workload) {
	if _, dup := registry[w.Name]; dup {
		panic("workload: duplicate " + w.Name)
	}
	registry[w.Name] = w
}

func init() {
	register(Workload{Name: "hello", Description: "nested create and join of two threads", Run: Hello})
	register(Workload{Name: "join", Description: "spawn N threads, then join each and print its result", Run: Join})
	register(Workload{Name: "preempt", Description: "N busy threads and a busy main, driven only by preemption", Run: Preempt})
	register(Workload{Name: "rotate", Description: "N threads yielding in turn; checks round-robin order", Run: Rotate})
	register(Workload{Name: "script", Description: "each thread evaluates a JavaScript expression", Run: Script})
}

// Lookup returns the workload called name.
func Lookup(name string) (Workload, error) {
	w, ok := registry[name]
	if !ok {
		return Workload{}, fmt.Errorf("unknown workload %q", name)
	}
	return w, nil
}

// All returns every workload sorted by name.
func All() []Workload {
	out := make([]Workload, 0, len(registry))
	for _, w := range registry {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Entry binds w to s and p as the body of thread 0.
func (w Workload) Entry(s *uthread.Scheduler, p Params) uthread.EntryFunc {
	if p.Out == nil {
		p.Out = io.Discard
	}
	return func(any) int {
		return w.Run(s, p)
	}
}
