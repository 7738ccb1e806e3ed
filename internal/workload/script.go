package workload

import (
	"fmt"

	"github.com/dop251/goja"

	"github.com/me/uthread/pkg/model"
	"github.com/me/uthread/pkg/uthread"
)

// Script runs p.Expr as the body of p.Threads threads. Each thread gets its
// own JavaScript runtime with these globals:
//
//	tid          the thread's TID
//	arg          the thread's creation index
//	self()       the running TID
//	yield()      yield to the next ready thread
//	checkpoint() preemption point; true if a tick was serviced
//	print(...)   write a line to the program output
//
// The completion value of the script, truncated to an integer, is the
// thread's result.
func Script(s *uthread.Scheduler, p Params) int {
	prog, err := goja.Compile("thread", p.Expr, false)
	if err != nil {
		fmt.Fprintf(p.Out, "compile: %v\n", err)
		return 2
	}

	failed := 0
	body := func(arg any) int {
		v, err := runScript(s, p, prog, arg)
		if err != nil {
			fmt.Fprintf(p.Out, "thread %d: %v\n", s.Self(), err)
			failed++
			return -1
		}
		return v
	}

	tids := make([]model.TID, 0, p.Threads)
	for i := 0; i < p.Threads; i++ {
		tid, err := s.Create(body, i)
		if err != nil {
			fmt.Fprintf(p.Out, "create: %v\n", err)
			return 1
		}
		tids = append(tids, tid)
	}
	for _, tid := range tids {
		v, err := s.Join(tid)
		if err != nil {
			fmt.Fprintf(p.Out, "join %d: %v\n", tid, err)
			return 1
		}
		fmt.Fprintf(p.Out, "thread %d => %d\n", tid, v)
	}
	if failed > 0 {
		return 1
	}
	return 0
}

func runScript(s *uthread.Scheduler, p Params, prog *goja.Program, arg any) (int, error) {
	vm := goja.New()
	globals := map[string]any{
		"tid":        int64(s.Self()),
		"arg":        arg,
		"self":       func() int64 { return int64(s.Self()) },
		"yield":      func() { s.Yield() },
		"checkpoint": func() bool { return s.Checkpoint() },
		"print": func(args ...any) {
			fmt.Fprintln(p.Out, args...)
		},
	}
	for name, v := range globals {
		if err := vm.Set(name, v); err != nil {
			return 0, fmt.Errorf("set %s: %w", name, err)
		}
	}

	v, err := vm.RunProgram(prog)
	if err != nil {
		return 0, err
	}
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return 0, nil
	}
	return int(v.ToInteger()), nil
}
