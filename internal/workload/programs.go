package workload

import (
	"fmt"
	"time"

	"github.com/me/uthread/pkg/model"
	"github.com/me/uthread/pkg/uthread"
)

// Hello creates a thread that itself creates and joins a second thread.
func Hello(s *uthread.Scheduler, p Params) int {
	hello2 := func(any) int {
		fmt.Fprintln(p.Out, "Hello world 2!")
		return 0
	}
	hello1 := func(any) int {
		tid, err := s.Create(hello2, nil)
		if err != nil {
			fmt.Fprintf(p.Out, "create: %v\n", err)
			return 1
		}
		if _, err := s.Join(tid); err != nil {
			fmt.Fprintf(p.Out, "join: %v\n", err)
			return 1
		}
		fmt.Fprintln(p.Out, "Hello world 1!")
		return 0
	}

	tid, err := s.Create(hello1, nil)
	if err != nil {
		fmt.Fprintf(p.Out, "create: %v\n", err)
		return 1
	}
	v, err := s.Join(tid)
	if err != nil {
		fmt.Fprintf(p.Out, "join: %v\n", err)
		return 1
	}
	return v
}

// Join spawns p.Threads threads that greet and return their TID, joins
// them in creation order, then runs one more create/join pair.
func Join(s *uthread.Scheduler, p Params) int {
	hello := func(any) int {
		self := s.Self()
		fmt.Fprintf(p.Out, "Hello! I am thread %d\n", self)
		return int(self)
	}

	tids := make([]model.TID, 0, p.Threads)
	for i := 0; i < p.Threads; i++ {
		tid, err := s.Create(hello, nil)
		if err != nil {
			fmt.Fprintf(p.Out, "create: %v\n", err)
			return 1
		}
		tids = append(tids, tid)
	}

	status := 0
	for _, tid := range tids {
		v, err := s.Join(tid)
		if err != nil {
			fmt.Fprintf(p.Out, "join %d: %v\n", tid, err)
			status = 1
			continue
		}
		fmt.Fprintf(p.Out, "Return value from thread %d: %d\n", tid, v)
	}

	tid, err := s.Create(hello, nil)
	if err != nil {
		fmt.Fprintf(p.Out, "create: %v\n", err)
		return 1
	}
	if _, err := s.Join(tid); err != nil {
		fmt.Fprintf(p.Out, "join %d: %v\n", tid, err)
		return 1
	}
	return status
}

// spin busy-waits for d, passing through a preemption point on every
// iteration. It returns how often it was preempted.
func spin(s *uthread.Scheduler, d time.Duration) int {
	preempted := 0
	for start := time.Now(); time.Since(start) < d; {
		if s.Checkpoint() {
			preempted++
		}
	}
	return preempted
}

// Preempt spawns p.Threads busy threads and keeps thread 0 busy as well.
// No thread yields voluntarily, so every thread only finishes if the
// timer preempts the others.
func Preempt(s *uthread.Scheduler, p Params) int {
	busy := func(any) int {
		n := spin(s, p.Duration)
		fmt.Fprintf(p.Out, "This is thread %d (preempted %d times)\n", s.Self(), n)
		return n
	}

	tids := make([]model.TID, 0, p.Threads)
	for i := 0; i < p.Threads; i++ {
		tid, err := s.Create(busy, nil)
		if err != nil {
			fmt.Fprintf(p.Out, "create: %v\n", err)
			return 1
		}
		tids = append(tids, tid)
	}
	fmt.Fprintln(p.Out, "This is the main thread!")
	spin(s, p.Duration)

	total := 0
	for _, tid := range tids {
		v, err := s.Join(tid)
		if err != nil {
			fmt.Fprintf(p.Out, "join %d: %v\n", tid, err)
			return 1
		}
		total += v
	}
	fmt.Fprintf(p.Out, "All %d threads finished after %d preemptions\n", len(tids), total)
	return 0
}

// Rotate spawns p.Threads threads that each record Self and yield
// p.Rounds times. It fails if the observed order is not a cyclic rotation
// of creation order.
func Rotate(s *uthread.Scheduler, p Params) int {
	var order []model.TID
	body := func(any) int {
		for r := 0; r < p.Rounds; r++ {
			order = append(order, s.Self())
			s.Yield()
		}
		return 0
	}

	tids := make([]model.TID, 0, p.Threads)
	for i := 0; i < p.Threads; i++ {
		tid, err := s.Create(body, nil)
		if err != nil {
			fmt.Fprintf(p.Out, "create: %v\n", err)
			return 1
		}
		tids = append(tids, tid)
	}
	for _, tid := range tids {
		if _, err := s.Join(tid); err != nil {
			fmt.Fprintf(p.Out, "join %d: %v\n", tid, err)
			return 1
		}
	}

	fmt.Fprintf(p.Out, "order: %v\n", order)
	if !isRotation(order, tids) {
		fmt.Fprintln(p.Out, "order is not round-robin")
		return 1
	}
	return 0
}

func isRotation(order, tids []model.TID) bool {
	if len(tids) == 0 {
		return len(order) == 0
	}
	for i, tid := range order {
		if tid != tids[i%len(tids)] {
			return false
		}
	}
	return true
}
