// Package uthread is a user-level thread scheduler.
//
// Logical threads share a single baton: exactly one of them runs at a time,
// and control passes only inside Yield, Exit, the blocking branch of Join,
// or a Checkpoint that services a preemption tick. The ready pool is strict
// FIFO, so threads that yield or are preempted run again only after every
// thread already queued has had a turn.
//
// Every pool mutation is bracketed by disabling and re-enabling the
// preemption controller, and no lock is taken: the scheduler's state is
// owned by whichever logical thread currently runs. Stats is the only
// method that may be called from outside the logical threads.
//
// A thread's deferred calls run when its body returns or calls Exit, while
// it still holds the baton and before its joiner is woken. Threads still
// alive when the scheduler terminates are unwound one at a time, and their
// deferred calls must not call back into the scheduler. Exit from a thread 0
// that was bootstrapped by Create behaves like os.Exit: its deferred calls
// do not run.
package uthread

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/me/uthread/internal/preempt"
	"github.com/me/uthread/internal/trace"
	"github.com/me/uthread/internal/ucontext"
	"github.com/me/uthread/pkg/model"
)

// EntryFunc is the body of a logical thread. Its return value is the
// thread's result, as if passed to Exit.
type EntryFunc func(arg any) int

var (
	ErrNilEntry       = errors.New("uthread: nil entry function")
	ErrAlreadyStarted = errors.New("uthread: scheduler already started")
)

// Scheduler multiplexes logical threads over one baton.
type Scheduler struct {
	id       string
	logger   *slog.Logger
	sw       ucontext.Switcher
	preempt  *preempt.Controller
	recorder trace.Recorder
	exitFn   func(int)
	tidLimit model.TID

	// Owned by the running logical thread.
	p       pools
	nextTID uint64
	seq     uint64
	status  int
	done    chan struct{} // set by Run

	started     atomic.Bool
	terminated  atomic.Bool
	runningTID  atomic.Uint32
	created     atomic.Uint64
	switches    atomic.Uint64
	yields      atomic.Uint64
	preemptions atomic.Uint64
	joins       atomic.Uint64
	reaped      atomic.Uint64
	live        atomic.Int64
}

// New creates a scheduler. Nothing runs until the first Create or Run.
func New(opts ...Option) *Scheduler {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.switcher == nil {
		o.switcher = ucontext.NewGoroutineSwitcher(ucontext.DefaultConfig())
	}
	if !o.sourceSet {
		src, _ := preempt.NewTicker(preempt.DefaultHz)
		o.source = src
	}

	id := uuid.New().String()
	s := &Scheduler{
		id:       id,
		logger:   o.logger.With("component", "uthread", "run_id", id),
		sw:       o.switcher,
		recorder: o.recorder,
		exitFn:   o.exit,
		tidLimit: o.tidLimit,
		p:        newPools(),
		nextTID:  1,
	}
	if o.source != nil {
		s.preempt = preempt.New(o.source, o.logger.With("run_id", id))
	}
	return s
}

// ID returns the run identifier used in logs and traces.
func (s *Scheduler) ID() string {
	return s.id
}

// bootstrap turns the calling context into thread 0 and starts preemption.
func (s *Scheduler) bootstrap() error {
	if err := s.preempt.Start(); err != nil {
		return fmt.Errorf("start preemption: %w", err)
	}
	main := &tcb{tid: model.MainTID, state: model.ThreadStateNew, ctx: ucontext.NewContext()}
	s.p.register(main)
	s.p.move(main, model.ThreadStateRunning)
	s.runningTID.Store(uint32(model.MainTID))
	s.live.Add(1)
	s.started.Store(true)
	s.logger.Info("scheduler started", "tick_state", s.preempt.State())
	return nil
}

// Run makes a fresh goroutine thread 0, runs main(arg) on it and blocks
// until the scheduler terminates. main returning is thread 0 exiting with
// that status. Run returns the exit status.
func (s *Scheduler) Run(main EntryFunc, arg any) (int, error) {
	if main == nil {
		return 0, ErrNilEntry
	}
	if s.started.Load() {
		return 0, ErrAlreadyStarted
	}
	s.done = make(chan struct{})
	if err := s.bootstrap(); err != nil {
		s.done = nil
		return 0, err
	}
	go s.body(s.p.running, main, arg)
	<-s.done
	return s.status, nil
}

// Create starts a new thread running entry(arg) and queues it at the tail
// of the ready pool. The first call turns the caller into thread 0. On
// failure no thread is created and no state changes.
func (s *Scheduler) Create(entry EntryFunc, arg any) (model.TID, error) {
	if entry == nil {
		return 0, &model.ThreadError{Code: model.ErrValidation, Op: "create", Err: ErrNilEntry}
	}
	if !s.started.Load() {
		if err := s.bootstrap(); err != nil {
			return 0, &model.ThreadError{Code: model.ErrInternal, Op: "create", Err: err}
		}
	}

	s.preempt.Disable()
	defer s.preempt.Enable()

	self := s.Self()
	if s.nextTID > uint64(s.tidLimit) {
		return 0, &model.ThreadError{Code: model.ErrResourceExhausted, Op: "create", TID: self, Err: model.ErrTIDExhausted}
	}
	stack, err := s.sw.AllocStack()
	if err != nil {
		return 0, &model.ThreadError{Code: model.ErrResourceExhausted, Op: "create", TID: self, Err: err}
	}
	t := &tcb{
		tid:   model.TID(s.nextTID),
		state: model.ThreadStateNew,
		ctx:   ucontext.NewContext(),
		stack: stack,
	}
	if err := s.sw.Init(t.ctx, stack, func(a any) { s.body(t, entry, a) }, arg); err != nil {
		if derr := s.sw.DestroyStack(stack); derr != nil {
			err = errors.Join(err, fmt.Errorf("release stack: %w", derr))
		}
		return 0, &model.ThreadError{Code: model.ErrInternal, Op: "create", TID: self, Err: err}
	}

	s.p.register(t)
	s.p.move(t, model.ThreadStateReady)
	s.nextTID++
	s.created.Add(1)
	s.live.Add(1)
	s.record(model.EventCreate, self, t.tid, 0)
	s.logger.Debug("thread created", "tid", t.tid, "parent", self)
	return t.tid, nil
}

// Self returns the TID of the running thread.
func (s *Scheduler) Self() model.TID {
	if s.p.running == nil {
		return model.MainTID
	}
	return s.p.running.tid
}

// Yield moves the running thread to the tail of the ready pool and runs
// the head. With nothing ready it returns immediately.
func (s *Scheduler) Yield() {
	s.yield(false)
}

// Checkpoint is a preemption point. If a timer tick is pending and another
// thread is ready, it yields and reports true. A tick with nothing ready
// is consumed without a switch.
func (s *Scheduler) Checkpoint() bool {
	if !s.preempt.Take() {
		return false
	}
	return s.yield(true)
}

// yield rotates the running thread behind the ready pool's head and
// reports whether a switch happened.
func (s *Scheduler) yield(preempted bool) bool {
	if !s.started.Load() {
		return false
	}
	s.preempt.Disable()
	next, err := s.p.ready.Peek()
	if err != nil {
		s.preempt.Enable()
		return false
	}
	cur := s.p.running
	if preempted {
		s.preemptions.Add(1)
		s.record(model.EventPreempt, cur.tid, next.tid, 0)
	} else {
		s.yields.Add(1)
	}
	s.p.move(cur, model.ThreadStateReady)
	s.p.move(next, model.ThreadStateRunning)
	s.switchTo(cur, next)
	return true
}

// Exit ends the running thread with result and never returns. The
// thread's deferred calls run first; then its joiner, if any, is queued.
// Exit from thread 0, or from the last runnable thread, terminates the
// scheduler.
func (s *Scheduler) Exit(result int) {
	if !s.started.Load() {
		s.terminate(result)
	}
	cur := s.p.running
	if cur.tid == model.MainTID && s.done == nil {
		s.preempt.Disable()
		s.terminate(result)
	}
	cur.result = result
	cur.exited = true
	runtime.Goexit()
}

// body runs entry as the code of thread t. finish is deferred so that it
// runs after every deferred call of entry, whether entry returns or the
// thread calls Exit.
func (s *Scheduler) body(t *tcb, entry EntryFunc, arg any) {
	defer s.finish(t)
	t.result = entry(arg)
	t.exited = true
}

// finish retires the running thread cur once its code has unwound. A
// thread that is panicking is left alone so the panic reaches the runtime.
func (s *Scheduler) finish(cur *tcb) {
	if !cur.exited {
		return
	}
	s.preempt.Disable()
	if cur.tid == model.MainTID {
		s.terminate(cur.result)
	}

	result := cur.result
	s.p.move(cur, model.ThreadStateFinished)
	s.record(model.EventExit, cur.tid, 0, result)
	s.logger.Debug("thread exited", "tid", cur.tid, "result", result)

	if cur.waiter != nil {
		w := s.p.lookup(*cur.waiter)
		s.p.move(w, model.ThreadStateReady)
		s.record(model.EventWake, w.tid, cur.tid, result)
	}

	next, err := s.p.ready.Peek()
	if err != nil {
		s.logger.Info("no runnable thread left", "tid", cur.tid)
		s.terminate(0)
	}
	s.p.move(next, model.ThreadStateRunning)
	s.switchTo(cur, next)
	panic(fmt.Sprintf("uthread: finished thread %d resumed", cur.tid))
}

// Join waits for thread tid to finish, reaps it and returns its result.
// It fails without blocking or changing state when tid is 0, the caller,
// unknown or already reaped, or already has a joiner.
func (s *Scheduler) Join(tid model.TID) (int, error) {
	self := s.Self()
	switch {
	case tid == model.MainTID:
		return 0, &model.ThreadError{Code: model.ErrInvalidJoin, Op: "join", TID: tid, Err: model.ErrJoinMain}
	case tid == self:
		return 0, &model.ThreadError{Code: model.ErrInvalidJoin, Op: "join", TID: tid, Err: model.ErrJoinSelf}
	}

	s.preempt.Disable()
	t := s.p.lookup(tid)
	switch {
	case t == nil:
		s.preempt.Enable()
		return 0, &model.ThreadError{Code: model.ErrNotFound, Op: "join", TID: tid, Err: model.ErrUnknownThread}
	case t.waiter != nil:
		s.preempt.Enable()
		return 0, &model.ThreadError{Code: model.ErrInvalidJoin, Op: "join", TID: tid, Err: model.ErrAlreadyJoined}
	case t.state == model.ThreadStateFinished:
		result := s.reap(t)
		s.preempt.Enable()
		return result, nil
	case s.p.ready.Len() == 0:
		s.preempt.Enable()
		return 0, &model.ThreadError{Code: model.ErrWouldDeadlock, Op: "join", TID: tid, Err: model.ErrDeadlock}
	}

	cur := s.p.running
	s.p.move(cur, model.ThreadStateWaiting)
	t.waiter = &cur.tid
	s.record(model.EventBlock, cur.tid, tid, 0)
	next, _ := s.p.ready.Peek()
	s.p.move(next, model.ThreadStateRunning)
	s.switchTo(cur, next)

	s.preempt.Disable()
	if t.state != model.ThreadStateFinished {
		panic(fmt.Sprintf("uthread: thread %d woke from join on %d in state %s", cur.tid, tid, t.state))
	}
	result := s.reap(t)
	s.preempt.Enable()
	return result, nil
}

// Threads returns a snapshot of every live thread ordered by TID. It must
// be called from a logical thread.
func (s *Scheduler) Threads() []model.ThreadInfo {
	return s.p.snapshot()
}

// Stats returns scheduler counters. Safe from any goroutine.
func (s *Scheduler) Stats() model.SchedulerStats {
	return model.SchedulerStats{
		RunID:       s.id,
		Started:     s.started.Load(),
		Terminated:  s.terminated.Load(),
		Running:     model.TID(s.runningTID.Load()),
		Created:     s.created.Load(),
		Switches:    s.switches.Load(),
		Yields:      s.yields.Load(),
		Preemptions: s.preemptions.Load(),
		Joins:       s.joins.Load(),
		Reaped:      s.reaped.Load(),
		Live:        s.live.Load(),
		Stacks:      s.sw.Stats(),
		Ticks:       s.preempt.Stats(),
	}
}

// switchTo hands the baton from cur to next, which must already be in the
// running slot. Preemption is disabled on entry and enabled before the
// switch.
func (s *Scheduler) switchTo(cur, next *tcb) {
	s.runningTID.Store(uint32(next.tid))
	s.switches.Add(1)
	s.record(model.EventSwitch, cur.tid, next.tid, 0)
	s.logger.Debug("switch", "from", cur.tid, "to", next.tid, "from_state", cur.state)
	s.preempt.Enable()
	s.sw.Switch(cur.ctx, next.ctx)
}

// reap removes a FINISHED thread and releases its context.
func (s *Scheduler) reap(t *tcb) int {
	s.p.move(t, model.ThreadStateReaped)
	s.release(t, s.Self())
	s.reaped.Add(1)
	s.joins.Add(1)
	s.record(model.EventReap, s.Self(), t.tid, t.result)
	s.logger.Debug("thread reaped", "tid", t.tid, "result", t.result, "by", s.Self())
	return t.result
}

// release destroys t's context. Unless t is the caller, it waits until
// t's goroutine has unwound, so deferred calls of a released thread never
// overlap the running thread.
func (s *Scheduler) release(t *tcb, self model.TID) {
	s.live.Add(-1)
	if t.stack == nil {
		t.ctx.Retire()
		return
	}
	if err := s.sw.DestroyStack(t.stack); err != nil {
		panic(fmt.Sprintf("uthread: release thread %d: %v", t.tid, err))
	}
	if t.tid != self {
		<-t.ctx.Done()
	}
}

// terminate releases every remaining thread and ends the scheduler. It
// never returns: under Run it wakes Run's caller, otherwise it calls the
// exit function.
func (s *Scheduler) terminate(status int) {
	s.preempt.Disable()
	if s.started.Load() {
		if err := s.preempt.Stop(); err != nil {
			s.logger.Warn("stop preemption", "error", err)
		}
	}
	self := s.Self()
	s.record(model.EventTeardown, self, 0, status)

	remaining := s.p.drain()
	for _, t := range remaining {
		s.release(t, self)
	}
	s.status = status
	s.terminated.Store(true)
	s.logger.Info("scheduler terminated",
		"status", status,
		"released", len(remaining),
		"created", s.created.Load(),
		"switches", s.switches.Load(),
		"preemptions", s.preemptions.Load(),
	)

	if s.done != nil {
		close(s.done)
		runtime.Goexit()
	}
	s.exitFn(status)
	runtime.Goexit()
}

func (s *Scheduler) record(kind model.EventKind, tid, peer model.TID, result int) {
	if s.recorder == nil {
		return
	}
	s.seq++
	s.recorder.Record(model.Event{
		RunID:  s.id,
		Seq:    s.seq,
		Kind:   kind,
		TID:    tid,
		Peer:   peer,
		Result: result,
		At:     time.Now().UTC(),
	})
}
