package uthread

import (
	"fmt"
	"sort"

	"github.com/me/uthread/internal/queue"
	"github.com/me/uthread/internal/ucontext"
	"github.com/me/uthread/pkg/model"
)

// tcb is the control block of one logical thread.
type tcb struct {
	tid    model.TID
	state  model.ThreadState
	ctx    *ucontext.Context
	stack  *ucontext.Stack // nil for the main thread
	result int
	exited bool // body returned or called Exit
	waiter *model.TID
}

// pools holds every live control block. Membership follows state: the
// running slot for RUNNING, one queue each for READY, WAITING and FINISHED.
// Only move (and teardown, through detach) changes membership.
type pools struct {
	running  *tcb
	ready    *queue.Queue[*tcb]
	waiting  *queue.Queue[*tcb]
	finished *queue.Queue[*tcb]
	index    map[model.TID]*tcb
}

func newPools() pools {
	return pools{
		ready:    queue.New[*tcb](),
		waiting:  queue.New[*tcb](),
		finished: queue.New[*tcb](),
		index:    make(map[model.TID]*tcb),
	}
}

func (p *pools) queueFor(state model.ThreadState) *queue.Queue[*tcb] {
	switch state {
	case model.ThreadStateReady:
		return p.ready
	case model.ThreadStateWaiting:
		return p.waiting
	case model.ThreadStateFinished:
		return p.finished
	}
	return nil
}

// register publishes a NEW control block under its TID.
func (p *pools) register(t *tcb) {
	if _, dup := p.index[t.tid]; dup {
		panic(fmt.Sprintf("uthread: duplicate thread %d", t.tid))
	}
	p.index[t.tid] = t
}

func (p *pools) lookup(tid model.TID) *tcb {
	return p.index[tid]
}

// move transitions t to state, taking it out of the pool for its current
// state and putting it into the pool for the new one.
func (p *pools) move(t *tcb, to model.ThreadState) {
	if !t.state.CanTransitionTo(to) {
		panic(&model.InvalidTransitionError{TID: t.tid, From: t.state, To: to})
	}
	p.detach(t)
	t.state = to
	p.attach(t)
}

func (p *pools) detach(t *tcb) {
	switch t.state {
	case model.ThreadStateNew, model.ThreadStateReaped:
	case model.ThreadStateRunning:
		if p.running != t {
			panic(fmt.Sprintf("uthread: thread %d is RUNNING but not in the running slot", t.tid))
		}
		p.running = nil
	default:
		if err := p.queueFor(t.state).Delete(t); err != nil {
			panic(fmt.Sprintf("uthread: thread %d missing from %s pool: %v", t.tid, t.state, err))
		}
	}
}

func (p *pools) attach(t *tcb) {
	switch t.state {
	case model.ThreadStateRunning:
		if p.running != nil {
			panic(fmt.Sprintf("uthread: running slot held by %d, cannot install %d", p.running.tid, t.tid))
		}
		p.running = t
	case model.ThreadStateReaped:
		delete(p.index, t.tid)
	default:
		if err := p.queueFor(t.state).Enqueue(t); err != nil {
			panic(fmt.Sprintf("uthread: enqueue thread %d: %v", t.tid, err))
		}
	}
}

// drain detaches every pooled control block and returns them, running slot
// first, then ready, waiting and finished in queue order. The queues are
// destroyed afterwards.
func (p *pools) drain() []*tcb {
	var all []*tcb
	if p.running != nil {
		all = append(all, p.running)
	}
	collect := func(t *tcb) bool {
		all = append(all, t)
		return false
	}
	for _, q := range []*queue.Queue[*tcb]{p.ready, p.waiting, p.finished} {
		q.Iterate(collect)
	}

	for _, t := range all {
		p.detach(t)
		t.state = model.ThreadStateReaped
		delete(p.index, t.tid)
	}
	for _, q := range []*queue.Queue[*tcb]{p.ready, p.waiting, p.finished} {
		if err := q.Destroy(); err != nil {
			panic(fmt.Sprintf("uthread: destroy pool: %v", err))
		}
	}
	return all
}

// snapshot returns a view of every live control block ordered by TID.
func (p *pools) snapshot() []model.ThreadInfo {
	out := make([]model.ThreadInfo, 0, len(p.index))
	for _, t := range p.index {
		info := model.ThreadInfo{
			TID:      t.tid,
			State:    t.state,
			HasStack: t.stack != nil,
		}
		if t.waiter != nil {
			w := *t.waiter
			info.Waiter = &w
		}
		if t.state == model.ThreadStateFinished {
			r := t.result
			info.Result = &r
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TID < out[j].TID })
	return out
}
