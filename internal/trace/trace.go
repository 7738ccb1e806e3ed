// Package trace records scheduler transitions and persists them per run.
package trace

import (
	"sync"

	"github.com/me/uthread/pkg/model"
)

// Recorder receives scheduler events. The scheduler calls Record from
// inside its critical sections, so implementations must not block and must
// not call back into the scheduler.
type Recorder interface {
	Record(ev model.Event)
}

// Buffer is an in-memory Recorder that keeps events in arrival order.
type Buffer struct {
	mu     sync.Mutex
	events []model.Event
	limit  int
	lost   uint64
}

// NewBuffer creates a buffer holding at most limit events. Events beyond
// the limit are counted and discarded. limit <= 0 means unbounded.
func NewBuffer(limit int) *Buffer {
	return &Buffer{limit: limit}
}

// Record appends ev.
func (b *Buffer) Record(ev model.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.limit > 0 && len(b.events) >= b.limit {
		b.lost++
		return
	}
	b.events = append(b.events, ev)
}

// Events returns a copy of the recorded events.
func (b *Buffer) Events() []model.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]model.Event, len(b.events))
	copy(out, b.events)
	return out
}

// Len returns the number of recorded events.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// Lost returns the number of events discarded because the buffer was full.
func (b *Buffer) Lost() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lost
}

// Kinds returns the event kinds in order. Handy for assertions.
func (b *Buffer) Kinds() []model.EventKind {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]model.EventKind, len(b.events))
	for i, ev := range b.events {
		out[i] = ev.Kind
	}
	return out
}
