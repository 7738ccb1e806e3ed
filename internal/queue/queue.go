// Package queue provides the FIFO container the scheduler keeps its thread
// control blocks in. Handles are compared by identity, and every operation
// either completes or leaves the queue exactly as it was.
package queue

import "errors"

var (
	ErrNilQueue  = errors.New("queue: nil queue")
	ErrNilHandle = errors.New("queue: nil handle")
	ErrNilFunc   = errors.New("queue: nil predicate")
	ErrEmpty     = errors.New("queue: empty")
	ErrNotFound  = errors.New("queue: handle not found")
	ErrNotEmpty  = errors.New("queue: not empty")
)

type node[T comparable] struct {
	h    T
	next *node[T]
}

// Queue is a singly linked FIFO of handles with head and tail tracking.
// The zero value of T is treated as an absent handle and is never stored.
// A nil *Queue is an absent queue; methods on it return ErrNilQueue.
type Queue[T comparable] struct {
	head, tail *node[T]
	n          int
}

// New returns an empty queue.
func New[T comparable]() *Queue[T] {
	return &Queue[T]{}
}

// Destroy releases the queue's links. It refuses to destroy a queue that
// still holds handles, so no handle is silently dropped.
func (q *Queue[T]) Destroy() error {
	if q == nil {
		return ErrNilQueue
	}
	if q.n > 0 {
		return ErrNotEmpty
	}
	q.head, q.tail = nil, nil
	return nil
}

// Enqueue appends h at the tail.
func (q *Queue[T]) Enqueue(h T) error {
	if q == nil {
		return ErrNilQueue
	}
	var zero T
	if h == zero {
		return ErrNilHandle
	}
	n := &node[T]{h: h}
	if q.tail == nil {
		q.head = n
	} else {
		q.tail.next = n
	}
	q.tail = n
	q.n++
	return nil
}

// Dequeue removes and returns the head handle.
func (q *Queue[T]) Dequeue() (T, error) {
	var zero T
	if q == nil {
		return zero, ErrNilQueue
	}
	n := q.head
	if n == nil {
		return zero, ErrEmpty
	}
	q.head = n.next
	if q.head == nil {
		q.tail = nil
	}
	n.next = nil
	q.n--
	return n.h, nil
}

// Peek returns the head handle without removing it.
func (q *Queue[T]) Peek() (T, error) {
	var zero T
	if q == nil {
		return zero, ErrNilQueue
	}
	if q.head == nil {
		return zero, ErrEmpty
	}
	return q.head.h, nil
}

// Delete removes the first node holding h.
func (q *Queue[T]) Delete(h T) error {
	if q == nil {
		return ErrNilQueue
	}
	var zero T
	if h == zero {
		return ErrNilHandle
	}
	var prev *node[T]
	for n := q.head; n != nil; prev, n = n, n.next {
		if n.h != h {
			continue
		}
		if prev == nil {
			q.head = n.next
		} else {
			prev.next = n.next
		}
		if q.tail == n {
			q.tail = prev
		}
		n.next = nil
		q.n--
		return nil
	}
	return ErrNotFound
}

// Iterate calls fn on each handle from head to tail and stops at the first
// handle for which fn returns true. It reports that handle and true, or the
// zero value and false when nothing matched.
//
// fn may modify what a handle refers to, but must not enqueue, dequeue or
// delete on q.
func (q *Queue[T]) Iterate(fn func(h T) bool) (T, bool, error) {
	var zero T
	if q == nil {
		return zero, false, ErrNilQueue
	}
	if fn == nil {
		return zero, false, ErrNilFunc
	}
	for n := q.head; n != nil; n = n.next {
		if fn(n.h) {
			return n.h, true, nil
		}
	}
	return zero, false, nil
}

// Len returns the number of handles, or -1 for a nil queue.
func (q *Queue[T]) Len() int {
	if q == nil {
		return -1
	}
	return q.n
}
