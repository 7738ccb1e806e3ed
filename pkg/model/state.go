package model

// ThreadState represents the lifecycle state of a logical thread.
type ThreadState string

const (
	// ThreadStateNew marks a control block that has been allocated but not yet
	// published to any pool.
	ThreadStateNew      ThreadState = "NEW"
	ThreadStateReady    ThreadState = "READY"
	ThreadStateRunning  ThreadState = "RUNNING"
	ThreadStateWaiting  ThreadState = "WAITING"
	ThreadStateFinished ThreadState = "FINISHED"
	// ThreadStateReaped marks a control block whose context has been released.
	// It is held by no pool.
	ThreadStateReaped ThreadState = "REAPED"
)

// String returns the string representation of the thread state.
func (s ThreadState) String() string {
	return string(s)
}

// IsTerminal returns true if the thread will never run again.
func (s ThreadState) IsTerminal() bool {
	switch s {
	case ThreadStateFinished, ThreadStateReaped:
		return true
	}
	return false
}

// IsPooled returns true if a thread in this state is held by exactly one of
// the scheduler's pools (or the running slot).
func (s ThreadState) IsPooled() bool {
	switch s {
	case ThreadStateReady, ThreadStateRunning, ThreadStateWaiting, ThreadStateFinished:
		return true
	}
	return false
}

// ValidThreadTransitions defines the allowed state transitions for threads.
var ValidThreadTransitions = map[ThreadState][]ThreadState{
	ThreadStateNew:      {ThreadStateReady, ThreadStateRunning},
	ThreadStateReady:    {ThreadStateRunning},
	ThreadStateRunning:  {ThreadStateReady, ThreadStateWaiting, ThreadStateFinished},
	ThreadStateWaiting:  {ThreadStateReady},
	ThreadStateFinished: {ThreadStateReaped},
}

// CanTransitionTo returns true if moving from the current state to next is valid.
func (s ThreadState) CanTransitionTo(next ThreadState) bool {
	for _, allowed := range ValidThreadTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// TickSource identifies which timer drives preemption.
type TickSource string

const (
	TickSourceTicker TickSource = "ticker"
	TickSourceITimer TickSource = "itimer"
	TickSourceNone   TickSource = "none"
)

// Valid reports whether s names a known tick source.
func (s TickSource) Valid() bool {
	switch s {
	case TickSourceTicker, TickSourceITimer, TickSourceNone:
		return true
	}
	return false
}
