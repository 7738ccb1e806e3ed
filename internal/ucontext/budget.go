package ucontext

// budget bounds the number of live stacks.
// A nil budget is unlimited.
type budget struct {
	ch chan struct{}
}

// newBudget creates a budget with the given capacity.
// If n <= 0, returns nil (unlimited).
func newBudget(n int) *budget {
	if n <= 0 {
		return nil
	}
	return &budget{ch: make(chan struct{}, n)}
}

// tryAcquire takes a slot without blocking. It returns false when every
// slot is held.
func (b *budget) tryAcquire() bool {
	if b == nil {
		return true
	}
	select {
	case b.ch <- struct{}{}:
		return true
	default:
		return false
	}
}

// release returns a slot. No-op on a nil budget.
func (b *budget) release() {
	if b == nil {
		return
	}
	<-b.ch
}

// capacity returns the budget capacity, or 0 if nil (unlimited).
func (b *budget) capacity() int {
	if b == nil {
		return 0
	}
	return cap(b.ch)
}
