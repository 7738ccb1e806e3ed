//go:build !linux

package preempt

import "errors"

// ErrITimerUnsupported is returned by NewITimer on platforms without
// setitimer support in golang.org/x/sys/unix.
var ErrITimerUnsupported = errors.New("preempt: interval timer not supported on this platform")

// ITimer is unavailable on this platform.
type ITimer struct{}

// NewITimer always fails on this platform.
func NewITimer(hz int) (*ITimer, error) {
	return nil, ErrITimerUnsupported
}

func (t *ITimer) Start(tick func()) error { return ErrITimerUnsupported }

func (t *ITimer) Stop() error { return ErrITimerUnsupported }
