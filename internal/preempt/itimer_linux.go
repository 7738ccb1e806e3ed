//go:build linux

package preempt

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// ITimer is a Source driven by setitimer(ITIMER_VIRTUAL). The kernel
// delivers SIGVTALRM each time the process has consumed one interval of
// user CPU time, so a blocked process receives no ticks.
type ITimer struct {
	interval time.Duration

	mu     sync.Mutex
	sigCh  chan os.Signal
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewITimer creates an interval-timer source firing hz times per CPU second.
func NewITimer(hz int) (*ITimer, error) {
	if hz <= 0 {
		return nil, ErrBadFrequency
	}
	return &ITimer{interval: time.Second / time.Duration(hz)}, nil
}

// Start subscribes to SIGVTALRM and arms the timer.
func (t *ITimer) Start(tick func()) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopCh != nil {
		return ErrAlreadyStarted
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, unix.SIGVTALRM)

	tv := unix.NsecToTimeval(t.interval.Nanoseconds())
	if _, err := unix.Setitimer(unix.ItimerVirtual, unix.Itimerval{Interval: tv, Value: tv}); err != nil {
		signal.Stop(sigCh)
		return fmt.Errorf("setitimer: %w", err)
	}

	t.sigCh = sigCh
	t.stopCh = make(chan struct{})
	t.doneCh = make(chan struct{})
	go t.loop(tick, t.sigCh, t.stopCh, t.doneCh)
	return nil
}

func (t *ITimer) loop(tick func(), sigCh <-chan os.Signal, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)
	for {
		select {
		case <-stopCh:
			return
		case <-sigCh:
			tick()
		}
	}
}

// Stop disarms the timer and ignores any SIGVTALRM still in flight.
func (t *ITimer) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopCh == nil {
		return ErrNotStarted
	}

	_, err := unix.Setitimer(unix.ItimerVirtual, unix.Itimerval{})
	signal.Ignore(unix.SIGVTALRM)

	close(t.stopCh)
	<-t.doneCh
	t.sigCh, t.stopCh, t.doneCh = nil, nil, nil
	if err != nil {
		return fmt.Errorf("disarm setitimer: %w", err)
	}
	return nil
}
