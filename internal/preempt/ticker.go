package preempt

import (
	"sync"
	"time"
)

// Ticker is a portable Source backed by time.Ticker.
type Ticker struct {
	interval time.Duration

	mu     sync.Mutex
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewTicker creates a ticker source firing hz times per second.
func NewTicker(hz int) (*Ticker, error) {
	if hz <= 0 {
		return nil, ErrBadFrequency
	}
	return &Ticker{interval: time.Second / time.Duration(hz)}, nil
}

// Interval returns the tick period.
func (t *Ticker) Interval() time.Duration {
	return t.interval
}

// Start begins the tick loop in a background goroutine.
func (t *Ticker) Start(tick func()) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopCh != nil {
		return ErrAlreadyStarted
	}
	t.stopCh = make(chan struct{})
	t.doneCh = make(chan struct{})

	go t.loop(tick, t.stopCh, t.doneCh)
	return nil
}

func (t *Ticker) loop(tick func(), stopCh <-chan struct{}, doneCh chan<- struct{}) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	defer close(doneCh)

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			tick()
		}
	}
}

// Stop shuts down the loop and waits for the current tick to finish.
func (t *Ticker) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopCh == nil {
		return ErrNotStarted
	}
	close(t.stopCh)
	<-t.doneCh
	t.stopCh, t.doneCh = nil, nil
	return nil
}

// Manual is a Source that ticks only when Fire is called. Intended for tests
// and deterministic replays.
type Manual struct {
	mu   sync.Mutex
	tick func()
}

// NewManual creates a manual source.
func NewManual() *Manual {
	return &Manual{}
}

// Start records the tick handler.
func (m *Manual) Start(tick func()) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tick != nil {
		return ErrAlreadyStarted
	}
	m.tick = tick
	return nil
}

// Stop forgets the tick handler.
func (m *Manual) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tick == nil {
		return ErrNotStarted
	}
	m.tick = nil
	return nil
}

// Fire delivers one tick. It reports false if the source is stopped.
func (m *Manual) Fire() bool {
	m.mu.Lock()
	tick := m.tick
	m.mu.Unlock()
	if tick == nil {
		return false
	}
	tick()
	return true
}
