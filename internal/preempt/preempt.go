// Package preempt turns a periodic timer into forced yields.
//
// A Source delivers ticks from its own goroutine. The Controller records a
// tick as pending while it is Enabled and discards it while Disabled; the
// running logical thread consumes a pending tick at its next preemption
// point (Take) and yields. Ticks never touch scheduler state directly.
package preempt

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/me/uthread/pkg/model"
)

// DefaultHz is the reference preemption frequency.
const DefaultHz = 100

var (
	ErrAlreadyStarted = errors.New("preempt: already started")
	ErrNotStarted     = errors.New("preempt: not started")
	ErrBadFrequency   = errors.New("preempt: frequency must be positive")
)

// Source is a periodic timer.
type Source interface {
	// Start begins calling tick periodically from a goroutine owned by the source.
	Start(tick func()) error

	// Stop halts delivery. No tick is delivered after Stop returns.
	Stop() error
}

// State is the controller's handler state.
type State int32

const (
	Disabled State = iota
	Enabled
)

func (s State) String() string {
	switch s {
	case Enabled:
		return "ENABLED"
	case Disabled:
		return "DISABLED"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Controller gates timer ticks. A nil *Controller means preemption is off:
// every method is a no-op and Take never reports a tick.
type Controller struct {
	src     Source
	logger  *slog.Logger
	state   atomic.Int32
	pending atomic.Bool
	started atomic.Bool

	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// New creates a controller for src.
func New(src Source, logger *slog.Logger) *Controller {
	return &Controller{
		src:    src,
		logger: logger.With("component", "preempt"),
	}
}

// Start installs the tick handler and starts the source. The controller is
// Enabled once Start returns.
func (c *Controller) Start() error {
	if c == nil {
		return nil
	}
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	c.state.Store(int32(Enabled))
	if err := c.src.Start(c.tick); err != nil {
		c.started.Store(false)
		c.state.Store(int32(Disabled))
		return fmt.Errorf("start tick source: %w", err)
	}
	c.logger.Debug("preemption started")
	return nil
}

// Stop halts the source and discards any pending tick.
func (c *Controller) Stop() error {
	if c == nil {
		return nil
	}
	if !c.started.CompareAndSwap(true, false) {
		return ErrNotStarted
	}
	c.state.Store(int32(Disabled))
	c.pending.Store(false)
	if err := c.src.Stop(); err != nil {
		return fmt.Errorf("stop tick source: %w", err)
	}
	c.logger.Debug("preemption stopped",
		"delivered", c.delivered.Load(),
		"dropped", c.dropped.Load(),
	)
	return nil
}

// Disable switches the handler to ignore. A tick that is already pending is
// discarded, as is every tick that arrives before Enable.
func (c *Controller) Disable() {
	if c == nil {
		return
	}
	c.state.Store(int32(Disabled))
	c.pending.Store(false)
}

// Enable restores the handler.
func (c *Controller) Enable() {
	if c == nil {
		return
	}
	c.state.Store(int32(Enabled))
}

// State returns the current handler state.
func (c *Controller) State() State {
	if c == nil {
		return Disabled
	}
	return State(c.state.Load())
}

// Take consumes a pending tick. It returns true when the caller should yield.
func (c *Controller) Take() bool {
	if c == nil || State(c.state.Load()) != Enabled {
		return false
	}
	return c.pending.CompareAndSwap(true, false)
}

// Stats reports tick counters.
func (c *Controller) Stats() model.TickStats {
	if c == nil {
		return model.TickStats{}
	}
	return model.TickStats{
		Delivered: c.delivered.Load(),
		Dropped:   c.dropped.Load(),
	}
}

func (c *Controller) tick() {
	if State(c.state.Load()) != Enabled {
		c.dropped.Add(1)
		return
	}
	c.delivered.Add(1)
	c.pending.Store(true)
}
