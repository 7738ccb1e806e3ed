// Package ucontext implements the execution-context primitive the scheduler
// switches between.
//
// A context is a parked goroutine. Exactly one goroutine holds the baton at
// a time; Switch hands it to the target and parks the caller until some
// later Switch targets the caller again. Destroying a context's stack
// retires the context, and its parked goroutine unwinds with runtime.Goexit.
package ucontext

import (
	"errors"
	"runtime"
	"sync/atomic"

	"github.com/me/uthread/pkg/model"
)

// DefaultStackSize is the nominal stack size charged per thread.
const DefaultStackSize = 32768

var (
	ErrStackExhausted = errors.New("ucontext: stack budget exhausted")
	ErrDoubleFree     = errors.New("ucontext: stack already released")
	ErrContextBound   = errors.New("ucontext: context already initialized")
	ErrNilContext     = errors.New("ucontext: nil context or stack")
	ErrNilEntry       = errors.New("ucontext: nil entry function")
)

// Switcher is the capability the scheduler needs from an execution-context
// implementation.
type Switcher interface {
	// AllocStack reserves a stack region.
	AllocStack() (*Stack, error)

	// Init binds ctx to stack so that the first Switch to ctx runs entry(arg).
	// entry must never return; it ends by switching away for the last time.
	Init(ctx *Context, stack *Stack, entry func(arg any), arg any) error

	// Switch parks the caller in from and resumes to. It returns only when
	// a later Switch targets from.
	Switch(from, to *Context)

	// DestroyStack releases stack and retires the context bound to it. The
	// context must never be switched to again.
	DestroyStack(stack *Stack) error

	// Stats reports allocation counters. Safe from any goroutine.
	Stats() model.StackStats
}

// Stack is a reserved stack region.
type Stack struct {
	id       uint64
	size     int
	ctx      *Context
	released bool
}

// ID returns the allocation sequence number of the stack.
func (s *Stack) ID() uint64 { return s.id }

// Size returns the nominal size of the stack in bytes.
func (s *Stack) Size() int { return s.size }

// Released reports whether the stack has been destroyed.
func (s *Stack) Released() bool { return s.released }

// Context is the saved state of one logical thread.
type Context struct {
	wake    chan struct{}
	dead    chan struct{}
	gone    chan struct{}
	stack   *Stack
	retired bool
}

// NewContext returns a context with no stack. The calling goroutine can
// Switch away from it and be resumed through it; this is how the initial
// thread is represented.
func NewContext() *Context {
	return &Context{
		wake: make(chan struct{}, 1),
		dead: make(chan struct{}),
		gone: make(chan struct{}),
	}
}

// Stack returns the stack bound by Init, or nil.
func (c *Context) Stack() *Stack { return c.stack }

// Done is closed once the goroutine started by Init has unwound, including
// its deferred calls. It is never closed for a context without a stack.
func (c *Context) Done() <-chan struct{} { return c.gone }

// Retired reports whether Retire has been called.
func (c *Context) Retired() bool { return c.retired }

// Retire marks c as never to be resumed. A goroutine parked in c unwinds.
// Calling Retire more than once is a no-op.
func (c *Context) Retire() {
	if c.retired {
		return
	}
	c.retired = true
	close(c.dead)
}

// Config configures a GoroutineSwitcher.
type Config struct {
	MaxStacks int // 0 means unlimited
	StackSize int // nominal bytes per stack
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{StackSize: DefaultStackSize}
}

// GoroutineSwitcher implements Switcher with one parked goroutine per context.
type GoroutineSwitcher struct {
	cfg       Config
	budget    *budget
	nextID    atomic.Uint64
	allocated atomic.Uint64
	released  atomic.Uint64
	live      atomic.Int64
}

// NewGoroutineSwitcher creates a switcher.
func NewGoroutineSwitcher(cfg Config) *GoroutineSwitcher {
	if cfg.StackSize <= 0 {
		cfg.StackSize = DefaultStackSize
	}
	return &GoroutineSwitcher{
		cfg:    cfg,
		budget: newBudget(cfg.MaxStacks),
	}
}

// AllocStack reserves a stack, failing with ErrStackExhausted when the
// configured limit is reached.
func (g *GoroutineSwitcher) AllocStack() (*Stack, error) {
	if !g.budget.tryAcquire() {
		return nil, ErrStackExhausted
	}
	g.allocated.Add(1)
	g.live.Add(1)
	return &Stack{id: g.nextID.Add(1), size: g.cfg.StackSize}, nil
}

// Init binds ctx to stack and starts the goroutine that will run entry once
// ctx is first switched to.
func (g *GoroutineSwitcher) Init(ctx *Context, stack *Stack, entry func(arg any), arg any) error {
	if ctx == nil || stack == nil {
		return ErrNilContext
	}
	if entry == nil {
		return ErrNilEntry
	}
	if ctx.stack != nil || stack.ctx != nil {
		return ErrContextBound
	}
	if stack.released {
		return ErrDoubleFree
	}
	ctx.stack = stack
	stack.ctx = ctx

	go func() {
		defer close(ctx.gone)
		select {
		case <-ctx.wake:
		case <-ctx.dead:
			return
		}
		entry(arg)
		panic("ucontext: entry function returned")
	}()
	return nil
}

// Switch hands the baton to to and parks in from.
func (g *GoroutineSwitcher) Switch(from, to *Context) {
	if to.retired {
		panic("ucontext: switch to a retired context")
	}
	to.wake <- struct{}{}
	select {
	case <-from.wake:
	case <-from.dead:
		runtime.Goexit()
	}
}

// DestroyStack releases stack and retires its context.
func (g *GoroutineSwitcher) DestroyStack(stack *Stack) error {
	if stack == nil {
		return ErrNilContext
	}
	if stack.released {
		return ErrDoubleFree
	}
	stack.released = true
	if stack.ctx != nil {
		stack.ctx.Retire()
	}
	g.budget.release()
	g.released.Add(1)
	g.live.Add(-1)
	return nil
}

// Stats reports allocation counters.
func (g *GoroutineSwitcher) Stats() model.StackStats {
	return model.StackStats{
		Allocated: g.allocated.Load(),
		Released:  g.released.Load(),
		Live:      g.live.Load(),
		Limit:     g.budget.capacity(),
	}
}
