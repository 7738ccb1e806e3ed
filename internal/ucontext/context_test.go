package ucontext

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestSwitch_PingPong(t *testing.T) {
	sw := NewGoroutineSwitcher(DefaultConfig())
	main := NewContext()
	worker := NewContext()
	stack, err := sw.AllocStack()
	if err != nil {
		t.Fatalf("AllocStack: %v", err)
	}

	var steps []string
	unwound := make(chan struct{})
	err = sw.Init(worker, stack, func(arg any) {
		defer close(unwound)
		steps = append(steps, "w1:"+arg.(string))
		sw.Switch(worker, main)
		steps = append(steps, "w2")
		sw.Switch(worker, main)
		steps = append(steps, "unreachable")
	}, "hello")
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	steps = append(steps, "m1")
	sw.Switch(main, worker)
	steps = append(steps, "m2")
	sw.Switch(main, worker)
	steps = append(steps, "m3")

	if got, want := strings.Join(steps, ","), "m1,w1:hello,m2,w2,m3"; got != want {
		t.Errorf("steps = %s, want %s", got, want)
	}

	if err := sw.DestroyStack(stack); err != nil {
		t.Fatalf("DestroyStack: %v", err)
	}
	select {
	case <-unwound:
	case <-time.After(5 * time.Second):
		t.Fatal("parked goroutine did not unwind after DestroyStack")
	}
	if !worker.Retired() {
		t.Error("context not retired after DestroyStack")
	}
}

func TestDestroyStack_NeverStarted(t *testing.T) {
	sw := NewGoroutineSwitcher(DefaultConfig())
	stack, _ := sw.AllocStack()
	ctx := NewContext()
	ran := false
	if err := sw.Init(ctx, stack, func(any) { ran = true }, nil); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := sw.DestroyStack(stack); err != nil {
		t.Fatalf("DestroyStack: %v", err)
	}
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("goroutine of a retired context did not exit")
	}
	if ran {
		t.Error("entry ran for a context that was never switched to")
	}
}

func TestDestroyStack_DoubleFree(t *testing.T) {
	sw := NewGoroutineSwitcher(DefaultConfig())
	stack, _ := sw.AllocStack()
	if err := sw.DestroyStack(stack); err != nil {
		t.Fatalf("first DestroyStack: %v", err)
	}
	if err := sw.DestroyStack(stack); !errors.Is(err, ErrDoubleFree) {
		t.Fatalf("second DestroyStack = %v, want ErrDoubleFree", err)
	}
	st := sw.Stats()
	if st.Allocated != 1 || st.Released != 1 || st.Live != 0 {
		t.Errorf("stats = %+v, want 1 allocated, 1 released, 0 live", st)
	}
}

func TestAllocStack_Budget(t *testing.T) {
	sw := NewGoroutineSwitcher(Config{MaxStacks: 2})

	a, err := sw.AllocStack()
	if err != nil {
		t.Fatalf("AllocStack a: %v", err)
	}
	if _, err := sw.AllocStack(); err != nil {
		t.Fatalf("AllocStack b: %v", err)
	}
	if _, err := sw.AllocStack(); !errors.Is(err, ErrStackExhausted) {
		t.Fatalf("third AllocStack = %v, want ErrStackExhausted", err)
	}
	if err := sw.DestroyStack(a); err != nil {
		t.Fatalf("DestroyStack: %v", err)
	}
	c, err := sw.AllocStack()
	if err != nil {
		t.Fatalf("AllocStack after release: %v", err)
	}
	if c.ID() == a.ID() {
		t.Error("stack IDs must not be reused")
	}
	if c.Size() != DefaultStackSize {
		t.Errorf("Size = %d, want %d", c.Size(), DefaultStackSize)
	}

	st := sw.Stats()
	if st.Limit != 2 || st.Live != 2 || st.Allocated != 3 || st.Released != 1 {
		t.Errorf("stats = %+v", st)
	}
}

func TestInit_Errors(t *testing.T) {
	sw := NewGoroutineSwitcher(DefaultConfig())
	stack, _ := sw.AllocStack()
	entry := func(any) {}

	if err := sw.Init(nil, stack, entry, nil); !errors.Is(err, ErrNilContext) {
		t.Errorf("Init(nil ctx) = %v, want ErrNilContext", err)
	}
	if err := sw.Init(NewContext(), nil, entry, nil); !errors.Is(err, ErrNilContext) {
		t.Errorf("Init(nil stack) = %v, want ErrNilContext", err)
	}
	if err := sw.Init(NewContext(), stack, nil, nil); !errors.Is(err, ErrNilEntry) {
		t.Errorf("Init(nil entry) = %v, want ErrNilEntry", err)
	}

	ctx := NewContext()
	if err := sw.Init(ctx, stack, entry, nil); err != nil {
		t.Fatalf("Init: %v", err)
	}
	other, _ := sw.AllocStack()
	if err := sw.Init(ctx, other, entry, nil); !errors.Is(err, ErrContextBound) {
		t.Errorf("re-Init context = %v, want ErrContextBound", err)
	}
	if err := sw.Init(NewContext(), stack, entry, nil); !errors.Is(err, ErrContextBound) {
		t.Errorf("Init with bound stack = %v, want ErrContextBound", err)
	}
	if ctx.Stack() != stack {
		t.Error("Stack() does not return the bound stack")
	}

	sw.DestroyStack(stack)
	sw.DestroyStack(other)
}

func TestRetire_Idempotent(t *testing.T) {
	ctx := NewContext()
	ctx.Retire()
	ctx.Retire()
	if !ctx.Retired() {
		t.Error("Retired() = false after Retire")
	}
}

func TestSwitch_RetiredTargetPanics(t *testing.T) {
	sw := NewGoroutineSwitcher(DefaultConfig())
	from, to := NewContext(), NewContext()
	to.Retire()

	defer func() {
		if recover() == nil {
			t.Error("expected panic switching to a retired context")
		}
	}()
	sw.Switch(from, to)
}

func TestBudget_Nil(t *testing.T) {
	var b *budget
	if !b.tryAcquire() {
		t.Error("nil budget tryAcquire should succeed")
	}
	b.release()
	if b.capacity() != 0 {
		t.Errorf("nil budget capacity = %d, want 0", b.capacity())
	}
	if newBudget(0) != nil {
		t.Error("newBudget(0) should be unlimited (nil)")
	}
}

func TestDone_AfterDeferredCalls(t *testing.T) {
	sw := NewGoroutineSwitcher(DefaultConfig())
	main, worker := NewContext(), NewContext()
	stack, _ := sw.AllocStack()

	var deferred bool
	sw.Init(worker, stack, func(any) {
		defer func() {
			time.Sleep(5 * time.Millisecond)
			deferred = true
		}()
		sw.Switch(worker, main)
	}, nil)
	sw.Switch(main, worker)

	select {
	case <-worker.Done():
		t.Fatal("Done closed while the context is parked")
	default:
	}
	sw.DestroyStack(stack)
	select {
	case <-worker.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("Done not closed after DestroyStack")
	}
	if !deferred {
		t.Error("Done closed before the deferred calls ran")
	}
}
