package preempt

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/me/uthread/pkg/model"
)

func testController(t *testing.T) (*Controller, *Manual) {
	t.Helper()
	src := NewManual()
	c := New(src, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { c.Stop() })
	return c, src
}

func TestController_StartsEnabled(t *testing.T) {
	c, _ := testController(t)
	if c.State() != Enabled {
		t.Errorf("State = %v, want ENABLED", c.State())
	}
	if err := c.Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start = %v, want ErrAlreadyStarted", err)
	}
}

func TestController_TakeConsumesOneTick(t *testing.T) {
	c, src := testController(t)

	if c.Take() {
		t.Fatal("Take reported a tick before any was fired")
	}
	src.Fire()
	src.Fire() // coalesces with the pending tick
	if !c.Take() {
		t.Fatal("Take = false after Fire")
	}
	if c.Take() {
		t.Fatal("Take = true twice for coalesced ticks")
	}

	st := c.Stats()
	if st.Delivered != 2 || st.Dropped != 0 {
		t.Errorf("stats = %+v, want 2 delivered", st)
	}
}

func TestController_DisableIgnoresTicks(t *testing.T) {
	c, src := testController(t)

	c.Disable()
	if c.State() != Disabled {
		t.Fatalf("State = %v, want DISABLED", c.State())
	}
	src.Fire()
	if c.Take() {
		t.Error("Take = true while disabled")
	}
	c.Enable()
	if c.Take() {
		t.Error("tick delivered while disabled survived Enable")
	}
	if st := c.Stats(); st.Dropped != 1 {
		t.Errorf("Dropped = %d, want 1", st.Dropped)
	}
}

func TestController_DisableDiscardsPending(t *testing.T) {
	c, src := testController(t)

	src.Fire()
	c.Disable()
	c.Enable()
	if c.Take() {
		t.Error("pending tick survived a Disable/Enable bracket")
	}
}

func TestController_Stop(t *testing.T) {
	src := NewManual()
	c := New(src, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := c.Stop(); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Stop before Start = %v, want ErrNotStarted", err)
	}
	c.Start()
	src.Fire()
	if err := c.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if c.Take() {
		t.Error("Take = true after Stop")
	}
	if src.Fire() {
		t.Error("manual source still delivering after Stop")
	}
}

func TestController_Nil(t *testing.T) {
	var c *Controller
	if err := c.Start(); err != nil {
		t.Errorf("nil Start = %v", err)
	}
	c.Disable()
	c.Enable()
	if c.Take() {
		t.Error("nil controller Take = true")
	}
	if c.State() != Disabled {
		t.Errorf("nil controller State = %v", c.State())
	}
	if st := c.Stats(); st != (model.TickStats{}) {
		t.Errorf("nil controller Stats = %+v", st)
	}
	if err := c.Stop(); err != nil {
		t.Errorf("nil Stop = %v", err)
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{Enabled, "ENABLED"},
		{Disabled, "DISABLED"},
		{State(7), "State(7)"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestTicker_Delivers(t *testing.T) {
	src, err := NewTicker(1000)
	if err != nil {
		t.Fatalf("NewTicker: %v", err)
	}
	if src.Interval() != time.Millisecond {
		t.Errorf("Interval = %v, want 1ms", src.Interval())
	}

	ticks := make(chan struct{}, 16)
	if err := src.Start(func() {
		select {
		case ticks <- struct{}{}:
		default:
		}
	}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := src.Start(func() {}); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start = %v, want ErrAlreadyStarted", err)
	}

	select {
	case <-ticks:
	case <-time.After(5 * time.Second):
		t.Fatal("no tick within 5s")
	}
	if err := src.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := src.Stop(); !errors.Is(err, ErrNotStarted) {
		t.Errorf("second Stop = %v, want ErrNotStarted", err)
	}
}

func TestNewTicker_BadFrequency(t *testing.T) {
	if _, err := NewTicker(0); !errors.Is(err, ErrBadFrequency) {
		t.Errorf("NewTicker(0) = %v, want ErrBadFrequency", err)
	}
}

func TestNewSource(t *testing.T) {
	src, err := NewSource(model.TickSourceNone, DefaultHz)
	if err != nil || src != nil {
		t.Errorf("NewSource(none) = %v, %v; want nil, nil", src, err)
	}
	src, err = NewSource(model.TickSourceTicker, DefaultHz)
	if err != nil {
		t.Fatalf("NewSource(ticker): %v", err)
	}
	if _, ok := src.(*Ticker); !ok {
		t.Errorf("NewSource(ticker) = %T, want *Ticker", src)
	}
	if _, err := NewSource("bogus", DefaultHz); err == nil {
		t.Error("NewSource(bogus) succeeded")
	}
}
