package uthread

import (
	"log/slog"
	"os"

	"github.com/me/uthread/internal/preempt"
	"github.com/me/uthread/internal/trace"
	"github.com/me/uthread/internal/ucontext"
	"github.com/me/uthread/pkg/model"
)

// Option configures a Scheduler.
type Option func(*options)

type options struct {
	logger    *slog.Logger
	switcher  ucontext.Switcher
	source    preempt.Source
	recorder  trace.Recorder
	exit      func(status int)
	tidLimit  model.TID
	sourceSet bool
}

func defaultOptions() options {
	return options{
		logger:   slog.Default(),
		exit:     os.Exit,
		tidLimit: model.MaxTID,
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithSwitcher sets the execution-context implementation. The default is a
// GoroutineSwitcher with an unlimited stack budget.
func WithSwitcher(sw ucontext.Switcher) Option {
	return func(o *options) { o.switcher = sw }
}

// WithPreemption sets the tick source. A nil source turns preemption off.
// The default is a time.Ticker at preempt.DefaultHz.
func WithPreemption(src preempt.Source) Option {
	return func(o *options) {
		o.source = src
		o.sourceSet = true
	}
}

// WithRecorder sets where scheduling events are recorded.
func WithRecorder(r trace.Recorder) Option {
	return func(o *options) { o.recorder = r }
}

// WithExitFunc sets the function that ends the process when the scheduler
// terminates outside Run. It defaults to os.Exit. If fn returns, the
// terminating goroutine exits with runtime.Goexit.
func WithExitFunc(fn func(status int)) Option {
	return func(o *options) { o.exit = fn }
}

// WithTIDLimit caps the thread identifiers Create hands out. Create fails
// with model.ErrTIDExhausted once limit has been issued.
func WithTIDLimit(limit model.TID) Option {
	return func(o *options) { o.tidLimit = limit }
}
