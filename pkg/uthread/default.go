package uthread

import (
	"sync"

	"github.com/me/uthread/pkg/model"
)

var (
	defaultOnce  sync.Once
	defaultSched *Scheduler
)

// Default returns the process-wide scheduler used by the package-level
// functions. It preempts at preempt.DefaultHz and exits the process with
// os.Exit when it terminates.
func Default() *Scheduler {
	defaultOnce.Do(func() {
		defaultSched = New()
	})
	return defaultSched
}

// Create starts a thread on the default scheduler.
func Create(entry EntryFunc, arg any) (model.TID, error) {
	return Default().Create(entry, arg)
}

// Yield yields on the default scheduler.
func Yield() { Default().Yield() }

// Self returns the running TID of the default scheduler.
func Self() model.TID { return Default().Self() }

// Exit ends the running thread of the default scheduler.
func Exit(result int) { Default().Exit(result) }

// Join joins tid on the default scheduler.
func Join(tid model.TID) (int, error) {
	return Default().Join(tid)
}

// Checkpoint is a preemption point on the default scheduler.
func Checkpoint() bool { return Default().Checkpoint() }
