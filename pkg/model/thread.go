package model

import "math"

// TID identifies a logical thread. TIDs are assigned in increasing order
// and never reused.
type TID uint32

const (
	// MainTID is the implicit initial thread. It is never returned by Create.
	MainTID TID = 0

	// MaxTID is the largest identifier the scheduler will hand out.
	MaxTID TID = math.MaxUint32
)

// ThreadInfo is a point-in-time view of one control block.
type ThreadInfo struct {
	TID      TID         `json:"tid"`
	State    ThreadState `json:"state"`
	Waiter   *TID        `json:"waiter,omitempty"`
	Result   *int        `json:"result,omitempty"`
	HasStack bool        `json:"has_stack"`
}

// StackStats reports stack allocation activity.
type StackStats struct {
	Allocated uint64 `json:"allocated"`
	Released  uint64 `json:"released"`
	Live      int64  `json:"live"`
	Limit     int    `json:"limit"`
}

// TickStats reports preemption timer activity.
type TickStats struct {
	Delivered uint64 `json:"delivered"`
	Dropped   uint64 `json:"dropped"`
}

// SchedulerStats is a snapshot of scheduler counters.
type SchedulerStats struct {
	RunID       string     `json:"run_id"`
	Started     bool       `json:"started"`
	Terminated  bool       `json:"terminated"`
	Running     TID        `json:"running"`
	Created     uint64     `json:"created"`
	Switches    uint64     `json:"switches"`
	Yields      uint64     `json:"yields"`
	Preemptions uint64     `json:"preemptions"`
	Joins       uint64     `json:"joins"`
	Reaped      uint64     `json:"reaped"`
	Live        int64      `json:"live"`
	Stacks      StackStats `json:"stacks"`
	Ticks       TickStats  `json:"ticks"`
}
