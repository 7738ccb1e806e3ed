package model

import "time"

// EventKind classifies a scheduling event.
type EventKind string

const (
	EventCreate   EventKind = "create"
	EventSwitch   EventKind = "switch"
	EventPreempt  EventKind = "preempt"
	EventBlock    EventKind = "block"
	EventWake     EventKind = "wake"
	EventExit     EventKind = "exit"
	EventReap     EventKind = "reap"
	EventTeardown EventKind = "teardown"
)

// Event is one scheduler transition. Peer is the other thread involved
// (switch target, join target, woken waiter); it is MainTID when unused.
type Event struct {
	RunID  string    `json:"run_id"`
	Seq    uint64    `json:"seq"`
	Kind   EventKind `json:"kind"`
	TID    TID       `json:"tid"`
	Peer   TID       `json:"peer"`
	Result int       `json:"result"`
	At     time.Time `json:"at"`
}

// Run describes one scheduler lifetime recorded in the trace store.
type Run struct {
	ID          string          `json:"id"`
	Workload    string          `json:"workload"`
	Threads     int             `json:"threads"`
	TickHz      int             `json:"tick_hz"`
	TickSource  TickSource      `json:"tick_source"`
	ExitStatus  *int            `json:"exit_status,omitempty"`
	EventCount  int             `json:"event_count"`
	Stats       *SchedulerStats `json:"stats,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}
