// Copyright 2026 The Akira Authors
// SPDX-License-Identifier: Apache-2.0

package sched

import "time"

// Priority orders tasks in the ready queue. Higher values run first.
type Priority int

const (
	PriorityIdle Priority = iota
	PriorityLow
	PriorityNormal
	PriorityHigh
	PriorityRealtime
)

func (p Priority) String() string {
	switch p {
	case PriorityIdle:
		return "idle"
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityRealtime:
		return "realtime"
	default:
		return "unknown"
	}
}

// State is a task's position in its lifecycle. Transitions happen only
// through the scheduler API; see [Scheduler].
type State int

const (
	// StateInactive: created but never started.
	StateInactive State = iota
	// StateReady: waiting in the ready queue.
	StateReady
	// StateRunning: currently executing its entry. At most one task is
	// Running at a time.
	StateRunning
	// StateBlocked: parked by Block, waiting for Unblock.
	StateBlocked
	// StateSuspended: removed from scheduling until Resume.
	StateSuspended
	// StateTerminated: entry returned without yielding or blocking.
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateBlocked:
		return "blocked"
	case StateSuspended:
		return "suspended"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Handle identifies a task within one scheduler. Handles are slot
// indices and are reused after Destroy.
type Handle int

// NoTask is the handle value meaning "no task", returned by Current
// when the scheduler is idle.
const NoTask Handle = -1

// EntryFunc is one slice of a task's work. The scheduler calls it
// synchronously with no locks held; it may call the scheduler's Yield
// and Block methods. Returning without either terminates the task.
type EntryFunc func()

// TaskConfig describes a task to create.
type TaskConfig struct {
	// Name identifies the task in logs and reports. Empty means a
	// generated name.
	Name string

	// Entry is the task's work. Required.
	Entry EntryFunc

	// Priority of the task. The zero value is PriorityIdle.
	Priority Priority

	// TimeSlice is the maximum uninterrupted runtime before Tick
	// preempts the task. Zero means the scheduler default.
	TimeSlice time.Duration

	// AppID correlates the task with its resource account and
	// capability set. The scheduler itself never interprets it.
	AppID uint32
}

// Stats is a snapshot of one task's runtime counters.
type Stats struct {
	// TotalRuntime is wall time spent inside the entry across all
	// slices.
	TotalRuntime time.Duration `cbor:"total_runtime"`
	// Slices counts entry invocations.
	Slices uint32 `cbor:"slices"`
	// Preemptions counts time-slice expiries detected by Tick.
	Preemptions uint32 `cbor:"preemptions"`
	// Yields counts voluntary Yield calls.
	Yields uint32 `cbor:"yields"`
	// AvgSlice is TotalRuntime / Slices, zero before the first slice.
	AvgSlice time.Duration `cbor:"avg_slice"`
}

// TaskReport is one task's row in a scheduler report.
type TaskReport struct {
	Handle      Handle   `cbor:"handle"`
	Name        string   `cbor:"name"`
	AppID       uint32   `cbor:"app_id"`
	Priority    Priority `cbor:"priority"`
	State       State    `cbor:"state"`
	BlockReason string   `cbor:"block_reason,omitempty"`
	Stats       Stats    `cbor:"stats"`
}

// task is one slot in the scheduler's fixed table.
type task struct {
	used        bool
	name        string
	entry       EntryFunc
	priority    Priority
	state       State
	timeSlice   time.Duration
	appID       uint32
	blockReason string

	// executing is set while Run has the entry on the call stack. The
	// entry runs unlocked, so state alone cannot tell "preempted and
	// parked" from "preempted but still on the CPU"; Destroy must
	// refuse the latter or the slot could be reused under a live entry.
	executing bool

	sliceStart   time.Time
	totalRuntime time.Duration
	slices       uint32
	preemptions  uint32
	yields       uint32
}
