// Copyright 2026 The Akira Authors
// SPDX-License-Identifier: Apache-2.0

package sched

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/akira-foundation/akira/lib/clock"
)

var (
	// ErrNotFound is returned for a handle that names no live task.
	ErrNotFound = errors.New("sched: task not found")
	// ErrInvalidState is returned when an operation is illegal for the
	// task's current state.
	ErrInvalidState = errors.New("sched: invalid task state")
	// ErrOutOfSlots is returned by Create when the task table is full.
	ErrOutOfSlots = errors.New("sched: task table full")
)

// DefaultMaxTasks is the task table size when Config leaves it zero.
const DefaultMaxTasks = 16

// DefaultTimeSlice is the per-task time slice when neither Config nor
// TaskConfig sets one.
const DefaultTimeSlice = 10 * time.Millisecond

// Scheduler multiplexes container tasks over a single logical
// executor, cooperatively: one task runs at a time, and control
// returns only when the entry returns, yields, or blocks. Tick must be
// driven from outside task execution; it detects time-slice expiry and
// marks the running task preempted, but cannot interrupt the entry
// mid-call.
//
// The task table, ready queue, and current-task pointer share one
// mutex. The mutex is never held across entry execution, so an entry
// may re-enter the scheduler (Yield, Block) and consult the other
// kernel subsystems without deadlock.
type Scheduler struct {
	mu      sync.Mutex
	tasks   []task
	ready   []Handle
	current Handle
	ticks   uint64

	defaultSlice time.Duration
	clock        clock.Clock
	logger       *slog.Logger
}

// Config holds parameters for creating a Scheduler.
type Config struct {
	// MaxTasks is the fixed task table size. Zero means
	// DefaultMaxTasks.
	MaxTasks int

	// DefaultTimeSlice applies to tasks whose TaskConfig leaves
	// TimeSlice zero. Zero means DefaultTimeSlice.
	DefaultTimeSlice time.Duration

	// Clock supplies slice timing. Nil means clock.Real().
	Clock clock.Clock

	// Logger receives lifecycle lines. Nil means slog.Default().
	Logger *slog.Logger
}

// New creates an empty scheduler.
func New(config Config) *Scheduler {
	maxTasks := config.MaxTasks
	if maxTasks <= 0 {
		maxTasks = DefaultMaxTasks
	}
	slice := config.DefaultTimeSlice
	if slice <= 0 {
		slice = DefaultTimeSlice
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		tasks:        make([]task, maxTasks),
		ready:        make([]Handle, 0, maxTasks),
		current:      NoTask,
		defaultSlice: slice,
		clock:        clk,
		logger:       logger,
	}
}

// Create allocates a task slot. The task starts Inactive; Start makes
// it schedulable.
func (s *Scheduler) Create(config TaskConfig) (Handle, error) {
	if config.Entry == nil {
		return NoTask, fmt.Errorf("sched: task %q has no entry", config.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	handle := NoTask
	for i := range s.tasks {
		if !s.tasks[i].used {
			handle = Handle(i)
			break
		}
	}
	if handle == NoTask {
		return NoTask, ErrOutOfSlots
	}

	name := config.Name
	if name == "" {
		name = fmt.Sprintf("task-%d", handle)
	}
	slice := config.TimeSlice
	if slice <= 0 {
		slice = s.defaultSlice
	}

	s.tasks[handle] = task{
		used:      true,
		name:      name,
		entry:     config.Entry,
		priority:  config.Priority,
		state:     StateInactive,
		timeSlice: slice,
		appID:     config.AppID,
	}

	s.logger.Info("created task",
		"task", name,
		"handle", int(handle),
		"priority", config.Priority.String(),
		"app_id", config.AppID,
	)
	return handle, nil
}

// Destroy frees a task slot. A task whose entry is on the call stack
// cannot be destroyed, even after Tick has preempted it; it must
// return control first.
func (s *Scheduler) Destroy(handle Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.taskLocked(handle)
	if err != nil {
		return err
	}
	if s.current == handle || t.executing {
		return fmt.Errorf("%w: task %q is running", ErrInvalidState, t.name)
	}

	s.dequeueLocked(handle)
	s.logger.Info("destroyed task", "task", t.name, "handle", int(handle))
	*t = task{}
	return nil
}

// Start moves an Inactive or Suspended task to Ready and enqueues it.
func (s *Scheduler) Start(handle Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.taskLocked(handle)
	if err != nil {
		return err
	}
	if t.state != StateInactive && t.state != StateSuspended {
		return fmt.Errorf("%w: cannot start %s task %q", ErrInvalidState, t.state, t.name)
	}

	t.state = StateReady
	s.enqueueLocked(handle)
	s.logger.Debug("started task", "task", t.name)
	return nil
}

// Suspend removes a task from scheduling until Resume. A Running task
// is marked Suspended and parks when its current slice ends.
func (s *Scheduler) Suspend(handle Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.taskLocked(handle)
	if err != nil {
		return err
	}
	switch t.state {
	case StateReady, StateRunning, StateBlocked:
	default:
		return fmt.Errorf("%w: cannot suspend %s task %q", ErrInvalidState, t.state, t.name)
	}

	t.state = StateSuspended
	t.blockReason = ""
	s.dequeueLocked(handle)
	s.logger.Debug("suspended task", "task", t.name)
	return nil
}

// Resume moves a Suspended task back to Ready.
func (s *Scheduler) Resume(handle Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.taskLocked(handle)
	if err != nil {
		return err
	}
	if t.state != StateSuspended {
		return fmt.Errorf("%w: cannot resume %s task %q", ErrInvalidState, t.state, t.name)
	}

	t.state = StateReady
	s.enqueueLocked(handle)
	s.logger.Debug("resumed task", "task", t.name)
	return nil
}

// SetPriority changes a task's priority, re-sorting the ready queue in
// place if the task is queued.
func (s *Scheduler) SetPriority(handle Handle, priority Priority) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.taskLocked(handle)
	if err != nil {
		return err
	}

	t.priority = priority
	if t.state == StateReady {
		s.dequeueLocked(handle)
		s.enqueueLocked(handle)
	}
	return nil
}

// State returns a task's current lifecycle state.
func (s *Scheduler) State(handle Handle) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.taskLocked(handle)
	if err != nil {
		return StateInactive, err
	}
	return t.state, nil
}

// Stats returns a snapshot of a task's runtime counters.
func (s *Scheduler) Stats(handle Handle) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.taskLocked(handle)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{
		TotalRuntime: t.totalRuntime,
		Slices:       t.slices,
		Preemptions:  t.preemptions,
		Yields:       t.yields,
	}
	if t.slices > 0 {
		stats.AvgSlice = t.totalRuntime / time.Duration(t.slices)
	}
	return stats, nil
}

// Yield ends the running task's slice voluntarily. The task goes back
// to Ready behind its equal-priority peers, so peers get their turn
// before it runs again. Called from inside a task entry; a no-op when
// nothing is running.
func (s *Scheduler) Yield() {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.taskLocked(s.current)
	if err != nil || t.state != StateRunning {
		return
	}

	t.yields++
	t.state = StateReady
	s.enqueueLocked(s.current)
	s.logger.Debug("task yielded", "task", t.name, "yields", t.yields)
}

// Block parks the running task until Unblock. The task leaves the
// ready queue and stays parked when its slice returns. Called from
// inside a task entry; a no-op when nothing is running.
func (s *Scheduler) Block(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.taskLocked(s.current)
	if err != nil || t.state != StateRunning {
		return
	}

	t.state = StateBlocked
	t.blockReason = reason
	s.logger.Debug("task blocked", "task", t.name, "reason", reason)
}

// Unblock moves a Blocked task back to Ready.
func (s *Scheduler) Unblock(handle Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.taskLocked(handle)
	if err != nil {
		return err
	}
	if t.state != StateBlocked {
		return fmt.Errorf("%w: cannot unblock %s task %q", ErrInvalidState, t.state, t.name)
	}

	t.state = StateReady
	t.blockReason = ""
	s.enqueueLocked(handle)
	s.logger.Debug("task unblocked", "task", t.name)
	return nil
}

// Tick checks the running task against its time slice and, if expired,
// preempts it: the task drops to Ready behind its equal-priority peers
// and the current-task pointer clears. The entry itself is not
// interrupted; preemption takes effect when it next returns control.
// Tick must be driven from outside task execution, typically by a
// periodic ticker.
func (s *Scheduler) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ticks++

	t, err := s.taskLocked(s.current)
	if err != nil || t.state != StateRunning {
		return
	}

	now := s.clock.Now()
	elapsed := now.Sub(t.sliceStart)
	if elapsed < t.timeSlice {
		return
	}

	t.preemptions++
	t.state = StateReady
	t.totalRuntime += elapsed
	// Restart the slice clock so the run epilogue only accounts time
	// past this point.
	t.sliceStart = now
	s.enqueueLocked(s.current)
	s.logger.Debug("task preempted",
		"task", t.name,
		"slice", t.timeSlice,
		"preemptions", t.preemptions,
	)
	s.current = NoTask
}

// Run performs one scheduling decision: pick the head of the ready
// queue (the highest-priority task, oldest within its priority class),
// mark it Running, and execute its entry with no locks held. On return
// the outcome classifies the task: still Running means the entry
// completed and the task Terminates; Ready means it yielded or was
// preempted and requeues; Blocked or Suspended leaves it parked.
//
// Returns false when no task was ready.
func (s *Scheduler) Run() bool {
	s.mu.Lock()

	if len(s.ready) == 0 {
		s.mu.Unlock()
		return false
	}

	// Head of the queue. Re-enqueue behind equal-priority peers at
	// slice end is what rotates the round robin.
	handle := s.ready[0]
	s.ready = s.ready[1:]

	t := &s.tasks[handle]
	t.state = StateRunning
	t.slices++
	t.sliceStart = s.clock.Now()
	t.executing = true
	s.current = handle
	entry := t.entry
	name := t.name
	slice := t.slices

	s.mu.Unlock()

	s.logger.Debug("context switch", "task", name, "slice", slice)
	entry()

	s.mu.Lock()
	defer s.mu.Unlock()

	t.executing = false
	t.totalRuntime += s.clock.Now().Sub(t.sliceStart)

	switch t.state {
	case StateRunning:
		t.state = StateTerminated
		s.logger.Info("task terminated",
			"task", name,
			"runtime", t.totalRuntime,
			"slices", t.slices,
		)
	case StateReady:
		// Yielded or preempted mid-slice.
		s.enqueueLocked(handle)
	case StateBlocked:
		s.logger.Debug("task parked", "task", name, "reason", t.blockReason)
	}

	if s.current == handle {
		s.current = NoTask
	}
	return true
}

// Current returns the handle of the running task, or NoTask.
func (s *Scheduler) Current() Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Ticks returns the number of Tick calls so far.
func (s *Scheduler) Ticks() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticks
}

// Report returns every live task in slot order, for snapshots and
// debug dumps.
func (s *Scheduler) Report() []TaskReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	var report []TaskReport
	for i := range s.tasks {
		t := &s.tasks[i]
		if !t.used {
			continue
		}
		stats := Stats{
			TotalRuntime: t.totalRuntime,
			Slices:       t.slices,
			Preemptions:  t.preemptions,
			Yields:       t.yields,
		}
		if t.slices > 0 {
			stats.AvgSlice = t.totalRuntime / time.Duration(t.slices)
		}
		report = append(report, TaskReport{
			Handle:      Handle(i),
			Name:        t.name,
			AppID:       t.appID,
			Priority:    t.priority,
			State:       t.state,
			BlockReason: t.blockReason,
			Stats:       stats,
		})
	}
	return report
}

// taskLocked resolves a handle to its live task. Caller holds mu.
func (s *Scheduler) taskLocked(handle Handle) (*task, error) {
	if handle < 0 || int(handle) >= len(s.tasks) || !s.tasks[handle].used {
		return nil, fmt.Errorf("%w: handle %d", ErrNotFound, handle)
	}
	return &s.tasks[handle], nil
}

// enqueueLocked inserts a task into the ready queue before the first
// strictly-lower-priority entry, so the queue stays sorted by priority
// with FIFO order within each class. Enqueueing an already-queued
// handle is a no-op. Caller holds mu.
func (s *Scheduler) enqueueLocked(handle Handle) {
	for _, queued := range s.ready {
		if queued == handle {
			return
		}
	}

	priority := s.tasks[handle].priority
	at := len(s.ready)
	for i, queued := range s.ready {
		if priority > s.tasks[queued].priority {
			at = i
			break
		}
	}
	s.ready = append(s.ready, NoTask)
	copy(s.ready[at+1:], s.ready[at:])
	s.ready[at] = handle
}

// dequeueLocked removes a task from the ready queue if present. Caller
// holds mu.
func (s *Scheduler) dequeueLocked(handle Handle) {
	for i, queued := range s.ready {
		if queued == handle {
			s.ready = append(s.ready[:i], s.ready[i+1:]...)
			return
		}
	}
}
