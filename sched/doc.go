// Copyright 2026 The Akira Authors
// SPDX-License-Identifier: Apache-2.0

// Package sched schedules container tasks cooperatively over a single
// logical executor.
//
// Each running container owns one task in a fixed-size table. Tasks
// carry a priority from [PriorityIdle] to [PriorityRealtime] and wait
// in a ready queue sorted by priority, FIFO within each class. [Scheduler.Run]
// executes one slice of the queue head; a task gives up the executor
// only by returning from its entry (terminating), calling
// [Scheduler.Yield], or calling [Scheduler.Block]. [Scheduler.Tick],
// driven by an external ticker, detects time-slice expiry and requeues
// the running task, but cannot interrupt an entry mid-call: a task
// that never returns starves the system, which is the accepted cost of
// cooperative scheduling on a single-core target.
package sched
