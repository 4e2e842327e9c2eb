// Copyright 2026 The Akira Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction for testability.
//
// Production code accepts a Clock parameter instead of calling time.Now,
// time.After, time.NewTicker, or time.Sleep directly. Real() provides
// standard library behavior; Fake() provides a deterministic clock that
// advances only when Advance is called.
//
// Structs that use time carry a Clock field:
//
//	type Scheduler struct {
//	    clock clock.Clock
//	    // ...
//	}
//
// In tests:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	s := New(Config{Clock: c})
//	c.Advance(15 * time.Millisecond) // expire a time slice deterministically
//
// When a goroutine blocks on Sleep, After, or a Ticker of a FakeClock, it
// registers a pending waiter. WaitForWaiters blocks until a given number
// of waiters exist, eliminating the registration/advance race that makes
// time.Sleep-based test synchronization flaky.
package clock
