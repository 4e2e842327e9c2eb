// Copyright 2026 The Akira Authors
// SPDX-License-Identifier: Apache-2.0

package runtime

import "context"

// Run drives the kernel until ctx is cancelled. Scheduling decisions
// happen on the calling goroutine; a second goroutine fires the
// scheduler's Tick at the configured interval, independent of task
// execution, so time-slice expiry is detected even while an entry
// runs. When no task is ready the loop idles one tick at a time
// instead of spinning.
func (r *Runtime) Run(ctx context.Context) error {
	ticker := r.clock.NewTicker(r.tickInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.scheduler.Tick()
			}
		}
	}()

	r.logger.Info("kernel running", "tick_interval", r.tickInterval)
	for {
		if ctx.Err() != nil {
			r.logger.Info("kernel stopping")
			return nil
		}
		if r.scheduler.Run() {
			continue
		}
		select {
		case <-ctx.Done():
		case <-r.clock.After(r.tickInterval):
		}
	}
}
