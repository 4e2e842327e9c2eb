// Copyright 2026 The Akira Authors
// SPDX-License-Identifier: Apache-2.0

// Package runtime is the kernel's control plane: one [Runtime] owns
// the scheduler, the resource manager, the module cache with its
// instance map, and the capability registry, and keeps the four
// subsystems agreeing on container identity.
//
// A container is simultaneously a scheduled task, a resource account,
// a cached-module reference holder, and a capability-set owner.
// [Runtime.StartContainer] establishes all four identities in one
// call and [Runtime.StopContainer] tears them down in reverse. While
// the container runs, the external WASM executor calls back through
// [Runtime.Authorize] and [Runtime.Charge]: an instance handle
// resolves through the instance map to the owning container, whose
// name keys the capability check and whose app id keys the quota
// charge. That round trip is the loop that makes the sandbox a
// sandbox.
//
// [Runtime.Run] drives scheduling until the context is cancelled,
// with a tick goroutine preempting tasks that exceed their slice.
// [Runtime.WriteSnapshot] dumps the full kernel state for inspection.
package runtime
