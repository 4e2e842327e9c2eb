// Copyright 2026 The Akira Authors
// SPDX-License-Identifier: Apache-2.0

// Package resource enforces per-app resource quotas for the container
// kernel: memory, CPU time, storage, network TX/RX, file handles, and
// sockets.
//
// The enforcement contract is all-or-nothing. [Manager.Request] either
// fits entirely within the app's quota, updating the per-app and
// system-wide counters, or fails with [ErrQuotaExceeded] leaving both
// untouched. The invariant `usage <= quota` therefore holds at every
// observable point. [Manager.Release] saturates at zero so a
// double-release bug degrades gracefully instead of corrupting the
// account.
//
// Crossing 80% of quota on a successful request fires
// [EventQuotaWarning] to registered callbacks; denials fire
// [EventQuotaExceeded]; [Manager.ResetUsage] fires [EventReset].
// Callbacks are invoked synchronously but outside the manager's lock,
// so they may call back into the Manager.
//
// The Manager knows nothing about scheduling. The scheduler charges
// task runtime here through the runtime's trampoline, and the WASM
// executor charges allocations the same way, but the coupling is one
// foreign key: the app id.
package resource
