// Copyright 2026 The Akira Authors
// SPDX-License-Identifier: Apache-2.0

// Package capability implements the kernel's capability-based
// permission system: a table from container name to a bitmask of
// permission bits, one bit per class of native API.
//
// The security property that matters is fail-closed lookup:
// [Registry.Check] on a container that was never registered (or whose
// name was mistyped) is always false. Nothing is ever granted by
// accident; grants happen only through [Registry.Set] with an explicit
// mask, normally built from a manifest's capability strings via
// [FromStrings].
//
// The vocabulary of capabilities is fixed and small (display, input,
// RF, sensor, storage, network, system, bluetooth, IPC). [FromString]
// and [Capability.String] give a total bidirectional mapping between
// bits and dotted manifest names; unknown names parse to [None] with a
// warning rather than an error, so a manifest written against a newer
// vocabulary degrades to fewer grants instead of failing to load.
package capability
