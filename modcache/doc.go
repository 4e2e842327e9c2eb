// Copyright 2026 The Akira Authors
// SPDX-License-Identifier: Apache-2.0

// Package modcache amortizes the cost of loading compiled WASM modules
// and resolves executor instance handles back to container slots.
//
// [Cache] stores executor-supplied opaque module handles keyed by the
// binary's content digest, in a fixed array of slots. Eviction prefers
// empty slots, then the least-recently-used unreferenced entry, then,
// only when every entry is referenced, the least-recently-used entry
// overall. That last path overwrites a module that live instances
// still use; the cache leaks it deliberately instead of invoking the
// executor's unload hook on it, and counts the incident so operators
// can tell the cache is undersized. The fixed slot array is the core
// tradeoff: bounded RAM against hit rate, with no dynamic growth.
//
// [InstanceMap] is the other direction of the identity loop: when a
// sandboxed app makes a native call, the executor hands the kernel an
// instance handle, and the trampoline needs the owning container slot
// before it can consult capabilities or charge quotas. The map is an
// open-addressed, power-of-two table with Knuth multiplicative hashing
// and linear probing. Deletion writes tombstones rather than emptying
// buckets, so a removal never truncates the probe chain of a colliding
// key.
package modcache
