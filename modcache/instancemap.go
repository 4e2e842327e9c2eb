// Copyright 2026 The Akira Authors
// SPDX-License-Identifier: Apache-2.0

package modcache

import (
	"errors"
	"fmt"
	"math/bits"
	"sync"
)

// InstanceHandle is the executor's opaque handle for one running
// module instance. The kernel never dereferences it; it is a key.
type InstanceHandle uintptr

// ErrMapFull is returned by Put when every bucket is occupied.
var ErrMapFull = errors.New("modcache: instance map full")

// DefaultMapSize is the instance map bucket count when NewInstanceMap
// is given zero. Sized generously relative to the scheduler's task
// table: open addressing degrades sharply as the table saturates.
const DefaultMapSize = 64

const (
	bucketEmpty = iota
	bucketFull
	bucketTombstone
)

type instanceBucket struct {
	state  uint8
	handle InstanceHandle
	slot   int
}

// InstanceMap translates executor instance handles to container slots
// in O(1) average time. It is an open-addressed table over a
// power-of-two bucket array: multiplicative (Knuth) hashing of the
// handle, linear probing, and tombstone deletion so that removing a
// key never breaks the probe chain of a colliding neighbor.
//
// Lookups happen on the native-call trampoline hot path, so the
// critical section is a handful of array probes under one mutex.
type InstanceMap struct {
	mu      sync.Mutex
	buckets []instanceBucket
	mask    uintptr
	live    int
}

// NewInstanceMap creates a map with the given bucket count, rounded up
// to a power of two. Zero means DefaultMapSize.
func NewInstanceMap(size int) *InstanceMap {
	if size <= 0 {
		size = DefaultMapSize
	}
	size = 1 << bits.Len(uint(size-1))
	return &InstanceMap{
		buckets: make([]instanceBucket, size),
		mask:    uintptr(size - 1),
	}
}

// knuthHash maps a handle to its home bucket. Pointer-valued handles
// are aligned, so the low bits carry no entropy; shift them out before
// the multiplicative mix.
func (m *InstanceMap) knuthHash(handle InstanceHandle) uintptr {
	return ((uintptr(handle) >> 4) * 2654435761) & m.mask
}

// Put maps handle to slot, replacing any existing mapping for the same
// handle. At most one live mapping exists per handle.
func (m *InstanceMap) Put(handle InstanceHandle, slot int) error {
	if handle == 0 {
		return fmt.Errorf("modcache: zero instance handle")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	index := m.knuthHash(handle)
	insertAt := -1
	for i := 0; i < len(m.buckets); i++ {
		probe := (index + uintptr(i)) & m.mask
		bucket := &m.buckets[probe]

		switch bucket.state {
		case bucketFull:
			if bucket.handle == handle {
				bucket.slot = slot
				return nil
			}
		case bucketTombstone:
			// Remember the first reusable bucket but keep probing:
			// the handle may live further down the chain.
			if insertAt < 0 {
				insertAt = int(probe)
			}
		case bucketEmpty:
			if insertAt < 0 {
				insertAt = int(probe)
			}
			m.buckets[insertAt] = instanceBucket{state: bucketFull, handle: handle, slot: slot}
			m.live++
			return nil
		}
	}

	if insertAt >= 0 {
		m.buckets[insertAt] = instanceBucket{state: bucketFull, handle: handle, slot: slot}
		m.live++
		return nil
	}
	return ErrMapFull
}

// Get returns the slot mapped to handle. Probing stops at the first
// genuinely empty bucket; tombstones are probed through.
func (m *InstanceMap) Get(handle InstanceHandle) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	index := m.knuthHash(handle)
	for i := 0; i < len(m.buckets); i++ {
		probe := (index + uintptr(i)) & m.mask
		bucket := &m.buckets[probe]

		switch bucket.state {
		case bucketFull:
			if bucket.handle == handle {
				return bucket.slot, true
			}
		case bucketEmpty:
			return 0, false
		}
	}
	return 0, false
}

// Remove deletes the mapping for handle, leaving a tombstone so probe
// chains through this bucket stay intact. Removing an unmapped handle
// is a no-op.
func (m *InstanceMap) Remove(handle InstanceHandle) {
	m.mu.Lock()
	defer m.mu.Unlock()

	index := m.knuthHash(handle)
	for i := 0; i < len(m.buckets); i++ {
		probe := (index + uintptr(i)) & m.mask
		bucket := &m.buckets[probe]

		switch bucket.state {
		case bucketFull:
			if bucket.handle == handle {
				bucket.state = bucketTombstone
				bucket.handle = 0
				bucket.slot = 0
				m.live--
				return
			}
		case bucketEmpty:
			return
		}
	}
}

// Len returns the number of live mappings.
func (m *InstanceMap) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live
}
