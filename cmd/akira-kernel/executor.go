// Copyright 2026 The Akira Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"sync"
	"time"

	"github.com/akira-foundation/akira/lib/clock"
	"github.com/akira-foundation/akira/modcache"
)

// stubExecutor stands in for a real WASM engine. It accepts any
// binary, hands out synthetic instance handles, and simulates one
// slice of work per Step by sleeping. The kernel's scheduling,
// accounting, and capability paths are all exercised; no bytecode
// runs. Replace by wiring an engine-backed [runtime.Executor].
type stubExecutor struct {
	clock clock.Clock
	step  time.Duration

	mu   sync.Mutex
	next modcache.InstanceHandle
}

type stubModule struct {
	size int
}

func newStubExecutor(clk clock.Clock, step time.Duration) *stubExecutor {
	return &stubExecutor{clock: clk, step: step, next: 0x1000}
}

func (e *stubExecutor) Load(binary []byte) (any, error) {
	return &stubModule{size: len(binary)}, nil
}

func (e *stubExecutor) Instantiate(module any, container string) (modcache.InstanceHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	instance := e.next
	e.next += 0x1000
	return instance, nil
}

func (e *stubExecutor) Step(instance modcache.InstanceHandle) (bool, error) {
	e.clock.Sleep(e.step)
	return false, nil
}

func (e *stubExecutor) Destroy(instance modcache.InstanceHandle) error { return nil }

func (e *stubExecutor) Unload(module any) {}
