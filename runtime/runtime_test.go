// Copyright 2026 The Akira Authors
// SPDX-License-Identifier: Apache-2.0

package runtime

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/akira-foundation/akira/capability"
	"github.com/akira-foundation/akira/lib/testutil"
	"github.com/akira-foundation/akira/manifest"
	"github.com/akira-foundation/akira/modcache"
	"github.com/akira-foundation/akira/resource"
)

// fakeExecutor is a scriptable stand-in for the WASM engine.
type fakeExecutor struct {
	mu           sync.Mutex
	nextInstance modcache.InstanceHandle
	loads        int
	steps        map[modcache.InstanceHandle]int
	stepLimit    int // Step reports done after this many calls; 0 = never
	failLoad     bool
	destroyed    []modcache.InstanceHandle
	unloaded     []any

	stepped chan modcache.InstanceHandle
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{
		nextInstance: 0x1000,
		steps:        make(map[modcache.InstanceHandle]int),
		stepped:      make(chan modcache.InstanceHandle, 64),
	}
}

func (e *fakeExecutor) Load(binary []byte) (any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failLoad {
		return nil, errors.New("compile error")
	}
	e.loads++
	return &struct{ size int }{len(binary)}, nil
}

func (e *fakeExecutor) Instantiate(module any, container string) (modcache.InstanceHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	instance := e.nextInstance
	e.nextInstance += 0x1000
	return instance, nil
}

func (e *fakeExecutor) Step(instance modcache.InstanceHandle) (bool, error) {
	e.mu.Lock()
	e.steps[instance]++
	count := e.steps[instance]
	limit := e.stepLimit
	e.mu.Unlock()

	select {
	case e.stepped <- instance:
	default:
	}
	return limit > 0 && count >= limit, nil
}

func (e *fakeExecutor) Destroy(instance modcache.InstanceHandle) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.destroyed = append(e.destroyed, instance)
	return nil
}

func (e *fakeExecutor) Unload(module any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.unloaded = append(e.unloaded, module)
}

func testRuntime(t *testing.T, executor Executor) *Runtime {
	t.Helper()
	r, err := New(Config{
		Executor:     executor,
		TickInterval: time.Millisecond,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func testManifest(name string, memory uint64, caps ...string) *manifest.Manifest {
	return &manifest.Manifest{
		Name:         name,
		Version:      "1.0",
		MemoryQuota:  memory,
		Capabilities: caps,
	}
}

func TestStartContainerWiresSubsystems(t *testing.T) {
	executor := newFakeExecutor()
	r := testRuntime(t, executor)

	container, err := r.StartContainer([]byte("wasm-a"), testManifest("app-a", 1000, "display.write"))
	if err != nil {
		t.Fatalf("StartContainer: %v", err)
	}

	// Capability trampoline: granted bit passes, others fail closed.
	allowed, err := r.Authorize(container.Instance, capability.DisplayWrite)
	if err != nil || !allowed {
		t.Errorf("Authorize(display.write) = (%v, %v), want granted", allowed, err)
	}
	allowed, err = r.Authorize(container.Instance, capability.NetworkHTTP)
	if err != nil || allowed {
		t.Errorf("Authorize(network.http) = (%v, %v), want denied", allowed, err)
	}

	// Resource trampoline: within quota succeeds, over quota denied.
	if err := r.Charge(container.Instance, resource.Memory, 600); err != nil {
		t.Errorf("Charge within quota: %v", err)
	}
	if err := r.Charge(container.Instance, resource.Memory, 600); !errors.Is(err, resource.ErrQuotaExceeded) {
		t.Errorf("Charge over quota = %v, want ErrQuotaExceeded", err)
	}
	if err := r.Refund(container.Instance, resource.Memory, 600); err != nil {
		t.Errorf("Refund: %v", err)
	}
}

func TestStartContainerDuplicateName(t *testing.T) {
	r := testRuntime(t, newFakeExecutor())

	if _, err := r.StartContainer([]byte("wasm"), testManifest("app", 0)); err != nil {
		t.Fatalf("StartContainer: %v", err)
	}
	if _, err := r.StartContainer([]byte("wasm2"), testManifest("app", 0)); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("duplicate StartContainer = %v, want ErrAlreadyRunning", err)
	}
}

func TestStartContainerSharesCachedModule(t *testing.T) {
	executor := newFakeExecutor()
	r := testRuntime(t, executor)

	binary := []byte("shared-wasm")
	if _, err := r.StartContainer(binary, testManifest("first", 0)); err != nil {
		t.Fatalf("StartContainer first: %v", err)
	}
	if _, err := r.StartContainer(binary, testManifest("second", 0)); err != nil {
		t.Fatalf("StartContainer second: %v", err)
	}

	if executor.loads != 1 {
		t.Errorf("executor compiled %d times, want 1 (cache hit)", executor.loads)
	}
}

func TestStartContainerLoadFailureUnwinds(t *testing.T) {
	executor := newFakeExecutor()
	executor.failLoad = true
	r := testRuntime(t, executor)

	if _, err := r.StartContainer([]byte("bad"), testManifest("app", 0)); err == nil {
		t.Fatal("StartContainer should fail when the executor cannot load")
	}

	// The name and account must be free for a retry.
	executor.failLoad = false
	if _, err := r.StartContainer([]byte("bad"), testManifest("app", 0)); err != nil {
		t.Errorf("retry after failed load: %v", err)
	}
}

func TestStopContainer(t *testing.T) {
	executor := newFakeExecutor()
	r := testRuntime(t, executor)

	container, err := r.StartContainer([]byte("wasm"), testManifest("app", 0, "display.write"))
	if err != nil {
		t.Fatalf("StartContainer: %v", err)
	}

	if err := r.StopContainer("app"); err != nil {
		t.Fatalf("StopContainer: %v", err)
	}

	if _, err := r.Authorize(container.Instance, capability.DisplayWrite); !errors.Is(err, ErrUnknownInstance) {
		t.Errorf("Authorize after stop = %v, want ErrUnknownInstance", err)
	}
	if len(executor.destroyed) != 1 || executor.destroyed[0] != container.Instance {
		t.Errorf("destroyed = %v, want the container's instance", executor.destroyed)
	}
	if _, err := r.Container("app"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Container after stop = %v, want ErrNotFound", err)
	}

	// The name is free again.
	if _, err := r.StartContainer([]byte("wasm"), testManifest("app", 0)); err != nil {
		t.Errorf("restart after stop: %v", err)
	}
}

func TestStopUnknownContainer(t *testing.T) {
	r := testRuntime(t, newFakeExecutor())
	if err := r.StopContainer("ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("StopContainer = %v, want ErrNotFound", err)
	}
}

func TestRunExecutesContainers(t *testing.T) {
	executor := newFakeExecutor()
	executor.stepLimit = 3
	r := testRuntime(t, executor)

	container, err := r.StartContainer([]byte("wasm"), testManifest("app", 0))
	if err != nil {
		t.Fatalf("StartContainer: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- r.Run(ctx) }()

	// The task steps three times and terminates.
	for i := 0; i < 3; i++ {
		testutil.RequireReceive(t, executor.stepped, time.Second, "executor step")
	}

	cancel()
	if err := testutil.RequireReceive(t, runDone, time.Second, "Run return"); err != nil {
		t.Errorf("Run = %v, want nil", err)
	}

	executor.mu.Lock()
	steps := executor.steps[container.Instance]
	executor.mu.Unlock()
	if steps != 3 {
		t.Errorf("instance stepped %d times, want 3", steps)
	}
}

func TestContainersOrdering(t *testing.T) {
	r := testRuntime(t, newFakeExecutor())

	for _, name := range []string{"c", "a", "b"} {
		if _, err := r.StartContainer([]byte("wasm-"+name), testManifest(name, 0)); err != nil {
			t.Fatalf("StartContainer %s: %v", name, err)
		}
	}

	containers := r.Containers()
	if len(containers) != 3 {
		t.Fatalf("Containers returned %d, want 3", len(containers))
	}
	for i := 1; i < len(containers); i++ {
		if containers[i].AppID <= containers[i-1].AppID {
			t.Errorf("containers not ordered by app id: %v", containers)
		}
	}
}
