// Copyright 2026 The Akira Authors
// SPDX-License-Identifier: Apache-2.0

package runtime

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/akira-foundation/akira/capability"
	"github.com/akira-foundation/akira/lib/clock"
	"github.com/akira-foundation/akira/lib/modhash"
	"github.com/akira-foundation/akira/manifest"
	"github.com/akira-foundation/akira/modcache"
	"github.com/akira-foundation/akira/resource"
	"github.com/akira-foundation/akira/sched"
)

var (
	// ErrAlreadyRunning is returned by StartContainer when a container
	// with the same name is live.
	ErrAlreadyRunning = errors.New("runtime: container already running")
	// ErrNotFound is returned for a container name that is not live.
	ErrNotFound = errors.New("runtime: container not found")
	// ErrUnknownInstance is returned by the trampolines for an
	// instance handle no live container owns.
	ErrUnknownInstance = errors.New("runtime: unknown instance")
)

// DefaultTickInterval is the preemption check period when Config
// leaves it zero.
const DefaultTickInterval = 5 * time.Millisecond

// Container is one live sandboxed app: the join row across the four
// kernel subsystems.
type Container struct {
	AppID        uint32
	Name         string
	Version      string
	Digest       modhash.Digest
	Task         sched.Handle
	Instance     modcache.InstanceHandle
	Capabilities capability.Capability
}

// Runtime owns the kernel subsystems and the container table that
// keeps their identities aligned.
type Runtime struct {
	scheduler *sched.Scheduler
	resources *resource.Manager
	cache     *modcache.Cache
	instances *modcache.InstanceMap
	caps      *capability.Registry

	executor     Executor
	clock        clock.Clock
	logger       *slog.Logger
	tickInterval time.Duration

	mu         sync.Mutex
	containers map[uint32]*Container // app id → container
	byName     map[string]uint32
	bySlot     map[int]uint32 // task slot → app id
	nextAppID  uint32
}

// Config holds parameters for creating a Runtime.
type Config struct {
	// Executor runs WASM modules. Required.
	Executor Executor

	// MaxTasks, MaxApps, MaxContainers, CacheSlots, and
	// InstanceMapSize bound the subsystem tables. Zero means each
	// subsystem's default.
	MaxTasks        int
	MaxApps         int
	MaxContainers   int
	CacheSlots      int
	InstanceMapSize int

	// DefaultQuota applies to containers whose manifest requests
	// nothing beyond memory. Nil means resource.DefaultQuota.
	DefaultQuota *resource.Amounts

	// DefaultTimeSlice is the per-task slice. Zero means the
	// scheduler default.
	DefaultTimeSlice time.Duration

	// TickInterval is the preemption check period used by Run. Zero
	// means DefaultTickInterval.
	TickInterval time.Duration

	// Clock drives slice timing and the tick loop. Nil means
	// clock.Real().
	Clock clock.Clock

	// Logger is the parent logger for the runtime and all subsystems.
	// Nil means slog.Default().
	Logger *slog.Logger
}

// New assembles a Runtime and its subsystems.
func New(config Config) (*Runtime, error) {
	if config.Executor == nil {
		return nil, fmt.Errorf("runtime: Executor is required")
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tickInterval := config.TickInterval
	if tickInterval <= 0 {
		tickInterval = DefaultTickInterval
	}

	r := &Runtime{
		scheduler: sched.New(sched.Config{
			MaxTasks:         config.MaxTasks,
			DefaultTimeSlice: config.DefaultTimeSlice,
			Clock:            clk,
			Logger:           logger.With("subsystem", "sched"),
		}),
		resources: resource.NewManager(resource.Config{
			MaxApps:      config.MaxApps,
			DefaultQuota: config.DefaultQuota,
			Logger:       logger.With("subsystem", "resource"),
		}),
		instances: modcache.NewInstanceMap(config.InstanceMapSize),
		caps: capability.NewRegistry(capability.Config{
			MaxContainers: config.MaxContainers,
			Logger:        logger.With("subsystem", "capability"),
		}),
		executor:     config.Executor,
		clock:        clk,
		logger:       logger,
		tickInterval: tickInterval,
		containers:   make(map[uint32]*Container),
		byName:       make(map[string]uint32),
		bySlot:       make(map[int]uint32),
		nextAppID:    1,
	}
	r.cache = modcache.New(modcache.Config{
		Slots:  config.CacheSlots,
		Unload: config.Executor.Unload,
		Clock:  clk,
		Logger: logger.With("subsystem", "modcache"),
	})
	return r, nil
}

// OnEvent registers a callback for resource events (quota warnings,
// denials, resets).
func (r *Runtime) OnEvent(callback resource.Callback) error {
	return r.resources.RegisterCallback(callback)
}

// StartContainer brings up a container for the given binary and
// manifest: a resource account under the manifest's quota, a
// capability grant under the container name, a cached module entry
// keyed by the binary's digest, an executor instance mapped back to
// the task slot, and a started scheduler task. Any failure unwinds
// the steps already taken.
func (r *Runtime) StartContainer(binary []byte, m *manifest.Manifest) (*Container, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, live := r.byName[m.Name]; live {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRunning, m.Name)
	}

	appID := r.nextAppID
	quota := m.Quota()
	if err := r.resources.Register(appID, &quota); err != nil {
		return nil, fmt.Errorf("runtime: starting %s: %w", m.Name, err)
	}

	mask := m.CapabilityMask()
	if err := r.caps.Set(m.Name, mask); err != nil {
		r.resources.Unregister(appID)
		return nil, fmt.Errorf("runtime: starting %s: %w", m.Name, err)
	}

	digest := modhash.Sum(binary)
	module, hit := r.cache.Lookup(digest)
	if !hit {
		loadStart := r.clock.Now()
		loaded, err := r.executor.Load(binary)
		if err != nil {
			r.unwindGrants(appID, m.Name)
			return nil, fmt.Errorf("runtime: loading %s: %w", m.Name, err)
		}
		module = loaded
		r.cache.Store(digest, module, uint64(len(binary)), r.clock.Now().Sub(loadStart))
	}

	instance, err := r.executor.Instantiate(module, m.Name)
	if err != nil {
		r.cache.Release(digest)
		r.unwindGrants(appID, m.Name)
		return nil, fmt.Errorf("runtime: instantiating %s: %w", m.Name, err)
	}

	handle, err := r.scheduler.Create(sched.TaskConfig{
		Name:     m.Name,
		Priority: sched.PriorityNormal,
		AppID:    appID,
		Entry:    r.entryFor(m.Name, instance),
	})
	if err == nil {
		err = r.instances.Put(instance, int(handle))
		if err != nil {
			r.scheduler.Destroy(handle)
		}
	}
	if err != nil {
		r.executor.Destroy(instance)
		r.cache.Release(digest)
		r.unwindGrants(appID, m.Name)
		return nil, fmt.Errorf("runtime: starting %s: %w", m.Name, err)
	}

	if err := r.scheduler.Start(handle); err != nil {
		// Cannot happen for a freshly created task; unwind anyway.
		r.instances.Remove(instance)
		r.scheduler.Destroy(handle)
		r.executor.Destroy(instance)
		r.cache.Release(digest)
		r.unwindGrants(appID, m.Name)
		return nil, fmt.Errorf("runtime: starting %s: %w", m.Name, err)
	}

	container := &Container{
		AppID:        appID,
		Name:         m.Name,
		Version:      m.Version,
		Digest:       digest,
		Task:         handle,
		Instance:     instance,
		Capabilities: mask,
	}
	r.nextAppID++
	r.containers[appID] = container
	r.byName[m.Name] = appID
	r.bySlot[int(handle)] = appID

	r.logger.Info("started container",
		"container", m.Name,
		"app_id", appID,
		"digest", digest.Short(),
		"capabilities", mask.Names(),
	)
	return container, nil
}

// entryFor builds the task entry for a container: one executor step
// per slice, yielding between steps so peers get their turn.
func (r *Runtime) entryFor(name string, instance modcache.InstanceHandle) sched.EntryFunc {
	return func() {
		done, err := r.executor.Step(instance)
		if err != nil {
			r.logger.Error("app step failed", "container", name, "error", err)
			return
		}
		if done {
			return
		}
		r.scheduler.Yield()
	}
}

// StopContainer tears a container down in reverse start order. The
// container's task must not be mid-slice; stopping it then returns
// the scheduler's ErrInvalidState and the container stays up.
func (r *Runtime) StopContainer(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	appID, live := r.byName[name]
	if !live {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	container := r.containers[appID]

	if err := r.scheduler.Destroy(container.Task); err != nil {
		return fmt.Errorf("runtime: stopping %s: %w", name, err)
	}

	if err := r.executor.Destroy(container.Instance); err != nil {
		r.logger.Warn("executor instance teardown failed", "container", name, "error", err)
	}
	r.instances.Remove(container.Instance)
	r.cache.Release(container.Digest)
	r.caps.Set(name, capability.None)
	r.resources.Unregister(appID)

	delete(r.containers, appID)
	delete(r.byName, name)
	delete(r.bySlot, int(container.Task))

	r.logger.Info("stopped container", "container", name, "app_id", appID)
	return nil
}

// unwindGrants reverses the account and capability registration made
// early in StartContainer.
func (r *Runtime) unwindGrants(appID uint32, name string) {
	r.caps.Set(name, capability.None)
	r.resources.Unregister(appID)
}

// Authorize is the native-call trampoline's capability check: resolve
// the executor's instance handle to its container and test the
// requested capability against the container's grant. Fail-closed:
// unknown instances are an error and missing bits are a denial.
func (r *Runtime) Authorize(instance modcache.InstanceHandle, cap capability.Capability) (bool, error) {
	container, err := r.containerFor(instance)
	if err != nil {
		return false, err
	}
	allowed := r.caps.Check(container.Name, cap)
	if !allowed {
		r.logger.Warn("capability denied",
			"container", container.Name,
			"capability", cap.Names(),
		)
	}
	return allowed, nil
}

// Charge is the trampoline's quota charge: resolve the instance to
// its container and request the amount against its account. Denials
// return resource.ErrQuotaExceeded.
func (r *Runtime) Charge(instance modcache.InstanceHandle, kind resource.Kind, amount uint64) error {
	container, err := r.containerFor(instance)
	if err != nil {
		return err
	}
	return r.resources.Request(container.AppID, kind, amount)
}

// Refund returns previously charged usage. Saturating, like
// resource.Release.
func (r *Runtime) Refund(instance modcache.InstanceHandle, kind resource.Kind, amount uint64) error {
	container, err := r.containerFor(instance)
	if err != nil {
		return err
	}
	return r.resources.Release(container.AppID, kind, amount)
}

// containerFor resolves an instance handle through the instance map
// to the owning container.
func (r *Runtime) containerFor(instance modcache.InstanceHandle) (*Container, error) {
	slot, ok := r.instances.Get(instance)
	if !ok {
		return nil, fmt.Errorf("%w: %#x", ErrUnknownInstance, uintptr(instance))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	appID, ok := r.bySlot[slot]
	if !ok {
		return nil, fmt.Errorf("%w: %#x", ErrUnknownInstance, uintptr(instance))
	}
	return r.containers[appID], nil
}

// Container returns the live container with the given name.
func (r *Runtime) Container(name string) (*Container, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	appID, live := r.byName[name]
	if !live {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return r.containers[appID], nil
}

// Containers returns the live containers ordered by app id.
func (r *Runtime) Containers() []*Container {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := make([]*Container, 0, len(r.containers))
	for _, container := range r.containers {
		list = append(list, container)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].AppID < list[j].AppID })
	return list
}
