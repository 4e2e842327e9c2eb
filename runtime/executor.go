// Copyright 2026 The Akira Authors
// SPDX-License-Identifier: Apache-2.0

package runtime

import "github.com/akira-foundation/akira/modcache"

// Executor is the external WASM engine. The kernel never loads,
// compiles, or validates bytecode itself; it holds only the opaque
// module and instance handles the executor supplies.
//
// Step is called once per scheduling slice and must return when the
// app yields or finishes. A well-behaved executor enforces a fuel or
// instruction budget per Step; the kernel cannot interrupt a Step that
// never returns.
type Executor interface {
	// Load compiles a WASM binary into a module handle.
	Load(binary []byte) (module any, err error)

	// Instantiate creates a running instance of a loaded module for
	// the named container.
	Instantiate(module any, container string) (modcache.InstanceHandle, error)

	// Step runs one slice of the instance. done reports that the app
	// finished and should terminate.
	Step(instance modcache.InstanceHandle) (done bool, err error)

	// Destroy tears down an instance.
	Destroy(instance modcache.InstanceHandle) error

	// Unload releases a compiled module that is no longer cached.
	Unload(module any)
}
