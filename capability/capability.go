// Copyright 2026 The Akira Authors
// SPDX-License-Identifier: Apache-2.0

package capability

import (
	"errors"
	"log/slog"
	"sync"
)

// Capability is a bitmask of permission bits. Each bit gates one class
// of native API calls a container may make.
type Capability uint32

// Capability bits. The vocabulary is fixed: manifest strings map onto
// these and nothing else.
const (
	None Capability = 0

	// Display.
	DisplayRead  Capability = 1 << 0
	DisplayWrite Capability = 1 << 1

	// Input.
	InputRead     Capability = 1 << 2
	InputCallback Capability = 1 << 3

	// RF.
	RFInit       Capability = 1 << 4
	RFTransceive Capability = 1 << 5
	RFConfig     Capability = 1 << 6

	// Sensors.
	SensorIMU   Capability = 1 << 7
	SensorEnv   Capability = 1 << 8
	SensorPower Capability = 1 << 9
	SensorLight Capability = 1 << 10

	// Storage.
	StorageRead  Capability = 1 << 11
	StorageWrite Capability = 1 << 12

	// Network.
	NetworkHTTP Capability = 1 << 13
	NetworkMQTT Capability = 1 << 14
	NetworkRaw  Capability = 1 << 15

	// System.
	SystemInfo     Capability = 1 << 16
	SystemReboot   Capability = 1 << 17
	SystemSettings Capability = 1 << 18

	// Bluetooth.
	BTAdvertise Capability = 1 << 19
	BTConnect   Capability = 1 << 20
	BTHID       Capability = 1 << 21

	// IPC.
	IPCSend    Capability = 1 << 22
	IPCReceive Capability = 1 << 23
	IPCShm     Capability = 1 << 24
)

// ErrOutOfSlots is returned by Set when the container table is full.
var ErrOutOfSlots = errors.New("capability: container table full")

// DefaultMaxContainers is the container table size when Config leaves
// it zero. Matches the scheduler's default task table size.
const DefaultMaxContainers = 16

// capSet is one container's grant. An entry occupies a table slot
// until Set(name, None) releases it; Revoke clears bits but keeps the
// entry, so a partially revoked container still holds its slot.
type capSet struct {
	name  string
	flags Capability
}

// Registry maps container names to capability bitmasks.
//
// Check is fail-closed: a name that was never granted anything,
// including a mistyped one, holds no capabilities.
type Registry struct {
	mu     sync.Mutex
	sets   []capSet
	max    int
	logger *slog.Logger
}

// Config holds parameters for creating a Registry.
type Config struct {
	// MaxContainers bounds the container table. Zero means
	// DefaultMaxContainers.
	MaxContainers int

	// Logger receives grant/revoke audit lines. Nil means
	// slog.Default().
	Logger *slog.Logger
}

// NewRegistry creates an empty capability registry.
func NewRegistry(config Config) *Registry {
	max := config.MaxContainers
	if max <= 0 {
		max = DefaultMaxContainers
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		sets:   make([]capSet, 0, max),
		max:    max,
		logger: logger,
	}
}

// Set grants a container exactly the given bitmask, replacing any
// previous grant. The first Set for a name creates its entry; a full
// table fails with ErrOutOfSlots.
//
// Setting None releases the container's table slot. Check is
// fail-closed, so an absent entry and a zero grant are
// indistinguishable to callers; freeing the slot keeps a long-lived
// kernel from exhausting the table as containers come and go.
func (r *Registry) Set(name string, caps Capability) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if caps == None {
		for i := range r.sets {
			if r.sets[i].name == name {
				r.sets = append(r.sets[:i], r.sets[i+1:]...)
				r.logger.Debug("cleared capabilities", "container", name)
				break
			}
		}
		return nil
	}

	if set := r.findLocked(name); set != nil {
		set.flags = caps
		r.logger.Debug("updated capabilities", "container", name, "caps", caps.Names())
		return nil
	}

	if len(r.sets) >= r.max {
		return ErrOutOfSlots
	}
	r.sets = append(r.sets, capSet{name: name, flags: caps})
	r.logger.Debug("set capabilities", "container", name, "caps", caps.Names())
	return nil
}

// Check reports whether the named container holds every bit in cap.
// Unknown containers hold nothing.
func (r *Registry) Check(name string, cap Capability) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := r.findLocked(name)
	if set == nil {
		return false
	}
	return set.flags&cap == cap && cap != None
}

// Get returns the container's full bitmask, or None for unknown
// containers.
func (r *Registry) Get(name string) Capability {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := r.findLocked(name)
	if set == nil {
		return None
	}
	return set.flags
}

// Revoke clears the given bits from a container's grant. Revoking from
// an unknown container is a no-op: the container already does not
// hold the capability.
func (r *Registry) Revoke(name string, cap Capability) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := r.findLocked(name)
	if set == nil {
		return
	}
	set.flags &^= cap
	r.logger.Debug("revoked capabilities", "container", name, "revoked", cap.Names())
}

// findLocked returns the entry for name, or nil. Caller holds mu.
func (r *Registry) findLocked(name string) *capSet {
	for i := range r.sets {
		if r.sets[i].name == name {
			return &r.sets[i]
		}
	}
	return nil
}
