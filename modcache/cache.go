// Copyright 2026 The Akira Authors
// SPDX-License-Identifier: Apache-2.0

package modcache

import (
	"log/slog"
	"sync"
	"time"

	"github.com/akira-foundation/akira/lib/clock"
	"github.com/akira-foundation/akira/lib/modhash"
)

// DefaultSlots is the cache size when Config leaves it zero. Small by
// design: each slot pins a compiled module's memory for its lifetime,
// and the cache trades exactly that RAM for load latency.
const DefaultSlots = 4

// UnloadFunc releases a compiled module. Supplied by the external
// executor; the cache never interprets module handles itself.
type UnloadFunc func(module any)

// entry is one cache slot.
type entry struct {
	used       bool
	digest     modhash.Digest
	module     any
	refCount   uint32
	loadTime   time.Duration
	binarySize uint64
	lastUsed   time.Time
}

// Stats counts cache traffic. UnsafeEvictions counts slot reuse while
// references were still outstanding; under correct sizing this stays
// zero, and tests assert exactly that.
type Stats struct {
	Hits            uint64        `cbor:"hits"`
	Misses          uint64        `cbor:"misses"`
	Evictions       uint64        `cbor:"evictions"`
	UnsafeEvictions uint64        `cbor:"unsafe_evictions"`
	TotalLoadTime   time.Duration `cbor:"total_load_time"`
}

// Cache holds compiled modules keyed by content digest, in a fixed
// array of slots with LRU eviction. Lookups take a reference; Release
// returns it. A referenced entry is only ever overwritten as a last
// resort, in which case the stale module is intentionally leaked
// rather than unloaded out from under live instances.
type Cache struct {
	mu      sync.Mutex
	entries []entry
	stats   Stats
	clock   clock.Clock
	logger  *slog.Logger
	unload  UnloadFunc
}

// Config holds parameters for creating a Cache.
type Config struct {
	// Slots is the fixed number of cache slots. Zero means
	// DefaultSlots.
	Slots int

	// Unload releases an evicted module with no outstanding
	// references. Nil disables unload callbacks (tests).
	Unload UnloadFunc

	// Clock supplies LRU timestamps. Nil means clock.Real().
	Clock clock.Clock

	// Logger receives eviction lines. Nil means slog.Default().
	Logger *slog.Logger
}

// New creates an empty module cache.
func New(config Config) *Cache {
	slots := config.Slots
	if slots <= 0 {
		slots = DefaultSlots
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		entries: make([]entry, slots),
		clock:   clk,
		logger:  logger,
		unload:  config.Unload,
	}
}

// Lookup returns the cached module for digest, taking a reference on
// hit. The caller owns the reference and must pair it with Release.
func (c *Cache) Lookup(digest modhash.Digest) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e := c.findLocked(digest); e != nil {
		e.refCount++
		e.lastUsed = c.clock.Now()
		c.stats.Hits++
		return e.module, true
	}
	c.stats.Misses++
	return nil, false
}

// Store caches a freshly loaded module. Storing an already-cached
// digest never creates a second entry: it bumps the reference count
// and refreshes the LRU stamp, and the caller should not have reloaded
// in the first place.
//
// When all slots are occupied the victim is chosen in order of
// preference: the least-recently-used unreferenced slot, else the
// least-recently-used slot overall. The latter overwrites a module
// that live instances still reference; the stale module is leaked (not
// unloaded) and counted in Stats.UnsafeEvictions.
func (c *Cache) Store(digest modhash.Digest, module any, binarySize uint64, loadTime time.Duration) {
	c.mu.Lock()

	if e := c.findLocked(digest); e != nil {
		e.refCount++
		e.lastUsed = c.clock.Now()
		c.mu.Unlock()
		return
	}

	slot := c.victimLocked()

	var evicted any
	if slot.used {
		c.stats.Evictions++
		if slot.refCount == 0 {
			evicted = slot.module
			c.logger.Info("evicting cached module",
				"digest", slot.digest.Short(),
				"binary_size", slot.binarySize,
				"idle", c.clock.Now().Sub(slot.lastUsed),
			)
		} else {
			// Live references hold the old module; overwrite the slot
			// and leak it rather than corrupt them.
			c.stats.UnsafeEvictions++
			c.logger.Warn("evicting module with active references",
				"digest", slot.digest.Short(),
				"ref_count", slot.refCount,
			)
		}
	}

	*slot = entry{
		used:       true,
		digest:     digest,
		module:     module,
		refCount:   1,
		loadTime:   loadTime,
		binarySize: binarySize,
		lastUsed:   c.clock.Now(),
	}
	c.stats.TotalLoadTime += loadTime
	c.mu.Unlock()

	// Unload outside the lock: the executor hook may be slow.
	if evicted != nil && c.unload != nil {
		c.unload(evicted)
	}
}

// Release returns one reference taken by Lookup or Store. The count
// floors at zero.
func (c *Cache) Release(digest modhash.Digest) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e := c.findLocked(digest); e != nil && e.refCount > 0 {
		e.refCount--
	}
}

// Stats returns a snapshot of the traffic counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// EntryReport is one occupied slot's row in a cache report.
type EntryReport struct {
	Digest     string        `cbor:"digest"`
	RefCount   uint32        `cbor:"ref_count"`
	BinarySize uint64        `cbor:"binary_size"`
	LoadTime   time.Duration `cbor:"load_time"`
	LastUsed   time.Time     `cbor:"last_used"`
}

// Report returns the occupied slots in slot order, for snapshots and
// debug dumps.
func (c *Cache) Report() []EntryReport {
	c.mu.Lock()
	defer c.mu.Unlock()

	var report []EntryReport
	for i := range c.entries {
		e := &c.entries[i]
		if !e.used {
			continue
		}
		report = append(report, EntryReport{
			Digest:     e.digest.String(),
			RefCount:   e.refCount,
			BinarySize: e.binarySize,
			LoadTime:   e.loadTime,
			LastUsed:   e.lastUsed,
		})
	}
	return report
}

// findLocked returns the entry for digest, or nil. Caller holds mu.
func (c *Cache) findLocked(digest modhash.Digest) *entry {
	for i := range c.entries {
		if c.entries[i].used && c.entries[i].digest == digest {
			return &c.entries[i]
		}
	}
	return nil
}

// victimLocked picks the slot for a new entry: any empty slot, else
// the LRU slot among those with no references, else the LRU slot
// overall. Caller holds mu.
func (c *Cache) victimLocked() *entry {
	for i := range c.entries {
		if !c.entries[i].used {
			return &c.entries[i]
		}
	}

	var victim *entry
	for i := range c.entries {
		e := &c.entries[i]
		if e.refCount == 0 && (victim == nil || e.lastUsed.Before(victim.lastUsed)) {
			victim = e
		}
	}
	if victim != nil {
		return victim
	}

	for i := range c.entries {
		e := &c.entries[i]
		if victim == nil || e.lastUsed.Before(victim.lastUsed) {
			victim = e
		}
	}
	return victim
}
