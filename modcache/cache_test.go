// Copyright 2026 The Akira Authors
// SPDX-License-Identifier: Apache-2.0

package modcache

import (
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/akira-foundation/akira/lib/clock"
	"github.com/akira-foundation/akira/lib/modhash"
)

// fakeModule stands in for an executor module handle.
type fakeModule struct{ name string }

func testCache(t *testing.T, slots int, clk clock.Clock, unload UnloadFunc) *Cache {
	t.Helper()
	return New(Config{
		Slots:  slots,
		Clock:  clk,
		Unload: unload,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func digestOf(name string) modhash.Digest {
	return modhash.Sum([]byte(name))
}

func TestLookupMissThenHit(t *testing.T) {
	c := testCache(t, 4, nil, nil)
	d := digestOf("mod")

	if _, ok := c.Lookup(d); ok {
		t.Fatal("lookup on empty cache should miss")
	}

	mod := &fakeModule{name: "mod"}
	c.Store(d, mod, 128, 5*time.Millisecond)

	got, ok := c.Lookup(d)
	if !ok {
		t.Fatal("lookup after store should hit")
	}
	if got != mod {
		t.Error("lookup returned a different module")
	}

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("stats = %+v, want 1 hit, 1 miss", stats)
	}
}

func TestStoreIdempotent(t *testing.T) {
	c := testCache(t, 4, nil, nil)
	d := digestOf("mod")
	mod := &fakeModule{name: "mod"}

	c.Store(d, mod, 128, time.Millisecond)
	c.Store(d, mod, 128, time.Millisecond)

	report := c.Report()
	if len(report) != 1 {
		t.Fatalf("repeated store created %d entries, want 1", len(report))
	}
	if report[0].RefCount != 2 {
		t.Errorf("ref count after two stores = %d, want 2", report[0].RefCount)
	}
}

// Scenario D: a full cache of unreferenced entries evicts exactly the
// least-recently-used one.
func TestEvictionPicksLRU(t *testing.T) {
	clk := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	c := testCache(t, 3, clk, nil)

	for i := 0; i < 3; i++ {
		c.Store(digestOf(fmt.Sprintf("mod%d", i)), &fakeModule{}, 64, 0)
		c.Release(digestOf(fmt.Sprintf("mod%d", i)))
		clk.Advance(time.Second)
	}

	// Touch mod0 so mod1 becomes the LRU.
	if _, ok := c.Lookup(digestOf("mod0")); !ok {
		t.Fatal("mod0 should be cached")
	}
	c.Release(digestOf("mod0"))
	clk.Advance(time.Second)

	c.Store(digestOf("new"), &fakeModule{}, 64, 0)

	if _, ok := c.Lookup(digestOf("mod1")); ok {
		t.Error("mod1 (the LRU) should have been evicted")
	}
	for _, name := range []string{"mod0", "mod2", "new"} {
		if _, ok := c.Lookup(digestOf(name)); !ok {
			t.Errorf("%s should still be cached", name)
		}
	}
	if stats := c.Stats(); stats.Evictions != 1 || stats.UnsafeEvictions != 0 {
		t.Errorf("stats = %+v, want exactly one safe eviction", stats)
	}
}

func TestEvictionSkipsReferenced(t *testing.T) {
	clk := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	c := testCache(t, 2, clk, nil)

	// mod0 is older but still referenced; mod1 is unreferenced.
	c.Store(digestOf("mod0"), &fakeModule{}, 64, 0)
	clk.Advance(time.Second)
	c.Store(digestOf("mod1"), &fakeModule{}, 64, 0)
	c.Release(digestOf("mod1"))
	clk.Advance(time.Second)

	c.Store(digestOf("new"), &fakeModule{}, 64, 0)

	if _, ok := c.Lookup(digestOf("mod0")); !ok {
		t.Error("referenced mod0 must not be evicted while an unreferenced victim exists")
	}
	if _, ok := c.Lookup(digestOf("mod1")); ok {
		t.Error("unreferenced mod1 should have been evicted")
	}
}

func TestUnsafeEvictionLeaksModule(t *testing.T) {
	clk := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	var unloaded []any
	c := testCache(t, 1, clk, func(module any) { unloaded = append(unloaded, module) })

	c.Store(digestOf("pinned"), &fakeModule{name: "pinned"}, 64, 0)
	clk.Advance(time.Second)

	// Every slot referenced: the store overwrites but must not unload.
	c.Store(digestOf("new"), &fakeModule{name: "new"}, 64, 0)

	if len(unloaded) != 0 {
		t.Errorf("unload hook ran on a referenced module: %v", unloaded)
	}
	if stats := c.Stats(); stats.UnsafeEvictions != 1 {
		t.Errorf("UnsafeEvictions = %d, want 1", stats.UnsafeEvictions)
	}
}

func TestSafeEvictionUnloads(t *testing.T) {
	clk := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	var unloaded []any
	c := testCache(t, 1, clk, func(module any) { unloaded = append(unloaded, module) })

	old := &fakeModule{name: "old"}
	c.Store(digestOf("old"), old, 64, 0)
	c.Release(digestOf("old"))
	clk.Advance(time.Second)

	c.Store(digestOf("new"), &fakeModule{name: "new"}, 64, 0)

	if len(unloaded) != 1 || unloaded[0] != old {
		t.Errorf("unloaded = %v, want the evicted module", unloaded)
	}
}

func TestReleaseFloorsAtZero(t *testing.T) {
	c := testCache(t, 2, nil, nil)
	d := digestOf("mod")
	c.Store(d, &fakeModule{}, 64, 0)

	c.Release(d)
	c.Release(d) // double release: floor, not underflow

	report := c.Report()
	if len(report) != 1 || report[0].RefCount != 0 {
		t.Errorf("report = %+v, want one entry with ref count 0", report)
	}

	// Unknown digest: no-op.
	c.Release(digestOf("ghost"))
}

func TestLoadTimeAccumulates(t *testing.T) {
	c := testCache(t, 4, nil, nil)
	c.Store(digestOf("a"), &fakeModule{}, 64, 3*time.Millisecond)
	c.Store(digestOf("b"), &fakeModule{}, 64, 4*time.Millisecond)

	if stats := c.Stats(); stats.TotalLoadTime != 7*time.Millisecond {
		t.Errorf("TotalLoadTime = %v, want 7ms", stats.TotalLoadTime)
	}
}
