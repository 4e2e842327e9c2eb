// Copyright 2026 The Akira Authors
// SPDX-License-Identifier: Apache-2.0

package runtime

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSnapshotRoundTrip(t *testing.T) {
	r := testRuntime(t, newFakeExecutor())

	for _, name := range []string{"alpha", "beta"} {
		if _, err := r.StartContainer([]byte("wasm-"+name), testManifest(name, 2048, "display.write")); err != nil {
			t.Fatalf("StartContainer %s: %v", name, err)
		}
	}

	path := filepath.Join(t.TempDir(), "kernel.snapshot")
	if err := r.WriteSnapshot(path); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}

	snapshot, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("ReadSnapshot: %v", err)
	}

	if len(snapshot.Containers) != 2 {
		t.Fatalf("snapshot has %d containers, want 2", len(snapshot.Containers))
	}
	for _, container := range snapshot.Containers {
		if container.Name != "alpha" && container.Name != "beta" {
			t.Errorf("unexpected container %q", container.Name)
		}
		if container.Digest == "" {
			t.Errorf("container %s has no digest", container.Name)
		}
		if len(container.Capabilities) != 1 || container.Capabilities[0] != "display.write" {
			t.Errorf("container %s capabilities = %v", container.Name, container.Capabilities)
		}
	}
	if len(snapshot.Tasks) != 2 {
		t.Errorf("snapshot has %d tasks, want 2", len(snapshot.Tasks))
	}
	if len(snapshot.Accounts) != 2 {
		t.Errorf("snapshot has %d accounts, want 2", len(snapshot.Accounts))
	}
	if snapshot.CacheStats.Misses != 2 {
		t.Errorf("cache stats report %d loads, want 2", snapshot.CacheStats.Misses)
	}
	if len(snapshot.Cache) != 2 {
		t.Errorf("snapshot has %d cache entries, want 2", len(snapshot.Cache))
	}
	if snapshot.TakenAt.IsZero() {
		t.Error("snapshot has no timestamp")
	}
}

func TestSnapshotSurvivesStops(t *testing.T) {
	r := testRuntime(t, newFakeExecutor())

	if _, err := r.StartContainer([]byte("wasm"), testManifest("ephemeral", 0)); err != nil {
		t.Fatalf("StartContainer: %v", err)
	}
	if err := r.StopContainer("ephemeral"); err != nil {
		t.Fatalf("StopContainer: %v", err)
	}

	snapshot := r.Snapshot()
	if len(snapshot.Containers) != 0 {
		t.Errorf("stopped container still in snapshot: %v", snapshot.Containers)
	}
}

func TestReadSnapshotRejectsGarbage(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "not-a-snapshot")
	if err := os.WriteFile(path, []byte("definitely not AKSN data"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadSnapshot(path); err == nil || !strings.Contains(err.Error(), "not a snapshot") {
		t.Errorf("ReadSnapshot(garbage) = %v, want magic error", err)
	}

	path = filepath.Join(dir, "future-version")
	frame := append(append([]byte{}, snapshotMagic...), 99, snapshotRaw, 0, 0, 0, 0)
	if err := os.WriteFile(path, frame, 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadSnapshot(path); err == nil || !strings.Contains(err.Error(), "version") {
		t.Errorf("ReadSnapshot(future version) = %v, want version error", err)
	}

	if _, err := ReadSnapshot(filepath.Join(dir, "missing")); err == nil {
		t.Error("ReadSnapshot(missing) should fail")
	}
}
