// Copyright 2026 The Akira Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Environment != Development {
		t.Errorf("expected environment=development, got %s", cfg.Environment)
	}
	if cfg.Scheduler.MaxTasks != 16 {
		t.Errorf("expected max_tasks=16, got %d", cfg.Scheduler.MaxTasks)
	}
	if cfg.Cache.Slots != 4 {
		t.Errorf("expected cache slots=4, got %d", cfg.Cache.Slots)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadRequiresAkiraConfig(t *testing.T) {
	origConfig := os.Getenv("AKIRA_CONFIG")
	defer os.Setenv("AKIRA_CONFIG", origConfig)

	os.Unsetenv("AKIRA_CONFIG")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when AKIRA_CONFIG not set, got nil")
	}
}

func TestLoadWithAkiraConfig(t *testing.T) {
	origConfig := os.Getenv("AKIRA_CONFIG")
	defer os.Setenv("AKIRA_CONFIG", origConfig)

	configPath := filepath.Join(t.TempDir(), "akira.yaml")
	writeConfig(t, configPath, `
environment: staging
paths:
  root: /test/root
scheduler:
  max_tasks: 8
  time_slice: 20ms
`)
	os.Setenv("AKIRA_CONFIG", configPath)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Environment != Staging {
		t.Errorf("expected environment=staging, got %s", cfg.Environment)
	}
	if cfg.Paths.Root != "/test/root" {
		t.Errorf("expected root=/test/root, got %s", cfg.Paths.Root)
	}
	if cfg.Scheduler.MaxTasks != 8 {
		t.Errorf("expected max_tasks=8, got %d", cfg.Scheduler.MaxTasks)
	}
	slice, err := cfg.Scheduler.ParseTimeSlice()
	if err != nil || slice != 20*time.Millisecond {
		t.Errorf("time slice = %v (%v), want 20ms", slice, err)
	}
}

func TestFileValuesOverrideDefaults(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "akira.yaml")
	writeConfig(t, configPath, `
resource:
  max_apps: 32
  default_quota:
    memory_bytes: 262144
`)

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Resource.MaxApps != 32 {
		t.Errorf("max_apps = %d, want 32", cfg.Resource.MaxApps)
	}
	quota := cfg.Resource.DefaultQuota.Amounts()
	if quota.MemoryBytes != 262144 {
		t.Errorf("memory quota = %d, want 262144", quota.MemoryBytes)
	}
	// Unset fields keep the built-in default.
	if quota.FileHandles == 0 {
		t.Error("file handle quota should fall back to the default")
	}
	// Base sections not mentioned in the file keep their defaults.
	if cfg.Scheduler.MaxTasks != 16 {
		t.Errorf("max_tasks = %d, want default 16", cfg.Scheduler.MaxTasks)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "akira.yaml")
	writeConfig(t, configPath, `
environment: production
scheduler:
  max_tasks: 8
production:
  scheduler:
    max_tasks: 32
    tick_interval: 1ms
  cache:
    slots: 8
staging:
  scheduler:
    max_tasks: 99
`)

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Scheduler.MaxTasks != 32 {
		t.Errorf("max_tasks = %d, want production override 32", cfg.Scheduler.MaxTasks)
	}
	if cfg.Cache.Slots != 8 {
		t.Errorf("cache slots = %d, want production override 8", cfg.Cache.Slots)
	}
	tick, err := cfg.Scheduler.ParseTickInterval()
	if err != nil || tick != time.Millisecond {
		t.Errorf("tick interval = %v (%v), want 1ms", tick, err)
	}
}

func TestVariableExpansion(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "akira.yaml")
	writeConfig(t, configPath, `
paths:
  root: /data/akira
  store: ${AKIRA_ROOT}/db/apps.db
  snapshot: ${AKIRA_ROOT}/state/kernel.snapshot
`)

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Paths.Store != "/data/akira/db/apps.db" {
		t.Errorf("store = %q, want expanded path", cfg.Paths.Store)
	}
	if cfg.Paths.Snapshot != "/data/akira/state/kernel.snapshot" {
		t.Errorf("snapshot = %q, want expanded path", cfg.Paths.Snapshot)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.Environment = "karaoke"
	cfg.Scheduler.MaxTasks = 0
	cfg.Scheduler.TimeSlice = "sometimes"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
}

func TestEnsurePaths(t *testing.T) {
	root := filepath.Join(t.TempDir(), "akira")
	cfg := Default()
	cfg.Paths.Root = root
	cfg.Paths.Store = filepath.Join(root, "db", "apps.db")
	cfg.Paths.Snapshot = filepath.Join(root, "state", "kernel.snapshot")
	cfg.Paths.Apps = filepath.Join(root, "apps")

	if err := cfg.EnsurePaths(); err != nil {
		t.Fatalf("EnsurePaths failed: %v", err)
	}
	for _, dir := range []string{root, filepath.Join(root, "db"), filepath.Join(root, "state"), filepath.Join(root, "apps")} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Errorf("%s not created: %v", dir, err)
		}
	}
}

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
}
