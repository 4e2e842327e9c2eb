// Copyright 2026 The Akira Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/akira-foundation/akira/resource"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Config is the master configuration for the kernel.
type Config struct {
	// Environment identifies the deployment type.
	Environment Environment `yaml:"environment"`

	// Paths configures file and directory locations.
	Paths PathsConfig `yaml:"paths"`

	// Scheduler configures the task scheduler.
	Scheduler SchedulerConfig `yaml:"scheduler"`

	// Resource configures quota accounting.
	Resource ResourceConfig `yaml:"resource"`

	// Cache configures the module cache and instance map.
	Cache CacheConfig `yaml:"cache"`

	// Capability configures the capability registry.
	Capability CapabilityConfig `yaml:"capability"`

	// Per-environment overrides, applied after the base config.
	Development *Overrides `yaml:"development,omitempty"`
	Staging     *Overrides `yaml:"staging,omitempty"`
	Production  *Overrides `yaml:"production,omitempty"`
}

// Overrides contains the fields that can be overridden per
// environment.
type Overrides struct {
	Paths     *PathsConfig     `yaml:"paths,omitempty"`
	Scheduler *SchedulerConfig `yaml:"scheduler,omitempty"`
	Resource  *ResourceConfig  `yaml:"resource,omitempty"`
	Cache     *CacheConfig     `yaml:"cache,omitempty"`
}

// PathsConfig configures file and directory locations.
type PathsConfig struct {
	// Root is the base directory for kernel data.
	Root string `yaml:"root"`

	// Store is the app store database file.
	// Default: ${AKIRA_ROOT}/appstore.db
	Store string `yaml:"store"`

	// Snapshot is where the kernel writes its state snapshot on
	// shutdown. Default: ${AKIRA_ROOT}/state/kernel.snapshot
	Snapshot string `yaml:"snapshot"`

	// Apps is a directory of WASM binaries installed into the store at
	// startup. Default: ${AKIRA_ROOT}/apps
	Apps string `yaml:"apps"`
}

// SchedulerConfig configures the task scheduler.
type SchedulerConfig struct {
	// MaxTasks is the fixed task table size. Default: 16.
	MaxTasks int `yaml:"max_tasks"`

	// TimeSlice is the default per-task time slice, as a duration
	// string. Default: "10ms".
	TimeSlice string `yaml:"time_slice"`

	// TickInterval is the preemption check period, as a duration
	// string. Default: "5ms".
	TickInterval string `yaml:"tick_interval"`
}

// ParseTimeSlice returns the default time slice as a duration.
func (s SchedulerConfig) ParseTimeSlice() (time.Duration, error) {
	return parseDuration("scheduler.time_slice", s.TimeSlice)
}

// ParseTickInterval returns the tick period as a duration.
func (s SchedulerConfig) ParseTickInterval() (time.Duration, error) {
	return parseDuration("scheduler.tick_interval", s.TickInterval)
}

// ResourceConfig configures quota accounting.
type ResourceConfig struct {
	// MaxApps is the fixed account table size. Default: 16.
	MaxApps int `yaml:"max_apps"`

	// DefaultQuota overrides individual default quota values. Zero
	// fields keep the built-in default.
	DefaultQuota QuotaConfig `yaml:"default_quota"`
}

// QuotaConfig is the configurable subset of a resource quota.
type QuotaConfig struct {
	MemoryBytes    uint64 `yaml:"memory_bytes"`
	CPUTimeMicros  uint64 `yaml:"cpu_time_micros"`
	StorageBytes   uint64 `yaml:"storage_bytes"`
	NetworkTXBytes uint64 `yaml:"network_tx_bytes"`
	NetworkRXBytes uint64 `yaml:"network_rx_bytes"`
	FileHandles    uint64 `yaml:"file_handles"`
	Sockets        uint64 `yaml:"sockets"`
}

// Amounts merges the configured values over the built-in default
// quota.
func (q QuotaConfig) Amounts() resource.Amounts {
	quota := resource.DefaultQuota()
	if q.MemoryBytes > 0 {
		quota.MemoryBytes = q.MemoryBytes
	}
	if q.CPUTimeMicros > 0 {
		quota.CPUTimeMicros = q.CPUTimeMicros
	}
	if q.StorageBytes > 0 {
		quota.StorageBytes = q.StorageBytes
	}
	if q.NetworkTXBytes > 0 {
		quota.NetworkTXBytes = q.NetworkTXBytes
	}
	if q.NetworkRXBytes > 0 {
		quota.NetworkRXBytes = q.NetworkRXBytes
	}
	if q.FileHandles > 0 {
		quota.FileHandles = q.FileHandles
	}
	if q.Sockets > 0 {
		quota.Sockets = q.Sockets
	}
	return quota
}

// CacheConfig configures the module cache and instance map.
type CacheConfig struct {
	// Slots is the module cache size. Default: 4.
	Slots int `yaml:"slots"`

	// InstanceMapSize is the instance map bucket count, rounded up to
	// a power of two. Default: 64.
	InstanceMapSize int `yaml:"instance_map_size"`
}

// CapabilityConfig configures the capability registry.
type CapabilityConfig struct {
	// MaxContainers is the fixed capability table size. Default: 16.
	MaxContainers int `yaml:"max_containers"`
}

// Default returns the default configuration. These defaults are the
// base that a loaded config file overrides.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".akira")

	return &Config{
		Environment: Development,
		Paths: PathsConfig{
			Root:     defaultRoot,
			Store:    filepath.Join(defaultRoot, "appstore.db"),
			Snapshot: filepath.Join(defaultRoot, "state", "kernel.snapshot"),
			Apps:     filepath.Join(defaultRoot, "apps"),
		},
		Scheduler: SchedulerConfig{
			MaxTasks:     16,
			TimeSlice:    "10ms",
			TickInterval: "5ms",
		},
		Resource: ResourceConfig{
			MaxApps: 16,
		},
		Cache: CacheConfig{
			Slots:           4,
			InstanceMapSize: 64,
		},
		Capability: CapabilityConfig{
			MaxContainers: 16,
		},
	}
}

// Load loads configuration from the AKIRA_CONFIG environment variable.
// There are no fallbacks or discovery: if AKIRA_CONFIG is not set,
// this fails. This keeps configuration deterministic and auditable.
func Load() (*Config, error) {
	configPath := os.Getenv("AKIRA_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("AKIRA_CONFIG environment variable not set; " +
			"set it to the path of your akira.yaml config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path. The config
// file is the single source of truth; environment variables do not
// override config values. The only expansion performed is ${HOME} and
// ${AKIRA_ROOT} in paths, for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

// applyEnvironmentOverrides applies the section matching the selected
// environment.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *Overrides
	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}
	if overrides == nil {
		return
	}

	if overrides.Paths != nil {
		if overrides.Paths.Root != "" {
			c.Paths.Root = overrides.Paths.Root
		}
		if overrides.Paths.Store != "" {
			c.Paths.Store = overrides.Paths.Store
		}
		if overrides.Paths.Snapshot != "" {
			c.Paths.Snapshot = overrides.Paths.Snapshot
		}
		if overrides.Paths.Apps != "" {
			c.Paths.Apps = overrides.Paths.Apps
		}
	}

	if overrides.Scheduler != nil {
		if overrides.Scheduler.MaxTasks > 0 {
			c.Scheduler.MaxTasks = overrides.Scheduler.MaxTasks
		}
		if overrides.Scheduler.TimeSlice != "" {
			c.Scheduler.TimeSlice = overrides.Scheduler.TimeSlice
		}
		if overrides.Scheduler.TickInterval != "" {
			c.Scheduler.TickInterval = overrides.Scheduler.TickInterval
		}
	}

	if overrides.Resource != nil {
		if overrides.Resource.MaxApps > 0 {
			c.Resource.MaxApps = overrides.Resource.MaxApps
		}
		base := &c.Resource.DefaultQuota
		over := overrides.Resource.DefaultQuota
		if over.MemoryBytes > 0 {
			base.MemoryBytes = over.MemoryBytes
		}
		if over.CPUTimeMicros > 0 {
			base.CPUTimeMicros = over.CPUTimeMicros
		}
		if over.StorageBytes > 0 {
			base.StorageBytes = over.StorageBytes
		}
		if over.NetworkTXBytes > 0 {
			base.NetworkTXBytes = over.NetworkTXBytes
		}
		if over.NetworkRXBytes > 0 {
			base.NetworkRXBytes = over.NetworkRXBytes
		}
		if over.FileHandles > 0 {
			base.FileHandles = over.FileHandles
		}
		if over.Sockets > 0 {
			base.Sockets = over.Sockets
		}
	}

	if overrides.Cache != nil {
		if overrides.Cache.Slots > 0 {
			c.Cache.Slots = overrides.Cache.Slots
		}
		if overrides.Cache.InstanceMapSize > 0 {
			c.Cache.InstanceMapSize = overrides.Cache.InstanceMapSize
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in
// paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"AKIRA_ROOT": c.Paths.Root,
		"HOME":       os.Getenv("HOME"),
	}

	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["AKIRA_ROOT"] = c.Paths.Root // Update for dependent paths.

	c.Paths.Store = expandVars(c.Paths.Store, vars)
	c.Paths.Snapshot = expandVars(c.Paths.Snapshot, vars)
	c.Paths.Apps = expandVars(c.Paths.Apps, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}
	if c.Paths.Root == "" {
		errs = append(errs, fmt.Errorf("paths.root is required"))
	}
	if c.Paths.Store == "" {
		errs = append(errs, fmt.Errorf("paths.store is required"))
	}
	if c.Scheduler.MaxTasks <= 0 {
		errs = append(errs, fmt.Errorf("scheduler.max_tasks must be positive"))
	}
	if _, err := c.Scheduler.ParseTimeSlice(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Scheduler.ParseTickInterval(); err != nil {
		errs = append(errs, err)
	}
	if c.Resource.MaxApps <= 0 {
		errs = append(errs, fmt.Errorf("resource.max_apps must be positive"))
	}
	if c.Cache.Slots <= 0 {
		errs = append(errs, fmt.Errorf("cache.slots must be positive"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsurePaths creates the configured directories if they don't exist.
func (c *Config) EnsurePaths() error {
	paths := []string{
		c.Paths.Root,
		c.Paths.Apps,
		filepath.Dir(c.Paths.Store),
		filepath.Dir(c.Paths.Snapshot),
	}
	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}
	return nil
}

func parseDuration(field, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", field)
	}
	return d, nil
}
