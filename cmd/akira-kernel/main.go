// Copyright 2026 The Akira Authors
// SPDX-License-Identifier: Apache-2.0

// Akira-kernel is the sandboxing kernel daemon. On startup it loads
// configuration, opens the app store, installs any app binaries
// dropped in the apps directory, and starts a container for every
// installed app. It then runs the scheduler until SIGINT or SIGTERM,
// writing a final state snapshot on the way out.
//
// WASM execution is delegated to an [runtime.Executor]; this binary
// ships with a stub that schedules apps without running bytecode, for
// development and for soak-testing the kernel paths themselves.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/akira-foundation/akira/appstore"
	"github.com/akira-foundation/akira/lib/clock"
	"github.com/akira-foundation/akira/lib/config"
	"github.com/akira-foundation/akira/lib/version"
	"github.com/akira-foundation/akira/resource"
	"github.com/akira-foundation/akira/runtime"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath   string
		stepDuration time.Duration
		showVersion  bool
	)

	flag.StringVar(&configPath, "config", "", "config file (default: $AKIRA_CONFIG, then built-in defaults)")
	flag.DurationVar(&stepDuration, "step-duration", 5*time.Millisecond, "simulated work per scheduling slice in the stub executor")
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("akira-kernel %s\n", version.Info())
		return nil
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return fmt.Errorf("preparing directories: %w", err)
	}
	logger.Info("config loaded", "environment", cfg.Environment, "root", cfg.Paths.Root)

	timeSlice, err := cfg.Scheduler.ParseTimeSlice()
	if err != nil {
		return err
	}
	tickInterval, err := cfg.Scheduler.ParseTickInterval()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := appstore.Open(appstore.Config{
		Path:   cfg.Paths.Store,
		Logger: logger.With("subsystem", "appstore"),
	})
	if err != nil {
		return fmt.Errorf("opening app store: %w", err)
	}
	defer store.Close()

	if err := installApps(ctx, store, cfg.Paths.Apps, logger); err != nil {
		return err
	}

	quota := cfg.Resource.DefaultQuota.Amounts()
	kernel, err := runtime.New(runtime.Config{
		Executor:         newStubExecutor(clock.Real(), stepDuration),
		MaxTasks:         cfg.Scheduler.MaxTasks,
		MaxApps:          cfg.Resource.MaxApps,
		MaxContainers:    cfg.Capability.MaxContainers,
		CacheSlots:       cfg.Cache.Slots,
		InstanceMapSize:  cfg.Cache.InstanceMapSize,
		DefaultQuota:     &quota,
		DefaultTimeSlice: timeSlice,
		TickInterval:     tickInterval,
		Logger:           logger,
	})
	if err != nil {
		return err
	}

	if err := kernel.OnEvent(func(event resource.Event) {
		logger.Warn("resource event", "event", event.String())
	}); err != nil {
		return err
	}

	if err := startInstalledApps(ctx, kernel, store, logger); err != nil {
		return err
	}

	runErr := kernel.Run(ctx)

	if err := kernel.WriteSnapshot(cfg.Paths.Snapshot); err != nil {
		logger.Error("final snapshot failed", "error", err)
	}
	return runErr
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	if os.Getenv("AKIRA_CONFIG") != "" {
		return config.Load()
	}
	return config.Default(), nil
}

// installApps installs every .wasm binary in the apps directory into
// the store. A sibling .json file is used as the manifest fallback for
// binaries without an embedded manifest. Individual failures are
// logged and skipped so one bad binary does not block boot.
func installApps(ctx context.Context, store *appstore.Store, appsDir string, logger *slog.Logger) error {
	binaries, err := filepath.Glob(filepath.Join(appsDir, "*.wasm"))
	if err != nil {
		return fmt.Errorf("scanning %s: %w", appsDir, err)
	}

	for _, path := range binaries {
		binary, err := os.ReadFile(path)
		if err != nil {
			logger.Error("reading app binary failed", "path", path, "error", err)
			continue
		}

		manifestPath := strings.TrimSuffix(path, ".wasm") + ".json"
		if _, err := os.Stat(manifestPath); err != nil {
			manifestPath = ""
		}

		app, err := store.Install(ctx, binary, manifestPath)
		if err != nil {
			logger.Error("installing app failed", "path", path, "error", err)
			continue
		}
		logger.Info("app installed", "name", app.Name, "digest", app.Digest.Short())
	}
	return nil
}

// startInstalledApps starts a container for every app in the store.
// Failures are logged and skipped; the kernel boots with whatever
// subset starts cleanly.
func startInstalledApps(ctx context.Context, kernel *runtime.Runtime, store *appstore.Store, logger *slog.Logger) error {
	apps, err := store.List(ctx)
	if err != nil {
		return fmt.Errorf("listing apps: %w", err)
	}

	for _, app := range apps {
		_, binary, err := store.Get(ctx, app.Name)
		if err != nil {
			logger.Error("loading app failed", "name", app.Name, "error", err)
			continue
		}
		container, err := kernel.StartContainer(binary, app.Manifest)
		if err != nil {
			logger.Error("starting container failed", "name", app.Name, "error", err)
			continue
		}
		logger.Info("container started",
			"name", container.Name,
			"app_id", container.AppID,
			"task", container.Task,
		)
	}
	return nil
}
