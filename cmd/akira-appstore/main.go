// Copyright 2026 The Akira Authors
// SPDX-License-Identifier: Apache-2.0

// Akira-appstore is the operator CLI for the app store database:
// install app binaries (extracting the embedded manifest), list and
// inspect installed apps, and remove them. It operates directly on the
// SQLite database named in the kernel config; stop the kernel before
// removing apps it is running.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/akira-foundation/akira/appstore"
	"github.com/akira-foundation/akira/cmd/akira-appstore/cli"
	"github.com/akira-foundation/akira/lib/config"
)

func main() {
	if err := run(); err != nil {
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	return root().Execute(os.Args[1:])
}

func root() *cli.Command {
	return &cli.Command{
		Name:    "akira-appstore",
		Summary: "Manage the Akira app store",
		Description: `Manage apps in the Akira app store database.

Apps are WASM binaries with an embedded manifest (name, version,
memory quota, requested capabilities). Install extracts and validates
the manifest, compresses the binary, and records its content digest;
the kernel loads apps from this store at boot.

The store location comes from the kernel config file (--config flag or
the AKIRA_CONFIG environment variable).`,
		Subcommands: []*cli.Command{
			installCommand(),
			listCommand(),
			showCommand(),
			removeCommand(),
		},
		Examples: []cli.Example{
			{
				Description: "Install an app from a binary with an embedded manifest",
				Command:     "akira-appstore install weather.wasm",
			},
			{
				Description: "Install with a separate manifest file",
				Command:     "akira-appstore install weather.wasm --manifest weather.json",
			},
			{
				Description: "List installed apps as JSON",
				Command:     "akira-appstore list --json",
			},
		},
	}
}

// storeFlags carries the flags shared by every subcommand: where the
// config file lives and how chatty to be.
type storeFlags struct {
	configPath string
	verbose    bool
}

func (f *storeFlags) register(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&f.configPath, "config", "", "kernel config file (default: $AKIRA_CONFIG, then built-in defaults)")
	flagSet.BoolVarP(&f.verbose, "verbose", "v", false, "log store operations to stderr")
}

// open loads the config and opens the app store. The caller must Close
// the returned store.
func (f *storeFlags) open() (*appstore.Store, error) {
	cfg, err := f.loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsurePaths(); err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if f.verbose {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}

	return appstore.Open(appstore.Config{
		Path:   cfg.Paths.Store,
		Logger: logger,
	})
}

func (f *storeFlags) loadConfig() (*config.Config, error) {
	if f.configPath != "" {
		return config.LoadFile(f.configPath)
	}
	if os.Getenv("AKIRA_CONFIG") != "" {
		return config.Load()
	}
	return config.Default(), nil
}

func installCommand() *cli.Command {
	var flags storeFlags
	var manifestPath string

	return &cli.Command{
		Name:    "install",
		Summary: "Install an app binary into the store",
		Usage:   "akira-appstore install <binary.wasm> [flags]",
		Description: `Install a WASM app binary.

The manifest is read from the binary's custom section; --manifest
names a JSON file to fall back to when the binary has none.
Reinstalling an app with the same name replaces it.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("install", pflag.ContinueOnError)
			flags.register(flagSet)
			flagSet.StringVar(&manifestPath, "manifest", "", "manifest JSON file used when the binary has no embedded manifest")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("install: expected exactly one binary path, got %d args", len(args))
			}
			binary, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			store, err := flags.open()
			if err != nil {
				return err
			}
			defer store.Close()

			app, err := store.Install(context.Background(), binary, manifestPath)
			if err != nil {
				return err
			}
			fmt.Printf("installed %s %s (%s, %d bytes)\n",
				app.Name, app.Version, app.Digest.Short(), app.BinarySize)
			return nil
		},
	}
}

func listCommand() *cli.Command {
	var flags storeFlags
	var asJSON bool

	return &cli.Command{
		Name:    "list",
		Summary: "List installed apps",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("list", pflag.ContinueOnError)
			flags.register(flagSet)
			flagSet.BoolVar(&asJSON, "json", false, "output as JSON")
			return flagSet
		},
		Run: func(args []string) error {
			store, err := flags.open()
			if err != nil {
				return err
			}
			defer store.Close()

			apps, err := store.List(context.Background())
			if err != nil {
				return err
			}
			if asJSON {
				return cli.WriteJSON(apps)
			}

			tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintln(tw, "NAME\tVERSION\tDIGEST\tSIZE\tINSTALLED")
			for _, app := range apps {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
					app.Name, app.Version, app.Digest.Short(),
					app.BinarySize, app.InstalledAt.Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		},
	}
}

func showCommand() *cli.Command {
	var flags storeFlags
	var asJSON bool

	return &cli.Command{
		Name:    "show",
		Summary: "Show one app's manifest and metadata",
		Usage:   "akira-appstore show <name> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("show", pflag.ContinueOnError)
			flags.register(flagSet)
			flagSet.BoolVar(&asJSON, "json", false, "output as JSON")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("show: expected exactly one app name, got %d args", len(args))
			}

			store, err := flags.open()
			if err != nil {
				return err
			}
			defer store.Close()

			app, _, err := store.Get(context.Background(), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return cli.WriteJSON(app)
			}

			fmt.Printf("name:      %s\n", app.Name)
			fmt.Printf("version:   %s\n", app.Version)
			fmt.Printf("digest:    %s\n", app.Digest)
			fmt.Printf("size:      %d bytes\n", app.BinarySize)
			fmt.Printf("installed: %s\n", app.InstalledAt.Format("2006-01-02 15:04:05"))
			if app.Manifest != nil {
				fmt.Printf("memory:    %d bytes\n", app.Manifest.MemoryQuota)
				for _, capabilityName := range app.Manifest.Capabilities {
					fmt.Printf("capability: %s\n", capabilityName)
				}
			}
			return nil
		},
	}
}

func removeCommand() *cli.Command {
	var flags storeFlags

	return &cli.Command{
		Name:    "remove",
		Summary: "Remove an installed app",
		Usage:   "akira-appstore remove <name> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("remove", pflag.ContinueOnError)
			flags.register(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("remove: expected exactly one app name, got %d args", len(args))
			}

			store, err := flags.open()
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Remove(context.Background(), args[0]); err != nil {
				return err
			}
			fmt.Printf("removed %s\n", args[0])
			return nil
		},
	}
}
