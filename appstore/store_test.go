// Copyright 2026 The Akira Authors
// SPDX-License-Identifier: Apache-2.0

package appstore

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/akira-foundation/akira/lib/clock"
	"github.com/akira-foundation/akira/lib/modhash"
	"github.com/akira-foundation/akira/manifest"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(Config{
		Path:     filepath.Join(t.TempDir(), "apps.db"),
		PoolSize: 2,
		Clock:    clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return store
}

// appBinary builds a WASM binary with an embedded manifest.
func appBinary(t *testing.T, manifestJSON string) []byte {
	t.Helper()
	content := binary.AppendUvarint(nil, uint64(len(manifest.SectionName)))
	content = append(content, manifest.SectionName...)
	content = append(content, manifestJSON...)

	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00, 0x00}
	out = binary.AppendUvarint(out, uint64(len(content)))
	return append(out, content...)
}

func TestInstallAndGet(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	wasm := appBinary(t, `{"name": "weather", "version": "2.0", "capabilities": ["network.http"]}`)
	installed, err := store.Install(ctx, wasm, "")
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if installed.Name != "weather" || installed.Version != "2.0" {
		t.Errorf("installed = %+v", installed)
	}
	if installed.Digest != modhash.Sum(wasm) {
		t.Error("digest does not match the binary")
	}

	app, got, err := store.Get(ctx, "weather")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, wasm) {
		t.Error("Get returned a different binary")
	}
	if app.Manifest == nil || len(app.Manifest.Capabilities) != 1 {
		t.Errorf("manifest not round-tripped: %+v", app.Manifest)
	}
	if app.BinarySize != uint64(len(wasm)) {
		t.Errorf("BinarySize = %d, want %d", app.BinarySize, len(wasm))
	}
}

func TestInstallReplacesExisting(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.Install(ctx, appBinary(t, `{"name": "app", "version": "1.0"}`), ""); err != nil {
		t.Fatalf("Install v1: %v", err)
	}
	if _, err := store.Install(ctx, appBinary(t, `{"name": "app", "version": "1.1"}`), ""); err != nil {
		t.Fatalf("Install v1.1: %v", err)
	}

	apps, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(apps) != 1 {
		t.Fatalf("List returned %d apps, want 1", len(apps))
	}
	if apps[0].Version != "1.1" {
		t.Errorf("version = %q, want 1.1", apps[0].Version)
	}
}

func TestInstallWithoutManifestFails(t *testing.T) {
	store := openTestStore(t)
	wasm := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	if _, err := store.Install(context.Background(), wasm, ""); err == nil {
		t.Error("Install without a manifest should fail")
	}
}

func TestListOrdersByName(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"zebra", "alpha", "mango"} {
		wasm := appBinary(t, fmt.Sprintf(`{"name": %q}`, name))
		if _, err := store.Install(ctx, wasm, ""); err != nil {
			t.Fatalf("Install %s: %v", name, err)
		}
	}

	apps, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{"alpha", "mango", "zebra"}
	if len(apps) != len(want) {
		t.Fatalf("List returned %d apps, want %d", len(apps), len(want))
	}
	for i, name := range want {
		if apps[i].Name != name {
			t.Errorf("apps[%d] = %q, want %q", i, apps[i].Name, name)
		}
	}
}

func TestGetUnknownApp(t *testing.T) {
	store := openTestStore(t)
	if _, _, err := store.Get(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get = %v, want ErrNotFound", err)
	}
}

func TestRemove(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.Install(ctx, appBinary(t, `{"name": "app"}`), ""); err != nil {
		t.Fatalf("Install: %v", err)
	}
	if err := store.Remove(ctx, "app"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, _, err := store.Get(ctx, "app"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after Remove = %v, want ErrNotFound", err)
	}
	if err := store.Remove(ctx, "app"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Remove = %v, want ErrNotFound", err)
	}
}

func TestInstallUsesFallbackManifest(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "app.manifest.jsonc")
	writeFile(t, path, `{"name": "sideband", "version": "0.1"}`)

	wasm := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	installed, err := store.Install(ctx, wasm, path)
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if installed.Name != "sideband" {
		t.Errorf("name = %q, want sideband", installed.Name)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
