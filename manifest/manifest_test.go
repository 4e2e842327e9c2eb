// Copyright 2026 The Akira Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/akira-foundation/akira/capability"
)

// buildWASM assembles a minimal WASM binary from the given sections.
func buildWASM(sections ...[]byte) []byte {
	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	for _, s := range sections {
		out = append(out, s...)
	}
	return out
}

// customSection encodes one custom section with the given name and
// payload.
func customSection(name string, payload []byte) []byte {
	content := binary.AppendUvarint(nil, uint64(len(name)))
	content = append(content, name...)
	content = append(content, payload...)

	section := []byte{sectionCustom}
	section = binary.AppendUvarint(section, uint64(len(content)))
	return append(section, content...)
}

func TestParse(t *testing.T) {
	m, err := Parse([]byte(`{
		"name": "weather",
		"version": "1.2.0",
		"memory_quota": 131072,
		"capabilities": ["display.write", "network.http"]
	}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if m.Name != "weather" || m.Version != "1.2.0" || m.MemoryQuota != 131072 {
		t.Errorf("manifest = %+v", m)
	}

	mask := m.CapabilityMask()
	want := capability.DisplayWrite | capability.NetworkHTTP
	if mask != want {
		t.Errorf("mask = %#x, want %#x", mask, want)
	}
}

func TestParseToleratesJSONC(t *testing.T) {
	m, err := Parse([]byte(`{
		// the app's display name
		"name": "clock",
		"capabilities": [
			"display.write", // trailing comma next
		],
	}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if m.Name != "clock" {
		t.Errorf("name = %q, want clock", m.Name)
	}
}

func TestParseUnknownCapabilityGrantsNothing(t *testing.T) {
	m, err := Parse([]byte(`{"name": "x", "capabilities": ["teleport.self", "display.read"]}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if mask := m.CapabilityMask(); mask != capability.DisplayRead {
		t.Errorf("mask = %#x, want only display.read", mask)
	}
}

func TestParseRequiresName(t *testing.T) {
	if _, err := Parse([]byte(`{"version": "1.0"}`)); err == nil {
		t.Error("Parse without name should fail")
	}
}

func TestQuotaAppliesMemoryOverDefault(t *testing.T) {
	m := &Manifest{Name: "x", MemoryQuota: 4096}
	if q := m.Quota(); q.MemoryBytes != 4096 {
		t.Errorf("MemoryBytes = %d, want 4096", q.MemoryBytes)
	}

	// Zero quota keeps the default.
	m = &Manifest{Name: "x"}
	if q := m.Quota(); q.MemoryBytes == 0 {
		t.Error("zero manifest quota should fall back to the default")
	}
}

func TestFromBinary(t *testing.T) {
	wasm := buildWASM(
		customSection("producers", []byte("toolchain junk")),
		customSection(SectionName, []byte(`{"name": "embedded", "capabilities": ["sensor.imu"]}`)),
	)

	m, err := FromBinary(wasm)
	if err != nil {
		t.Fatalf("FromBinary failed: %v", err)
	}
	if m.Name != "embedded" {
		t.Errorf("name = %q, want embedded", m.Name)
	}
	if m.CapabilityMask() != capability.SensorIMU {
		t.Errorf("mask = %#x, want sensor.imu", m.CapabilityMask())
	}
}

func TestFromBinaryNoSection(t *testing.T) {
	wasm := buildWASM(customSection("other", []byte("x")))
	if _, err := FromBinary(wasm); !errors.Is(err, ErrNoManifest) {
		t.Errorf("FromBinary = %v, want ErrNoManifest", err)
	}
}

func TestFromBinaryRejectsBadMagic(t *testing.T) {
	if _, err := FromBinary([]byte("ELF\x7fnot wasm at all")); err == nil {
		t.Error("bad magic should fail")
	}
	if _, err := FromBinary([]byte{0x00, 0x61}); err == nil {
		t.Error("truncated binary should fail")
	}
}

func TestFromBinaryTruncatedSection(t *testing.T) {
	wasm := buildWASM([]byte{sectionCustom, 0xff, 0x01}) // size runs past end
	if _, err := FromBinary(wasm); err == nil {
		t.Error("section past end of binary should fail")
	}
}

func TestReadUvarint(t *testing.T) {
	cases := []struct {
		name  string
		data  []byte
		value uint32
		n     int
	}{
		{"single byte", []byte{0x05}, 5, 1},
		{"max u32", []byte{0xff, 0xff, 0xff, 0xff, 0x0f}, 0xffffffff, 5},
		{"payload past bit 31", []byte{0xff, 0xff, 0xff, 0xff, 0x7f}, 0, 0},
		{"continuation on fifth byte", []byte{0xff, 0xff, 0xff, 0xff, 0xff}, 0, 0},
		{"truncated", []byte{0x80}, 0, 0},
	}
	for _, tc := range cases {
		value, n := readUvarint(tc.data)
		if value != tc.value || n != tc.n {
			t.Errorf("%s: readUvarint(% x) = (%#x, %d), want (%#x, %d)",
				tc.name, tc.data, value, n, tc.value, tc.n)
		}
	}
}

func TestLoadFallsBackToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.manifest.jsonc")
	if err := os.WriteFile(path, []byte(`{"name": "from-file"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	wasm := buildWASM() // no manifest section
	m, err := Load(wasm, path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if m.Name != "from-file" {
		t.Errorf("name = %q, want from-file", m.Name)
	}
}

func TestLoadPrefersEmbeddedSection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.manifest.jsonc")
	if err := os.WriteFile(path, []byte(`{"name": "from-file"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	wasm := buildWASM(customSection(SectionName, []byte(`{"name": "embedded"}`)))
	m, err := Load(wasm, path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if m.Name != "embedded" {
		t.Errorf("name = %q, want embedded", m.Name)
	}
}

func TestLoadNothingAvailable(t *testing.T) {
	if _, err := Load(buildWASM(), ""); !errors.Is(err, ErrNoManifest) {
		t.Errorf("Load = %v, want ErrNoManifest", err)
	}
}
