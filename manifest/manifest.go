// Copyright 2026 The Akira Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tidwall/jsonc"

	"github.com/akira-foundation/akira/capability"
	"github.com/akira-foundation/akira/resource"
)

// Manifest is an application's declared identity and requirements.
type Manifest struct {
	// Name identifies the app. It doubles as the container name for
	// capability grants.
	Name string `json:"name"`

	// Version is informational, carried through to reports.
	Version string `json:"version,omitempty"`

	// MemoryQuota is the requested memory limit in bytes. Zero means
	// the kernel default.
	MemoryQuota uint64 `json:"memory_quota,omitempty"`

	// Capabilities lists requested capabilities by dotted name.
	Capabilities []string `json:"capabilities,omitempty"`
}

// CapabilityMask folds the requested capability names into a bitmask.
// Unknown names contribute nothing.
func (m *Manifest) CapabilityMask() capability.Capability {
	return capability.FromStrings(m.Capabilities)
}

// Quota returns the resource quota for a container running this app:
// the kernel default with the manifest's memory limit applied on top.
func (m *Manifest) Quota() resource.Amounts {
	quota := resource.DefaultQuota()
	if m.MemoryQuota > 0 {
		quota.MemoryBytes = m.MemoryQuota
	}
	return quota
}

// Parse unmarshals manifest JSON. Comments and trailing commas are
// tolerated, so the same parser serves embedded sections and authored
// JSONC files.
func Parse(data []byte) (*Manifest, error) {
	stripped := jsonc.ToJSON(data)

	var m Manifest
	if err := json.Unmarshal(stripped, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	if m.Name == "" {
		return nil, fmt.Errorf("manifest has no name")
	}
	return &m, nil
}

// ReadFile reads and parses a JSONC manifest file.
func ReadFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Load extracts the manifest for a WASM binary: the embedded
// ".akira.manifest" custom section when present, else the manifest
// file at fallbackPath when non-empty. Returns ErrNoManifest when
// neither source yields one.
func Load(binary []byte, fallbackPath string) (*Manifest, error) {
	m, err := FromBinary(binary)
	if err == nil {
		return m, nil
	}
	if fallbackPath != "" {
		return ReadFile(fallbackPath)
	}
	return nil, err
}
