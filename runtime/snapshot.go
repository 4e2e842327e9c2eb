// Copyright 2026 The Akira Authors
// SPDX-License-Identifier: Apache-2.0

package runtime

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pierrec/lz4/v4"

	"github.com/akira-foundation/akira/lib/codec"
	"github.com/akira-foundation/akira/modcache"
	"github.com/akira-foundation/akira/resource"
	"github.com/akira-foundation/akira/sched"
)

// Snapshot is a point-in-time dump of kernel state: every live
// container with its task, account, and cache view. Written on
// shutdown and on demand for inspection; the kernel never restores
// from one (containers do not survive a restart, their apps do, in
// the app store).
type Snapshot struct {
	TakenAt     time.Time                `cbor:"taken_at"`
	Ticks       uint64                   `cbor:"ticks"`
	Containers  []ContainerReport        `cbor:"containers"`
	Tasks       []sched.TaskReport       `cbor:"tasks"`
	Accounts    []resource.AccountReport `cbor:"accounts"`
	SystemUsage resource.Amounts         `cbor:"system_usage"`
	CacheStats  modcache.Stats           `cbor:"cache_stats"`
	Cache       []modcache.EntryReport   `cbor:"cache"`
}

// ContainerReport is one container's row in a snapshot.
type ContainerReport struct {
	AppID        uint32       `cbor:"app_id"`
	Name         string       `cbor:"name"`
	Version      string       `cbor:"version,omitempty"`
	Digest       string       `cbor:"digest"`
	Task         sched.Handle `cbor:"task"`
	Capabilities []string     `cbor:"capabilities,omitempty"`
}

// Snapshot collects the current state of every subsystem.
func (r *Runtime) Snapshot() *Snapshot {
	accounts, system := r.resources.Report()

	snapshot := &Snapshot{
		TakenAt:     r.clock.Now(),
		Ticks:       r.scheduler.Ticks(),
		Tasks:       r.scheduler.Report(),
		Accounts:    accounts,
		SystemUsage: system,
		CacheStats:  r.cache.Stats(),
		Cache:       r.cache.Report(),
	}
	for _, container := range r.Containers() {
		snapshot.Containers = append(snapshot.Containers, ContainerReport{
			AppID:        container.AppID,
			Name:         container.Name,
			Version:      container.Version,
			Digest:       container.Digest.String(),
			Task:         container.Task,
			Capabilities: container.Capabilities.Names(),
		})
	}
	return snapshot
}

// Snapshot file framing: magic, format version, compression flag,
// uncompressed length, payload. Payload is deterministic CBOR,
// lz4-block-compressed unless incompressible.
var snapshotMagic = []byte("AKSN")

const (
	snapshotVersion = 1

	snapshotRaw = 0
	snapshotLZ4 = 1
)

// WriteSnapshot takes a snapshot and writes it atomically: temporary
// file in the target directory, fsync, rename. Readers never see a
// partial snapshot.
func (r *Runtime) WriteSnapshot(path string) error {
	payload, err := codec.Marshal(r.Snapshot())
	if err != nil {
		return fmt.Errorf("runtime: encoding snapshot: %w", err)
	}

	frame := make([]byte, 0, len(payload)+10)
	frame = append(frame, snapshotMagic...)
	frame = append(frame, snapshotVersion)

	compressed := make([]byte, lz4.CompressBlockBound(len(payload)))
	written, err := lz4.CompressBlock(payload, compressed, nil)
	if err != nil {
		return fmt.Errorf("runtime: compressing snapshot: %w", err)
	}
	if written == 0 || written >= len(payload) {
		frame = append(frame, snapshotRaw)
	} else {
		frame = append(frame, snapshotLZ4)
	}
	frame = binary.LittleEndian.AppendUint32(frame, uint32(len(payload)))
	if frame[5] == snapshotLZ4 {
		frame = append(frame, compressed[:written]...)
	} else {
		frame = append(frame, payload...)
	}

	if err := writeFileAtomic(path, frame); err != nil {
		return fmt.Errorf("runtime: writing snapshot: %w", err)
	}
	r.logger.Info("wrote snapshot",
		"path", path,
		"size", len(frame),
		"containers", len(r.Containers()),
	)
	return nil
}

// ReadSnapshot reads and decodes a snapshot file.
func ReadSnapshot(path string) (*Snapshot, error) {
	frame, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(frame) < 10 || !bytes.Equal(frame[:4], snapshotMagic) {
		return nil, fmt.Errorf("runtime: %s is not a snapshot file", path)
	}
	if frame[4] != snapshotVersion {
		return nil, fmt.Errorf("runtime: %s: unsupported snapshot version %d", path, frame[4])
	}
	compression := frame[5]
	size := binary.LittleEndian.Uint32(frame[6:10])
	body := frame[10:]

	var payload []byte
	switch compression {
	case snapshotRaw:
		payload = body
	case snapshotLZ4:
		payload = make([]byte, size)
		read, err := lz4.UncompressBlock(body, payload)
		if err != nil {
			return nil, fmt.Errorf("runtime: %s: decompressing: %w", path, err)
		}
		if read != int(size) {
			return nil, fmt.Errorf("runtime: %s: got %d bytes, expected %d", path, read, size)
		}
	default:
		return nil, fmt.Errorf("runtime: %s: unknown compression %d", path, compression)
	}

	var snapshot Snapshot
	if err := codec.Unmarshal(payload, &snapshot); err != nil {
		return nil, fmt.Errorf("runtime: %s: decoding: %w", path, err)
	}
	return &snapshot, nil
}

// writeFileAtomic writes data via a temporary file, fsync, and rename
// so readers never see a partial file.
func writeFileAtomic(path string, data []byte) error {
	temporaryPath := path + ".tmp"

	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return err
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return err
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return err
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return err
	}

	// Sync the parent directory so the rename survives power loss.
	if parent, err := os.Open(filepath.Dir(path)); err == nil {
		parent.Sync()
		parent.Close()
	}
	return nil
}
