// Copyright 2026 The Akira Authors
// SPDX-License-Identifier: Apache-2.0

package resource

// Kind identifies one tracked resource type.
type Kind int

// Tracked resource kinds.
const (
	Memory Kind = iota // heap memory, bytes
	CPUTime            // CPU time, microseconds
	Storage            // persistent storage, bytes
	NetworkTX          // network transmit, bytes
	NetworkRX          // network receive, bytes
	FileHandles        // open file handles
	Sockets            // open sockets

	kindCount
)

// String returns the snake_case name used in logs and snapshots.
func (k Kind) String() string {
	switch k {
	case Memory:
		return "memory"
	case CPUTime:
		return "cpu_time"
	case Storage:
		return "storage"
	case NetworkTX:
		return "network_tx"
	case NetworkRX:
		return "network_rx"
	case FileHandles:
		return "file_handles"
	case Sockets:
		return "sockets"
	default:
		return "unknown"
	}
}

// Kinds returns every tracked kind, for iteration in reports and tests.
func Kinds() []Kind {
	kinds := make([]Kind, 0, kindCount)
	for k := Kind(0); k < kindCount; k++ {
		kinds = append(kinds, k)
	}
	return kinds
}

// Amounts holds one value per resource kind. It serves as both quota
// (upper bounds) and usage (current consumption); with both the same
// shape, `usage <= quota` is a per-field comparison.
type Amounts struct {
	MemoryBytes    uint64 `cbor:"memory_bytes"`
	CPUTimeMicros  uint64 `cbor:"cpu_time_us"`
	StorageBytes   uint64 `cbor:"storage_bytes"`
	NetworkTXBytes uint64 `cbor:"network_tx_bytes"`
	NetworkRXBytes uint64 `cbor:"network_rx_bytes"`
	FileHandles    uint64 `cbor:"file_handles"`
	Sockets        uint64 `cbor:"sockets"`
}

// Value returns the amount for one kind.
func (a *Amounts) Value(k Kind) uint64 {
	switch k {
	case Memory:
		return a.MemoryBytes
	case CPUTime:
		return a.CPUTimeMicros
	case Storage:
		return a.StorageBytes
	case NetworkTX:
		return a.NetworkTXBytes
	case NetworkRX:
		return a.NetworkRXBytes
	case FileHandles:
		return a.FileHandles
	case Sockets:
		return a.Sockets
	default:
		return 0
	}
}

// set stores the amount for one kind.
func (a *Amounts) set(k Kind, value uint64) {
	switch k {
	case Memory:
		a.MemoryBytes = value
	case CPUTime:
		a.CPUTimeMicros = value
	case Storage:
		a.StorageBytes = value
	case NetworkTX:
		a.NetworkTXBytes = value
	case NetworkRX:
		a.NetworkRXBytes = value
	case FileHandles:
		a.FileHandles = value
	case Sockets:
		a.Sockets = value
	}
}

// DefaultQuota returns the system-wide default quota applied to apps
// registered without an explicit quota.
func DefaultQuota() Amounts {
	return Amounts{
		MemoryBytes:    64 * 1024,
		CPUTimeMicros:  10 * 1000 * 1000,
		StorageBytes:   128 * 1024,
		NetworkTXBytes: 1024 * 1024,
		NetworkRXBytes: 1024 * 1024,
		FileHandles:    8,
		Sockets:        4,
	}
}
