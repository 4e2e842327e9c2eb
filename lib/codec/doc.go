// Copyright 2026 The Akira Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the CBOR encoding used for kernel state
// snapshots.
//
// Encoding is Core Deterministic (RFC 8949 §4.2), so the same kernel
// state always produces identical bytes. Decoding ignores unknown
// fields, letting older tools read snapshots written by newer kernels.
//
// Consumers import this package rather than fxamacker/cbor directly so
// the encoder configuration lives in exactly one place.
package codec
