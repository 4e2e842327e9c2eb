// Copyright 2026 The Akira Authors
// SPDX-License-Identifier: Apache-2.0

// Package modhash provides BLAKE3 content hashing for module binaries.
//
// The kernel identifies a compiled module by the digest of the binary
// it was loaded from, not by name: two applications shipping the same
// binary share one cache entry, and a reinstalled application with a
// changed binary gets a fresh one. The app store records the digest at
// install time so later integrity checks can detect storage corruption.
//
// The API surface is small:
//
//   - [Sum] / [SumFile] -- digest an in-memory binary or a file
//   - [Digest.String] / [Parse] -- canonical hex representation
//
// This package has no dependencies on other Akira packages.
package modhash
