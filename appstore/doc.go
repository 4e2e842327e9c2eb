// Copyright 2026 The Akira Authors
// SPDX-License-Identifier: Apache-2.0

// Package appstore persists installed application binaries.
//
// The store is a single SQLite table keyed by app name. Each row
// carries the app's manifest, its blake3 content digest, and the WASM
// binary compressed with zstd. Get decompresses and re-verifies the
// digest before handing the binary out, so corruption in the database
// surfaces as an error instead of a misbehaving container.
//
// The store is the durable half of app management; the kernel's
// runtime loads binaries from here and keeps no other copy.
package appstore
