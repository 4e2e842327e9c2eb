// Copyright 2026 The Akira Authors
// SPDX-License-Identifier: Apache-2.0

// Package manifest extracts application manifests from WASM binaries.
//
// A manifest declares the app's identity, the capabilities it wants,
// and its memory quota. Apps embed it as JSON in a custom section
// named ".akira.manifest"; a standalone JSONC file (JSON extended with
// comments and trailing commas) serves as the authoring format and the
// fallback for binaries built without the section. [Load] tries the
// section first, then the file.
//
// Manifest parsing is deliberately forgiving: unknown JSON keys are
// ignored and unknown capability names grant nothing, so an app built
// against a newer capability vocabulary still installs on an older
// kernel with the permissions the kernel understands.
package manifest
