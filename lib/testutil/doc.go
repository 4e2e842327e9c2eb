// Copyright 2026 The Akira Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides small helpers shared across kernel tests:
// channel receive/send assertions with timeout safety valves.
package testutil
