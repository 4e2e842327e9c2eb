// Copyright 2026 The Akira Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command framework for the akira-appstore tool: a
// [Command] tree with pflag flag parsing, structured help output, and
// typo suggestions for unknown commands and flags.
package cli
