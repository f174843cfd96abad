// Copyright 2026 The CLI Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command dispatch framework for the operator CLI:
// a nested command tree with pflag flag sets, structured help output,
// and typo suggestions for unknown commands and flags.
package cli
