// Copyright 2026 The CLI Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// cli-gateway-system is the privileged daemon: it listens on the
// bridge socket, gates every request through the policy engine, and
// executes approved actions against the host.
package main
