// Copyright 2026 The CLI Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// cli-gateway-sys is the operator CLI for the gateway bridge: TOTP
// enrollment, action planning and approval, and action execution over
// the bridge socket.
package main
