// Copyright 2026 The CLI Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// Production code takes a [Clock] parameter (or holds one in a struct
// field) instead of calling time.Now directly. Tests inject
// [Fake] and drive time explicitly, which makes TTL edge cases — the
// challenge approved one second after expiry, the grant consumed
// exactly at its deadline — deterministic instead of flaky.
//
//	manager := grant.NewManager(clock.Real(), ...)   // production
//	fake := clock.Fake(time.Unix(1700000000, 0))     // tests
//	fake.Advance(301 * time.Second)
package clock
