// Copyright 2026 The CLI Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret provides a memory-safe buffer for sensitive data.
//
// The bridge holds one long-lived secret per enrolled owner: the TOTP
// shared secret. Those live in [Buffer] values — memory allocated
// outside the Go heap via mmap(MAP_ANONYMOUS), locked into physical
// RAM via mlock (never swapped), excluded from core dumps via
// madvise(MADV_DONTDUMP), and zeroed on Close.
//
// Transient copies (base32 decode scratch, file parse buffers) should
// be wiped with [Zero] as soon as the durable Buffer copy exists.
// Copies that pass through Go strings during JSON parsing are on the
// heap and will be collected eventually — unavoidable with
// encoding/json — so the Buffer is the durable copy and the state
// file itself is the 0600 artifact of record.
package secret
