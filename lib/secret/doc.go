// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret holds key material (masking keys, derived keystreams,
// age identities) in memory that the Go runtime never sees.
//
// [Buffer] memory comes from an anonymous mmap, is locked against
// swapping with mlock, and is excluded from core dumps with
// MADV_DONTDUMP. Close zeroes, unlocks and unmaps it; any access
// after Close panics.
//
//   - [New] allocates a zero-filled buffer
//   - [NewFromBytes] moves bytes into a buffer and zeroes the source
//   - [ReadFromPath] loads a whitespace-trimmed secret from a file or stdin
//   - [WriteToPath] stores a buffer in a file readable only by its owner
//
// Depends on golang.org/x/sys/unix.
package secret
