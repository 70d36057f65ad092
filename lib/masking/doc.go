// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package masking secures a generated capsule in place and undoes the
// transform when the capsule is read back.
//
// Securing runs after compression, over the compressed bytes, through
// a [Securer]. Reading runs the matching [Unmasker] over raw bytes
// before they reach the decompressor, addressed by their position
// relative to the start of the capsule, so it works on any split of
// the input.
//
// Every Securer leaves the capsule 4-byte aligned and followed by a
// 4-byte zero end marker, so the reader sees at most seven trailing
// raw bytes after the compressed stream.
//
// Two implementations are provided:
//
//   - [Plain] aligns and marks the capsule but leaves its bytes as
//     they are.
//   - [XOR] XORs the compressed bytes with a keystream derived from a
//     masking key via HKDF-SHA256.
//
// [XOR] keeps its keystream in a [secret.Buffer] and must be closed.
package masking
