// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package capsule implements the standalone capsule container: a
// sequence of typed, length-prefixed sections compressed as a single
// raw deflate stream, with an optional masking layer applied to the
// compressed bytes after generation.
//
// A capsule is produced by [Writer]: callers register sections with
// [Writer.Define], [Writer.DefineFromFile] and [Writer.Checksum], then
// call [Writer.Generate] once to compress the sections into a target
// file (optionally continuing into a spill file) and mask the result
// with a [masking.Securer].
//
// A capsule is consumed by [Reader]: callers feed raw bytes in
// arbitrary chunks with [Reader.Fill], [Reader.FillNoCopy] or
// [Reader.FillFromFile] and call [Reader.Process] after each fill. The
// reader decompresses only as much as it needs, dispatches each
// complete section to the [Handler] given to [NewReader], and keeps an
// MD5 digest of every decompressed byte so that a Digest section can
// be checked against the snapshot delivered with it.
//
// While the input is still arriving a section must be buffered whole
// before dispatch, up to the reader's buffer limit (1 MiB by default).
// A larger section blocks the reader until the final fill arrives, at
// which point the reader switches to streaming the payload directly
// from the decompressor through a forward-only [Payload].
//
// Wire format, all integers big-endian:
//
//	header word 0: bit 31 extension flag, bits 24-30 type[0:7),
//	               bits 0-23 length[0:24)
//	header word 1 (present when the extension flag is set):
//	               bits 8-31 type[7:31), bits 0-7 length[24:32)
//	payload:       length bytes
//	padding:       zero bytes up to the next multiple of 4
//
// A Digest section carries the 16-byte MD5 of every decompressed byte
// that precedes its header. An Epilogue section terminates the
// capsule; any decompressed bytes after it are an error.
package capsule
