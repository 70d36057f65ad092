// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package capsule

import "errors"

var (
	// ErrCorrupt reports a compressed stream the decompressor rejected.
	ErrCorrupt = errors.New("capsule: corrupt compressed stream")

	// ErrTruncated reports input that ended before the capsule did:
	// a partial header or payload, or raw bytes that do not fill a
	// whole 4-byte word.
	ErrTruncated = errors.New("capsule: truncated input")

	// ErrTrailingData reports decompressed bytes after the epilogue,
	// or more raw bytes after the end of the compressed stream than
	// a trailer can hold.
	ErrTrailingData = errors.New("capsule: data after end of capsule")

	// ErrClosed reports use of a closed reader or of a payload whose
	// section has already been dispatched.
	ErrClosed = errors.New("capsule: closed")

	// ErrInputComplete reports a fill after the final fill.
	ErrInputComplete = errors.New("capsule: input already complete")

	// ErrGenerated reports a second Generate on the same writer.
	ErrGenerated = errors.New("capsule: writer already generated")

	// ErrSeek reports a backward or out-of-range seek on a streamed
	// payload.
	ErrSeek = errors.New("capsule: invalid seek")

	// ErrPushback reports an UnreadByte with no byte to give back, or
	// a second UnreadByte without an intervening read.
	ErrPushback = errors.New("capsule: nothing to unread")

	// ErrSectionTooLarge reports a section payload that cannot be
	// described by a 32-bit length.
	ErrSectionTooLarge = errors.New("capsule: section too large")

	// ErrShortHeader reports a header decode on too few bytes.
	ErrShortHeader = errors.New("capsule: short section header")
)
