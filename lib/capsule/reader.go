// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package capsule

import (
	"bytes"
	"crypto/md5"
	"errors"
	"fmt"
	"hash"
	"io"
	"log/slog"
	"os"

	"github.com/livecode/capsule/lib/masking"
)

const (
	// DefaultBufferLimit is the largest section payload a reader
	// buffers whole while its input is still incomplete.
	DefaultBufferLimit = 1 << 20

	// MaxTrailer is the most raw bytes a capsule may carry after the
	// end of its compressed stream: alignment padding plus the 4-byte
	// end marker written when the capsule is secured.
	MaxTrailer = 7

	// readChunk bounds each pull of raw bytes from the input queue.
	readChunk = 4096

	// bufferGranule is the rounding applied when the output buffer
	// grows.
	bufferGranule = 4096
)

// Section is what a [Handler] receives for each dispatched section.
type Section struct {
	// Digest is the MD5 of every decompressed byte preceding this
	// section's header.
	Digest Digest

	Type   SectionType
	Length uint32

	// Payload yields exactly Length bytes. It is valid only until the
	// handler returns.
	Payload Payload
}

// Handler is called once per section, in stream order. A non-nil
// return aborts processing and is returned from [Reader.Process].
type Handler func(Section) error

// Payload gives a handler access to a section's bytes. Besides
// sequential reads it supports a single byte of pushback through
// UnreadByte (or Seek(-1, io.SeekCurrent)) and forward seeks. A
// payload streamed from the decompressor cannot seek backwards past
// the pushback byte.
type Payload interface {
	io.Reader
	io.ByteScanner
	io.Seeker
}

// ReaderOption configures a [Reader].
type ReaderOption func(*Reader)

// WithUnmasker sets the transform applied to raw bytes before they
// reach the decompressor. The default leaves them unchanged.
func WithUnmasker(unmasker masking.Unmasker) ReaderOption {
	return func(r *Reader) {
		r.unmasker = unmasker
	}
}

// WithBufferLimit sets the largest section payload buffered whole
// while input is incomplete. Larger sections block the reader until
// the final fill.
func WithBufferLimit(limit int) ReaderOption {
	return func(r *Reader) {
		r.limit = limit
	}
}

// WithLogger sets the logger used for debug tracing of section
// dispatch.
func WithLogger(logger *slog.Logger) ReaderOption {
	return func(r *Reader) {
		r.logger = logger
	}
}

// Reader consumes a capsule incrementally. The typical loop is:
//
//	reader := capsule.NewReader(handler)
//	defer reader.Close()
//	for chunk := range chunks {
//		reader.Fill(chunk, last)
//		if err := reader.Process(); err != nil { ... }
//	}
//
// A Reader is not safe for concurrent use. Once Process or a fill
// returns an error, every later call returns the same error.
type Reader struct {
	handler  Handler
	unmasker masking.Unmasker
	limit    int
	logger   *slog.Logger

	buckets bucketList

	// stage holds raw input pulled from the buckets and unmasked;
	// position counts the raw bytes pulled so far and addresses the
	// unmasking transform.
	stage    []byte
	position int64
	trailer  int64

	inflater *inflater
	digest   hash.Hash
	snapshot Digest

	// output holds decompressed bytes of the section being assembled;
	// frontier is how many are valid.
	output   []byte
	frontier int

	blocked  bool
	epilogue bool
	closed   bool
	err      error

	sections int
}

// NewReader returns a reader that dispatches sections to handler.
func NewReader(handler Handler, options ...ReaderOption) *Reader {
	r := &Reader{
		handler:  handler,
		unmasker: masking.Plain{},
		limit:    DefaultBufferLimit,
		logger:   slog.New(slog.DiscardHandler),
		stage:    make([]byte, readChunk),
		inflater: newInflater(),
		digest:   md5.New(),
		output:   make([]byte, bufferGranule),
	}
	for _, option := range options {
		option(r)
	}
	r.takeSnapshot()
	return r
}

// Fill queues a private copy of data. finished marks data as the last
// of the input.
func (r *Reader) Fill(data []byte, finished bool) error {
	if err := r.acceptFill(); err != nil {
		return err
	}
	r.buckets.push(&bucket{
		kind:   bucketOwned,
		data:   bytes.Clone(data),
		length: int64(len(data)),
	})
	r.buckets.complete = finished
	return nil
}

// FillNoCopy queues data without copying it. The reader never writes
// to data, but the caller must keep it unchanged until the reader has
// consumed it, which is guaranteed after Close or once Process has
// returned with [Reader.Done] true.
func (r *Reader) FillNoCopy(data []byte, finished bool) error {
	if err := r.acceptFill(); err != nil {
		return err
	}
	r.buckets.push(&bucket{
		kind:   bucketForeign,
		data:   data,
		length: int64(len(data)),
	})
	r.buckets.complete = finished
	return nil
}

// FillFromFile queues the bytes of the named file from offset to its
// end. The file stays open until those bytes are consumed.
func (r *Reader) FillFromFile(path string, offset int64, finished bool) error {
	if err := r.acceptFill(); err != nil {
		return err
	}
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening capsule input: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("opening capsule input: %w", err)
	}
	if offset < 0 || offset > info.Size() {
		file.Close()
		return fmt.Errorf("opening capsule input %s: offset %d outside file of %d bytes", path, offset, info.Size())
	}
	r.buckets.push(&bucket{
		kind:   bucketFile,
		file:   file,
		offset: offset,
		length: info.Size() - offset,
	})
	r.buckets.complete = finished
	return nil
}

func (r *Reader) acceptFill() error {
	switch {
	case r.closed:
		return ErrClosed
	case r.err != nil:
		return r.err
	case r.buckets.complete:
		return ErrInputComplete
	}
	return nil
}

// Process decompresses as much queued input as it can and dispatches
// every section that becomes complete. It returns nil when it needs
// more input; once the final fill has been processed, a nil return
// means the capsule was consumed in full.
func (r *Reader) Process() error {
	if r.closed {
		return ErrClosed
	}
	if r.err != nil {
		return r.err
	}
	if err := r.process(); err != nil {
		r.err = err
		return err
	}
	return nil
}

func (r *Reader) process() error {
	if r.blocked {
		if !r.buckets.complete {
			return nil
		}
		r.blocked = false
	}

	for {
		if err := r.ensure(4); err != nil {
			return err
		}
		if r.frontier < 4 {
			break
		}
		if r.epilogue {
			return fmt.Errorf("%w: section header after epilogue", ErrTrailingData)
		}

		headerSize := 4
		if extended(r.output) {
			headerSize = 8
			if err := r.ensure(8); err != nil {
				return err
			}
			if r.frontier < 8 {
				break
			}
		}
		header, err := DecodeHeader(r.output[:headerSize])
		if err != nil {
			return err
		}

		if !r.buckets.complete {
			if int64(header.Length) > int64(r.limit) {
				r.blocked = true
				r.logger.Debug("capsule section exceeds buffer limit, waiting for final input",
					"type", header.Type,
					"length", header.Length,
					"limit", r.limit,
				)
				break
			}
			required := int(PaddedLength(int64(headerSize) + int64(header.Length)))
			if err := r.ensure(required); err != nil {
				return err
			}
			if r.frontier < required {
				break
			}
			payload := bytes.NewReader(r.output[headerSize : headerSize+int(header.Length)])
			if err := r.dispatch(header, payload); err != nil {
				return err
			}
		} else {
			copy(r.output, r.output[headerSize:r.frontier])
			r.frontier -= headerSize
			payload := &streamPayload{reader: r, length: int64(header.Length)}
			err := r.dispatch(header, payload)
			payload.reader = nil
			if err != nil {
				return err
			}
			if err := payload.finish(r); err != nil {
				return err
			}
		}

		r.frontier = 0
		r.takeSnapshot()
		if header.Type == SectionEpilogue {
			r.epilogue = true
		}
	}

	if r.buckets.complete && (r.frontier != 0 || !r.buckets.empty()) {
		return fmt.Errorf("%w: %d decompressed and %d raw bytes left over", ErrTruncated, r.frontier, r.buckets.available)
	}
	return nil
}

func (r *Reader) dispatch(header Header, payload Payload) error {
	r.sections++
	r.logger.Debug("capsule section",
		"type", header.Type,
		"length", header.Length,
		"streamed", r.buckets.complete,
	)
	return r.handler(Section{
		Digest:  r.snapshot,
		Type:    header.Type,
		Length:  header.Length,
		Payload: payload,
	})
}

func (r *Reader) takeSnapshot() {
	r.digest.Sum(r.snapshot[:0])
}

// ensure tries to make the first n bytes of the output buffer valid,
// growing it as needed. It stops short without error when input runs
// out.
func (r *Reader) ensure(n int) error {
	if n <= r.frontier {
		return nil
	}
	if n > len(r.output) {
		grown := make([]byte, (n+bufferGranule-1)/bufferGranule*bufferGranule)
		copy(grown, r.output[:r.frontier])
		r.output = grown
	}
	filled, err := r.read(r.output[r.frontier:n])
	r.frontier += filled
	return err
}

// read decompresses into p, pulling raw input from the buckets as the
// decompressor asks for it. Every decompressed byte is added to the
// running digest. It returns fewer than len(p) bytes when input runs
// out or the stream ends.
func (r *Reader) read(p []byte) (int, error) {
	filled := 0
	for filled < len(p) {
		n, err := r.inflater.inflate(p[filled:])
		r.digest.Write(p[filled : filled+n])
		filled += n
		if err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return filled, fmt.Errorf("%w: compressed stream ends early", ErrTruncated)
			}
			return filled, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if r.inflater.done() {
			if err := r.drainTrailer(); err != nil {
				return filled, err
			}
			break
		}
		if filled == len(p) {
			break
		}
		staged, err := r.pull()
		if err != nil {
			return filled, err
		}
		if !staged {
			break
		}
	}
	return filled, nil
}

// pull stages the next raw chunk for the decompressor. It reports
// false when nothing could be staged and the decompressor must wait
// for another fill.
func (r *Reader) pull() (bool, error) {
	if !r.inflater.hungry() {
		return false, nil
	}
	n, err := r.buckets.read(r.stage)
	if err != nil {
		return false, err
	}
	if n > 0 {
		r.unmasker.Unmask(r.position, r.stage[:n])
		r.position += int64(n)
		r.inflater.input = r.stage[:n]
	}
	if r.buckets.complete && r.buckets.available < 4 {
		r.inflater.final = true
		return true, nil
	}
	return n > 0, nil
}

// drainTrailer consumes raw bytes that follow the end of the
// compressed stream.
func (r *Reader) drainTrailer() error {
	r.trailer += int64(len(r.inflater.input))
	r.inflater.input = nil
	for r.buckets.available >= 4 {
		n, err := r.buckets.read(r.stage)
		if err != nil {
			return err
		}
		r.position += int64(n)
		r.trailer += int64(n)
	}
	if r.trailer > MaxTrailer {
		return fmt.Errorf("%w: %d raw bytes after compressed stream", ErrTrailingData, r.trailer)
	}
	return nil
}

// Blocked reports whether the reader is waiting for the final fill
// because the next section exceeds the buffer limit.
func (r *Reader) Blocked() bool {
	return r.blocked
}

// Done reports whether the final fill has been processed without
// error and every queued byte consumed.
func (r *Reader) Done() bool {
	return r.err == nil && r.buckets.complete && r.buckets.empty() && r.frontier == 0 && r.inflater.done()
}

// Sections returns how many sections have been dispatched.
func (r *Reader) Sections() int {
	return r.sections
}

// Consumed returns how many raw bytes have been pulled from the input.
func (r *Reader) Consumed() int64 {
	return r.position
}

// Close releases every queued input and stops the decompressor.
// Foreign buffers given to FillNoCopy are no longer referenced after
// Close returns. Close is idempotent.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.inflater.close()
	r.output = nil
	r.stage = nil
	return r.buckets.clear()
}
