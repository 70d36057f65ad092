// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package capsule

import (
	"bufio"
	"crypto/md5"
	"fmt"
	"hash"
	"io"

	"github.com/klauspost/compress/flate"
)

// filterBuffer is the size of the filter's input staging and of its
// file copy buffer.
const filterBuffer = 64 << 10

// filter is the writer's output pipeline: every byte written is added
// to the running MD5, staged, raw-deflated at the default level and
// written sequentially into the target from its start offset.
type filter struct {
	digest   hash.Hash
	staging  *bufio.Writer
	deflater *flate.Writer
	sink     *countingWriter
	scratch  []byte
}

type countingWriter struct {
	writer  io.Writer
	written int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.writer.Write(p)
	c.written += int64(n)
	return n, err
}

func newFilter(target io.WriterAt, offset int64) (*filter, error) {
	sink := &countingWriter{writer: io.NewOffsetWriter(target, offset)}
	deflater, err := flate.NewWriter(sink, flate.DefaultCompression)
	if err != nil {
		return nil, fmt.Errorf("starting capsule compressor: %w", err)
	}
	return &filter{
		digest:   md5.New(),
		staging:  bufio.NewWriterSize(deflater, filterBuffer),
		deflater: deflater,
		sink:     sink,
	}, nil
}

func (f *filter) Write(p []byte) (int, error) {
	f.digest.Write(p)
	n, err := f.staging.Write(p)
	if err != nil {
		return n, fmt.Errorf("compressing capsule: %w", err)
	}
	return n, nil
}

// writeFrom copies size bytes of source into the filter.
func (f *filter) writeFrom(source io.ReaderAt, size int64) error {
	if f.scratch == nil {
		f.scratch = make([]byte, filterBuffer)
	}
	for offset := int64(0); offset < size; {
		chunk := f.scratch[:min(int64(len(f.scratch)), size-offset)]
		if _, err := source.ReadAt(chunk, offset); err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return fmt.Errorf("reading section source at offset %d: %w", offset, err)
		}
		if _, err := f.Write(chunk); err != nil {
			return err
		}
		offset += int64(len(chunk))
	}
	return nil
}

// sum returns the MD5 of everything written so far without ending
// the running digest.
func (f *filter) sum() Digest {
	var digest Digest
	f.digest.Sum(digest[:0])
	return digest
}

// finish flushes the compressor to the end of the deflate stream and
// returns the number of compressed bytes written along with the final
// digest.
func (f *filter) finish() (int64, Digest, error) {
	if err := f.staging.Flush(); err != nil {
		return 0, Digest{}, fmt.Errorf("compressing capsule: %w", err)
	}
	if err := f.deflater.Close(); err != nil {
		return 0, Digest{}, fmt.Errorf("finishing capsule compression: %w", err)
	}
	return f.sink.written, f.sum(), nil
}
