// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package capsule

import (
	"fmt"
	"io"
	"os"
)

// bucketKind records who owns a bucket's backing store and how the
// bucket is released.
type bucketKind uint8

const (
	// bucketOwned holds a private copy made by Fill.
	bucketOwned bucketKind = iota

	// bucketForeign references caller memory handed to FillNoCopy.
	// The reader never writes to it and drops the reference as soon
	// as the bytes are consumed.
	bucketForeign

	// bucketFile reads from an open file handed to FillFromFile and
	// closes it once consumed.
	bucketFile
)

// bucket is one queued slice of raw input.
type bucket struct {
	kind   bucketKind
	data   []byte
	file   *os.File
	offset int64
	length int64
}

func (b *bucket) release() error {
	b.data = nil
	if b.kind == bucketFile && b.file != nil {
		err := b.file.Close()
		b.file = nil
		return err
	}
	return nil
}

// bucketList is the FIFO of raw input awaiting decompression. Its
// available count always equals the sum of the queued buckets'
// remaining lengths.
type bucketList struct {
	buckets   []*bucket
	available int64
	complete  bool
}

func (l *bucketList) push(b *bucket) {
	if b.length == 0 {
		b.release()
		return
	}
	l.buckets = append(l.buckets, b)
	l.available += b.length
}

// read drains up to len(p) bytes, rounded down to a multiple of 4,
// from the front of the queue into p. Fully drained buckets are
// released. Reading fewer than four available bytes is a no-op.
func (l *bucketList) read(p []byte) (int, error) {
	total := min(int64(len(p)), l.available) &^ 3
	filled := 0
	for total > 0 {
		b := l.buckets[0]
		amount := min(total, b.length)
		destination := p[filled : filled+int(amount)]
		switch b.kind {
		case bucketFile:
			if _, err := b.file.ReadAt(destination, b.offset); err != nil {
				if err == io.EOF {
					err = io.ErrUnexpectedEOF
				}
				return filled, fmt.Errorf("reading %s at offset %d: %w", b.file.Name(), b.offset, err)
			}
		default:
			copy(destination, b.data[b.offset:b.offset+amount])
		}
		b.offset += amount
		b.length -= amount
		l.available -= amount
		filled += int(amount)
		total -= amount
		if b.length == 0 {
			l.buckets[0] = nil
			l.buckets = l.buckets[1:]
			if err := b.release(); err != nil {
				return filled, fmt.Errorf("releasing input: %w", err)
			}
		}
	}
	if len(l.buckets) == 0 {
		l.buckets = nil
	}
	return filled, nil
}

// empty reports whether any bucket, even a partial word, remains.
func (l *bucketList) empty() bool {
	return len(l.buckets) == 0
}

// clear releases every queued bucket without reading it.
func (l *bucketList) clear() error {
	var first error
	for _, b := range l.buckets {
		if err := b.release(); err != nil && first == nil {
			first = err
		}
	}
	l.buckets = nil
	l.available = 0
	return first
}
