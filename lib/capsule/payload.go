// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package capsule

import (
	"fmt"
	"io"
)

// streamPayload reads a section straight from the decompressor once
// the reader's input is complete. Bytes already decompressed into the
// reader's output buffer are delivered first.
//
// offset is the position seen by the handler; pulled counts bytes
// taken from the decompressor. They differ by one while a byte is
// pushed back.
type streamPayload struct {
	reader *Reader
	length int64
	offset int64
	pulled int64

	last     byte
	hasLast  bool
	pushback bool
}

func (s *streamPayload) Read(p []byte) (int, error) {
	if s.reader == nil {
		return 0, ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}
	remaining := s.length - s.offset
	if remaining <= 0 {
		return 0, io.EOF
	}
	want := int(min(int64(len(p)), remaining))

	n := 0
	if s.pushback {
		p[0] = s.last
		s.pushback = false
		n = 1
	}
	var err error
	if n < want {
		var pulled int
		pulled, err = s.pull(s.reader, p[n:want])
		n += pulled
	}
	if n > 0 {
		s.last = p[n-1]
		s.hasLast = true
	}
	s.offset += int64(n)
	return n, err
}

func (s *streamPayload) ReadByte() (byte, error) {
	var one [1]byte
	if _, err := io.ReadFull(s, one[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		return 0, err
	}
	return one[0], nil
}

// UnreadByte pushes the most recently read byte back. Only one byte
// can be pending at a time.
func (s *streamPayload) UnreadByte() error {
	if s.reader == nil {
		return ErrClosed
	}
	if s.pushback || !s.hasLast {
		return ErrPushback
	}
	s.pushback = true
	s.offset--
	return nil
}

// Seek moves forward within the payload. Seek(-1, io.SeekCurrent) is
// the one backward move allowed and behaves like UnreadByte.
func (s *streamPayload) Seek(offset int64, whence int) (int64, error) {
	if s.reader == nil {
		return 0, ErrClosed
	}
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		if offset == -1 {
			if err := s.UnreadByte(); err != nil {
				return s.offset, err
			}
			return s.offset, nil
		}
		target = s.offset + offset
	case io.SeekEnd:
		target = s.length + offset
	default:
		return s.offset, fmt.Errorf("%w: whence %d", ErrSeek, whence)
	}
	if target < s.offset || target > s.length {
		return s.offset, fmt.Errorf("%w: offset %d outside [%d, %d]", ErrSeek, target, s.offset, s.length)
	}
	skip := target - s.offset
	if skip > 0 && s.pushback {
		s.pushback = false
		s.offset++
		skip--
	}
	if err := s.discard(s.reader, skip); err != nil {
		return s.offset, err
	}
	s.offset += skip
	s.hasLast = false
	return s.offset, nil
}

// Tell returns the current position within the payload.
func (s *streamPayload) Tell() int64 {
	return s.offset
}

// pull fills p from the reader's leftover output, then from the
// decompressor. Running out of decompressed bytes before p is full
// means the capsule is truncated.
func (s *streamPayload) pull(r *Reader, p []byte) (int, error) {
	n := 0
	if s.pulled < int64(r.frontier) {
		n = copy(p, r.output[s.pulled:r.frontier])
	}
	if n < len(p) {
		m, err := r.read(p[n:])
		n += m
		if err == nil && n < len(p) {
			err = fmt.Errorf("%w: section payload ends after %d bytes", ErrTruncated, s.pulled+int64(n))
		}
		s.pulled += int64(n)
		return n, err
	}
	s.pulled += int64(n)
	return n, nil
}

// discard pulls and drops n bytes.
func (s *streamPayload) discard(r *Reader, n int64) error {
	var scratch [readChunk]byte
	for n > 0 {
		chunk := int(min(n, int64(len(scratch))))
		if _, err := s.pull(r, scratch[:chunk]); err != nil {
			return err
		}
		n -= int64(chunk)
	}
	return nil
}

// finish skips whatever the handler left unread, including the
// section's padding, so that the next header is at the start of the
// decompressed stream.
func (s *streamPayload) finish(r *Reader) error {
	return s.discard(r, PaddedLength(s.length)-s.pulled)
}
