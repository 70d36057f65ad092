// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package capsule

import (
	"errors"
	"io"
	"iter"

	"github.com/klauspost/compress/flate"
)

// inflateChunk is the decoder's output granule. Decoded bytes wait in
// an internal buffer of this size until a caller asks for them.
const inflateChunk = 4096

var errInflaterStopped = errors.New("inflater stopped")

// inflater decodes a raw deflate stream whose input arrives in pieces.
//
// flate.NewReader pulls input through io.ByteReader and treats any
// read error as final, so it cannot be paused when input runs dry.
// The inflater runs the flate reader as a pull coroutine instead:
// when the decoder asks for input and none is staged, the coroutine
// yields with starved set, and the next call to inflate resumes it
// exactly where it stopped. The coroutine only ever runs while the
// caller is blocked in next, so no state here is shared concurrently.
type inflater struct {
	// input is the staged, unmasked raw input not yet consumed by the
	// decoder. final means no input will be staged after it.
	input []byte
	final bool

	// starved is set when the coroutine yielded for want of input.
	starved bool

	buffer []byte
	ready  []byte

	finished bool
	eof      bool
	err      error
	stopped  bool

	yield func(struct{}) bool
	next  func() (struct{}, bool)
	stop  func()
}

func newInflater() *inflater {
	f := &inflater{buffer: make([]byte, inflateChunk)}
	f.next, f.stop = iter.Pull(iter.Seq[struct{}](f.run))
	return f
}

func (f *inflater) run(yield func(struct{}) bool) {
	f.yield = yield
	decoder := flate.NewReader(f)
	defer decoder.Close()
	for {
		n, err := decoder.Read(f.buffer)
		f.ready = f.buffer[:n]
		if err == io.EOF {
			f.eof = true
			return
		}
		if err != nil {
			if !f.stopped {
				f.err = err
			}
			return
		}
		if !yield(struct{}{}) {
			return
		}
	}
}

// Read feeds staged input to the decoder.
func (f *inflater) Read(p []byte) (int, error) {
	if err := f.await(); err != nil {
		return 0, err
	}
	n := copy(p, f.input)
	f.input = f.input[n:]
	return n, nil
}

// ReadByte feeds staged input to the decoder one byte at a time.
func (f *inflater) ReadByte() (byte, error) {
	if err := f.await(); err != nil {
		return 0, err
	}
	c := f.input[0]
	f.input = f.input[1:]
	return c, nil
}

// await suspends the coroutine until input is staged. It returns
// io.EOF once the final input has been consumed.
func (f *inflater) await() error {
	for len(f.input) == 0 {
		if f.stopped {
			return errInflaterStopped
		}
		if f.final {
			return io.EOF
		}
		f.starved = true
		if !f.yield(struct{}{}) {
			f.stopped = true
			return errInflaterStopped
		}
	}
	return nil
}

// inflate decodes into p until p is full, the stream ends, or the
// decoder needs input that has not been staged. It returns the number
// of bytes written to p.
func (f *inflater) inflate(p []byte) (int, error) {
	filled := 0
	for {
		n := copy(p[filled:], f.ready)
		f.ready = f.ready[n:]
		filled += n
		if filled == len(p) || f.finished {
			break
		}
		f.starved = false
		if _, ok := f.next(); !ok {
			f.finished = true
			continue
		}
		if f.starved {
			break
		}
	}
	return filled, f.err
}

// done reports whether the stream has ended and every decoded byte has
// been handed out.
func (f *inflater) done() bool {
	return f.eof && len(f.ready) == 0
}

// hungry reports whether the decoder is waiting for more input.
func (f *inflater) hungry() bool {
	return !f.finished && len(f.input) == 0 && !f.final
}

func (f *inflater) close() {
	f.stop()
	f.input = nil
	f.ready = nil
}
