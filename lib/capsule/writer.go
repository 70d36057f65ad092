// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package capsule

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"

	"github.com/livecode/capsule/lib/masking"
)

// SpillLimit is how many capsule bytes stay in the primary file when
// generation continues into a spill file. It is a multiple of 4 so
// that every raw word of the capsule lies wholly in one file.
const SpillLimit = 4088

// sourceKind records where a planned section's payload comes from.
type sourceKind uint8

const (
	sourceBuffer sourceKind = iota
	sourceFile
	sourceDigest
)

type plannedSection struct {
	kind   sourceKind
	typ    SectionType
	length uint32
	data   []byte
	file   io.ReaderAt
}

// SectionInfo describes a section registered with a [Writer] or
// dispatched by a [Reader].
type SectionInfo struct {
	Type   SectionType `json:"type"`
	Length uint32      `json:"length"`
}

// Result describes a generated capsule.
type Result struct {
	// Offset is the position in the primary file just past the
	// capsule's last byte there.
	Offset int64 `json:"offset"`

	// Size is the total number of capsule bytes, including alignment
	// padding and the end marker, across both files.
	Size int64 `json:"size"`

	// Spilled is how many of those bytes went to the spill file.
	Spilled int64 `json:"spilled"`

	// Compressed is the length of the deflate stream.
	Compressed int64 `json:"compressed"`

	// Uncompressed is the number of section bytes (headers, payloads
	// and padding) fed to the compressor.
	Uncompressed int64 `json:"uncompressed"`

	// Digest is the MD5 of the uncompressed bytes.
	Digest Digest `json:"digest"`
}

// WriterOption configures a [Writer].
type WriterOption func(*Writer)

// WithSecurer sets the transform applied after compression. The
// default is [masking.Plain].
func WithSecurer(securer masking.Securer) WriterOption {
	return func(w *Writer) {
		w.securer = securer
	}
}

// WithWriterLogger sets the logger used for debug tracing of
// generation.
func WithWriterLogger(logger *slog.Logger) WriterOption {
	return func(w *Writer) {
		w.logger = logger
	}
}

// Writer assembles a capsule. Sections are emitted by [Writer.Generate]
// in the order they were registered. A Writer is single use.
type Writer struct {
	sections  []*plannedSection
	securer   masking.Securer
	logger    *slog.Logger
	generated bool
}

// NewWriter returns an empty writer.
func NewWriter(options ...WriterOption) *Writer {
	w := &Writer{
		securer: masking.Plain{},
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, option := range options {
		option(w)
	}
	return w
}

func (w *Writer) check(t SectionType, length int64) error {
	if w.generated {
		return ErrGenerated
	}
	if t > MaxSectionType {
		return fmt.Errorf("section type %d exceeds %d", uint32(t), uint32(MaxSectionType))
	}
	if length > math.MaxUint32 {
		return fmt.Errorf("%w: %s section of %d bytes", ErrSectionTooLarge, t, length)
	}
	return nil
}

// Define registers a section whose payload is a copy of data.
func (w *Writer) Define(t SectionType, data []byte) error {
	if err := w.check(t, int64(len(data))); err != nil {
		return err
	}
	w.sections = append(w.sections, &plannedSection{
		kind:   sourceBuffer,
		typ:    t,
		length: uint32(len(data)),
		data:   bytes.Clone(data),
	})
	return nil
}

// DefineString registers a section holding text followed by a NUL.
func (w *Writer) DefineString(t SectionType, text string) error {
	data := make([]byte, len(text)+1)
	copy(data, text)
	return w.Define(t, data)
}

// DefineFromFile registers a section whose payload is the whole of
// file, measured now and read during Generate. The file stays owned
// by the caller, who must keep it open until Generate returns.
func (w *Writer) DefineFromFile(t SectionType, file *os.File) error {
	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("measuring %s: %w", file.Name(), err)
	}
	return w.DefineFromReaderAt(t, file, info.Size())
}

// DefineFromReaderAt registers a section whose payload is the first
// size bytes of source, read during Generate.
func (w *Writer) DefineFromReaderAt(t SectionType, source io.ReaderAt, size int64) error {
	if size < 0 {
		return fmt.Errorf("negative section size %d", size)
	}
	if err := w.check(t, size); err != nil {
		return err
	}
	w.sections = append(w.sections, &plannedSection{
		kind:   sourceFile,
		typ:    t,
		length: uint32(size),
		file:   source,
	})
	return nil
}

// Checksum registers a Digest section. Its payload is computed during
// Generate as the MD5 of every byte emitted before its header.
func (w *Writer) Checksum() error {
	if err := w.check(SectionDigest, md5Size); err != nil {
		return err
	}
	w.sections = append(w.sections, &plannedSection{
		kind:   sourceDigest,
		typ:    SectionDigest,
		length: md5Size,
	})
	return nil
}

const md5Size = 16

// Sections lists the registered sections in emission order.
func (w *Writer) Sections() []SectionInfo {
	infos := make([]SectionInfo, len(w.sections))
	for i, section := range w.sections {
		infos[i] = SectionInfo{Type: section.typ, Length: section.length}
	}
	return infos
}

// Generate compresses every registered section into output starting at
// offset, then secures the result. When spill is non-nil, the first
// [SpillLimit] capsule bytes go to output and the rest to spill from
// its start. The registered sections are consumed: a second Generate
// returns [ErrGenerated].
func (w *Writer) Generate(output masking.Target, offset int64, spill masking.Target) (Result, error) {
	if w.generated {
		return Result{}, ErrGenerated
	}
	w.generated = true
	defer w.release()

	target := &splitTarget{primary: output, start: offset, limit: math.MaxInt64}
	if spill != nil {
		target.limit = SpillLimit
		target.spill = spill
	}

	f, err := newFilter(target, 0)
	if err != nil {
		return Result{}, err
	}

	var generated int64
	var padding [3]byte
	for _, section := range w.sections {
		header := AppendHeader(nil, section.typ, section.length)
		if section.kind == sourceDigest {
			digest := f.sum()
			header = append(header, digest[:]...)
		}
		if _, err := f.Write(header); err != nil {
			return Result{}, err
		}
		generated += int64(len(header))

		switch section.kind {
		case sourceBuffer:
			if _, err := f.Write(section.data); err != nil {
				return Result{}, err
			}
			generated += int64(section.length)
		case sourceFile:
			if err := f.writeFrom(section.file, int64(section.length)); err != nil {
				return Result{}, fmt.Errorf("%s section: %w", section.typ, err)
			}
			generated += int64(section.length)
		}

		if pad := PaddedLength(generated) - generated; pad > 0 {
			if _, err := f.Write(padding[:pad]); err != nil {
				return Result{}, err
			}
			generated += pad
		}
		w.logger.Debug("capsule section generated",
			"type", section.typ,
			"length", section.length,
			"total", generated,
		)
	}

	compressed, digest, err := f.finish()
	if err != nil {
		return Result{}, err
	}
	end, err := w.securer.Secure(target, 0, compressed, digest)
	if err != nil {
		return Result{}, fmt.Errorf("securing capsule: %w", err)
	}

	result := Result{
		Offset:       offset + end,
		Size:         end,
		Compressed:   compressed,
		Uncompressed: generated,
		Digest:       digest,
	}
	if spill != nil && end > SpillLimit {
		result.Offset = offset + SpillLimit
		result.Spilled = end - SpillLimit
	}
	w.logger.Debug("capsule generated",
		"sections", len(w.sections),
		"uncompressed", generated,
		"compressed", compressed,
		"size", end,
		"spilled", result.Spilled,
	)
	return result, nil
}

// Discard releases the registered sections without generating.
func (w *Writer) Discard() {
	w.generated = true
	w.release()
}

func (w *Writer) release() {
	w.sections = nil
}

// splitTarget maps logical capsule offsets onto the primary file from
// start, switching to the spill file at limit.
type splitTarget struct {
	primary masking.Target
	start   int64
	limit   int64
	spill   masking.Target
}

func (s *splitTarget) WriteAt(p []byte, offset int64) (int, error) {
	return s.split(p, offset, masking.Target.WriteAt)
}

func (s *splitTarget) ReadAt(p []byte, offset int64) (int, error) {
	return s.split(p, offset, masking.Target.ReadAt)
}

func (s *splitTarget) split(p []byte, offset int64, op func(masking.Target, []byte, int64) (int, error)) (int, error) {
	done := 0
	if offset < s.limit {
		head := p[:min(int64(len(p)), s.limit-offset)]
		n, err := op(s.primary, head, s.start+offset)
		done += n
		if err != nil {
			return done, err
		}
	}
	if done < len(p) {
		n, err := op(s.spill, p[done:], offset+int64(done)-s.limit)
		done += n
		if err != nil {
			return done, err
		}
	}
	return done, nil
}
