// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package deploy

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/livecode/capsule/lib/masking"
)

// sizeFieldSize is the width of the project and payload size fields.
const sizeFieldSize = 4

// spilledFlag marks a project whose capsule continues in a spill file.
const spilledFlag = 1 << 31

// ProjectHeader is the size field in front of a project.
type ProjectHeader struct {
	// Size is the project size in the primary file, including the
	// size field itself.
	Size uint32 `json:"size"`

	// Spilled reports that the capsule continues in a spill file.
	Spilled bool `json:"spilled"`
}

// CapsuleSize returns the number of capsule bytes held in the primary
// file.
func (h ProjectHeader) CapsuleSize() int64 {
	return int64(h.Size) - sizeFieldSize
}

// ProjectResult describes a project written by [WriteProject].
type ProjectResult struct {
	Header  ProjectHeader `json:"header"`
	Capsule CapsuleResult `json:"capsule"`
}

// WriteProject writes a project at offset in output: a size field in
// order followed by the capsule. The size counts the field itself and
// is always a multiple of 4; its high bit is set when params names a
// spill file.
func WriteProject(params *Parameters, order binary.ByteOrder, output masking.Target, offset int64, options Options) (ProjectResult, error) {
	result, err := WriteCapsule(params, output, offset+sizeFieldSize, options)
	if err != nil {
		return ProjectResult{}, err
	}

	size := result.Offset - offset
	if size >= spilledFlag {
		return ProjectResult{}, fail(KindBadParameters,
			fmt.Errorf("project of %d bytes does not fit the size field", size))
	}
	header := ProjectHeader{Size: uint32(size), Spilled: params.Output.Spill != ""}
	field := header.Size
	if header.Spilled {
		field |= spilledFlag
	}
	if _, err := output.WriteAt(sizeField(order, field), offset); err != nil {
		return ProjectResult{}, fail(KindBadWrite, err)
	}
	return ProjectResult{Header: header, Capsule: result}, nil
}

// sizeField encodes a 4-byte size field in order.
func sizeField(order binary.ByteOrder, value uint32) []byte {
	var field [sizeFieldSize]byte
	order.PutUint32(field[:], value)
	return field[:]
}

// ReadProjectHeader decodes the project size field at offset.
func ReadProjectHeader(r io.ReaderAt, offset int64, order binary.ByteOrder) (ProjectHeader, error) {
	var field [sizeFieldSize]byte
	if _, err := r.ReadAt(field[:], offset); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return ProjectHeader{}, fmt.Errorf("reading project header at offset %d: %w", offset, err)
	}
	value := order.Uint32(field[:])
	header := ProjectHeader{
		Size:    value &^ spilledFlag,
		Spilled: value&spilledFlag != 0,
	}
	if header.Size < sizeFieldSize || header.Size%4 != 0 {
		return ProjectHeader{}, fmt.Errorf("invalid project size %d at offset %d", header.Size, offset)
	}
	return header, nil
}

// WritePayload copies params.Output.Payload to offset in output behind
// a size field in order. The field counts itself. The returned size
// includes zero padding up to a multiple of 4.
func WritePayload(params *Parameters, order binary.ByteOrder, output io.WriterAt, offset int64) (uint32, error) {
	payload, err := os.Open(params.Output.Payload)
	if err != nil {
		return 0, fail(KindNoPayload, err)
	}
	defer payload.Close()

	info, err := payload.Stat()
	if err != nil {
		return 0, fail(KindBadRead, err)
	}
	size := info.Size() + sizeFieldSize
	padded := (size + 3) &^ 3
	if padded > math.MaxUint32 {
		return 0, fail(KindBadParameters, fmt.Errorf("payload of %d bytes does not fit the size field", info.Size()))
	}

	if _, err := output.WriteAt(sizeField(order, uint32(size)), offset); err != nil {
		return 0, fail(KindBadWrite, err)
	}
	sink := io.NewOffsetWriter(output, offset+sizeFieldSize)
	copied, err := io.Copy(sink, io.NewSectionReader(payload, 0, info.Size()))
	if err != nil {
		return 0, fail(KindBadWrite, err)
	}
	if copied != info.Size() {
		return 0, fail(KindBadRead, fmt.Errorf("payload shrank to %d bytes while copying", copied))
	}
	if pad := padded - size; pad > 0 {
		if _, err := sink.Write(make([]byte, pad)); err != nil {
			return 0, fail(KindBadWrite, err)
		}
	}
	return uint32(padded), nil
}
