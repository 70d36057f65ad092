// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package loader

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/livecode/capsule/lib/capsule"
	"github.com/livecode/capsule/lib/deploy"
	"github.com/livecode/capsule/lib/masking"
)

// DefaultChunkSize is how many primary-file bytes are fed to the
// capsule reader per fill.
const DefaultChunkSize = 64 << 10

// SpillSuffix is appended to the project file name to find its spill
// file when no spill path is given.
const SpillSuffix = ".dat"

var (
	// ErrUnexpectedData is returned when a section follows the
	// epilogue.
	ErrUnexpectedData = errors.New("unexpected data encountered")

	// ErrChecksumMismatch is returned when a digest section does not
	// match the bytes before it.
	ErrChecksumMismatch = errors.New("project checksum mismatch")

	// ErrUnrecognizedSection is returned for a section type the loader
	// does not handle.
	ErrUnrecognizedSection = errors.New("unrecognized section encountered")

	// ErrIncomplete is returned when the capsule ends without an
	// epilogue.
	ErrIncomplete = errors.New("project ended without an epilogue")
)

// Options controls where and how a project is read.
type Options struct {
	// Offset is the position of the project size field in the file.
	Offset int64

	// ByteOrder of the size field. Nil means big-endian.
	ByteOrder binary.ByteOrder

	// SpillPath names the spill file of a spilled project. Empty means
	// the project path with SpillSuffix appended.
	SpillPath string

	// Unmasker undoes capsule masking. Nil means unmasked.
	Unmasker masking.Unmasker

	// ChunkSize bounds each fill from the primary file. Zero means
	// DefaultChunkSize.
	ChunkSize int

	// BufferLimit is passed to capsule.WithBufferLimit when positive.
	BufferLimit int

	Logger *slog.Logger
}

func (o Options) byteOrder() binary.ByteOrder {
	if o.ByteOrder == nil {
		return binary.BigEndian
	}
	return o.ByteOrder
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return o.Logger
}

// Scan feeds the project at options.Offset in path through a capsule
// reader, dispatching every section to handler. The primary file is
// read in bounded chunks with processing after each; a spilled
// capsule then continues from the spill file. Scan returns the
// project header.
func Scan(path string, options Options, handler capsule.Handler) (deploy.ProjectHeader, error) {
	logger := options.logger()

	file, err := os.Open(path)
	if err != nil {
		return deploy.ProjectHeader{}, fmt.Errorf("opening project: %w", err)
	}
	defer file.Close()

	header, err := deploy.ReadProjectHeader(file, options.Offset, options.byteOrder())
	if err != nil {
		return deploy.ProjectHeader{}, err
	}
	spillPath := ""
	if header.Spilled {
		spillPath = options.SpillPath
		if spillPath == "" {
			spillPath = path + SpillSuffix
		}
	}
	logger.Debug("project header read",
		"path", path,
		"offset", options.Offset,
		"size", header.Size,
		"spilled", header.Spilled,
	)

	readerOptions := []capsule.ReaderOption{capsule.WithLogger(logger)}
	if options.Unmasker != nil {
		readerOptions = append(readerOptions, capsule.WithUnmasker(options.Unmasker))
	}
	if options.BufferLimit > 0 {
		readerOptions = append(readerOptions, capsule.WithBufferLimit(options.BufferLimit))
	}
	reader := capsule.NewReader(handler, readerOptions...)
	defer reader.Close()

	chunkSize := options.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	source := io.NewSectionReader(file, options.Offset+4, header.CapsuleSize())
	chunk := make([]byte, chunkSize)
	for remaining := header.CapsuleSize(); ; {
		n, err := io.ReadFull(source, chunk[:min(int64(chunkSize), remaining)])
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return header, fmt.Errorf("reading project: %w", err)
		}
		remaining -= int64(n)
		last := remaining == 0
		if err := reader.Fill(chunk[:n], last && !header.Spilled); err != nil {
			return header, err
		}
		if err := reader.Process(); err != nil {
			return header, err
		}
		if last {
			break
		}
	}

	if header.Spilled {
		if err := reader.FillFromFile(spillPath, 0, true); err != nil {
			return header, fmt.Errorf("reading spill file: %w", err)
		}
		if err := reader.Process(); err != nil {
			return header, err
		}
	}

	if !reader.Done() {
		return header, fmt.Errorf("project input not fully consumed after %d bytes", reader.Consumed())
	}
	logger.Debug("project scanned", "sections", reader.Sections(), "consumed", reader.Consumed())
	return header, nil
}

// Application is everything a standalone collects from its project.
type Application struct {
	Header   deploy.ProjectHeader `json:"header"`
	Prologue capsule.Prologue     `json:"prologue"`

	// MainStack holds the main stack; ScriptOnly reports that it is a
	// script-only stack.
	MainStack  []byte `json:"main_stack"`
	ScriptOnly bool   `json:"script_only,omitempty"`

	AuxiliaryStacks  [][]byte `json:"auxiliary_stacks,omitempty"`
	ScriptOnlyStacks [][]byte `json:"script_only_stacks,omitempty"`
	Modules          [][]byte `json:"modules,omitempty"`
	Banner           []byte   `json:"banner,omitempty"`

	Externals     []string `json:"externals,omitempty"`
	Redirects     []string `json:"redirects,omitempty"`
	Fontmaps      []string `json:"fontmaps,omitempty"`
	Libraries     []string `json:"libraries,omitempty"`
	StartupScript string   `json:"startup_script,omitempty"`

	License *capsule.License `json:"license,omitempty"`

	// Verified counts digest sections that matched.
	Verified int `json:"verified"`

	done bool
}

// Load reads and checks the project in path.
func Load(path string, options Options) (*Application, error) {
	app := &Application{}
	header, err := Scan(path, options, app.handle)
	if err != nil {
		return nil, err
	}
	app.Header = header
	if !app.done {
		return nil, ErrIncomplete
	}
	if app.MainStack == nil {
		return nil, errors.New("project has no main stack")
	}
	return app, nil
}

func (a *Application) handle(section capsule.Section) error {
	if a.done {
		return ErrUnexpectedData
	}

	switch section.Type {
	case capsule.SectionEpilogue:
		a.done = true

	case capsule.SectionPrologue:
		data, err := readPayload(section, "project prologue")
		if err != nil {
			return err
		}
		if err := a.Prologue.UnmarshalBinary(data); err != nil {
			return fmt.Errorf("failed to read project prologue: %w", err)
		}

	case capsule.SectionMainStack, capsule.SectionScriptOnlyMainStack:
		data, err := readPayload(section, "project stack")
		if err != nil {
			return err
		}
		a.MainStack = data
		a.ScriptOnly = section.Type == capsule.SectionScriptOnlyMainStack

	case capsule.SectionDigest:
		data, err := readPayload(section, "project checksum")
		if err != nil {
			return err
		}
		if !bytes.Equal(data, section.Digest[:]) {
			return ErrChecksumMismatch
		}
		a.Verified++

	case capsule.SectionAuxiliaryStack:
		data, err := readPayload(section, "auxiliary stack")
		if err != nil {
			return err
		}
		a.AuxiliaryStacks = append(a.AuxiliaryStacks, data)

	case capsule.SectionScriptOnlyAuxiliaryStack:
		data, err := readPayload(section, "auxiliary stack")
		if err != nil {
			return err
		}
		a.ScriptOnlyStacks = append(a.ScriptOnlyStacks, data)

	case capsule.SectionModule:
		data, err := readPayload(section, "module")
		if err != nil {
			return err
		}
		a.Modules = append(a.Modules, data)

	case capsule.SectionBanner:
		data, err := readPayload(section, "banner stack")
		if err != nil {
			return err
		}
		a.Banner = data

	case capsule.SectionStartupScript:
		text, err := readString(section, "startup script")
		if err != nil {
			return err
		}
		a.StartupScript = text

	case capsule.SectionExternal, capsule.SectionRedirect, capsule.SectionFontmap, capsule.SectionLibrary:
		text, err := readString(section, section.Type.String())
		if err != nil {
			return err
		}
		switch section.Type {
		case capsule.SectionExternal:
			a.Externals = append(a.Externals, text)
		case capsule.SectionRedirect:
			a.Redirects = append(a.Redirects, text)
		case capsule.SectionFontmap:
			a.Fontmaps = append(a.Fontmaps, text)
		case capsule.SectionLibrary:
			a.Libraries = append(a.Libraries, text)
		}

	case capsule.SectionLicense:
		data, err := readPayload(section, "license")
		if err != nil {
			return err
		}
		var license capsule.License
		if err := license.UnmarshalBinary(data); err != nil {
			return fmt.Errorf("failed to read license: %w", err)
		}
		a.License = &license

	default:
		return fmt.Errorf("%w: %s", ErrUnrecognizedSection, section.Type)
	}
	return nil
}

// readPayload reads a whole section payload. The buffer grows with the
// data actually delivered, so a forged length costs nothing until the
// bytes arrive.
func readPayload(section capsule.Section, what string) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(section.Payload, int64(section.Length)))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", what, err)
	}
	if len(data) != int(section.Length) {
		return nil, fmt.Errorf("failed to read %s: got %d of %d bytes: %w",
			what, len(data), section.Length, io.ErrUnexpectedEOF)
	}
	return data, nil
}

// readString reads a NUL-terminated string section.
func readString(section capsule.Section, what string) (string, error) {
	data, err := readPayload(section, what)
	if err != nil {
		return "", err
	}
	text, found := bytes.CutSuffix(data, []byte{0})
	if !found {
		return "", fmt.Errorf("failed to read %s: missing terminator", what)
	}
	return string(text), nil
}
