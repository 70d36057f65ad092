// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/binary"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/livecode/capsule/cmd/lcdeploy/cli"
	"github.com/livecode/capsule/lib/deploy"
	"github.com/livecode/capsule/lib/loader"
	"github.com/livecode/capsule/lib/version"
)

// rootCommand returns the command tree. Command results are written
// to out; logs and help go to stderr.
func rootCommand(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:    "lcdeploy",
		Summary: "Build and examine standalone projects",
		Description: `Build and examine standalone projects.

A project is written into the output file at an offset, usually just
past the engine image, as a 4-byte size field followed by a compressed
capsule of sections. Projects larger than the primary limit spill into
a separate file, by default the output path with ".dat" appended.`,
		Subcommands: []*cli.Command{
			buildCommand(out),
			inspectCommand(out),
			verifyCommand(out),
			extractCommand(out),
			reportCommand(out),
			keygenCommand(out),
			sealKeyCommand(out),
			versionCommand(out),
		},
	}
}

func versionCommand(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:    "version",
		Summary: "Print version information",
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			_, err := fmt.Fprintln(out, "lcdeploy "+version.Full())
			return err
		},
	}
}

// maskFlags selects the masking key on commands that read or write
// capsules.
type maskFlags struct {
	KeyFile       string
	SealedKeyFile string
	IdentityFile  string
}

func (m *maskFlags) AddFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&m.KeyFile, "mask-key", "", "hex masking key file")
	flagSet.StringVar(&m.SealedKeyFile, "sealed-mask-key", "", "age-sealed masking key file")
	flagSet.StringVar(&m.IdentityFile, "identity", "", "age identity that opens --sealed-mask-key")
}

func (m *maskFlags) set() bool {
	return m.KeyFile != "" || m.SealedKeyFile != ""
}

func (m *maskFlags) parameters() deploy.MaskingParameters {
	return deploy.MaskingParameters{
		KeyFile:       m.KeyFile,
		SealedKeyFile: m.SealedKeyFile,
		IdentityFile:  m.IdentityFile,
	}
}

// projectFlags locate a project inside a file.
type projectFlags struct {
	Offset       int64
	LittleEndian bool
	Spill        string
	Mask         maskFlags
}

func (p *projectFlags) AddFlags(flagSet *pflag.FlagSet) {
	flagSet.Int64Var(&p.Offset, "offset", 0, "position of the project size field")
	flagSet.BoolVar(&p.LittleEndian, "little-endian", false, "size field is little-endian")
	flagSet.StringVar(&p.Spill, "spill", "", "spill file (default: FILE.dat)")
	p.Mask.AddFlags(flagSet)
}

// open resolves the flags into loader options. The returned close
// function releases the mask.
func (p *projectFlags) open() (loader.Options, func(), error) {
	options := loader.Options{
		Offset:    p.Offset,
		ByteOrder: binary.BigEndian,
		SpillPath: p.Spill,
	}
	if p.LittleEndian {
		options.ByteOrder = binary.LittleEndian
	}
	if !p.Mask.set() {
		return options, func() {}, nil
	}
	mask, err := deploy.LoadMask(p.Mask.parameters())
	if err != nil {
		return loader.Options{}, nil, err
	}
	options.Unmasker = mask
	return options, func() { mask.Close() }, nil
}

// singlePath checks that args holds exactly one file path.
func singlePath(args []string, what string) (string, error) {
	switch len(args) {
	case 0:
		return "", fmt.Errorf("%s path is required", what)
	case 1:
		return filepath.Clean(args[0]), nil
	default:
		return "", fmt.Errorf("unexpected argument: %s", args[1])
	}
}
