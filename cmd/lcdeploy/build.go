// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/livecode/capsule/cmd/lcdeploy/cli"
	"github.com/livecode/capsule/lib/deploy"
)

type buildParams struct {
	cli.JSONOutput
	Params       string `flag:"params,p" desc:"deployment parameters file (required)"`
	Output       string `flag:"output,o" desc:"override output.path"`
	Spill        string `flag:"spill" desc:"override output.spill"`
	Report       string `flag:"report" desc:"override output.report"`
	LittleEndian bool   `flag:"little-endian" desc:"write the size fields little-endian"`
	Mask         maskFlags
}

func buildCommand(out io.Writer) *cli.Command {
	var params buildParams

	return &cli.Command{
		Name:    "build",
		Summary: "Write a project from a parameters file",
		Description: `Write a project from a parameters file.

Relative paths in the parameters file resolve against the file's own
directory. Paths given as flags resolve against the working directory.
Masking flags replace the parameters file's masking selection.`,
		Usage: "lcdeploy build --params FILE [flags]",
		Examples: []cli.Example{
			{
				Description: "Append a project to an engine image",
				Command:     "lcdeploy build --params deploy.yaml --output MyApp",
			},
			{
				Description: "Mask the capsule with a sealed key",
				Command:     "lcdeploy build -p deploy.yaml --sealed-mask-key mask.age --identity id.txt",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("build", &params)
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			if params.Params == "" {
				return fmt.Errorf("--params is required")
			}

			parameters, err := deploy.LoadParameters(params.Params)
			if err != nil {
				return err
			}
			if err := params.apply(parameters); err != nil {
				return err
			}

			logger := cli.NewCommandLogger().With("command", "build")
			report, err := deploy.Build(parameters, logger)
			if err != nil {
				return err
			}

			if done, err := params.EmitJSON(out, report); done {
				return err
			}
			return printReport(out, report)
		},
	}
}

// apply overrides the loaded parameters with whatever flags were
// given.
func (b *buildParams) apply(parameters *deploy.Parameters) error {
	overrides := []struct {
		flag   string
		target *string
	}{
		{b.Output, &parameters.Output.Path},
		{b.Spill, &parameters.Output.Spill},
		{b.Report, &parameters.Output.Report},
		{b.Mask.KeyFile, &b.Mask.KeyFile},
		{b.Mask.SealedKeyFile, &b.Mask.SealedKeyFile},
		{b.Mask.IdentityFile, &b.Mask.IdentityFile},
	}
	for _, override := range overrides {
		if override.flag == "" {
			continue
		}
		path, err := filepath.Abs(override.flag)
		if err != nil {
			return err
		}
		*override.target = path
	}
	if b.LittleEndian {
		parameters.Output.ByteOrder = deploy.LittleEndian
	}
	if b.Mask.set() {
		parameters.Masking = b.Mask.parameters()
	}
	return nil
}

func printReport(out io.Writer, report *deploy.Report) error {
	project := report.Project
	masked := "no"
	if report.Masked {
		masked = "yes"
	}
	_, err := fmt.Fprintf(out, `output:       %s @ %d (%s-endian)
project:      %d bytes, %d sections, masked: %s
capsule:      %d compressed from %d, digest %s
fingerprint:  %s
`,
		report.Output, report.Offset, report.ByteOrder,
		project.Header.Size, len(project.Capsule.Sections), masked,
		project.Capsule.Compressed, project.Capsule.Uncompressed, project.Capsule.Digest,
		report.Fingerprint,
	)
	if err != nil {
		return err
	}
	if report.Spill != "" {
		if _, err := fmt.Fprintf(out, "spill:        %s (%d bytes)\n", report.Spill, project.Capsule.Spilled); err != nil {
			return err
		}
	}
	if report.PayloadSize > 0 {
		if _, err := fmt.Fprintf(out, "payload:      %d bytes\n", report.PayloadSize); err != nil {
			return err
		}
	}
	return nil
}
