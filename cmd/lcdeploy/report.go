// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/livecode/capsule/cmd/lcdeploy/cli"
	"github.com/livecode/capsule/lib/codec"
	"github.com/livecode/capsule/lib/deploy"
)

type reportParams struct {
	cli.JSONOutput
	Diagnostic bool `flag:"diag" desc:"print the raw CBOR in diagnostic notation"`
}

func reportCommand(out io.Writer) *cli.Command {
	var params reportParams

	return &cli.Command{
		Name:    "report",
		Summary: "Show a build report",
		Usage:   "lcdeploy report FILE [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("report", &params)
		},
		Run: func(args []string) error {
			path, err := singlePath(args, "report")
			if err != nil {
				return err
			}

			if params.Diagnostic {
				data, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				text, err := codec.Diagnose(data)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(out, text)
				return err
			}

			report, err := deploy.ReadReport(path)
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(out, report); done {
				return err
			}
			if _, err := fmt.Fprintf(out, "tool:         %s\nmode:         %s\n", report.Tool, report.Mode); err != nil {
				return err
			}
			return printReport(out, report)
		},
	}
}
