// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"github.com/livecode/capsule/cmd/lcdeploy/cli"
	"github.com/livecode/capsule/lib/loader"
)

type verifyParams struct {
	Project projectFlags
}

func verifyCommand(out io.Writer) *cli.Command {
	var params verifyParams

	return &cli.Command{
		Name:    "verify",
		Summary: "Load a project and check its digests",
		Description: `Load a project exactly as a standalone engine would and check every
digest section. Prints the verdict and exits 1 when the project fails to
load.`,
		Usage: "lcdeploy verify FILE [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("verify", &params)
		},
		Run: func(args []string) error {
			path, err := singlePath(args, "project")
			if err != nil {
				return err
			}
			options, release, err := params.Project.open()
			if err != nil {
				return err
			}
			defer release()

			app, err := loader.Load(path, options)
			if err != nil {
				fmt.Fprintf(out, "FAIL %s: %v\n", path, err)
				return &cli.ExitError{Code: 1}
			}

			kind := "stack"
			if app.ScriptOnly {
				kind = "script-only stack"
			}
			_, err = fmt.Fprintf(out, "OK %s: %d-byte main %s, %d auxiliary, %d modules, %d digests verified\n",
				path, len(app.MainStack), kind,
				len(app.AuxiliaryStacks)+len(app.ScriptOnlyStacks), len(app.Modules), app.Verified)
			return err
		},
	}
}
