// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/livecode/capsule/cmd/lcdeploy/cli"
	"github.com/livecode/capsule/lib/capsule"
	"github.com/livecode/capsule/lib/loader"
)

type extractParams struct {
	Type    string `flag:"type,t" desc:"section type name or number (required)"`
	Index   int    `flag:"index,i" desc:"which section of that type, counting from 0"`
	Out     string `flag:"out" desc:"destination file, or - for stdout (required)"`
	Project projectFlags
}

// errExtracted stops the scan once the wanted section is copied.
var errExtracted = errors.New("section extracted")

func extractCommand(out io.Writer) *cli.Command {
	var params extractParams

	return &cli.Command{
		Name:    "extract",
		Summary: "Copy one section's payload out of a project",
		Usage:   "lcdeploy extract FILE --type TYPE --out FILE [flags]",
		Examples: []cli.Example{
			{
				Description: "Recover the main stack",
				Command:     "lcdeploy extract app.bin --type main_stack --out main.livecode",
			},
			{
				Description: "Print the second redirect",
				Command:     "lcdeploy extract app.bin -t redirect -i 1 --out -",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("extract", &params)
		},
		Run: func(args []string) error {
			path, err := singlePath(args, "project")
			if err != nil {
				return err
			}
			if params.Type == "" || params.Out == "" {
				return fmt.Errorf("--type and --out are required")
			}
			if params.Index < 0 {
				return fmt.Errorf("--index must not be negative")
			}
			wanted, err := capsule.ParseSectionType(params.Type)
			if err != nil {
				return err
			}
			options, release, err := params.Project.open()
			if err != nil {
				return err
			}
			defer release()

			var destination io.Writer = out
			var file *os.File
			if params.Out != "-" {
				file, err = os.Create(params.Out)
				if err != nil {
					return err
				}
				defer file.Close()
				destination = file
			}

			seen := 0
			_, err = loader.Scan(path, options, func(section capsule.Section) error {
				if section.Type != wanted {
					return nil
				}
				if seen++; seen <= params.Index {
					return nil
				}
				if _, err := io.Copy(destination, section.Payload); err != nil {
					return fmt.Errorf("copying %s section: %w", wanted, err)
				}
				return errExtracted
			})
			if !errors.Is(err, errExtracted) {
				if file != nil {
					file.Close()
					os.Remove(params.Out)
				}
				if err != nil {
					return err
				}
				return fmt.Errorf("project has %d %s sections, index %d not found", seen, wanted, params.Index)
			}
			if file != nil {
				return file.Close()
			}
			return nil
		},
	}
}
