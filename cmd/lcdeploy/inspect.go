// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/livecode/capsule/cmd/lcdeploy/cli"
	"github.com/livecode/capsule/lib/capsule"
	"github.com/livecode/capsule/lib/deploy"
	"github.com/livecode/capsule/lib/loader"
)

type inspectParams struct {
	cli.JSONOutput
	Project projectFlags
}

// sectionEntry is one row of inspect output.
type sectionEntry struct {
	Type   string         `json:"type"`
	Code   uint32         `json:"code"`
	Length uint32         `json:"length"`
	Digest capsule.Digest `json:"digest"`

	// Match is set for digest sections: whether the stored digest
	// equals the computed one.
	Match *bool `json:"match,omitempty"`
}

type inspectResult struct {
	Header   deploy.ProjectHeader `json:"header"`
	Sections []sectionEntry       `json:"sections"`
}

func inspectCommand(out io.Writer) *cli.Command {
	var params inspectParams

	return &cli.Command{
		Name:    "inspect",
		Summary: "List the sections of a project",
		Description: `List the sections of a project with their lengths and the running
digest before each header. Digest sections also show whether the stored
value matches. Unknown section types are listed, not rejected.`,
		Usage: "lcdeploy inspect FILE [flags]",
		Examples: []cli.Example{
			{
				Description: "Inspect a project appended to an engine image",
				Command:     "lcdeploy inspect MyApp --offset 1048576",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("inspect", &params)
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

			result, err := inspect(path, options)
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(out, result); done {
				return err
			}

			spilled := ""
			if result.Header.Spilled {
				spilled = ", spilled"
			}
			fmt.Fprintf(out, "project: %d bytes%s\n\n", result.Header.Size, spilled)
			writer := tabwriter.NewWriter(out, 2, 0, 3, ' ', 0)
			fmt.Fprintln(writer, "TYPE\tLENGTH\tDIGEST\tCHECK")
			for _, entry := range result.Sections {
				check := ""
				if entry.Match != nil {
					check = "mismatch"
					if *entry.Match {
						check = "ok"
					}
				}
				fmt.Fprintf(writer, "%s\t%d\t%s\t%s\n", entry.Type, entry.Length, entry.Digest, check)
			}
			return writer.Flush()
		},
	}
}

func inspect(path string, options loader.Options) (*inspectResult, error) {
	result := &inspectResult{Sections: []sectionEntry{}}
	header, err := loader.Scan(path, options, func(section capsule.Section) error {
		entry := sectionEntry{
			Type:   section.Type.String(),
			Code:   uint32(section.Type),
			Length: section.Length,
			Digest: section.Digest,
		}
		if section.Type == capsule.SectionDigest {
			stored := make([]byte, section.Length)
			if _, err := io.ReadFull(section.Payload, stored); err != nil {
				return fmt.Errorf("reading digest section: %w", err)
			}
			match := bytes.Equal(stored, section.Digest[:])
			entry.Match = &match
		}
		result.Sections = append(result.Sections, entry)
		return nil
	})
	if err != nil {
		return nil, err
	}
	result.Header = header
	return result, nil
}
