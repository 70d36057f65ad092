// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

type keyFlags struct {
	path string
}

func (k *keyFlags) AddFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&k.path, "mask-key", "", "masking key file")
}

type testParams struct {
	JSONOutput
	Keys     keyFlags
	Output   string   `flag:"output,o" desc:"output path"`
	Offset   int64    `flag:"offset" desc:"project offset" default:"0x10"`
	Count    int      `flag:"count" default:"2"`
	Timeout  uint32   `flag:"timeout" default:"30"`
	Verbose  bool     `flag:"verbose,v" default:"false"`
	Names    []string `flag:"name" default:"a,b"`
	Untagged string
}

func TestBindFlags(t *testing.T) {
	var params testParams
	flagSet := FlagsFromParams("test", &params)

	if params.Offset != 16 || params.Count != 2 || params.Timeout != 30 {
		t.Errorf("defaults = %+v", params)
	}
	if strings.Join(params.Names, ",") != "a,b" {
		t.Errorf("default names = %v", params.Names)
	}

	err := flagSet.Parse([]string{
		"-o", "app.bin",
		"--offset", "4096",
		"--count=5",
		"--timeout", "7",
		"-v",
		"--name", "x", "--name", "y",
		"--json",
		"--mask-key", "mask.key",
	})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if params.Output != "app.bin" || params.Offset != 4096 || params.Count != 5 || params.Timeout != 7 {
		t.Errorf("parsed = %+v", params)
	}
	if !params.Verbose || !params.OutputJSON {
		t.Error("boolean flags not set")
	}
	if strings.Join(params.Names, ",") != "x,y" {
		t.Errorf("names = %v", params.Names)
	}
	if params.Keys.path != "mask.key" {
		t.Errorf("FlagBinder field not bound: %q", params.Keys.path)
	}
	if flagSet.Lookup("untagged") != nil {
		t.Error("untagged field was bound")
	}
}

func TestBindFlags_Errors(t *testing.T) {
	var notPointer testParams
	if err := BindFlags(notPointer, pflag.NewFlagSet("x", pflag.ContinueOnError)); err == nil {
		t.Error("BindFlags accepted a struct value")
	}

	var unsupported struct {
		Ratio float32 `flag:"ratio"`
	}
	if err := BindFlags(&unsupported, pflag.NewFlagSet("x", pflag.ContinueOnError)); err == nil {
		t.Error("BindFlags accepted a float32 field")
	}

	var badDefault struct {
		Offset int64 `flag:"offset" default:"many"`
	}
	if err := BindFlags(&badDefault, pflag.NewFlagSet("x", pflag.ContinueOnError)); err == nil {
		t.Error("BindFlags accepted an unparsable default")
	}
}

func TestEmitJSON(t *testing.T) {
	var output JSONOutput
	var buffer bytes.Buffer

	done, err := output.EmitJSON(&buffer, []string{"a"})
	if done || err != nil || buffer.Len() != 0 {
		t.Errorf("EmitJSON without --json = %v, %v, %q", done, err, buffer.String())
	}

	output.OutputJSON = true
	var empty []string
	done, err = output.EmitJSON(&buffer, empty)
	if !done || err != nil {
		t.Fatalf("EmitJSON = %v, %v", done, err)
	}
	if strings.TrimSpace(buffer.String()) != "[]" {
		t.Errorf("nil slice encoded as %q, want []", buffer.String())
	}
}
