// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package deploy

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeParams(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "standalone.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write parameters: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	params := Default()

	if params.Mode != Development {
		t.Errorf("expected mode=development, got %s", params.Mode)
	}
	if !params.Checksum {
		t.Error("expected checksum=true by default")
	}
	if params.Output.ByteOrder != BigEndian {
		t.Errorf("expected byte_order=big, got %s", params.Output.ByteOrder)
	}
}

func TestLoadParameters(t *testing.T) {
	path := writeParams(t, `
stackfile: stacks/main.livecode
auxiliary_stackfiles:
  - stacks/aux.livecode
externals: [revxml, revzip]
redirects: ["old.livecode:new.livecode"]
startup_script: "put 1 into x"
program_timeout: 30
banner:
  stackfile: /abs/banner.livecode
  timeout: 5
license:
  class: 3
output:
  path: ${DEPLOY_ROOT}/out/app.bin
  spill: out/app.dat
  byte_order: little
`)

	params, err := LoadParameters(path)
	if err != nil {
		t.Fatalf("LoadParameters() failed: %v", err)
	}
	root := filepath.Dir(path)

	if params.Root() != root {
		t.Errorf("Root() = %s, want %s", params.Root(), root)
	}
	if params.Stackfile != filepath.Join(root, "stacks", "main.livecode") {
		t.Errorf("stackfile not resolved against the parameters directory: %s", params.Stackfile)
	}
	if params.AuxiliaryStackfiles[0] != filepath.Join(root, "stacks", "aux.livecode") {
		t.Errorf("auxiliary stackfile not resolved: %s", params.AuxiliaryStackfiles[0])
	}
	if params.Banner.Stackfile != "/abs/banner.livecode" {
		t.Errorf("absolute banner path changed: %s", params.Banner.Stackfile)
	}
	if params.Output.Path != filepath.Join(root, "out", "app.bin") {
		t.Errorf("DEPLOY_ROOT not expanded: %s", params.Output.Path)
	}
	if params.Output.Spill != filepath.Join(root, "out", "app.dat") {
		t.Errorf("spill not resolved: %s", params.Output.Spill)
	}
	if params.Output.ByteOrder.Binary() != binary.LittleEndian {
		t.Error("expected little-endian byte order")
	}
	if len(params.Externals) != 2 || params.Externals[1] != "revzip" {
		t.Errorf("externals = %v", params.Externals)
	}
	if params.License == nil || params.License.Class != 3 {
		t.Errorf("license = %+v", params.License)
	}
	if params.ProgramTimeout != 30 || params.Banner.Timeout != 5 {
		t.Errorf("timeouts = %d, %d", params.ProgramTimeout, params.Banner.Timeout)
	}
	if err := params.Validate(); err != nil {
		t.Errorf("Validate() failed: %v", err)
	}
}

func TestLoadParameters_RejectsUnknownKeys(t *testing.T) {
	path := writeParams(t, "stackfile: main.livecode\nstack_file: typo.livecode\n")
	if _, err := LoadParameters(path); err == nil {
		t.Fatal("expected error for unknown key, got nil")
	}
}

func TestLoadParameters_MissingFile(t *testing.T) {
	if _, err := LoadParameters(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestLoadParameters_ReleaseOverrides(t *testing.T) {
	path := writeParams(t, `
mode: release
stackfile: main.livecode
checksum: false
output:
  path: dev.bin
masking:
  key_file: dev.key
development:
  output:
    path: ignored.bin
release:
  checksum: true
  program_timeout: 60
  output:
    path: release.bin
  masking:
    sealed_key_file: release.key.age
    identity_file: identity.txt
`)

	params, err := LoadParameters(path)
	if err != nil {
		t.Fatalf("LoadParameters() failed: %v", err)
	}
	root := filepath.Dir(path)

	if params.Output.Path != filepath.Join(root, "release.bin") {
		t.Errorf("release output override not applied: %s", params.Output.Path)
	}
	if !params.Checksum || params.ProgramTimeout != 60 {
		t.Errorf("release overrides not applied: checksum=%v timeout=%d", params.Checksum, params.ProgramTimeout)
	}
	if params.Masking.KeyFile != "" {
		t.Errorf("masking override should replace the key selection, key_file=%s", params.Masking.KeyFile)
	}
	if params.Masking.SealedKeyFile != filepath.Join(root, "release.key.age") {
		t.Errorf("sealed key not resolved: %s", params.Masking.SealedKeyFile)
	}
	if err := params.Validate(); err != nil {
		t.Errorf("Validate() failed: %v", err)
	}
}

func TestExpandVars(t *testing.T) {
	t.Setenv("CAPSULE_TEST_VAR", "from-env")

	vars := map[string]string{"DEPLOY_ROOT": "/deploy"}
	tests := []struct {
		input string
		want  string
	}{
		{"${DEPLOY_ROOT}/main.livecode", "/deploy/main.livecode"},
		{"${CAPSULE_TEST_VAR}/x", "from-env/x"},
		{"${CAPSULE_TEST_UNSET:-fallback}/x", "fallback/x"},
		{"${CAPSULE_TEST_UNSET}/x", "/x"},
		{"plain/path", "plain/path"},
	}
	for _, tt := range tests {
		if got := expandVars(tt.input, vars); got != tt.want {
			t.Errorf("expandVars(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Parameters {
		params := Default()
		params.Stackfile = "main.livecode"
		params.Output.Path = "out.bin"
		return params
	}

	tests := []struct {
		name   string
		modify func(*Parameters)
		want   string
	}{
		{"invalid mode", func(p *Parameters) { p.Mode = "beta" }, "invalid mode"},
		{"no stackfile", func(p *Parameters) { p.Stackfile = "" }, "stackfile is required"},
		{"no output", func(p *Parameters) { p.Output.Path = "" }, "output.path is required"},
		{"negative offset", func(p *Parameters) { p.Output.Offset = -4 }, "output.offset"},
		{"byte order", func(p *Parameters) { p.Output.ByteOrder = "middle" }, "output.byte_order"},
		{"spill is output", func(p *Parameters) { p.Output.Spill = p.Output.Path }, "output.spill"},
		{"both keys", func(p *Parameters) {
			p.Masking.KeyFile = "a.key"
			p.Masking.SealedKeyFile = "b.key"
			p.Masking.IdentityFile = "id"
		}, "mutually exclusive"},
		{"sealed without identity", func(p *Parameters) { p.Masking.SealedKeyFile = "b.key" }, "identity_file"},
		{"release without key", func(p *Parameters) { p.Mode = Release }, "masking key"},
		{"release without checksum", func(p *Parameters) {
			p.Mode = Release
			p.Masking.KeyFile = "a.key"
			p.Checksum = false
		}, "checksum"},
		{"banner timeout alone", func(p *Parameters) { p.Banner.Timeout = 3 }, "banner.timeout"},
		{"empty external", func(p *Parameters) { p.Externals = []string{""} }, "externals[0]"},
		{"nul redirect", func(p *Parameters) { p.Redirects = []string{"a\x00b"} }, "redirects[0]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := valid()
			tt.modify(params)
			err := params.Validate()
			if err == nil {
				t.Fatalf("Validate() succeeded, want error containing %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.want)
			}
		})
	}

	if err := valid().Validate(); err != nil {
		t.Errorf("Validate() of valid parameters failed: %v", err)
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	params := Default()
	err := params.Validate()
	if err == nil {
		t.Fatal("Validate() of empty parameters succeeded")
	}
	for _, want := range []string{"stackfile is required", "output.path is required"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() = %v, missing %q", err, want)
		}
	}
}
