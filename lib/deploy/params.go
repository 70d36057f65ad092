// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package deploy

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Mode selects how strictly a build is checked.
type Mode string

const (
	// Development builds may be unmasked and unchecksummed.
	Development Mode = "development"
	// Release builds must carry a checksum and a masking key.
	Release Mode = "release"
)

// ByteOrder names the byte order of the project and payload size
// fields. It matches the target platform of the engine executable.
type ByteOrder string

const (
	BigEndian    ByteOrder = "big"
	LittleEndian ByteOrder = "little"
)

// Binary returns the encoding/binary order for b.
func (b ByteOrder) Binary() binary.ByteOrder {
	if b == LittleEndian {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

// Parameters describes one standalone build.
type Parameters struct {
	// Mode is development or release.
	Mode Mode `yaml:"mode"`

	// Stackfile is the main stack. When ScriptOnly is set it is a
	// script-only stack and is stored as such.
	Stackfile  string `yaml:"stackfile"`
	ScriptOnly bool   `yaml:"script_only"`

	// AuxiliaryStackfiles are binary stacks loaded after the main stack.
	AuxiliaryStackfiles []string `yaml:"auxiliary_stackfiles"`

	// ScriptOnlyStackfiles are script-only auxiliary stacks.
	ScriptOnlyStackfiles []string `yaml:"script_only_stackfiles"`

	// Modules are compiled module files embedded verbatim.
	Modules []string `yaml:"modules"`

	// Externals, Redirects, Fontmaps and Libraries are names stored as
	// NUL-terminated strings.
	Externals []string `yaml:"externals"`
	Redirects []string `yaml:"redirects"`
	Fontmaps  []string `yaml:"fontmaps"`
	Libraries []string `yaml:"libraries"`

	// StartupScript runs once every stack has loaded.
	StartupScript string `yaml:"startup_script"`

	Banner BannerParameters `yaml:"banner"`

	// ProgramTimeout is stored in the prologue, in seconds.
	ProgramTimeout uint32 `yaml:"program_timeout"`

	License *LicenseParameters `yaml:"license,omitempty"`

	// Checksum appends a digest section before the epilogue.
	Checksum bool `yaml:"checksum"`

	Output  OutputParameters  `yaml:"output"`
	Masking MaskingParameters `yaml:"masking"`

	// Per-mode overrides, applied after the base parameters load.
	Development *Overrides `yaml:"development,omitempty"`
	Release     *Overrides `yaml:"release,omitempty"`

	// root is the directory of the parameters file. Relative paths
	// resolve against it.
	root string
}

// BannerParameters configures the banner stack shown while the
// standalone starts.
type BannerParameters struct {
	Stackfile string `yaml:"stackfile"`
	// Timeout is how long the banner stays up, in seconds.
	Timeout uint32 `yaml:"timeout"`
}

// LicenseParameters is embedded as the license section.
type LicenseParameters struct {
	Class uint8 `yaml:"class"`
	// AddonsFile holds the serialized add-ons array.
	AddonsFile string `yaml:"addons_file"`
}

// OutputParameters says where the build goes.
type OutputParameters struct {
	// Path is the file the project is written into.
	Path string `yaml:"path"`
	// Offset is where the project starts within Path.
	Offset int64 `yaml:"offset"`
	// Spill receives the capsule bytes past the first SpillLimit.
	Spill string `yaml:"spill"`
	// Payload is copied after the project, with its own size field.
	Payload string `yaml:"payload"`
	// Report receives a CBOR build report.
	Report string `yaml:"report"`
	// ByteOrder is big or little.
	ByteOrder ByteOrder `yaml:"byte_order"`
}

// MaskingParameters selects the masking key. At most one of KeyFile
// and SealedKeyFile may be set. A sealed key needs IdentityFile.
type MaskingParameters struct {
	KeyFile       string `yaml:"key_file"`
	SealedKeyFile string `yaml:"sealed_key_file"`
	IdentityFile  string `yaml:"identity_file"`
}

// Enabled reports whether a masking key is configured.
func (m MaskingParameters) Enabled() bool {
	return m.KeyFile != "" || m.SealedKeyFile != ""
}

// Overrides contains the fields a mode section may override.
type Overrides struct {
	Output         *OutputParameters  `yaml:"output,omitempty"`
	Masking        *MaskingParameters `yaml:"masking,omitempty"`
	Checksum       *bool              `yaml:"checksum,omitempty"`
	ProgramTimeout *uint32            `yaml:"program_timeout,omitempty"`
}

// Default returns the parameters every file is merged into.
func Default() *Parameters {
	return &Parameters{
		Mode:     Development,
		Checksum: true,
		Output: OutputParameters{
			ByteOrder: BigEndian,
		},
	}
}

// LoadParameters loads build parameters from a YAML file. Unknown keys
// are rejected. After mode overrides apply, ${VAR} and ${VAR:-default}
// expand in every path (DEPLOY_ROOT names the file's directory, then
// the environment is consulted) and relative paths resolve against
// the file's directory. The result is not validated.
func LoadParameters(path string) (*Parameters, error) {
	absolute, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", path, err)
	}

	params := Default()
	params.root = filepath.Dir(absolute)
	if err := params.loadFile(absolute); err != nil {
		return nil, err
	}
	params.applyModeOverrides()
	params.expandVariables()
	params.resolvePaths()
	return params, nil
}

// ParseParameters decodes parameters held in memory. Relative paths
// resolve against root.
func ParseParameters(data []byte, root string) (*Parameters, error) {
	params := Default()
	params.root = root
	if err := params.decode(data); err != nil {
		return nil, err
	}
	params.applyModeOverrides()
	params.expandVariables()
	params.resolvePaths()
	return params, nil
}

func (p *Parameters) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := p.decode(data); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func (p *Parameters) decode(data []byte) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(p); err != nil {
		return fmt.Errorf("parsing parameters: %w", err)
	}
	return nil
}

// Root returns the directory relative paths resolve against.
func (p *Parameters) Root() string {
	return p.root
}

func (p *Parameters) applyModeOverrides() {
	var overrides *Overrides
	switch p.Mode {
	case Development:
		overrides = p.Development
	case Release:
		overrides = p.Release
	}
	if overrides == nil {
		return
	}

	if overrides.Output != nil {
		o := overrides.Output
		if o.Path != "" {
			p.Output.Path = o.Path
		}
		if o.Offset != 0 {
			p.Output.Offset = o.Offset
		}
		if o.Spill != "" {
			p.Output.Spill = o.Spill
		}
		if o.Payload != "" {
			p.Output.Payload = o.Payload
		}
		if o.Report != "" {
			p.Output.Report = o.Report
		}
		if o.ByteOrder != "" {
			p.Output.ByteOrder = o.ByteOrder
		}
	}
	if overrides.Masking != nil {
		// A masking override replaces the whole key selection so that a
		// sealed key can supersede a plain one.
		p.Masking = *overrides.Masking
	}
	if overrides.Checksum != nil {
		p.Checksum = *overrides.Checksum
	}
	if overrides.ProgramTimeout != nil {
		p.ProgramTimeout = *overrides.ProgramTimeout
	}
}

// paths returns a pointer to every path-valued field.
func (p *Parameters) paths() []*string {
	paths := []*string{
		&p.Stackfile,
		&p.Banner.Stackfile,
		&p.Output.Path,
		&p.Output.Spill,
		&p.Output.Payload,
		&p.Output.Report,
		&p.Masking.KeyFile,
		&p.Masking.SealedKeyFile,
		&p.Masking.IdentityFile,
	}
	if p.License != nil {
		paths = append(paths, &p.License.AddonsFile)
	}
	for _, list := range [][]string{p.AuxiliaryStackfiles, p.ScriptOnlyStackfiles, p.Modules} {
		for i := range list {
			paths = append(paths, &list[i])
		}
	}
	return paths
}

func (p *Parameters) expandVariables() {
	vars := map[string]string{
		"DEPLOY_ROOT": p.root,
		"HOME":        os.Getenv("HOME"),
	}
	for _, path := range p.paths() {
		*path = expandVars(*path, vars)
	}
}

func (p *Parameters) resolvePaths() {
	if p.root == "" {
		return
	}
	for _, path := range p.paths() {
		if *path != "" && !filepath.IsAbs(*path) {
			*path = filepath.Join(p.root, *path)
		}
	}
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the parameters for errors. Every problem found is
// reported.
func (p *Parameters) Validate() error {
	var errs []error

	if p.Mode != Development && p.Mode != Release {
		errs = append(errs, fmt.Errorf("invalid mode: %s", p.Mode))
	}
	if p.Stackfile == "" {
		errs = append(errs, errors.New("stackfile is required"))
	}
	if p.Output.Path == "" {
		errs = append(errs, errors.New("output.path is required"))
	}
	if p.Output.Offset < 0 {
		errs = append(errs, fmt.Errorf("output.offset must not be negative, got %d", p.Output.Offset))
	}
	if p.Output.ByteOrder != BigEndian && p.Output.ByteOrder != LittleEndian {
		errs = append(errs, fmt.Errorf("output.byte_order must be %q or %q, got %q",
			BigEndian, LittleEndian, p.Output.ByteOrder))
	}
	if p.Output.Spill != "" && p.Output.Spill == p.Output.Path {
		errs = append(errs, errors.New("output.spill must differ from output.path"))
	}

	if p.Masking.KeyFile != "" && p.Masking.SealedKeyFile != "" {
		errs = append(errs, errors.New("masking.key_file and masking.sealed_key_file are mutually exclusive"))
	}
	if p.Masking.SealedKeyFile != "" && p.Masking.IdentityFile == "" {
		errs = append(errs, errors.New("masking.sealed_key_file requires masking.identity_file"))
	}
	if p.Mode == Release {
		if !p.Checksum {
			errs = append(errs, errors.New("release builds must enable checksum"))
		}
		if !p.Masking.Enabled() {
			errs = append(errs, errors.New("release builds require a masking key"))
		}
	}

	if p.Banner.Timeout != 0 && p.Banner.Stackfile == "" {
		errs = append(errs, errors.New("banner.timeout is set without banner.stackfile"))
	}

	for _, list := range []struct {
		name   string
		values []string
	}{
		{"externals", p.Externals},
		{"redirects", p.Redirects},
		{"fontmaps", p.Fontmaps},
		{"libraries", p.Libraries},
	} {
		for i, value := range list.values {
			if value == "" || strings.IndexByte(value, 0) >= 0 {
				errs = append(errs, fmt.Errorf("%s[%d] must be non-empty and free of NUL bytes", list.name, i))
			}
		}
	}
	if strings.IndexByte(p.StartupScript, 0) >= 0 {
		errs = append(errs, errors.New("startup_script must not contain NUL bytes"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
