// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package deploy

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/livecode/capsule/lib/capsule"
	"github.com/livecode/capsule/lib/masking"
)

// Options carries the collaborators of a build.
type Options struct {
	// Securer masks the capsule. Nil means masking.Plain.
	Securer masking.Securer

	// Logger receives progress at debug level. Nil discards.
	Logger *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return o.Logger
}

func (o Options) securer() masking.Securer {
	if o.Securer == nil {
		return masking.Plain{}
	}
	return o.Securer
}

// CapsuleResult describes a capsule written by [WriteCapsule].
type CapsuleResult struct {
	capsule.Result
	Sections []capsule.SectionInfo `json:"sections"`
}

// WriteCapsule builds the standalone capsule described by params into
// output at offset. Sections are emitted as prologue, redirects,
// banner, main stack, auxiliary stacks, script-only auxiliary stacks,
// externals, modules, fontmaps, libraries, license, startup script,
// digest and epilogue. When params names a spill file it is created
// (or truncated) and receives the capsule beyond capsule.SpillLimit.
func WriteCapsule(params *Parameters, output masking.Target, offset int64, options Options) (CapsuleResult, error) {
	logger := options.logger()
	writer := capsule.NewWriter(
		capsule.WithSecurer(options.securer()),
		capsule.WithWriterLogger(logger),
	)
	defer writer.Discard()

	// The writer reads these during Generate but does not own them.
	var files inputFiles
	defer files.close()

	if err := defineSections(writer, params, &files); err != nil {
		return CapsuleResult{}, err
	}
	sections := writer.Sections()

	var spill *os.File
	if params.Output.Spill != "" {
		var err error
		spill, err = os.OpenFile(params.Output.Spill, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			return CapsuleResult{}, fail(KindNoSpill, err)
		}
		defer spill.Close()
	}

	var result capsule.Result
	var err error
	if spill != nil {
		result, err = writer.Generate(output, offset, spill)
	} else {
		result, err = writer.Generate(output, offset, nil)
	}
	if err != nil {
		return CapsuleResult{}, classifyGenerate(err)
	}
	if spill != nil {
		if err := spill.Close(); err != nil {
			return CapsuleResult{}, fail(KindBadWrite, err)
		}
	}

	logger.Debug("capsule written",
		"sections", len(sections),
		"size", result.Size,
		"spilled", result.Spilled,
		"digest", result.Digest,
	)
	return CapsuleResult{Result: result, Sections: sections}, nil
}

func classifyGenerate(err error) error {
	var pathErr *os.PathError
	switch {
	case errors.As(err, &pathErr) && pathErr.Op == "read":
		return fail(KindBadRead, err)
	case errors.Is(err, capsule.ErrSectionTooLarge):
		return fail(KindBadParameters, err)
	default:
		return fail(KindBadWrite, err)
	}
}

func defineSections(writer *capsule.Writer, params *Parameters, files *inputFiles) error {
	prologue, err := capsule.Prologue{
		BannerTimeout:  params.Banner.Timeout,
		ProgramTimeout: params.ProgramTimeout,
	}.MarshalBinary()
	if err != nil {
		return fail(KindBadParameters, err)
	}
	if err := writer.Define(capsule.SectionPrologue, prologue); err != nil {
		return fail(KindBadParameters, err)
	}

	if err := defineStrings(writer, capsule.SectionRedirect, params.Redirects); err != nil {
		return err
	}

	if params.Banner.Stackfile != "" {
		if err := files.define(writer, capsule.SectionBanner, params.Banner.Stackfile, KindNoBanner); err != nil {
			return err
		}
	}

	mainType := capsule.SectionMainStack
	if params.ScriptOnly {
		mainType = capsule.SectionScriptOnlyMainStack
	}
	if err := files.define(writer, mainType, params.Stackfile, KindNoStackfile); err != nil {
		return err
	}

	for _, path := range params.AuxiliaryStackfiles {
		if err := files.define(writer, capsule.SectionAuxiliaryStack, path, KindNoAuxStackfile); err != nil {
			return err
		}
	}
	for _, path := range params.ScriptOnlyStackfiles {
		if err := files.define(writer, capsule.SectionScriptOnlyAuxiliaryStack, path, KindNoAuxStackfile); err != nil {
			return err
		}
	}

	if err := defineStrings(writer, capsule.SectionExternal, params.Externals); err != nil {
		return err
	}
	for _, path := range params.Modules {
		if err := files.define(writer, capsule.SectionModule, path, KindNoModule); err != nil {
			return err
		}
	}
	if err := defineStrings(writer, capsule.SectionFontmap, params.Fontmaps); err != nil {
		return err
	}
	if err := defineStrings(writer, capsule.SectionLibrary, params.Libraries); err != nil {
		return err
	}

	if params.License != nil {
		license := capsule.License{Class: params.License.Class}
		if params.License.AddonsFile != "" {
			addons, err := os.ReadFile(params.License.AddonsFile)
			if err != nil {
				return fail(KindNoLicenseAddons, err)
			}
			license.Addons = addons
		}
		data, err := license.MarshalBinary()
		if err != nil {
			return fail(KindBadParameters, err)
		}
		if err := writer.Define(capsule.SectionLicense, data); err != nil {
			return fail(KindBadParameters, err)
		}
	}

	if params.StartupScript != "" {
		if err := writer.DefineString(capsule.SectionStartupScript, params.StartupScript); err != nil {
			return fail(KindBadParameters, err)
		}
	}

	if params.Checksum {
		if err := writer.Checksum(); err != nil {
			return fail(KindBadParameters, err)
		}
	}
	if err := writer.Define(capsule.SectionEpilogue, nil); err != nil {
		return fail(KindBadParameters, err)
	}
	return nil
}

func defineStrings(writer *capsule.Writer, t capsule.SectionType, values []string) error {
	for _, value := range values {
		if err := writer.DefineString(t, value); err != nil {
			return fail(KindBadParameters, fmt.Errorf("%s %q: %w", t, value, err))
		}
	}
	return nil
}

// inputFiles holds the section sources opened for one capsule.
type inputFiles []*os.File

// define opens path and registers it as a section of type t. Open
// failures are reported as kind.
func (f *inputFiles) define(writer *capsule.Writer, t capsule.SectionType, path string, kind ErrorKind) error {
	file, err := os.Open(path)
	if err != nil {
		return fail(kind, err)
	}
	*f = append(*f, file)
	if err := writer.DefineFromFile(t, file); err != nil {
		if errors.Is(err, capsule.ErrSectionTooLarge) {
			return fail(KindBadParameters, err)
		}
		return fail(kind, err)
	}
	return nil
}

func (f *inputFiles) close() {
	for _, file := range *f {
		file.Close()
	}
	*f = nil
}
