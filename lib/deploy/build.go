// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package deploy

import (
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/livecode/capsule/lib/version"
)

// Build validates params, writes the project (and payload, when one
// is configured) into the output file, and returns a report. The
// report is also written when params names a report file. The output
// file is created if missing; bytes outside the written ranges are
// left as they were.
func Build(params *Parameters, logger *slog.Logger) (*Report, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if err := params.Validate(); err != nil {
		return nil, fail(KindBadParameters, err)
	}

	mask, err := LoadMask(params.Masking)
	if err != nil {
		return nil, err
	}
	defer mask.Close()

	output, err := os.OpenFile(params.Output.Path, os.O_RDWR|os.O_CREATE, 0o755)
	if err != nil {
		return nil, fail(KindNoOutput, err)
	}
	defer output.Close()

	order := params.Output.ByteOrder.Binary()
	project, err := WriteProject(params, order, output, params.Output.Offset, Options{
		Securer: mask,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("project written",
		"output", params.Output.Path,
		"offset", params.Output.Offset,
		"size", project.Header.Size,
		"spilled", project.Header.Spilled,
		"digest", project.Capsule.Digest,
	)

	report := &Report{
		Tool:      version.Current(),
		Mode:      params.Mode,
		Output:    params.Output.Path,
		Offset:    params.Output.Offset,
		ByteOrder: params.Output.ByteOrder,
		Spill:     params.Output.Spill,
		Masked:    params.Masking.Enabled(),
		Project:   project,
	}

	if params.Output.Payload != "" {
		payloadOffset := params.Output.Offset + int64(project.Header.Size)
		report.PayloadSize, err = WritePayload(params, order, output, payloadOffset)
		if err != nil {
			return nil, err
		}
		logger.Info("payload written", "offset", payloadOffset, "size", report.PayloadSize)
	}

	if err := output.Sync(); err != nil {
		return nil, fail(KindBadWrite, err)
	}

	var spill io.Reader
	if params.Output.Spill != "" {
		spillFile, err := os.Open(params.Output.Spill)
		if err != nil {
			return nil, fail(KindNoSpill, err)
		}
		defer spillFile.Close()
		spill = spillFile
	}
	report.Fingerprint, err = FingerprintProject(output, params.Output.Offset, int64(project.Header.Size), spill)
	if err != nil {
		return nil, fail(KindBadRead, err)
	}

	if params.Output.Report != "" {
		if err := WriteReport(params.Output.Report, report); err != nil {
			return nil, fail(KindBadWrite, err)
		}
	}
	if err := output.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return nil, fail(KindBadWrite, err)
	}
	return report, nil
}
