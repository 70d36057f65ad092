// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
)

// DebugEnvironment enables debug logging when set to a non-empty
// value.
const DebugEnvironment = "LCDEPLOY_DEBUG"

// NewCommandLogger creates a structured logger on stderr. A terminal
// gets slog.TextHandler; pipes and files get slog.JSONHandler so that
// build logs can be parsed by CI.
//
// Callers scope it per command:
//
//	logger := cli.NewCommandLogger().With("command", "build")
func NewCommandLogger() *slog.Logger {
	return newLogger(os.Stderr, term.IsTerminal(int(os.Stderr.Fd())), os.Getenv(DebugEnvironment) != "")
}

func newLogger(w io.Writer, terminal, debug bool) *slog.Logger {
	options := &slog.HandlerOptions{Level: slog.LevelInfo}
	if debug {
		options.Level = slog.LevelDebug
	}
	var handler slog.Handler
	if terminal {
		handler = slog.NewTextHandler(w, options)
	} else {
		handler = slog.NewJSONHandler(w, options)
	}
	return slog.New(handler)
}
