// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli provides the command framework for lcdeploy.
//
// The central type is [Command], a named subcommand with optional
// nested [Command.Subcommands], a [pflag.FlagSet] factory and a Run
// function. [Command.Execute] parses flags, routes subcommands and
// prints help with examples. Unknown subcommands and flags get a
// suggestion when one is within edit distance 3.
//
// Flag sets are usually generated from tagged parameter structs with
// [FlagsFromParams]. [NewCommandLogger] builds the structured logger
// commands share, and [ExitError] lets a command fail with a specific
// exit code after printing its own output.
package cli
