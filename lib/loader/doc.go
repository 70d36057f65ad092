// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package loader reads projects written by package deploy the way a
// standalone engine does at startup: the size field first, then the
// capsule fed incrementally from the primary file and, for spilled
// projects, the spill file. [Load] collects every section into an
// [Application] and checks digests; [Scan] hands sections to any
// capsule handler.
package loader
