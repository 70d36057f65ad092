// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports the build of the deploy tooling. The
// variables are injected with -ldflags -X at build time and default to
// development values otherwise.
//
// [Current] is recorded in every build report so that a deployed
// capsule can be traced back to the tool that produced it.
package version
