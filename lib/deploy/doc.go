// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package deploy builds standalone projects from a YAML parameters
// file.
//
// A project is a 4-byte size field followed by a capsule. The size
// counts the field itself, uses the byte order of the target engine,
// and carries a high bit when the capsule continues in a spill file.
// An optional payload follows the project with its own size field.
//
// [LoadParameters] reads the parameters, [Build] writes the project,
// the payload and a CBOR [Report]. The lower-level [WriteCapsule],
// [WriteProject] and [WritePayload] write into any output target.
//
// Failures are reported as [*Error], whose [ErrorKind] says which
// input or step failed:
//
//	if deploy.KindOf(err) == deploy.KindNoStackfile { ... }
package deploy
