// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds the CBOR configuration used for build reports
// and other records written next to deployed capsules.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2), so the
// same record always produces the same bytes and can be fingerprinted.
// JSON stays the format for CLI output; types that appear in both
// carry `json` tags only, which fxamacker/cbor reads as a fallback.
//
//	data, err := codec.Marshal(report)
//	err = codec.Unmarshal(data, &report)
//
// Files are read and written through [NewEncoder] and [NewDecoder].
// [Diagnose] renders a record in CBOR diagnostic notation for
// "lcdeploy report --diag".
package codec
