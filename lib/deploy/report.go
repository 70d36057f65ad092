// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package deploy

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"

	"github.com/livecode/capsule/lib/codec"
	"github.com/livecode/capsule/lib/version"
)

// fingerprintContext is the BLAKE3 derive-key context for project
// fingerprints. Changing it changes every fingerprint.
const fingerprintContext = "livecode.capsule 2026 project fingerprint v1"

// Fingerprint is the BLAKE3 hash of a written project: the primary
// file bytes from the size field to the end of the project, followed
// by the whole spill file.
type Fingerprint [32]byte

// String returns the hex encoding of f.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// Short returns the "prj-" prefix followed by the first 12 hex
// characters.
func (f Fingerprint) Short() string {
	return "prj-" + hex.EncodeToString(f[:6])
}

func (f Fingerprint) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func (f *Fingerprint) UnmarshalText(text []byte) error {
	decoded, err := hex.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("parsing fingerprint: %w", err)
	}
	if len(decoded) != len(f) {
		return fmt.Errorf("fingerprint is %d bytes, want %d", len(decoded), len(f))
	}
	copy(f[:], decoded)
	return nil
}

// FingerprintProject hashes size bytes of primary from offset, then
// all of spill when spill is non-nil.
func FingerprintProject(primary io.ReaderAt, offset, size int64, spill io.Reader) (Fingerprint, error) {
	hasher := blake3.NewDeriveKey(fingerprintContext)
	if _, err := io.Copy(hasher, io.NewSectionReader(primary, offset, size)); err != nil {
		return Fingerprint{}, fmt.Errorf("hashing project: %w", err)
	}
	if spill != nil {
		if _, err := io.Copy(hasher, spill); err != nil {
			return Fingerprint{}, fmt.Errorf("hashing spill file: %w", err)
		}
	}
	var fingerprint Fingerprint
	copy(fingerprint[:], hasher.Sum(nil))
	return fingerprint, nil
}

// Report records what a build produced.
type Report struct {
	Tool        version.Build `json:"tool"`
	Mode        Mode          `json:"mode"`
	Output      string        `json:"output"`
	Offset      int64         `json:"offset"`
	ByteOrder   ByteOrder     `json:"byte_order"`
	Spill       string        `json:"spill,omitempty"`
	Masked      bool          `json:"masked"`
	Project     ProjectResult `json:"project"`
	PayloadSize uint32        `json:"payload_size,omitempty"`
	Fingerprint Fingerprint   `json:"fingerprint"`
}

// WriteReport stores r as CBOR at path.
func WriteReport(path string, r *Report) error {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("writing build report: %w", err)
	}
	if err := codec.NewEncoder(file).Encode(r); err != nil {
		file.Close()
		return fmt.Errorf("encoding build report: %w", err)
	}
	return file.Close()
}

// ReadReport loads a report written by [WriteReport].
func ReadReport(path string) (*Report, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading build report: %w", err)
	}
	defer file.Close()

	var r Report
	if err := codec.NewDecoder(file).Decode(&r); err != nil {
		return nil, fmt.Errorf("decoding build report %s: %w", path, err)
	}
	return &r, nil
}
