// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package capsule

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// SectionType identifies the kind of payload a section carries. The
// numeric values are written into section headers and are protocol
// constants: changing them breaks compatibility with every capsule
// already deployed.
type SectionType uint32

const (
	// SectionEpilogue terminates a capsule. Its payload is empty.
	SectionEpilogue SectionType = 0

	// SectionPrologue carries the startup timeouts (see [Prologue]).
	SectionPrologue SectionType = 1

	// SectionDigest carries the MD5 of every decompressed byte that
	// precedes its header.
	SectionDigest SectionType = 2

	// SectionMainStack carries the serialized main stack.
	SectionMainStack SectionType = 3

	// SectionScriptOnlyMainStack carries a main stack stored as
	// script text rather than in binary stack format.
	SectionScriptOnlyMainStack SectionType = 4

	// SectionExternal carries a NUL-terminated external name.
	SectionExternal SectionType = 5

	// SectionModule carries a compiled module.
	SectionModule SectionType = 6

	// SectionAuxiliaryStack carries an additional serialized stack.
	SectionAuxiliaryStack SectionType = 7

	// SectionScriptOnlyAuxiliaryStack carries an additional stack
	// stored as script text.
	SectionScriptOnlyAuxiliaryStack SectionType = 8

	// SectionRedirect carries a NUL-terminated redirect mapping of
	// the form "from:to".
	SectionRedirect SectionType = 9

	// SectionStartupScript carries a NUL-terminated script run
	// before the main stack opens.
	SectionStartupScript SectionType = 10

	// SectionFontmap carries a NUL-terminated font mapping.
	SectionFontmap SectionType = 11

	// SectionLibrary carries a NUL-terminated library name.
	SectionLibrary SectionType = 12

	// SectionLicense carries the license record (see [License]).
	SectionLicense SectionType = 13

	// SectionBanner carries the serialized banner stack.
	SectionBanner SectionType = 14
)

// MaxSectionType is the largest type value a header can encode.
const MaxSectionType SectionType = 1<<31 - 1

const (
	headerExtended = 1 << 31

	// Types and lengths at or above these bounds need the two-word
	// header form.
	shortTypeLimit   = 1 << 7
	shortLengthLimit = 1 << 24
)

var sectionTypeNames = map[SectionType]string{
	SectionEpilogue:                 "epilogue",
	SectionPrologue:                 "prologue",
	SectionDigest:                   "digest",
	SectionMainStack:                "main_stack",
	SectionScriptOnlyMainStack:      "script_only_main_stack",
	SectionExternal:                 "external",
	SectionModule:                   "module",
	SectionAuxiliaryStack:           "auxiliary_stack",
	SectionScriptOnlyAuxiliaryStack: "script_only_auxiliary_stack",
	SectionRedirect:                 "redirect",
	SectionStartupScript:            "startup_script",
	SectionFontmap:                  "fontmap",
	SectionLibrary:                  "library",
	SectionLicense:                  "license",
	SectionBanner:                   "banner",
}

// String returns the human-readable name of a section type.
func (t SectionType) String() string {
	if name, ok := sectionTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", uint32(t))
}

// ParseSectionType parses a section type from its string
// representation. Numeric values are accepted for types without a
// name.
func ParseSectionType(name string) (SectionType, error) {
	for t, candidate := range sectionTypeNames {
		if candidate == name {
			return t, nil
		}
	}
	if value, err := strconv.ParseUint(name, 10, 31); err == nil {
		return SectionType(value), nil
	}
	return 0, fmt.Errorf("unknown section type: %q", name)
}

// Header is a decoded section header.
type Header struct {
	Type   SectionType
	Length uint32

	// Size is the number of bytes the header occupied on the wire:
	// 4 for the short form, 8 for the extended form.
	Size int
}

// HeaderSize returns how many bytes the header for a section of the
// given type and length occupies.
func HeaderSize(t SectionType, length uint32) int {
	if t >= shortTypeLimit || length >= shortLengthLimit {
		return 8
	}
	return 4
}

// AppendHeader appends the encoded header for a section of the given
// type and length to dst. Types above [MaxSectionType] lose their top
// bit; callers validate before encoding.
func AppendHeader(dst []byte, t SectionType, length uint32) []byte {
	if HeaderSize(t, length) == 4 {
		return binary.BigEndian.AppendUint32(dst, uint32(t)<<24|length)
	}
	word0 := headerExtended | (uint32(t)&0x7f)<<24 | length&0xffffff
	word1 := (uint32(t)&0x7fffff80)<<1 | length>>24
	dst = binary.BigEndian.AppendUint32(dst, word0)
	return binary.BigEndian.AppendUint32(dst, word1)
}

// DecodeHeader decodes the section header at the start of data. It
// returns [ErrShortHeader] when data holds fewer bytes than the
// header needs: 4 bytes always, 8 when the extension flag is set.
func DecodeHeader(data []byte) (Header, error) {
	if len(data) < 4 {
		return Header{}, ErrShortHeader
	}
	word0 := binary.BigEndian.Uint32(data)
	header := Header{
		Type:   SectionType((word0 >> 24) & 0x7f),
		Length: word0 & 0xffffff,
		Size:   4,
	}
	if word0&headerExtended == 0 {
		return header, nil
	}
	if len(data) < 8 {
		return Header{}, ErrShortHeader
	}
	word1 := binary.BigEndian.Uint32(data[4:])
	header.Type |= SectionType((word1 & 0xffffff00) >> 1)
	header.Length |= (word1 & 0xff) << 24
	header.Size = 8
	return header, nil
}

// extended reports whether the first header word announces a second.
func extended(word0 []byte) bool {
	return word0[0]&0x80 != 0
}

// PaddedLength rounds n up to the next multiple of 4.
func PaddedLength(n int64) int64 {
	return (n + 3) &^ 3
}

// Digest is an MD5 digest of decompressed capsule bytes.
type Digest [16]byte

// String returns the digest as lowercase hex.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// MarshalText encodes the digest as hex.
func (d Digest) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText decodes a hex digest.
func (d *Digest) UnmarshalText(text []byte) error {
	parsed, err := ParseDigest(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseDigest parses a 32-character hex digest.
func ParseDigest(text string) (Digest, error) {
	var digest Digest
	raw, err := hex.DecodeString(strings.TrimSpace(text))
	if err != nil {
		return digest, fmt.Errorf("parsing digest: %w", err)
	}
	if len(raw) != len(digest) {
		return digest, fmt.Errorf("parsing digest: got %d bytes, want %d", len(raw), len(digest))
	}
	copy(digest[:], raw)
	return digest, nil
}

// Prologue is the payload of a Prologue section: how long the banner
// stays up and how long an unlicensed program may run, both in
// seconds. Zero disables the respective timeout.
type Prologue struct {
	BannerTimeout  uint32 `json:"banner_timeout"`
	ProgramTimeout uint32 `json:"program_timeout"`
}

// PrologueSize is the encoded size of a [Prologue].
const PrologueSize = 8

// MarshalBinary encodes the prologue as two big-endian words.
func (p Prologue) MarshalBinary() ([]byte, error) {
	data := make([]byte, 0, PrologueSize)
	data = binary.BigEndian.AppendUint32(data, p.BannerTimeout)
	data = binary.BigEndian.AppendUint32(data, p.ProgramTimeout)
	return data, nil
}

// UnmarshalBinary decodes a prologue. The payload must be exactly
// [PrologueSize] bytes.
func (p *Prologue) UnmarshalBinary(data []byte) error {
	if len(data) != PrologueSize {
		return fmt.Errorf("prologue: got %d bytes, want %d", len(data), PrologueSize)
	}
	p.BannerTimeout = binary.BigEndian.Uint32(data)
	p.ProgramTimeout = binary.BigEndian.Uint32(data[4:])
	return nil
}

// License is the payload of a License section: a license class byte
// followed by an optional serialized array of licensed addons.
type License struct {
	Class  uint8  `json:"class"`
	Addons []byte `json:"addons,omitempty"`
}

// MarshalBinary encodes the license record.
func (l License) MarshalBinary() ([]byte, error) {
	data := make([]byte, 0, 1+len(l.Addons))
	data = append(data, l.Class)
	return append(data, l.Addons...), nil
}

// UnmarshalBinary decodes a license record. An empty payload is
// malformed: the class byte is mandatory.
func (l *License) UnmarshalBinary(data []byte) error {
	if len(data) < 1 {
		return fmt.Errorf("license: empty payload")
	}
	l.Class = data[0]
	l.Addons = nil
	if len(data) > 1 {
		l.Addons = append([]byte(nil), data[1:]...)
	}
	return nil
}
