// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"strings"
	"testing"

	"github.com/livecode/capsule/lib/capsule"
)

type sampleRecord struct {
	Name     string         `json:"name"`
	Sections int            `json:"sections"`
	Spill    string         `json:"spill,omitempty"`
	Digest   capsule.Digest `json:"digest"`
	Payload  []byte         `json:"payload,omitempty"`
}

func sample() sampleRecord {
	return sampleRecord{
		Name:     "standalone",
		Sections: 7,
		Digest:   capsule.Digest{0xd4, 0x1d, 0x8c, 0xd9},
		Payload:  []byte{0x00, 0xff, 0x10},
	}
}

func TestMarshalUnmarshalRoundtrip(t *testing.T) {
	original := sample()
	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded sampleRecord
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Name != original.Name || decoded.Sections != original.Sections ||
		decoded.Digest != original.Digest || !bytes.Equal(decoded.Payload, original.Payload) {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", decoded, original)
	}
}

func TestMarshalDeterministic(t *testing.T) {
	first, err := Marshal(map[string]any{"b": 1, "a": "x", "c": []int{3}})
	if err != nil {
		t.Fatalf("first Marshal: %v", err)
	}
	second, err := Marshal(map[string]any{"c": []int{3}, "a": "x", "b": 1})
	if err != nil {
		t.Fatalf("second Marshal: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Errorf("deterministic encoding violated: %x != %x", first, second)
	}
}

func TestDigestEncodesAsText(t *testing.T) {
	data, err := Marshal(sample())
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	notation, err := Diagnose(data)
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	if !strings.Contains(notation, `"d41d8cd9000000000000000000000000"`) {
		t.Errorf("notation %q does not carry the digest as hex text", notation)
	}
	if strings.Contains(notation, `"spill"`) {
		t.Errorf("notation %q includes an omitted empty field", notation)
	}
}

func TestEncoderDecoderStream(t *testing.T) {
	records := []sampleRecord{sample(), {Name: "second", Sections: 1}}

	var buffer bytes.Buffer
	encoder := NewEncoder(&buffer)
	for _, record := range records {
		if err := encoder.Encode(record); err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}
	decoder := NewDecoder(&buffer)
	for i, want := range records {
		var got sampleRecord
		if err := decoder.Decode(&got); err != nil {
			t.Fatalf("Decode record %d: %v", i, err)
		}
		if got.Name != want.Name || got.Sections != want.Sections {
			t.Errorf("record %d: got %+v, want %+v", i, got, want)
		}
	}
}

func TestUnmarshalInvalid(t *testing.T) {
	var record sampleRecord
	if err := Unmarshal([]byte{0xff, 0xfe, 0xfd}, &record); err == nil {
		t.Error("Unmarshal should reject invalid CBOR")
	}
}
