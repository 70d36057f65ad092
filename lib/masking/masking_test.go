// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package masking

import (
	"bytes"
	"io"
	"testing"

	"github.com/livecode/capsule/lib/secret"
)

type memoryTarget struct {
	data []byte
}

func (m *memoryTarget) WriteAt(p []byte, offset int64) (int, error) {
	if end := int(offset) + len(p); end > len(m.data) {
		m.data = append(m.data, make([]byte, end-len(m.data))...)
	}
	return copy(m.data[offset:], p), nil
}

func (m *memoryTarget) ReadAt(p []byte, offset int64) (int, error) {
	if offset >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[offset:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func testKey(t *testing.T, fill byte, size int) *secret.Buffer {
	t.Helper()
	key, err := secret.NewFromBytes(bytes.Repeat([]byte{fill}, size))
	if err != nil {
		t.Fatalf("creating key: %v", err)
	}
	t.Cleanup(func() { key.Close() })
	return key
}

func TestPlainMarker(t *testing.T) {
	tests := []struct {
		amount int
		want   int64
	}{
		{0, 4},
		{1, 8},
		{4, 8},
		{5, 12},
		{7, 12},
	}
	for _, tt := range tests {
		target := &memoryTarget{data: append([]byte("HDR:"), bytes.Repeat([]byte{0xaa}, tt.amount)...)}
		end, err := Plain{}.Secure(target, 4, int64(tt.amount), [16]byte{})
		if err != nil {
			t.Fatalf("Secure(%d) failed: %v", tt.amount, err)
		}
		if end != 4+tt.want {
			t.Errorf("Secure(%d) end = %d, want %d", tt.amount, end, 4+tt.want)
		}
		if int64(len(target.data)) != end {
			t.Errorf("Secure(%d) left %d bytes, want %d", tt.amount, len(target.data), end)
		}
		if !bytes.Equal(target.data[4:4+tt.amount], bytes.Repeat([]byte{0xaa}, tt.amount)) {
			t.Errorf("Secure(%d) changed the capsule bytes", tt.amount)
		}
		for i, b := range target.data[4+tt.amount:] {
			if b != 0 {
				t.Errorf("Secure(%d) trailer byte %d = %#x, want 0", tt.amount, i, b)
			}
		}
	}
}

func TestXORIsItsOwnInverse(t *testing.T) {
	mask, err := NewXOR(testKey(t, 0x42, KeySize))
	if err != nil {
		t.Fatalf("NewXOR failed: %v", err)
	}
	defer mask.Close()

	original := make([]byte, 300)
	for i := range original {
		original[i] = byte(i)
	}
	data := bytes.Clone(original)
	mask.Unmask(0, data)
	if bytes.Equal(data, original) {
		t.Fatal("Unmask left the data unchanged")
	}
	mask.Unmask(0, data)
	if !bytes.Equal(data, original) {
		t.Error("applying the mask twice did not restore the data")
	}
}

func TestXORPositionConsistency(t *testing.T) {
	mask, err := NewXOR(testKey(t, 0x17, KeySize))
	if err != nil {
		t.Fatalf("NewXOR failed: %v", err)
	}
	defer mask.Close()

	whole := make([]byte, 200)
	mask.Unmask(0, whole)

	for _, split := range []int{1, 3, 63, 64, 65, 128, 199} {
		pieces := make([]byte, 200)
		mask.Unmask(0, pieces[:split])
		mask.Unmask(int64(split), pieces[split:])
		if !bytes.Equal(pieces, whole) {
			t.Errorf("unmasking split at %d differs from unmasking whole", split)
		}
	}
}

func TestXORSecure(t *testing.T) {
	mask, err := NewXOR(testKey(t, 0x99, KeySize))
	if err != nil {
		t.Fatalf("NewXOR failed: %v", err)
	}
	defer mask.Close()

	compressed := bytes.Repeat([]byte("capsule!"), 1500)
	target := &memoryTarget{data: append([]byte("ENGINE"), compressed...)}
	end, err := mask.Secure(target, 6, int64(len(compressed)), [16]byte{})
	if err != nil {
		t.Fatalf("Secure failed: %v", err)
	}
	if want := int64(6 + len(compressed) + MarkerSize); end != want {
		t.Errorf("Secure end = %d, want %d", end, want)
	}
	if string(target.data[:6]) != "ENGINE" {
		t.Error("Secure touched bytes before start")
	}

	masked := bytes.Clone(target.data[6 : 6+len(compressed)])
	if bytes.Equal(masked, compressed) {
		t.Fatal("Secure did not mask the capsule")
	}
	mask.Unmask(0, masked)
	if !bytes.Equal(masked, compressed) {
		t.Error("Unmask did not restore the secured bytes")
	}
	if !bytes.Equal(target.data[end-MarkerSize:end], make([]byte, MarkerSize)) {
		t.Error("end marker is not zero")
	}
}

func TestXORKeysDiffer(t *testing.T) {
	first, err := NewXOR(testKey(t, 0x01, KeySize))
	if err != nil {
		t.Fatalf("NewXOR failed: %v", err)
	}
	defer first.Close()
	second, err := NewXOR(testKey(t, 0x02, KeySize))
	if err != nil {
		t.Fatalf("NewXOR failed: %v", err)
	}
	defer second.Close()

	a := make([]byte, 64)
	b := make([]byte, 64)
	first.Unmask(0, a)
	second.Unmask(0, b)
	if bytes.Equal(a, b) {
		t.Error("different keys produced the same keystream")
	}
}

func TestNewXORRejectsShortKey(t *testing.T) {
	if _, err := NewXOR(testKey(t, 0x01, MinKeySize-1)); err == nil {
		t.Error("NewXOR accepted a key shorter than MinKeySize")
	}
	mask, err := NewXOR(testKey(t, 0x01, MinKeySize))
	if err != nil {
		t.Fatalf("NewXOR rejected a MinKeySize key: %v", err)
	}
	mask.Close()
}

func TestKeyEncoding(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	defer key.Close()
	if key.Len() != KeySize {
		t.Fatalf("GenerateKey returned %d bytes, want %d", key.Len(), KeySize)
	}

	encoded, err := EncodeKey(key)
	if err != nil {
		t.Fatalf("EncodeKey failed: %v", err)
	}
	defer encoded.Close()
	if encoded.Len() != 2*KeySize {
		t.Errorf("encoded key is %d bytes, want %d", encoded.Len(), 2*KeySize)
	}

	decoded, err := DecodeKey(encoded)
	if err != nil {
		t.Fatalf("DecodeKey failed: %v", err)
	}
	defer decoded.Close()
	if !decoded.Equal(key.Bytes()) {
		t.Error("decoded key differs from the generated key")
	}

	other, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	defer other.Close()
	if other.Equal(key.Bytes()) {
		t.Error("two generated keys are identical")
	}
}

func TestDecodeKeyInvalid(t *testing.T) {
	for _, text := range []string{"abc", "zz", "0g0g"} {
		encoded, err := secret.NewFromBytes([]byte(text))
		if err != nil {
			t.Fatalf("creating buffer: %v", err)
		}
		if key, err := DecodeKey(encoded); err == nil {
			key.Close()
			t.Errorf("DecodeKey(%q) succeeded", text)
		}
		encoded.Close()
	}
}
